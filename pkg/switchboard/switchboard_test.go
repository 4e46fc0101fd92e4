package switchboard

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/wire"
)

type fakeNetwork struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNetwork) Send(iface string, msg wire.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, iface)
	return nil
}

type fakeSinks struct {
	mu       sync.Mutex
	received []wire.Message
	known    map[string]bool
}

func (f *fakeSinks) Deliver(msg wire.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[msg.Channel] {
		return false
	}
	f.received = append(f.received, msg)
	return true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestLake_Switchboard_SendRoundRobinsInterfaces(t *testing.T) {
	t.Parallel()
	net := &fakeNetwork{}
	sb := New(testLogger(), net, nil)
	sb.UpdateSolution(&model.Solution{Assignments: []model.SolvedChannel{
		{Name: "telemetry", Frequency: 1000, Interfaces: []string{"wlan0", "wlan1"}},
	}})

	for i := 0; i < 4; i++ {
		sb.Send(wire.Message{Channel: "telemetry"})
		time.Sleep(2 * time.Millisecond) // let the 1000 Hz, burst-1 limiter refill
	}
	require.Equal(t, []string{"wlan0", "wlan1", "wlan0", "wlan1"}, net.sent)
}

func TestLake_Switchboard_SendDropsUnknownChannel(t *testing.T) {
	t.Parallel()
	net := &fakeNetwork{}
	sb := New(testLogger(), net, nil)
	sb.UpdateSolution(&model.Solution{})
	sb.Send(wire.Message{Channel: "nope"})
	require.Empty(t, net.sent)
}

func TestLake_Switchboard_SendDropsEmptyInterfaces(t *testing.T) {
	t.Parallel()
	net := &fakeNetwork{}
	sb := New(testLogger(), net, nil)
	sb.UpdateSolution(&model.Solution{Assignments: []model.SolvedChannel{
		{Name: "telemetry", Frequency: 0, Interfaces: nil},
	}})
	sb.Send(wire.Message{Channel: "telemetry"})
	require.Empty(t, net.sent)
}

func TestLake_Switchboard_UpdateSolutionResetsCursor(t *testing.T) {
	t.Parallel()
	net := &fakeNetwork{}
	sb := New(testLogger(), net, nil)
	sb.UpdateSolution(&model.Solution{Assignments: []model.SolvedChannel{
		{Name: "telemetry", Frequency: 1000, Interfaces: []string{"wlan0", "wlan1"}},
	}})
	sb.Send(wire.Message{Channel: "telemetry"}) // consumes wlan0, cursor now at wlan1

	sb.UpdateSolution(&model.Solution{Assignments: []model.SolvedChannel{
		{Name: "telemetry", Frequency: 1000, Interfaces: []string{"wlan0", "wlan1"}},
	}})
	sb.Send(wire.Message{Channel: "telemetry"})
	require.Equal(t, []string{"wlan0", "wlan0"}, net.sent)
}

func TestLake_Switchboard_RecvDeliversToKnownSink(t *testing.T) {
	t.Parallel()
	sinks := &fakeSinks{known: map[string]bool{"telemetry": true}}
	sb := New(testLogger(), nil, sinks)
	msg := wire.Message{Channel: "telemetry", Payload: []byte("x")}
	sb.Recv(msg)
	require.Equal(t, []wire.Message{msg}, sinks.received)
}

func TestLake_Switchboard_RecvWarnsOnUnknownChannel(t *testing.T) {
	t.Parallel()
	sinks := &fakeSinks{known: map[string]bool{}}
	sb := New(testLogger(), nil, sinks)
	sb.Recv(wire.Message{Channel: "ghost"})
	require.Empty(t, sinks.received)
}
