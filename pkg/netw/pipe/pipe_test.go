package pipe

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
)

func TestLake_Pipe_BindReturnsPortWithoutWaitingForPeer(t *testing.T) {
	t.Parallel()
	c := clock.New(1)
	sink := New(c, 50*time.Millisecond)
	defer sink.Close()

	port, err := sink.Bind("127.0.0.1:0")
	require.NoError(t, err)
	require.NotZero(t, port)
	require.False(t, sink.IsConnected())
}

func TestLake_Pipe_ConnectSendRecvRoundTrips(t *testing.T) {
	t.Parallel()
	c := clock.New(1)
	sink := New(c, 50*time.Millisecond)
	defer sink.Close()

	port, err := sink.Bind("127.0.0.1:0")
	require.NoError(t, err)

	source := New(c, 50*time.Millisecond)
	defer source.Close()
	require.NoError(t, source.Connect(addrFor(port)))

	require.NoError(t, source.Send([]byte("hello")))
	data, err := sink.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	require.Eventually(t, sink.IsConnected, time.Second, 5*time.Millisecond)
}

func TestLake_Pipe_HeartbeatKeepsConnectionAlive(t *testing.T) {
	t.Parallel()
	c := clock.New(1)
	sink := New(c, 20*time.Millisecond)
	defer sink.Close()

	port, err := sink.Bind("127.0.0.1:0")
	require.NoError(t, err)

	source := New(c, 20*time.Millisecond)
	defer source.Close()
	require.NoError(t, source.Connect(addrFor(port)))
	go source.RunHeartbeat()

	// Heartbeats only refresh liveness as Recv reads them, so keep a reader
	// running, and wait well past the 2x20ms window the connect opened.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := sink.Recv(); err != nil {
				time.Sleep(time.Millisecond)
			}
		}
	}()
	time.Sleep(100 * time.Millisecond)

	require.Eventually(t, sink.IsConnected, time.Second, 5*time.Millisecond,
		"heartbeat frames should register the connection as live without a user frame")
}

func addrFor(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}
