package netw

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/config"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/wire"
)

func TestLake_Netw_ClassifyInterfaceName(t *testing.T) {
	t.Parallel()
	require.Equal(t, DeviceWifi, ClassifyInterfaceName("wlan0"))
	require.Equal(t, DeviceWifi, ClassifyInterfaceName("wlp3s0"))
	require.Equal(t, DeviceEthernet, ClassifyInterfaceName("eth0"))
	require.Equal(t, DeviceEthernet, ClassifyInterfaceName("enp0s3"))
	require.Equal(t, DevicePPP, ClassifyInterfaceName("ppp0"))
	require.Equal(t, DeviceOther, ClassifyInterfaceName("lo"))
}

type fakeLister struct {
	mu      sync.Mutex
	devices []Device
}

func (f *fakeLister) Interfaces() ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *fakeLister) set(devices []Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = devices
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestLake_Netw_ManagerAttachesNewInterfaces(t *testing.T) {
	t.Parallel()
	lister := &fakeLister{devices: []Device{{Interface: "wlan0", Type: DeviceWifi, Up: true}}}
	env := config.Load()

	var attached []string
	var mu sync.Mutex
	newAdapter := func(iface, remote string) *Adapter {
		mu.Lock()
		attached = append(attached, iface)
		mu.Unlock()
		return nil
	}
	m := NewManager(testLogger(), nil, model.RoleSink, env, lister, nil, newAdapter)
	m.tick(nil, nil)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"wlan0"}, attached)
}

func TestLake_Netw_ManagerHonorsWhitelist(t *testing.T) {
	t.Parallel()
	lister := &fakeLister{devices: []Device{
		{Interface: "wlan0", Type: DeviceWifi, Up: true},
		{Interface: "eth0", Type: DeviceEthernet, Up: true},
	}}
	env := config.Load()

	var attached []string
	newAdapter := func(iface, remote string) *Adapter {
		attached = append(attached, iface)
		return nil
	}
	m := NewManager(testLogger(), nil, model.RoleSink, env, lister, nil, newAdapter)
	m.tick(map[string]bool{"wlan0": true}, nil)
	require.Equal(t, []string{"wlan0"}, attached)
}

func TestLake_Netw_SlidingMaxReportsWindowMax(t *testing.T) {
	t.Parallel()
	w := newSlidingMax(3)
	require.Zero(t, w.Max())
	w.Push(10)
	w.Push(50)
	w.Push(5)
	require.InDelta(t, 50, w.Max(), 1e-9)
	w.Push(1) // evicts the first 10, window is now [50,5,1]
	require.InDelta(t, 50, w.Max(), 1e-9)
	w.Push(2) // evicts 50, window is now [5,1,2]
	require.InDelta(t, 5, w.Max(), 1e-9)
	w.Reset()
	require.Zero(t, w.Max())
}

func TestLake_Netw_ManagerSendUnknownInterfaceErrors(t *testing.T) {
	t.Parallel()
	env := config.Load()
	m := NewManager(testLogger(), nil, model.RoleSource, env, &fakeLister{}, nil, nil)
	err := m.Send("ghost0", wire.Message{Channel: "telemetry"})
	require.Error(t, err)
}
