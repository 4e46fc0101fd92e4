package netw

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/config"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/netw/pipe"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/wire"
)

// UpRecv is the NetworkManager's upward callback into the Switchboard,
// spec.md §4.3/§4.4.
type UpRecv interface {
	Recv(msg wire.Message)
}

// LinkStatistic is one row of NetworkManager.link_statistics(), spec.md
// §4.4.
type LinkStatistic struct {
	Counter   int64
	Frequency float64
	Volume    int64
	Speed     float64
	Connected bool
}

// ChannelStatistic is one row of NetworkManager.channel_statistics().
type ChannelStatistic struct {
	Counter int64
	Volume  int64
}

// Manager owns one Adapter per usable interface: discovery, routing, and
// flow statistics, spec.md §4.4. Grounded on networking/manager.py.
type Manager struct {
	log    *slog.Logger
	clock  *clock.Clock
	role   model.AgentRole
	env    config.Env
	lister InterfaceLister
	up     UpRecv
	newAdapter func(iface string, remote string) *Adapter

	mu          sync.RWMutex
	adapters    map[string]*Adapter
	linkBytes   map[string]int64
	linkVolume  map[string]int64
	linkWindow  map[string]*slidingMax
	channelBytes  map[string]int64
	channelVolume map[string]int64

	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// NewManager constructs a Manager. newAdapter builds and starts an
// Adapter for a newly observed interface (injected so tests can avoid
// real sockets).
func NewManager(log *slog.Logger, c *clock.Clock, role model.AgentRole, env config.Env, lister InterfaceLister, up UpRecv, newAdapter func(iface, remote string) *Adapter) *Manager {
	if lister == nil {
		lister = OSInterfaceLister{}
	}
	return &Manager{
		log:           log,
		clock:         c,
		role:          role,
		env:           env,
		lister:        lister,
		up:            up,
		newAdapter:    newAdapter,
		adapters:      make(map[string]*Adapter),
		linkBytes:     make(map[string]int64),
		linkVolume:    make(map[string]int64),
		linkWindow:    make(map[string]*slidingMax),
		channelBytes:  make(map[string]int64),
		channelVolume: make(map[string]int64),
		shutdownCh:    make(chan struct{}),
	}
}

// recv implements Receiver: an Adapter hands up a deserialized Message.
func (m *Manager) recv(iface string, msg wire.Message) {
	m.mu.Lock()
	size := int64(len(msg.Payload))
	m.linkBytes[iface] += size
	m.linkVolume[iface] += size
	m.channelBytes[msg.Channel] += size
	m.channelVolume[msg.Channel] += size
	m.mu.Unlock()

	if m.up != nil {
		m.up.Recv(msg)
	}
}

// Send dispatches msg down the named interface. Unknown interfaces are
// logged and dropped, spec.md §4.4.
func (m *Manager) Send(iface string, msg wire.Message) error {
	m.mu.RLock()
	a, ok := m.adapters[iface]
	m.mu.RUnlock()
	if !ok {
		m.log.Error("network manager: send to unknown interface", "interface", iface)
		return fmt.Errorf("unknown interface %q", iface)
	}
	size := int64(len(msg.Payload))
	m.mu.Lock()
	m.linkBytes[iface] += size
	m.linkVolume[iface] += size
	m.channelBytes[msg.Channel] += size
	m.channelVolume[msg.Channel] += size
	m.mu.Unlock()
	return a.Send(msg)
}

// Adapter returns the named adapter, if attached.
func (m *Manager) Adapter(name string) (*Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[name]
	return a, ok
}

// Adapters returns a snapshot of all attached adapters.
func (m *Manager) Adapters() []*Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		out = append(out, a)
	}
	return out
}

// Run drives the discovery loop: enumerate interfaces, honor the
// Problem's link whitelist and the type allowlist, attach new adapters,
// and mark vanished ones lost. It blocks until ctx is done or Close is
// called.
func (m *Manager) Run(ctx context.Context, whitelist []string, onNewInterface func(name string)) {
	allowed := make(map[string]bool, len(whitelist))
	for _, w := range whitelist {
		allowed[w] = true
	}
	ticker := m.clock.NewTicker(m.env.NetworkIfacesDiscoveryEverySecs)
	defer ticker.Stop()
	for {
		m.tick(allowed, onNewInterface)
		select {
		case <-ctx.Done():
			return
		case <-m.shutdownCh:
			return
		case <-ticker.Chan():
		}
	}
}

func (m *Manager) tick(allowed map[string]bool, onNewInterface func(name string)) {
	devices, err := m.lister.Interfaces()
	if err != nil {
		m.log.Error("network manager: enumerating interfaces", "error", err)
		return
	}

	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		seen[d.Interface] = true
		if len(allowed) > 0 && !allowed[d.Interface] {
			continue
		}
		if !m.env.AllowsType(string(d.Type)) {
			continue
		}
		m.mu.RLock()
		_, attached := m.adapters[d.Interface]
		m.mu.RUnlock()
		if attached {
			continue
		}
		if m.newAdapter == nil {
			continue
		}
		adapter := m.newAdapter(d.Interface, "")
		m.mu.Lock()
		m.adapters[d.Interface] = adapter
		m.linkWindow[d.Interface] = newSlidingMax(config.BandwidthWindowSize)
		m.mu.Unlock()
		m.log.Info("network manager: attached interface", "interface", d.Interface, "type", d.Type)
		if onNewInterface != nil {
			onNewInterface(d.Interface)
		}
	}

	m.mu.RLock()
	var lost []string
	for name := range m.adapters {
		if !seen[name] {
			lost = append(lost, name)
		}
	}
	m.mu.RUnlock()
	for _, name := range lost {
		m.mu.RLock()
		a := m.adapters[name]
		m.mu.RUnlock()
		a.Lost()
		m.log.Info("network manager: interface lost", "interface", name)
	}
}

// LinkStatistics snapshots per-interface flow statistics, spec.md §4.4.
func (m *Manager) LinkStatistics() map[string]LinkStatistic {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]LinkStatistic, len(m.adapters))
	for name, a := range m.adapters {
		out[name] = LinkStatistic{
			Counter:   a.BytesSent() + a.BytesRecv(),
			Frequency: 0, // filled by caller from the active Solution if needed
			Volume:    m.linkVolume[name],
			Speed:     a.EstimatedBandwidthOut(),
			Connected: a.IsConnected(),
		}
	}
	return out
}

// ChannelStatistics snapshots per-channel flow statistics.
func (m *Manager) ChannelStatistics() map[string]ChannelStatistic {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ChannelStatistic, len(m.channelBytes))
	for name, bytes := range m.channelBytes {
		out[name] = ChannelStatistic{Counter: bytes, Volume: m.channelVolume[name]}
	}
	return out
}

// Reset restarts the rate-measurement window for every link and channel
// while preserving cumulative volume, resolving the reset-vs-accumulate
// Open Question (spec.md §9) in favor of the spec's stated fix.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkBytes = make(map[string]int64)
	m.channelBytes = make(map[string]int64)
}

// Close shuts down the discovery loop and every attached adapter.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.shutdownCh) })
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.adapters {
		_ = a.Close()
	}
	return nil
}
