package netw

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/netw/pipe"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/wire"
)

// Pinger probes a remote host and reports round-trip latency on success.
// The production implementation shells out to (or wraps) ICMP ping;
// nothing in the example corpus provides a raw-socket ICMP client, so
// this is the one OS-privileged collaborator the spec explicitly treats
// as a black box (spec.md §1).
type Pinger interface {
	Ping(ctx context.Context, addr string) (rtt time.Duration, ok bool)
}

// Receiver is the upward callback an Adapter uses to hand a deserialized
// Message to the owning NetworkManager, spec.md §4.4's Mailman worker.
type Receiver interface {
	recv(iface string, msg wire.Message)
}

// AdapterConfig holds the tunables an Adapter's workers consult, mirroring
// the Env fields in pkg/config.
type AdapterConfig struct {
	BandwidthCheckEvery    time.Duration
	PingCheckEvery         time.Duration
	BandwidthWindowSize    int
	MinBandwidthBytesSec   float64
	BandwidthOptimism      float64
	ForceReconnectAfter    time.Duration
	Pinger                 Pinger
}

// Adapter drives one network interface's link state, measurement, and
// Pipe, spec.md §4.4. Grounded on networking/adapter.py.
type Adapter struct {
	log    *slog.Logger
	clock  *clock.Clock
	cfg    AdapterConfig
	role   model.AgentRole
	iface  string
	remote string // optional static peer IP; empty means peer-discovery-only
	pipe   *pipe.Pipe
	recvUp Receiver

	mu          sync.Mutex
	present     bool
	linked      bool
	hasPing     bool
	latency     float64
	bandwidthIn *slidingMax
	bandwidthOut *slidingMax
	peerAddr    string // address:port learned from discovery, if any
	boundPort   int    // port Bind() was assigned, Sink role only

	connected atomic.Bool

	bytesSent atomic.Int64
	bytesRecv atomic.Int64

	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// NewAdapter constructs an Adapter. p must already exist but need not be
// bound/connected yet; Bring-up happens in Start.
func NewAdapter(log *slog.Logger, c *clock.Clock, cfg AdapterConfig, role model.AgentRole, iface, remote string, p *pipe.Pipe, recvUp Receiver) *Adapter {
	return &Adapter{
		log:          log,
		clock:        c,
		cfg:          cfg,
		role:         role,
		iface:        iface,
		remote:       remote,
		pipe:         p,
		recvUp:       recvUp,
		present:      true,
		bandwidthIn:  newSlidingMax(cfg.BandwidthWindowSize),
		bandwidthOut: newSlidingMax(cfg.BandwidthWindowSize),
		shutdownCh:   make(chan struct{}),
	}
}

// Name is the interface name.
func (a *Adapter) Name() string { return a.iface }

// Port returns the port Bind assigned this adapter's Pipe, 0 before
// bring-up or for a Source-role adapter (which connects, not binds).
func (a *Adapter) Port() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.boundPort
}

// Present reports whether the OS still reports this interface as
// present; NetworkManager clears it via Lost.
func (a *Adapter) Present() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.present
}

// Lost marks the adapter as no longer present, spec.md §4.4.
func (a *Adapter) Lost() {
	a.mu.Lock()
	a.present = false
	a.mu.Unlock()
}

// Linked reports whether the interface currently has an IPv4 address.
func (a *Adapter) Linked() bool {
	_, _, ok := IPv4Address(a.iface)
	return ok
}

// HasPing reports the last PingWorker result.
func (a *Adapter) HasPing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasPing
}

// IsConnected is derived: linked AND the Pipe has heard from its peer
// within the heartbeat window, spec.md §4.4.
func (a *Adapter) IsConnected() bool {
	return a.Linked() && a.pipe.IsConnected()
}

// Latency returns the last measured round-trip latency in seconds,
// or +Inf if unlinked.
func (a *Adapter) Latency() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latency
}

// EstimatedBandwidthOut is the Solver-facing bandwidth estimate, spec.md
// §4.4: max(floor, window_max · (1 + optimism)) when active and linked.
func (a *Adapter) EstimatedBandwidthOut() float64 {
	return a.estimatedBandwidth(a.bandwidthOut)
}

func (a *Adapter) EstimatedBandwidthIn() float64 {
	return a.estimatedBandwidth(a.bandwidthIn)
}

func (a *Adapter) estimatedBandwidth(window *slidingMax) float64 {
	if !a.Present() || !a.Linked() {
		return 0
	}
	projected := window.Max() * (1 + a.cfg.BandwidthOptimism)
	return math.Max(a.cfg.MinBandwidthBytesSec, projected)
}

// SetPeerAddress records the peer's address:port as learned from
// discovery (Sink announcements observed by a Source).
func (a *Adapter) SetPeerAddress(addr string) {
	a.mu.Lock()
	a.peerAddr = addr
	a.mu.Unlock()
}

func (a *Adapter) peerAddress() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.remote != "" {
		return a.remote
	}
	return a.peerAddr
}

// Send serializes and enqueues msg on the Pipe, dropping silently if not
// connected (spec.md §4.4's send contract).
func (a *Adapter) Send(msg wire.Message) error {
	if !a.IsConnected() {
		return nil
	}
	data, err := msg.Serialize()
	if err != nil {
		return err
	}
	if err := a.pipe.Send(data); err != nil {
		return nil // drop silently; caller is responsible for re-queueing
	}
	a.bytesSent.Add(int64(len(data)))
	return nil
}

// BytesSent/BytesRecv back the per-interface flow counters exposed via
// NetworkManager.link_statistics, spec.md §4.4.
func (a *Adapter) BytesSent() int64 { return a.bytesSent.Load() }
func (a *Adapter) BytesRecv() int64 { return a.bytesRecv.Load() }

// Start brings the adapter's bind/connect sequence up and launches its
// workers. It returns once bring-up completes; workers run until the
// adapter is shut down.
func (a *Adapter) Start(ctx context.Context, bindAddr string) error {
	switch a.role {
	case model.RoleSink:
		port, err := a.pipe.Bind(bindAddr)
		if err != nil {
			return err
		}
		a.mu.Lock()
		a.boundPort = port
		a.mu.Unlock()
	case model.RoleSource:
		if addr := a.peerAddress(); addr != "" {
			if err := a.pipe.Connect(addr); err != nil {
				a.log.Debug("adapter: connect deferred, no peer yet", "interface", a.iface, "error", err)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { a.pipe.RunHeartbeat(); return nil })
	g.Go(func() error { return a.runMailman(gctx) })
	g.Go(func() error { return a.runBandwidthWorker(gctx, a.bandwidthOut, "sent") })
	g.Go(func() error { return a.runBandwidthWorker(gctx, a.bandwidthIn, "recv") })
	g.Go(func() error { return a.runPingWorker(gctx) })
	g.Go(func() error { return a.runReconnectWorker(gctx) })
	go func() {
		_ = g.Wait()
	}()
	return nil
}

func (a *Adapter) runMailman(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.shutdownCh:
			return nil
		default:
		}
		data, err := a.pipe.Recv()
		if err != nil {
			a.clock.Sleep(ctx, a.clock.Period(time.Second))
			continue
		}
		msg, err := wire.Deserialize(data)
		if err != nil {
			a.log.Debug("adapter: dropping undecodable frame", "interface", a.iface, "error", err)
			continue
		}
		a.bytesRecv.Add(int64(len(data)))
		if a.role == model.RoleSink {
			a.connected.Store(true)
		}
		if a.recvUp != nil {
			a.recvUp.recv(a.iface, msg)
		}
	}
}

func (a *Adapter) runBandwidthWorker(ctx context.Context, window *slidingMax, counterField string) error {
	ticker := a.clock.NewTicker(a.cfg.BandwidthCheckEvery)
	defer ticker.Stop()
	var lastBytes int64
	var lastSeen time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.shutdownCh:
			return nil
		case <-ticker.Chan():
		}
		var current int64
		if counterField == "sent" {
			current = a.bytesSent.Load()
		} else {
			current = a.bytesRecv.Load()
		}
		now := a.clock.Now()
		if lastSeen.IsZero() {
			lastBytes, lastSeen = current, now
			continue
		}
		elapsed := now.Sub(lastSeen).Seconds()
		if elapsed <= 0 {
			continue
		}
		bw := float64(current-lastBytes) / elapsed
		window.Push(bw)
		lastBytes, lastSeen = current, now
	}
}

func (a *Adapter) runPingWorker(ctx context.Context) error {
	ticker := a.clock.NewTicker(a.cfg.PingCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.shutdownCh:
			return nil
		case <-ticker.Chan():
		}
		if !a.Linked() {
			a.mu.Lock()
			a.hasPing, a.latency = false, math.Inf(1)
			a.mu.Unlock()
			a.bandwidthIn.Reset()
			a.bandwidthOut.Reset()
			continue
		}
		addr := a.peerAddress()
		if addr == "" || a.cfg.Pinger == nil {
			continue
		}
		rtt, ok := a.cfg.Pinger.Ping(ctx, addr)
		a.mu.Lock()
		a.hasPing = ok
		if ok {
			a.latency = rtt.Seconds()
		}
		a.mu.Unlock()
	}
}

func (a *Adapter) runReconnectWorker(ctx context.Context) error {
	ticker := a.clock.NewTicker(time.Second)
	defer ticker.Stop()
	var disconnectedSince time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.shutdownCh:
			return nil
		case <-ticker.Chan():
		}
		if !a.HasPing() || a.IsConnected() {
			disconnectedSince = time.Time{}
			continue
		}
		if disconnectedSince.IsZero() {
			disconnectedSince = a.clock.Now()
			continue
		}
		if a.clock.Since(disconnectedSince) > a.clock.Period(a.cfg.ForceReconnectAfter) {
			if addr := a.peerAddress(); addr != "" {
				if err := a.pipe.Reconnect(addr); err != nil {
					a.log.Debug("adapter: reconnect failed", "interface", a.iface, "error", err)
				}
			}
			disconnectedSince = a.clock.Now()
		}
	}
}

// Close shuts the adapter's workers and Pipe down.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() { close(a.shutdownCh) })
	return a.pipe.Close()
}

// slidingMax is a fixed-size window reporting its current maximum,
// spec.md §4.4's BandwidthWorker: "push into a max-window of size W, the
// reported bandwidth is the window max, to survive brief dips."
type slidingMax struct {
	mu     sync.Mutex
	values []float64
	size   int
}

func newSlidingMax(size int) *slidingMax {
	if size <= 0 {
		size = 1
	}
	return &slidingMax{size: size}
}

func (w *slidingMax) Push(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values = append(w.values, v)
	if len(w.values) > w.size {
		w.values = w.values[len(w.values)-w.size:]
	}
}

func (w *slidingMax) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values = nil
}

func (w *slidingMax) Max() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var max float64
	for _, v := range w.values {
		if v > max {
			max = v
		}
	}
	return max
}
