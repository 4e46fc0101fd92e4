// Package switchboard implements the per-channel dispatcher described in
// spec.md §4.3: routes outgoing Source messages to the interface chosen
// by the current Solution, and incoming messages to the local Sink.
// Grounded on switchboard.py/types/solution.py's cursor-over-interfaces
// design, generalized to the spec's explicit `(cursor+1) mod len`
// round-robin and pacing-gated send (design notes, spec.md §9).
package switchboard

import (
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/wire"
)

// NetworkSender is the subset of NetworkManager the Switchboard depends
// on: dispatch a message down a chosen interface.
type NetworkSender interface {
	Send(iface string, msg wire.Message) error
}

// SinkRouter delivers an inbound message to the local consumer registered
// for a channel. Deliver reports whether a Sink was registered for
// msg.Channel so the Switchboard can warn on unknown channels.
type SinkRouter interface {
	Deliver(msg wire.Message) (delivered bool)
}

type route struct {
	solved  model.SolvedChannel
	cursor  int
	limiter *rate.Limiter // nil means unpaced (pass every send through)
}

// Switchboard is the dispatcher, spec.md §4.3. Safe for concurrent use.
type Switchboard struct {
	log     *slog.Logger
	network NetworkSender
	sinks   SinkRouter

	mu     sync.Mutex
	routes map[string]*route
}

// New constructs a Switchboard. network and sinks may be swapped later
// via SetNetwork/SetSinks if they are not yet available at construction
// time (the launcher calls SetNetwork once the NetworkManager exists).
func New(log *slog.Logger, network NetworkSender, sinks SinkRouter) *Switchboard {
	return &Switchboard{
		log:     log,
		network: network,
		sinks:   sinks,
		routes:  make(map[string]*route),
	}
}

// SetNetwork wires the NetworkManager after construction.
func (s *Switchboard) SetNetwork(network NetworkSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.network = network
}

// SetSinks wires the Sink registry after construction.
func (s *Switchboard) SetSinks(sinks SinkRouter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = sinks
}

// UpdateSolution atomically swaps in a new Solution: per-channel cursors
// reset and each channel's pacing limiter is reconfigured to the newly
// achieved frequency.
func (s *Switchboard) UpdateSolution(sol *model.Solution) {
	next := make(map[string]*route, len(sol.Assignments))
	for _, a := range sol.Assignments {
		r := &route{solved: a}
		if a.Frequency > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(a.Frequency), 1)
		}
		next[a.Name] = r
	}
	s.mu.Lock()
	s.routes = next
	s.mu.Unlock()
}

// Send looks up the SolvedChannel for msg.Channel, advances its cursor,
// and hands the message to NetworkManager on the chosen interface. It
// drops silently (with a debug trace) when the channel is unknown, has no
// scheduled interfaces, or its pacing limiter disallows the send right
// now.
func (s *Switchboard) Send(msg wire.Message) {
	s.mu.Lock()
	r, ok := s.routes[msg.Channel]
	if !ok || len(r.solved.Interfaces) == 0 {
		s.mu.Unlock()
		s.log.Debug("switchboard: dropping send, no route", "channel", msg.Channel)
		return
	}
	if r.limiter != nil && !r.limiter.Allow() {
		s.mu.Unlock()
		s.log.Debug("switchboard: dropping send, paced out", "channel", msg.Channel)
		return
	}
	iface := r.solved.Interfaces[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.solved.Interfaces)
	network := s.network
	s.mu.Unlock()

	if network == nil {
		s.log.Debug("switchboard: dropping send, no network manager wired", "channel", msg.Channel)
		return
	}
	if err := network.Send(iface, msg); err != nil {
		s.log.Debug("switchboard: send failed", "channel", msg.Channel, "interface", iface, "error", err)
	}
}

// Recv routes an inbound message to the local Sink registered for its
// channel. Unknown channels are warned about and dropped.
func (s *Switchboard) Recv(msg wire.Message) {
	s.mu.Lock()
	sinks := s.sinks
	s.mu.Unlock()

	if sinks == nil || !sinks.Deliver(msg) {
		s.log.Warn("switchboard: received message for unknown channel", "channel", msg.Channel)
	}
}
