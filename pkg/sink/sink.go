// Package sink implements the Sink side of spec.md §4.5: the per-channel
// consumer a delivered Message is handed off to, plus a Registry that
// satisfies switchboard.SinkRouter by dispatching on channel name.
// Grounded on sink/base.py's ISink contract.
package sink

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/wire"
)

// Sink is one channel's consumer. Recv is called once per delivered
// Message; spec.md §4.5 gives no ordering or reliability guarantee
// across interfaces, so implementations must not assume in-order
// delivery.
type Sink interface {
	Recv(data []byte)
}

// Registry dispatches inbound Messages to the Sink registered for their
// channel, and satisfies switchboard.SinkRouter.
type Registry struct {
	log *slog.Logger

	mu    sync.RWMutex
	sinks map[string]Sink
}

// New constructs an empty Registry.
func New(log *slog.Logger) *Registry {
	return &Registry{log: log, sinks: make(map[string]Sink)}
}

// Register wires s as the consumer for channel. A second call for the
// same channel replaces the previous consumer.
func (r *Registry) Register(channel string, s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[channel] = s
}

// Unregister removes any consumer registered for channel.
func (r *Registry) Unregister(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, channel)
}

// Deliver hands msg to its channel's Sink, reporting whether one was
// registered. Implements switchboard.SinkRouter.
func (r *Registry) Deliver(msg wire.Message) bool {
	r.mu.RLock()
	s, ok := r.sinks[msg.Channel]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	s.Recv(msg.Payload)
	return true
}

// RosKindStub is the `ros` channel kind's Sink half: the out-of-scope
// counterpart of source.RosKindStub (spec.md §1). A real ROS node
// supplies Publish; Recv forwards each delivered payload to it.
type RosKindStub struct {
	messageType string
	publish     func(messageType string, data []byte) error
	log         *slog.Logger
}

// NewRosKindStub constructs a ROS-backed sink that republishes onto
// messageType via publish.
func NewRosKindStub(log *slog.Logger, messageType string, publish func(messageType string, data []byte) error) *RosKindStub {
	return &RosKindStub{messageType: messageType, publish: publish, log: log}
}

func (r *RosKindStub) Recv(data []byte) {
	if err := r.publish(r.messageType, data); err != nil {
		r.log.Error("ros sink publish failed", "message_type", r.messageType, "err", err)
	}
}

// DiskSink is the `disk` channel kind: delivered payloads are appended
// to a persistent on-disk queue rather than forwarded live, mirroring
// disk.py's recv() writing straight into the persistent backend.
type DiskSink struct {
	q interface{ Put(data []byte) }
}

// NewDiskSink wires q (typically a *queue.Persistent) as the landing
// spot for this channel's delivered payloads.
func NewDiskSink(q interface{ Put(data []byte) }) *DiskSink {
	return &DiskSink{q: q}
}

func (d *DiskSink) Recv(data []byte) {
	d.q.Put(data)
}

// Simulated is the `simulated` channel kind: it records every delivery
// for inspection by tests and the simulation
// harness, rather than forwarding them anywhere, mirroring
// simulated.py's no-op consumer.
type Simulated struct {
	mu       sync.Mutex
	received [][]byte
	onRecv   func(data []byte)
}

// NewSimulated constructs a consumer that records every delivered
// payload. onRecv, if non-nil, is additionally invoked per delivery.
func NewSimulated(onRecv func(data []byte)) *Simulated {
	return &Simulated{onRecv: onRecv}
}

func (s *Simulated) Recv(data []byte) {
	s.mu.Lock()
	s.received = append(s.received, data)
	s.mu.Unlock()
	if s.onRecv != nil {
		s.onRecv(data)
	}
}

// Count returns how many payloads have been delivered so far.
func (s *Simulated) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// Last returns the most recently delivered payload, or an error if
// none has arrived yet.
func (s *Simulated) Last() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.received) == 0 {
		return nil, fmt.Errorf("simulated sink: no payload received yet")
	}
	return s.received[len(s.received)-1], nil
}
