// Package source implements the Source side of spec.md §4.5: a
// windmill-backed per-channel producer that paces outgoing messages at
// whatever frequency the Switchboard's current Solution grants it.
// Grounded on source/base.py's ISource/MessageWindmill pair.
package source

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/config"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/queue"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/wire"
)

// Publisher is the Switchboard-facing sink for drained windmill payloads.
type Publisher interface {
	Send(msg wire.Message)
}

// Source is one channel's producer, spec.md §4.5.
type Source struct {
	log       *slog.Logger
	clock     *clock.Clock
	channel   string
	q         queue.Queue
	publisher Publisher

	frequency   float64 // nominal fallback; used until flow has a live sample
	flow        *flowWatch
	paceLimiter *rate.Limiter
	solutionHz  atomic.Value // float64
	shutdownCh  chan struct{}
	closeOnce   sync.Once
	windmillWG  sync.WaitGroup
}

// New constructs a Source for one channel that drains q into publisher;
// frequency is the channel's nominal rate. The caller builds q (its kind
// and size), and Inject stays unpaced until SetPaceLimit is called (the
// pacing Reminder in spec.md §4.5).
func New(log *slog.Logger, c *clock.Clock, channel string, frequency float64, q queue.Queue, publisher Publisher) *Source {
	s := &Source{
		log:        log,
		clock:      c,
		channel:    channel,
		q:          q,
		publisher:  publisher,
		frequency:  frequency,
		flow:       newFlowWatch(c, config.FormulateProblemEvery),
		shutdownCh: make(chan struct{}),
	}
	s.solutionHz.Store(0.0)
	return s
}

// SetPaceLimit configures the production-rate Reminder, spec.md §4.5: "if
// a per-channel pacing Reminder says 'time' (rate = nominal frequency),
// push into the queue; else drop." A zero or negative rate disables
// pacing (every Inject is accepted).
func (s *Source) SetPaceLimit(hz float64) {
	if hz <= 0 {
		s.paceLimiter = nil
		return
	}
	s.paceLimiter = rate.NewLimiter(rate.Limit(hz), 1)
}

// QueueLength is consulted by the Solver (spec.md §4.2.6.b).
func (s *Source) QueueLength() int { return s.q.Length() }

// SetSolutionFrequency is called by the Engine whenever a new
// Solution is applied; it is the rate at which the windmill drains.
func (s *Source) SetSolutionFrequency(hz float64) {
	s.solutionHz.Store(hz)
}

func (s *Source) solutionFrequency() float64 {
	return s.solutionHz.Load().(float64)
}

// Inject offers a freshly produced payload to the windmill, subject to
// the pacing Reminder.
func (s *Source) Inject(data []byte) {
	if s.paceLimiter != nil && !s.paceLimiter.Allow() {
		return
	}
	s.q.Put(data)
	s.flow.signal()
}

// Frequency reports the channel's live production rate for the Engine's
// Formulate step, spec.md §4.1 step 1.a: falls back to the frequency given
// at construction until enough live samples have landed, mirroring
// source/ros.py's FlowWatch-driven measurement.
func (s *Source) Frequency() float64 {
	if hz, ok := s.flow.frequency(); ok {
		return hz
	}
	return s.frequency
}

// RunWindmill drains the queue at the current solution frequency, spec.md
// §4.5: "drains the queue at the current solution frequency ... if
// solution frequency is 0, the drain pauses." It blocks until Close is
// called; run it in its own goroutine.
func (s *Source) RunWindmill() {
	s.windmillWG.Add(1)
	defer s.windmillWG.Done()
	for {
		hz := s.solutionFrequency()
		period := time.Second // default safe pacing when not spinning
		if hz > 0 {
			period = time.Duration(float64(time.Second) / hz)
		}
		timer := s.clock.NewTimer(period)
		select {
		case <-s.shutdownCh:
			timer.Stop()
			return
		case <-timer.Chan():
		}
		if s.solutionFrequency() <= 0 {
			continue
		}
		data := s.q.Get()
		if data == nil {
			continue
		}
		s.publisher.Send(wire.Message{
			Channel: s.channel,
			Stamp:   float64(s.clock.Now().UnixNano()) / 1e9,
			Payload: data,
		})
	}
}

// Close stops RunWindmill and releases the backing queue.
func (s *Source) Close() error {
	s.closeOnce.Do(func() { close(s.shutdownCh) })
	s.windmillWG.Wait()
	return s.q.Close()
}

// flowWatch estimates a channel's live production rate from recent Inject
// calls over a trailing window, grounded on source/ros.py's FlowWatch:
// each produced message "signals" the watch, and the rate is read back as
// messages per second.
type flowWatch struct {
	clock  *clock.Clock
	window time.Duration

	mu    sync.Mutex
	times []time.Time
}

func newFlowWatch(c *clock.Clock, window time.Duration) *flowWatch {
	return &flowWatch{clock: c, window: window}
}

func (f *flowWatch) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.Now()
	f.times = append(f.times, now)
	f.trim(now)
}

func (f *flowWatch) trim(now time.Time) {
	cutoff := now.Add(-f.window)
	i := 0
	for i < len(f.times) && f.times[i].Before(cutoff) {
		i++
	}
	f.times = f.times[i:]
}

// frequency returns the observed rate in Hz; ok is false if fewer than two
// samples have landed within the window, meaning the channel is cold and
// the caller should fall back to its nominal frequency.
func (f *flowWatch) frequency() (hz float64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trim(f.clock.Now())
	if len(f.times) < 2 {
		return 0, false
	}
	elapsed := f.times[len(f.times)-1].Sub(f.times[0]).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	return float64(len(f.times)-1) / elapsed, true
}
