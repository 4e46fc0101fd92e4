// Package shutdown implements the priority-ordered shutdown registry of
// spec.md §4.8, grounded on types/misc.py's Shuttable. Components register
// a callback with a priority; on shutdown, callbacks run in descending
// priority order, with negative priorities shutting down last (the
// event-loop's priority is -999).
package shutdown

import (
	"sort"
	"sync"
)

// EventLoopPriority is the priority assigned to the Engine's control
// loop, spec.md §4.8: it shuts down last, after every other component has
// had a chance to drain.
const EventLoopPriority = -999

type entry struct {
	priority int
	seq      int
	name     string
	fn       func()
}

// Registry orders component shutdown, spec.md §4.8: "every long-lived
// component registers with a priority. On shutdown signal ... components
// are shut down in descending priority. Negative priorities shut down
// last."
type Registry struct {
	mu       sync.Mutex
	entries  []entry
	seq      int
	shutdown bool
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register adds fn to the shutdown sequence at the given priority. name
// is used only for diagnostics. Registering after Shutdown has already
// run invokes fn immediately.
func (r *Registry) Register(name string, priority int, fn func()) {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		fn()
		return
	}
	r.seq++
	r.entries = append(r.entries, entry{priority: priority, seq: r.seq, name: name, fn: fn})
	r.mu.Unlock()
}

// Shutdown runs every registered callback in descending-priority order
// (ties broken by registration order), with negative priorities running
// last. It is idempotent: a second call is a no-op.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true
	ordered := make([]entry, len(r.entries))
	copy(ordered, r.entries)
	r.mu.Unlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := rank(ordered[i].priority), rank(ordered[j].priority)
		if pi != pj {
			return pi > pj
		}
		return ordered[i].seq < ordered[j].seq
	})
	for _, e := range ordered {
		e.fn()
	}
}

// rank maps a priority to a sort key where non-negative priorities keep
// their natural descending order and negative priorities sink below all
// of them (still ordered relative to each other), realizing "negative
// priorities shut down last."
func rank(priority int) int {
	if priority >= 0 {
		return priority + 1
	}
	return priority // already negative, sorts below every non-negative rank
}
