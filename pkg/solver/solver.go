// Package solver implements the Allocator described in spec.md §4.2: a
// pure Problem→Solution function. Grounded on the original
// solver/SimpleSolver.py and solver/base.py, generalized to the full
// priority-preserving greedy algorithm (budget/capacity clamping,
// good/slow link partitioning, strict-vs-best-effort fallback, and
// schedule compaction) that the expanded spec calls for.
package solver

import (
	"math"
	"sort"
	"time"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
)

// Solver is the Allocator contract, spec.md §4.2. Implementations must be
// deterministic and must not read wall-clock time or external state.
type Solver interface {
	Solve(problem *model.Problem) *model.Solution
}

// SimpleSolver is the reference priority-preserving greedy allocator.
type SimpleSolver struct {
	// Window is ΔT, the planning window duration.
	Window time.Duration
	// CapacityFloorBytes is the per-window capacity floor guarding against
	// transient bandwidth=0 readings (spec.md §4.2 step 3, and the Open
	// Question in spec.md §9).
	CapacityFloorBytes float64
	// Compact enables shortest-repeating-substring schedule compaction
	// (spec.md §4.2 step 8). Off by default; the Switchboard works
	// identically either way since it round-robins over whatever list it
	// is given.
	Compact bool
}

// New returns a SimpleSolver configured with the module defaults.
func New(window time.Duration, capacityFloorBytes float64, compact bool) *SimpleSolver {
	return &SimpleSolver{Window: window, CapacityFloorBytes: capacityFloorBytes, Compact: compact}
}

type workingLink struct {
	interfaceName string
	latency       float64
	capacity      float64
	budget        *float64
}

// Solve runs the algorithm in spec.md §4.2, steps 1-9.
func (s *SimpleSolver) Solve(problem *model.Problem) *model.Solution {
	solution := &model.Solution{}

	// Step 1: no links -> every channel gets an empty, zero-frequency
	// assignment.
	if len(problem.Links) == 0 {
		for _, c := range problem.Channels {
			solution.Assignments = append(solution.Assignments, model.SolvedChannel{Name: c.Name})
		}
		return solution
	}

	dt := s.Window.Seconds()

	// Step 2: biggest_packet_size across channels with frequency>0.
	biggestPacketSize := 0
	for _, c := range problem.Channels {
		if c.Frequency > 0 && c.Size > biggestPacketSize {
			biggestPacketSize = c.Size
		}
	}

	// Step 3: per-link capacity, clamped to budget.
	links := make([]workingLink, 0, len(problem.Links))
	for _, l := range problem.Links {
		floor := math.Max(float64(biggestPacketSize), s.CapacityFloorBytes)
		capacity := math.Max(floor, l.Bandwidth) * dt
		wl := workingLink{interfaceName: l.Interface, latency: l.Latency, capacity: capacity}
		if l.Budget != nil {
			b := *l.Budget
			if capacity > b {
				capacity = b
			}
			wl.capacity = capacity
			budget := b
			wl.budget = &budget
		}
		links = append(links, wl)
	}

	// Step 4: sort links by ascending latency (stable: preserves
	// declaration order among ties).
	sort.SliceStable(links, func(i, j int) bool { return links[i].latency < links[j].latency })

	// Step 5: group channels by priority, descending, declaration order
	// preserved within a group.
	groups := model.SortedByPriorityDesc(problem.Channels)

	for _, group := range groups {
		for _, channel := range group {
			solution.Assignments = append(solution.Assignments, s.solveChannel(channel, links, dt))
		}
	}
	return solution
}

func (s *SimpleSolver) solveChannel(channel model.Channel, links []workingLink, dt float64) model.SolvedChannel {
	qos := channel.QoS
	if qos == nil {
		qos = model.DefaultQoS()
	}

	// Step 6.a: effective demand frequency.
	f := channel.Frequency
	if qos.FrequencyCap != nil {
		f = *qos.FrequencyCap
	}

	// Step 6.b: total packets owed this window.
	packetsTotal := channel.QueueLength + int(math.Ceil(f*dt))
	if packetsTotal <= 0 {
		return model.SolvedChannel{Name: channel.Name}
	}

	// Step 6.c: partition into good/slow by latency_max.
	goodLinks, slowLinks := partitionLinks(links, qos.LatencyMax)

	solved := model.SolvedChannel{Name: channel.Name}
	sentPacket := 0

	active := goodLinks
	onSlow := false
	cursor := 0
	strict := qos.LatencyPolicy == model.LatencyPolicyStrict

	// Step 6.d-f: circular walk over the active set, admitting on
	// budget+capacity; sweeps repeat while each one admits at least one
	// packet, with no fixed cap on the number of attempts.
	for sentPacket < packetsTotal {
		admittedThisSweep := false
		sweepLimit := len(active)
		for i := 0; i < sweepLimit && sentPacket < packetsTotal; i++ {
			link := &active[cursor%len(active)]
			cursor++
			if admitPacket(link, channel.Size) {
				solved.Interfaces = append(solved.Interfaces, link.interfaceName)
				sentPacket++
				admittedThisSweep = true
			}
		}
		if admittedThisSweep {
			continue
		}
		// Step 6.e: a full sweep (possibly of an empty good set) admitted nothing.
		if !strict && !onSlow && len(slowLinks) > 0 {
			active = slowLinks
			onSlow = true
			cursor = 0
			continue
		}
		// nothing left to try (strict, or slow_links already active/empty)
		break
	}

	// Step 7: achieved frequency.
	solved.PacketsSent = sentPacket
	solved.Frequency = float64(sentPacket) / dt

	// Step 8: optional compaction.
	if s.Compact {
		solved.Interfaces = compact(solved.Interfaces)
	}
	return solved
}

func partitionLinks(links []workingLink, latencyMax *float64) (good, slow []workingLink) {
	if latencyMax == nil {
		return links, nil
	}
	for _, l := range links {
		if l.latency <= *latencyMax {
			good = append(good, l)
		} else {
			slow = append(slow, l)
		}
	}
	return good, slow
}

func admitPacket(link *workingLink, size int) bool {
	cost := float64(size)
	if link.budget != nil && *link.budget < cost {
		return false
	}
	if link.capacity < cost {
		return false
	}
	link.capacity -= cost
	if link.budget != nil {
		*link.budget -= cost
	}
	return true
}

// compact replaces interfaces with the shortest repeating prefix that
// reproduces it when concatenated, per spec.md §4.2 step 8. It only
// compacts when the prefix length evenly divides len(interfaces), so the
// Switchboard's round-robin over the shorter list stays behaviorally
// identical.
func compact(interfaces []string) []string {
	n := len(interfaces)
	if n <= 1 {
		return interfaces
	}
	for period := 1; period < n; period++ {
		if n%period != 0 {
			continue
		}
		if isRepeatingWithPeriod(interfaces, period) {
			out := make([]string, period)
			copy(out, interfaces[:period])
			return out
		}
	}
	return interfaces
}

func isRepeatingWithPeriod(interfaces []string, period int) bool {
	for i := period; i < len(interfaces); i++ {
		if interfaces[i] != interfaces[i%period] {
			return false
		}
	}
	return true
}
