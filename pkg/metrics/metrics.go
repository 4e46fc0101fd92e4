// Package metrics exposes AdaNet's link/channel flow statistics and
// solution-quality numbers as Prometheus collectors, grounded on
// indexer/pkg/metrics's promauto gauge/counter/histogram vec style.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/netw"
)

var (
	LinkBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adanet_link_bytes_total",
			Help: "Total bytes sent/received over a network interface since process start",
		},
		[]string{"interface"},
	)

	LinkFrequencyHz = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adanet_link_frequency_hz",
			Help: "Packets per second observed on a network interface in the current window",
		},
		[]string{"interface"},
	)

	LinkSpeedBps = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adanet_link_speed_bytes_per_second",
			Help: "Measured bandwidth of a network interface in the current window",
		},
		[]string{"interface"},
	)

	LinkConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adanet_link_connected",
			Help: "1 if the adapter for this interface reports connected, else 0",
		},
		[]string{"interface"},
	)

	ChannelBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adanet_channel_bytes_total",
			Help: "Total bytes sent/received for a channel since process start",
		},
		[]string{"channel"},
	)

	SolverRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adanet_solver_runs_total",
			Help: "Total Solver.Solve invocations by outcome",
		},
		[]string{"status"},
	)

	SolverDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adanet_solver_duration_seconds",
			Help:    "Duration of Solver.Solve calls",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~0.4s
		},
	)

	SolutionSpanOverPackets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adanet_solution_span_over_packets",
			Help: "Fraction of declared packet demand actually scheduled by the current solution",
		},
	)

	SolutionSpanOverBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adanet_solution_span_over_bytes",
			Help: "Fraction of declared byte demand actually scheduled by the current solution, weighted by message size",
		},
	)
)

// counterDelta tracks the last observed cumulative value per label so
// repeated snapshots can be turned into monotonic counter increments;
// Counter fields in LinkStatistic/ChannelStatistic are themselves
// cumulative snapshots, not per-tick deltas.
type counterDelta struct {
	last map[string]int64
}

func newCounterDelta() *counterDelta {
	return &counterDelta{last: make(map[string]int64)}
}

func (c *counterDelta) add(vec *prometheus.CounterVec, label string, cumulative int64) {
	delta := cumulative - c.last[label]
	if delta > 0 {
		vec.WithLabelValues(label).Add(float64(delta))
	}
	c.last[label] = cumulative
}

// Recorder samples a netw.Manager's flow statistics into the package's
// collectors on a tick of the caller's choosing (typically the Engine's
// control loop), spec.md §4.4's link_statistics()/channel_statistics().
type Recorder struct {
	links    *counterDelta
	channels *counterDelta
}

// NewRecorder constructs a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{links: newCounterDelta(), channels: newCounterDelta()}
}

// Observe snapshots mgr's current statistics into the exported metrics.
func (r *Recorder) Observe(mgr *netw.Manager) {
	for iface, stat := range mgr.LinkStatistics() {
		r.links.add(LinkBytesTotal, iface, stat.Counter)
		LinkFrequencyHz.WithLabelValues(iface).Set(stat.Frequency)
		LinkSpeedBps.WithLabelValues(iface).Set(stat.Speed)
		connected := 0.0
		if stat.Connected {
			connected = 1.0
		}
		LinkConnected.WithLabelValues(iface).Set(connected)
	}
	for channel, stat := range mgr.ChannelStatistics() {
		r.channels.add(ChannelBytesTotal, channel, stat.Counter)
	}
}

// ObserveSolution records the quality metrics of a freshly computed
// solution, spec.md's supplemented span_over_packets/span_over_bytes.
func ObserveSolution(problem *model.Problem, solution *model.Solution) {
	SolutionSpanOverPackets.Set(solution.SpanOverPackets(problem))
	SolutionSpanOverBytes.Set(solution.SpanOverBytes(problem))
}

// ObserveSolve records a completed Solver.Solve call's outcome and
// duration.
func ObserveSolve(status string, seconds float64) {
	SolverRunsTotal.WithLabelValues(status).Inc()
	SolverDuration.Observe(seconds)
}
