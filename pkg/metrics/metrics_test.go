package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
)

func TestLake_Metrics_ObserveSolutionSetsSpanGauges(t *testing.T) {
	problem := &model.Problem{
		Channels: []model.Channel{
			{Name: "telemetry", Frequency: 10, Size: 100},
		},
	}
	solution := &model.Solution{
		Assignments: []model.SolvedChannel{
			{Name: "telemetry", Frequency: 5},
		},
	}

	ObserveSolution(problem, solution)

	require.InDelta(t, 0.5, testutil.ToFloat64(SolutionSpanOverPackets), 0.001)
	require.InDelta(t, 0.5, testutil.ToFloat64(SolutionSpanOverBytes), 0.001)
}

func TestLake_Metrics_CounterDeltaOnlyAddsForwardMovement(t *testing.T) {
	c := newCounterDelta()
	c.add(ChannelBytesTotal, "test-channel-delta", 100)
	require.InDelta(t, 100, testutil.ToFloat64(ChannelBytesTotal.WithLabelValues("test-channel-delta")), 0.001)

	c.add(ChannelBytesTotal, "test-channel-delta", 150)
	require.InDelta(t, 150, testutil.ToFloat64(ChannelBytesTotal.WithLabelValues("test-channel-delta")), 0.001)

	// a reset (cumulative counter dropping) must not subtract
	c.add(ChannelBytesTotal, "test-channel-delta", 10)
	require.InDelta(t, 150, testutil.ToFloat64(ChannelBytesTotal.WithLabelValues("test-channel-delta")), 0.001)
}
