package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
)

func TestLake_Simulation_ApplyOverridesMatchingLinksAndChannels(t *testing.T) {
	t.Parallel()
	c, fc := clock.NewFake(1)
	sim := &model.Simulation{
		Links: []model.SimulatedLink{
			{Interface: "wlan0", Bandwidth: "1000 + t", Latency: "0.1"},
		},
		Channels: []model.SimulatedChannel{
			{Name: "telemetry", Frequency: "2 + c"},
		},
	}
	s, err := New(c, sim)
	require.NoError(t, err)

	fc.Advance(5 * time.Second)

	problem := &model.Problem{
		Links:    []model.Link{{Interface: "wlan0", Bandwidth: 1}},
		Channels: []model.Channel{{Name: "telemetry", Frequency: 1}},
	}
	require.NoError(t, s.Apply(problem))

	require.InDelta(t, 1005.0, problem.Links[0].Bandwidth, 0.001)
	require.InDelta(t, 0.1, problem.Links[0].Latency, 0.001)
	require.InDelta(t, 2.0, problem.Channels[0].Frequency, 0.001) // c=0, the only channel
}

func TestLake_Simulation_ApplyIgnoresUnmatchedNames(t *testing.T) {
	t.Parallel()
	c, _ := clock.NewFake(1)
	sim := &model.Simulation{
		Links: []model.SimulatedLink{{Interface: "does-not-exist", Bandwidth: "1"}},
	}
	s, err := New(c, sim)
	require.NoError(t, err)

	problem := &model.Problem{Links: []model.Link{{Interface: "wlan0", Bandwidth: 42}}}
	require.NoError(t, s.Apply(problem))
	require.Equal(t, 42.0, problem.Links[0].Bandwidth)
}

func TestLake_Simulation_FormulatorClonesBaseProblem(t *testing.T) {
	t.Parallel()
	c, _ := clock.NewFake(1)
	sim := &model.Simulation{
		Channels: []model.SimulatedChannel{{Name: "telemetry", Frequency: "9"}},
	}
	s, err := New(c, sim)
	require.NoError(t, err)

	base := &model.Problem{Channels: []model.Channel{{Name: "telemetry", Frequency: 1}}}
	f := NewFormulator(base, s)

	got, err := f.Formulate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 9.0, got.Channels[0].Frequency)
	require.Equal(t, 1.0, base.Channels[0].Frequency, "base problem must not be mutated")
}

func TestLake_Simulation_NewWithNilSimulationIsNoop(t *testing.T) {
	t.Parallel()
	c, _ := clock.NewFake(1)
	s, err := New(c, nil)
	require.NoError(t, err)

	problem := &model.Problem{Links: []model.Link{{Interface: "wlan0", Bandwidth: 42}}}
	require.NoError(t, s.Apply(problem))
	require.Equal(t, 42.0, problem.Links[0].Bandwidth)
}
