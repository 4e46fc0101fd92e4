package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/switchboard"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type fakeSolver struct {
	mu    sync.Mutex
	calls int
	sol   *model.Solution
}

func (f *fakeSolver) Solve(problem *model.Problem) *model.Solution {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.sol
}

func (f *fakeSolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type countingFormulator struct {
	problem *model.Problem
}

func (c *countingFormulator) Formulate(_ context.Context) (*model.Problem, error) {
	return c.problem, nil
}

type failingFormulator struct{}

func (failingFormulator) Formulate(_ context.Context) (*model.Problem, error) {
	return nil, errors.New("boom")
}

func newSwitchboard() *switchboard.Switchboard {
	return switchboard.New(testLogger(), nil, nil)
}

func TestLake_Engine_SolvesOnceThenWaitsUntilReformulate(t *testing.T) {
	t.Parallel()
	c, fc := clock.NewFake(1)
	solver := &fakeSolver{sol: &model.Solution{}}
	problem := &model.Problem{Channels: []model.Channel{{Name: "telemetry", Frequency: 1}}}

	e, err := New(Config{
		Logger:         testLogger(),
		Clock:          c,
		Role:           model.RoleSource,
		Solver:         solver,
		Formulator:     &countingFormulator{problem: problem},
		Switchboard:    newSwitchboard(),
		FormulateEvery: time.Hour,
		TickEvery:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()

	fc.BlockUntil(1)
	fc.Advance(10 * time.Millisecond)
	require.Eventually(t, func() bool { return solver.callCount() >= 1 }, time.Second, 5*time.Millisecond)

	fc.Advance(10 * time.Millisecond)
	fc.Advance(10 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, solver.callCount(), "solver must not re-run before FormulateEvery elapses")

	cancel()
	<-done
}

func TestLake_Engine_RecoversFromFormulateError(t *testing.T) {
	t.Parallel()
	c, fc := clock.NewFake(1)
	solver := &fakeSolver{sol: &model.Solution{}}

	e, err := New(Config{
		Logger:         testLogger(),
		Clock:          c,
		Role:           model.RoleSource,
		Solver:         solver,
		Formulator:     failingFormulator{},
		Switchboard:    newSwitchboard(),
		FormulateEvery: time.Hour,
		TickEvery:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()

	fc.BlockUntil(1)
	fc.Advance(10 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	require.Nil(t, e.LastSolution())
	require.Equal(t, 0, solver.callCount())

	cancel()
	<-done
}

func TestLake_Engine_ValidateRejectsMissingCollaborators(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	require.Error(t, cfg.Validate())
}
