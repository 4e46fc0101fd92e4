// Package engine implements the Problem Formulator / Control Loop of
// spec.md §4.6: periodically re-formulates the Problem, re-solves it,
// and pushes the resulting Solution into the Switchboard. Grounded on
// engine.py's Engine.run, restructured on the teacher's
// Config+Validate()/ticker-loop/safeRefresh/panic-recovery pattern
// (indexer/pkg/dz/revdist.View).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/config"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/extlogger"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/metrics"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/netw"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/solver"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/switchboard"
)

// Formulator produces the next Problem to solve. The default Formulator
// always returns the same Problem it was constructed with ("TODO: for
// now returns same problem again and again" in the original); the
// simulation harness supplies one that perturbs Links/Channels between
// calls.
type Formulator interface {
	Formulate(ctx context.Context) (*model.Problem, error)
}

// StaticFormulator always returns the Problem it was built with.
type StaticFormulator struct {
	Problem *model.Problem
}

// Formulate implements Formulator.
func (f *StaticFormulator) Formulate(_ context.Context) (*model.Problem, error) {
	return f.Problem, nil
}

// SolutionSink is notified of each freshly-solved Solution so it can
// reconfigure per-channel drain rates; Source implements this.
type SolutionSink interface {
	SetSolutionFrequency(hz float64)
}

// Config wires together one agent's control loop.
type Config struct {
	Logger      *slog.Logger
	Clock       *clock.Clock
	Role        model.AgentRole // Source runs formulate/solve/publish; Sink only aggregates stats, spec.md §4.1
	Solver      solver.Solver
	Formulator  Formulator
	Switchboard *switchboard.Switchboard
	Manager     *netw.Manager // optional; nil disables NetworkManager fan-out
	Metrics     *metrics.Recorder // optional; nil disables metrics sampling
	Sources     map[string]SolutionSink // optional; channel name -> Source
	External    extlogger.Logger // optional; nil disables the --logger wb sink

	FormulateEvery time.Duration
	TickEvery      time.Duration
	Whitelist      []string // interface allow-list passed through to Manager.Run
}

// Validate checks required fields and fills in defaults, following
// indexer/pkg/dz/revdist.ViewConfig.Validate. A Sink agent never
// formulates/solves (spec.md §4.1: "On a Sink agent the loop idles except
// for receive-side statistics aggregation"), so Solver/Formulator/
// Switchboard are only required for the Source role.
func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		return errors.New("clock is required")
	}
	if cfg.Role != model.RoleSource && cfg.Role != model.RoleSink {
		return errors.New("role must be Source or Sink")
	}
	if cfg.Role == model.RoleSource {
		if cfg.Solver == nil {
			return errors.New("solver is required")
		}
		if cfg.Formulator == nil {
			return errors.New("formulator is required")
		}
		if cfg.Switchboard == nil {
			return errors.New("switchboard is required")
		}
	}
	if cfg.FormulateEvery <= 0 {
		cfg.FormulateEvery = config.FormulateProblemEvery
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = config.EngineTickEvery
	}
	if cfg.External == nil {
		cfg.External = extlogger.Noop{}
	}
	return nil
}

// Engine is the formulate/solve/publish control loop, spec.md §4.6.
type Engine struct {
	log *slog.Logger
	cfg Config

	mu           sync.Mutex
	lastSolution *model.Solution
}

// New constructs an Engine. cfg is validated; a zero Logger/Clock/etc.
// is an error, not silently defaulted (those collaborators have no safe
// default).
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}
	return &Engine{log: cfg.Logger, cfg: cfg}, nil
}

// LastSolution returns the most recently applied Solution, or nil if
// none has been computed yet.
func (e *Engine) LastSolution() *model.Solution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSolution
}

// Run drives the control loop and, if a Manager is configured, its
// discovery loop, concurrently. It blocks until ctx is cancelled or one
// of the two fails, following the fan-out pattern of
// api/handlers/status_cache.go's errgroup-gated refresh loop.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.runControlLoop(gctx)
		return nil
	})

	if e.cfg.Manager != nil {
		g.Go(func() error {
			e.cfg.Manager.Run(gctx, e.cfg.Whitelist, func(name string) {
				e.log.Info("engine: new interface discovered", "interface", name)
			})
			return nil
		})
	}

	return g.Wait()
}

func (e *Engine) runControlLoop(ctx context.Context) {
	if e.cfg.Role == model.RoleSink {
		e.runSinkStatsLoop(ctx)
		return
	}

	e.log.Info("engine: starting control loop",
		"formulate_every", e.cfg.FormulateEvery, "tick_every", e.cfg.TickEvery)

	var solution *model.Solution
	lastFormulate := e.cfg.Clock.Now()
	ticker := e.cfg.Clock.NewTicker(e.cfg.TickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		if e.cfg.Clock.Now().Sub(lastFormulate) >= e.cfg.FormulateEvery {
			e.log.Debug("engine: formulating new problem")
			solution = nil
			lastFormulate = e.cfg.Clock.Now()
		}

		if solution != nil {
			continue
		}

		sol := e.safeSolve(ctx)
		if sol == nil {
			continue
		}
		solution = sol

		e.mu.Lock()
		e.lastSolution = solution
		e.mu.Unlock()

		e.cfg.Switchboard.UpdateSolution(solution)
		for _, assignment := range solution.Assignments {
			if src, ok := e.cfg.Sources[assignment.Name]; ok {
				src.SetSolutionFrequency(assignment.Frequency)
			}
		}
		if e.cfg.Metrics != nil && e.cfg.Manager != nil {
			e.cfg.Metrics.Observe(e.cfg.Manager)
		}

		t := e.cfg.Clock.Now().Sub(lastFormulate).Seconds()
		sample := make(map[string]any, len(solution.Assignments))
		for _, a := range solution.Assignments {
			sample[a.Name+"_frequency"] = a.Frequency
		}
		e.cfg.External.Log(t, sample)
		e.cfg.External.Commit(t)
	}
}

// runSinkStatsLoop is the Sink agent's control loop, spec.md §4.1: it never
// formulates or solves, it only aggregates receive-side flow statistics at
// the same cadence a Source would otherwise be ticking at.
func (e *Engine) runSinkStatsLoop(ctx context.Context) {
	e.log.Info("engine: starting sink statistics loop", "tick_every", e.cfg.TickEvery)

	ticker := e.cfg.Clock.NewTicker(e.cfg.TickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
		if e.cfg.Metrics != nil && e.cfg.Manager != nil {
			e.cfg.Metrics.Observe(e.cfg.Manager)
		}
	}
}

// safeSolve formulates and solves one Problem, recovering from a panic
// in either step and reporting it to Sentry as a best-effort capture,
// mirroring revdist.View.safeRefresh's defer/recover.
func (e *Engine) safeSolve(ctx context.Context) (solution *model.Solution) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("engine: solve panicked", "panic", r)
			sentry.CurrentHub().Recover(r)
			solution = nil
		}
	}()

	problem, err := e.cfg.Formulator.Formulate(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		e.log.Error("engine: formulate failed", "error", err)
		sentry.CaptureException(err)
		return nil
	}

	start := e.cfg.Clock.Now()
	sol := e.cfg.Solver.Solve(problem)
	duration := e.cfg.Clock.Now().Sub(start)

	e.log.Info("engine: solved problem", "duration", duration, "channels", len(sol.Assignments))
	metrics.ObserveSolve("success", duration.Seconds())
	metrics.ObserveSolution(problem, sol)
	return sol
}
