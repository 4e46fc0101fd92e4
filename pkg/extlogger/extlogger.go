// Package extlogger implements the external metrics sink of spec.md §6's
// `--logger wb` flag, grounded on logger/base.py's Logger contract
// (log(t, data)/commit(t)). The original backs this with wandb; no wandb
// client exists anywhere in the example corpus or its dependency
// ecosystem, so the "wb" logger here is realized as a structured-log
// sink over the same Logger/Log/Commit contract rather than fabricating
// a wandb module — see DESIGN.md.
package extlogger

import "log/slog"

// Logger receives periodic key/value samples keyed by simulation time,
// mirroring the original's Logger.log/commit split: log buffers values
// for a timestep, commit flushes them.
type Logger interface {
	Log(t float64, data map[string]any)
	Commit(t float64)
}

// Noop discards every sample; the default when --logger is omitted.
type Noop struct{}

func (Noop) Log(float64, map[string]any) {}
func (Noop) Commit(float64)              {}

// Slog forwards samples to structured logging, realizing the "wb"
// external-metrics-sink contract without an external service dependency.
type Slog struct {
	log     *slog.Logger
	pending map[string]any
}

// NewSlog constructs a Logger backed by log.
func NewSlog(log *slog.Logger) *Slog {
	return &Slog{log: log, pending: make(map[string]any)}
}

func (s *Slog) Log(_ float64, data map[string]any) {
	for k, v := range data {
		s.pending[k] = v
	}
}

func (s *Slog) Commit(t float64) {
	if len(s.pending) == 0 {
		return
	}
	args := make([]any, 0, len(s.pending)*2+2)
	args = append(args, "t", t)
	for k, v := range s.pending {
		args = append(args, k, v)
	}
	s.log.Info("external logger: commit", args...)
	s.pending = make(map[string]any)
}
