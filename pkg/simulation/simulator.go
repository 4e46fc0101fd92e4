package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
)

type compiledLink struct {
	iface     string
	bandwidth *Expr
	latency   *Expr
}

type compiledChannel struct {
	name      string
	frequency *Expr
}

// Simulator evaluates a Problem's `simulation:` block every tick,
// overriding link bandwidth/latency and channel frequency in place,
// implementing the `--simulation` mode of spec.md §6/§9.
type Simulator struct {
	clock *clock.Clock
	start time.Time

	links    []compiledLink
	channels []compiledChannel
}

// New compiles sim's scripts. An empty/nil sim yields a no-op Simulator.
func New(c *clock.Clock, sim *model.Simulation) (*Simulator, error) {
	s := &Simulator{clock: c, start: c.Now()}
	if sim == nil {
		return s, nil
	}
	for _, l := range sim.Links {
		cl := compiledLink{iface: l.Interface}
		if l.Bandwidth != "" {
			e, err := Compile(l.Bandwidth)
			if err != nil {
				return nil, fmt.Errorf("simulation: link %q bandwidth: %w", l.Interface, err)
			}
			cl.bandwidth = e
		}
		if l.Latency != "" {
			e, err := Compile(l.Latency)
			if err != nil {
				return nil, fmt.Errorf("simulation: link %q latency: %w", l.Interface, err)
			}
			cl.latency = e
		}
		s.links = append(s.links, cl)
	}
	for _, c := range sim.Channels {
		cc := compiledChannel{name: c.Name}
		if c.Frequency != "" {
			e, err := Compile(c.Frequency)
			if err != nil {
				return nil, fmt.Errorf("simulation: channel %q frequency: %w", c.Name, err)
			}
			cc.frequency = e
		}
		s.channels = append(s.channels, cc)
	}
	return s, nil
}

// Apply evaluates every compiled script against the current relative
// time and overwrites the matching Link/Channel fields of problem in
// place. Unmatched interfaces/channel names are ignored (the base
// Problem may list links/channels the simulation block doesn't touch).
func (s *Simulator) Apply(problem *model.Problem) error {
	t := s.clock.Now().Sub(s.start).Seconds()

	byIface := make(map[string]int, len(problem.Links))
	for i, l := range problem.Links {
		byIface[l.Interface] = i
	}
	for li, cl := range s.links {
		idx, ok := byIface[cl.iface]
		if !ok {
			continue
		}
		vars := Vars{T: t, L: float64(li)}
		if cl.bandwidth != nil {
			v, err := cl.bandwidth.Eval(vars)
			if err != nil {
				return fmt.Errorf("simulation: evaluating bandwidth for %q: %w", cl.iface, err)
			}
			problem.Links[idx].Bandwidth = v
		}
		if cl.latency != nil {
			v, err := cl.latency.Eval(vars)
			if err != nil {
				return fmt.Errorf("simulation: evaluating latency for %q: %w", cl.iface, err)
			}
			problem.Links[idx].Latency = v
		}
	}

	byName := make(map[string]int, len(problem.Channels))
	for i, c := range problem.Channels {
		byName[c.Name] = i
	}
	for ci, cc := range s.channels {
		idx, ok := byName[cc.name]
		if !ok {
			continue
		}
		if cc.frequency == nil {
			continue
		}
		vars := Vars{T: t, C: float64(ci)}
		v, err := cc.frequency.Eval(vars)
		if err != nil {
			return fmt.Errorf("simulation: evaluating frequency for %q: %w", cc.name, err)
		}
		problem.Channels[idx].Frequency = v
	}
	return nil
}

// Formulator wraps a base Problem with a Simulator, implementing
// engine.Formulator for `--simulation` runs: each call clones the base
// Problem and applies the current tick's scripted overrides.
type Formulator struct {
	base *model.Problem
	sim  *Simulator
}

// NewFormulator constructs a Formulator driving base with sim.
func NewFormulator(base *model.Problem, sim *Simulator) *Formulator {
	return &Formulator{base: base, sim: sim}
}

// Formulate implements engine.Formulator.
func (f *Formulator) Formulate(_ context.Context) (*model.Problem, error) {
	clone := cloneProblem(f.base)
	if err := f.sim.Apply(clone); err != nil {
		return nil, err
	}
	return clone, nil
}

func cloneProblem(p *model.Problem) *model.Problem {
	out := &model.Problem{
		Name:       p.Name,
		Links:      make([]model.Link, len(p.Links)),
		Channels:   make([]model.Channel, len(p.Channels)),
		Simulation: p.Simulation,
	}
	copy(out.Links, p.Links)
	for i, c := range p.Channels {
		out.Channels[i] = c.Clone()
	}
	return out
}
