package engine

import (
	"context"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/netw"
)

// FrequencySource is consulted by LiveFormulator for a channel's live
// production rate; source.Source implements it.
type FrequencySource interface {
	Frequency() float64
}

// LiveFormulator realizes spec.md §4.1 step 1 for real (non-simulated)
// runs: each tick it copies the base channel declarations, replacing each
// channel's frequency with what its Source currently reports, and replaces
// the links list with the NetworkManager's currently present+connected
// adapters carrying their measured bandwidth and latency. Grounded on
// engine.py's _formulate_new_problem contract (a stub in the original that
// "for now returns same problem again and again") together with the live
// measurement source/ros.py's FlowWatch and source/disk.py's
// backlog-derived frequency feed into Formulate, spec.md §4.1 expects but
// the original never actually wires through.
type LiveFormulator struct {
	Base    *model.Problem
	Manager *netw.Manager
	Sources map[string]FrequencySource // channel name -> Source
}

// NewLiveFormulator constructs a LiveFormulator over base's channel/link
// declarations.
func NewLiveFormulator(base *model.Problem, mgr *netw.Manager, sources map[string]FrequencySource) *LiveFormulator {
	return &LiveFormulator{Base: base, Manager: mgr, Sources: sources}
}

// Formulate implements Formulator.
func (f *LiveFormulator) Formulate(_ context.Context) (*model.Problem, error) {
	out := &model.Problem{Name: f.Base.Name, Simulation: f.Base.Simulation}

	out.Channels = make([]model.Channel, 0, len(f.Base.Channels))
	for _, ch := range f.Base.Channels {
		nc := ch.Clone()
		if src, ok := f.Sources[ch.Name]; ok {
			nc.Frequency = src.Frequency()
		}
		out.Channels = append(out.Channels, nc)
	}

	for _, a := range f.Manager.Adapters() {
		if !a.Present() || !a.IsConnected() {
			continue
		}
		link, _ := f.Base.LinkByInterface(a.Name())
		link.Interface = a.Name()
		link.Bandwidth = a.EstimatedBandwidthOut()
		link.Latency = a.Latency()
		out.Links = append(out.Links, link)
	}

	return out, nil
}
