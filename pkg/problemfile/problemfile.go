// Package problemfile loads a Problem from the YAML file described in
// spec.md §6. This is the one piece of the external "YAML problem-file
// loader" collaborator spec.md §1 calls out of scope for everything
// beyond "this is the shape" — we implement the shape here because the
// Solver, Engine, and CLI all need a concrete Problem to operate on.
package problemfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/units"
)

type rawQoS struct {
	QueueSize     int     `yaml:"queue_size"`
	Latency       string  `yaml:"latency"`
	Frequency     float64 `yaml:"frequency"`
	HasFrequency  bool    `yaml:"-"`
	LatencyPolicy string  `yaml:"latency_policy"`
}

// UnmarshalYAML lets us tell "frequency omitted" from "frequency: 0".
func (q *rawQoS) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		QueueSize     int      `yaml:"queue_size"`
		Latency       string   `yaml:"latency"`
		Frequency     *float64 `yaml:"frequency"`
		LatencyPolicy string   `yaml:"latency_policy"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	q.QueueSize = p.QueueSize
	q.Latency = p.Latency
	q.LatencyPolicy = p.LatencyPolicy
	if p.Frequency != nil {
		q.Frequency = *p.Frequency
		q.HasFrequency = true
	}
	return nil
}

type rawChannel struct {
	Name      string  `yaml:"name"`
	Kind      string  `yaml:"kind"`
	Priority  int     `yaml:"priority"`
	Frequency float64 `yaml:"frequency"`
	Size      int     `yaml:"size"`
	QoS       *rawQoS `yaml:"qos"`
}

type rawLink struct {
	Interface string `yaml:"interface"`
	Type      string `yaml:"type"`
	Server    string `yaml:"server"`
	Bandwidth string `yaml:"bandwidth"`
	Latency   string `yaml:"latency"`
	Budget    string `yaml:"budget"`
}

type rawSimulatedLink struct {
	Interface string `yaml:"interface"`
	Bandwidth string `yaml:"bandwidth"`
	Latency   string `yaml:"latency"`
}

type rawSimulatedChannel struct {
	Name      string `yaml:"name"`
	Frequency string `yaml:"frequency"`
}

type rawSimulation struct {
	Links    []rawSimulatedLink    `yaml:"links"`
	Channels []rawSimulatedChannel `yaml:"channels"`
}

type rawProblem struct {
	Name       string         `yaml:"name"`
	Links      []rawLink      `yaml:"links"`
	Channels   []rawChannel   `yaml:"channels"`
	Simulation *rawSimulation `yaml:"simulation"`
}

// Load parses the YAML file at path into a model.Problem, applying the
// numeric-string parsing and technology-profile defaults from spec.md §3
// and §6.
func Load(path string) (*model.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading problem file %q: %w", path, err)
	}
	var raw rawProblem
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing problem file %q: %w", path, err)
	}

	name := raw.Name
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	problem := &model.Problem{Name: name}

	if len(raw.Links) > 0 {
		problem.Links = make([]model.Link, 0, len(raw.Links))
		for _, rl := range raw.Links {
			link, err := buildLink(rl)
			if err != nil {
				return nil, fmt.Errorf("link %q: %w", rl.Interface, err)
			}
			problem.Links = append(problem.Links, link)
		}
	}

	problem.Channels = make([]model.Channel, 0, len(raw.Channels))
	for _, rc := range raw.Channels {
		ch, err := buildChannel(rc)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", rc.Name, err)
		}
		problem.Channels = append(problem.Channels, ch)
	}

	if raw.Simulation != nil {
		sim := &model.Simulation{}
		for _, sl := range raw.Simulation.Links {
			sim.Links = append(sim.Links, model.SimulatedLink{
				Interface: sl.Interface,
				Bandwidth: sl.Bandwidth,
				Latency:   sl.Latency,
			})
		}
		for _, sc := range raw.Simulation.Channels {
			sim.Channels = append(sim.Channels, model.SimulatedChannel{
				Name:      sc.Name,
				Frequency: sc.Frequency,
			})
		}
		problem.Simulation = sim
	}

	if err := problem.Validate(); err != nil {
		return nil, fmt.Errorf("problem file %q: %w", path, err)
	}
	return problem, nil
}

func buildLink(rl rawLink) (model.Link, error) {
	link := model.Link{
		Interface:   rl.Interface,
		Type:        rl.Type,
		Server:      rl.Server,
		Reliability: 1.0,
	}
	if link.Interface == "" {
		return link, fmt.Errorf("interface name is required")
	}

	var profile model.TechProfile
	hasProfile := false
	if rl.Type != "" {
		t := strings.ToLower(strings.TrimSpace(rl.Type))
		p, ok := model.TechProfiles[t]
		if !ok {
			return link, fmt.Errorf("technology %q not recognized", t)
		}
		profile, hasProfile = p, true
		link.Reliability = profile.Reliability
	}

	switch {
	case rl.Bandwidth != "":
		bw, err := units.ParseBandwidth(rl.Bandwidth)
		if err != nil {
			return link, err
		}
		link.Bandwidth = bw
	case hasProfile:
		bw, err := units.ParseBandwidth(profile.Bandwidth)
		if err != nil {
			return link, err
		}
		link.Bandwidth = bw
	}

	switch {
	case rl.Latency != "":
		lat, err := units.ParseLatency(rl.Latency)
		if err != nil {
			return link, err
		}
		link.Latency = lat
	case hasProfile:
		lat, err := units.ParseLatency(profile.Latency)
		if err != nil {
			return link, err
		}
		link.Latency = lat
	}

	if rl.Budget != "" {
		b, err := units.ParseSize(rl.Budget)
		if err != nil {
			return link, err
		}
		budget := float64(b)
		link.Budget = &budget
	}
	return link, nil
}

func buildChannel(rc rawChannel) (model.Channel, error) {
	if rc.Name == "" {
		return model.Channel{}, fmt.Errorf("channel name is required")
	}
	kind := model.ChannelROS
	if rc.Kind != "" {
		switch model.ChannelKind(strings.ToLower(rc.Kind)) {
		case model.ChannelROS, model.ChannelDisk, model.ChannelSimulated:
			kind = model.ChannelKind(strings.ToLower(rc.Kind))
		default:
			return model.Channel{}, fmt.Errorf("unknown channel kind %q", rc.Kind)
		}
	}

	ch := model.Channel{
		Name:      rc.Name,
		Kind:      kind,
		Priority:  rc.Priority,
		Frequency: rc.Frequency,
		Size:      rc.Size,
		QoS:       model.DefaultQoS(),
	}

	if rc.QoS != nil {
		q := model.DefaultQoS()
		if rc.QoS.QueueSize > 0 {
			q.QueueSize = rc.QoS.QueueSize
		}
		if rc.QoS.Latency != "" {
			lat, err := units.ParseLatency(rc.QoS.Latency)
			if err != nil {
				return ch, err
			}
			q.LatencyMax = &lat
		}
		if rc.QoS.HasFrequency {
			freq := rc.QoS.Frequency
			q.FrequencyCap = &freq
		}
		if rc.QoS.LatencyPolicy != "" {
			switch model.LatencyPolicy(rc.QoS.LatencyPolicy) {
			case model.LatencyPolicyStrict, model.LatencyPolicyBestEffort:
				q.LatencyPolicy = model.LatencyPolicy(rc.QoS.LatencyPolicy)
			default:
				return ch, fmt.Errorf("unknown latency_policy %q", rc.QoS.LatencyPolicy)
			}
		}
		ch.QoS = q
	}
	return ch, nil
}
