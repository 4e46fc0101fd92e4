package model

// TechProfile is a named interface-technology default, selected by
// Link.Type, spec.md §3 ("type (tag selecting a default bandwidth/latency
// profile, e.g. wifi-ac, ethernet, acoustic)"). Values ported from the
// original networking/constants.py NETWORK_TECHNOLOGIES table.
type TechProfile struct {
	Bandwidth   string
	Latency     string
	Reliability float64
}

// TechProfiles maps a lowercase technology tag to its default profile.
var TechProfiles = map[string]TechProfile{
	"wifi-b":        {Bandwidth: "5.5Mbps", Latency: "2ms", Reliability: 1.0},
	"wifi-a":        {Bandwidth: "20Mbps", Latency: "2ms", Reliability: 1.0},
	"wifi-g":        {Bandwidth: "20Mbps", Latency: "2ms", Reliability: 1.0},
	"wifi-n":        {Bandwidth: "100Mbps", Latency: "2ms", Reliability: 1.0},
	"wifi-2.4":      {Bandwidth: "100Mbps", Latency: "2ms", Reliability: 1.0},
	"wifi-ac":       {Bandwidth: "200Mbps", Latency: "2ms", Reliability: 1.0},
	"wifi-5":        {Bandwidth: "200Mbps", Latency: "2ms", Reliability: 1.0},
	"wifi-ax":       {Bandwidth: "2Gbps", Latency: "2ms", Reliability: 1.0},
	"wifi-6":        {Bandwidth: "2Gbps", Latency: "2ms", Reliability: 1.0},
	"ethernet":      {Bandwidth: "560Mbps", Latency: "0.3ms", Reliability: 1.0},
	"acoustic":      {Bandwidth: "1kbps", Latency: "10s", Reliability: 1.0},
	"iridium":       {Bandwidth: "5kbps", Latency: "2000s", Reliability: 1.0},
	"freewave":      {Bandwidth: "115kbps", Latency: "20ms", Reliability: 1.0},
	"freewave-fgr3": {Bandwidth: "80kbps", Latency: "20ms", Reliability: 1.0},
}
