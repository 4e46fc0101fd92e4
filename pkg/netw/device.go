// Package netw implements the NetworkManager and Adapter state machine of
// spec.md §4.4, grounded on networking/manager.py and networking/adapter.py.
// OS interface enumeration uses net.Interfaces (stdlib) rather than nmcli:
// nmcli is a Linux-specific CLI wrapper with no idiomatic Go client in the
// example corpus, and net.Interfaces is the only portable way to enumerate
// interfaces without shelling out.
package netw

import (
	"net"
	"strings"
)

// DeviceType classifies a network interface the way spec.md §4.4's
// discovery loop does: {wifi, ethernet, ppp, other}.
type DeviceType string

const (
	DeviceWifi     DeviceType = "wifi"
	DeviceEthernet DeviceType = "ethernet"
	DevicePPP      DeviceType = "ppp"
	DeviceOther    DeviceType = "other"
)

// ClassifyInterfaceName guesses a DeviceType from common Linux interface
// naming conventions (wlan*/wlp*, eth*/en*, ppp*/tun*). Real NetworkManager
// integrations use device-type metadata directly; this heuristic is the
// portable fallback used when only net.Interfaces is available.
func ClassifyInterfaceName(name string) DeviceType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "wl"):
		return DeviceWifi
	case strings.HasPrefix(lower, "eth"), strings.HasPrefix(lower, "en"):
		return DeviceEthernet
	case strings.HasPrefix(lower, "ppp"), strings.HasPrefix(lower, "tun"):
		return DevicePPP
	default:
		return DeviceOther
	}
}

// Device describes one OS network interface as observed by a discovery
// tick, spec.md §4.4.
type Device struct {
	Interface string
	Type      DeviceType
	Up        bool
}

// InterfaceLister enumerates OS network interfaces. The production
// implementation wraps net.Interfaces; tests inject a fake.
type InterfaceLister interface {
	Interfaces() ([]Device, error)
}

// OSInterfaceLister is the production InterfaceLister.
type OSInterfaceLister struct{}

func (OSInterfaceLister) Interfaces() ([]Device, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(ifaces))
	for _, iface := range ifaces {
		out = append(out, Device{
			Interface: iface.Name,
			Type:      ClassifyInterfaceName(iface.Name),
			Up:        iface.Flags&net.FlagUp != 0,
		})
	}
	return out, nil
}

// IPv4Address returns the first IPv4 address bound to iface, if any.
func IPv4Address(iface string) (net.IP, *net.IPNet, bool) {
	i, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, nil, false
	}
	addrs, err := i.Addrs()
	if err != nil {
		return nil, nil, false
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4, ipnet, true
		}
	}
	return nil, nil, false
}
