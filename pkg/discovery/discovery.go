// Package discovery implements the peer-discovery service of spec.md
// §4.7: an mDNS-like announce/subscribe protocol used by a Source to find
// the Sink serving its complementary role on the same IPv4 network.
//
// The original zeroconf/ package wraps python-zeroconf, a real mDNS
// stack; nothing in the example corpus provides an mDNS client, so this
// implementation realizes the same announce/filter/match contract over a
// UDP multicast socket (stdlib net) rather than pulling in an unrelated
// mDNS library never touched by the teacher or the rest of the pack. This
// is the one network transport in the module built on the standard
// library alone — see DESIGN.md.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
)

// DefaultMulticastAddr mirrors the original's ZEROCONF_PREFIX: one
// well-known group address/port every adanet process joins.
const DefaultMulticastAddr = "239.7.7.77:7077"

// Announcement is the wire payload of one peer-discovery beacon, spec.md
// §4.7: role, process key, interface, address, network and port. It has
// no prefix or payload field; every process shares one multicast group.
type Announcement struct {
	Role      model.AgentRole `json:"role"`
	Key       string          `json:"key"`
	Interface string          `json:"iface"`
	Address   string          `json:"address"`
	Network   string          `json:"network"`
	Port      int             `json:"port"`
}

// sameNetwork reports whether addr is within cidr.
func (a Announcement) sameNetwork(network *net.IPNet) bool {
	ip := net.ParseIP(a.Address)
	return ip != nil && network != nil && network.Contains(ip)
}

// Service runs the announce/subscribe loop over UDP multicast. One
// Service per process; it is safe to Announce from multiple Adapters
// concurrently.
type Service struct {
	log       *slog.Logger
	clock     *clock.Clock
	role      model.AgentRole
	processKey string
	addr      *net.UDPAddr

	conn *net.UDPConn

	mu        sync.Mutex
	onMatch   map[string]func(Announcement)
	shutdown  chan struct{}
	closeOnce sync.Once
}

// New constructs a Service. role is this process's own AgentRole, used to
// filter out same-role announcements per spec.md §4.7.
func New(log *slog.Logger, c *clock.Clock, role model.AgentRole, multicastAddr string) (*Service, error) {
	if multicastAddr == "" {
		multicastAddr = DefaultMulticastAddr
	}
	addr, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolving %q: %w", multicastAddr, err)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("discovery: joining %q: %w", multicastAddr, err)
	}
	return &Service{
		log:        log,
		clock:      c,
		role:       role,
		processKey: uuid.NewString(),
		addr:       addr,
		conn:       conn,
		onMatch:    make(map[string]func(Announcement)),
		shutdown:   make(chan struct{}),
	}, nil
}

// ProcessKey is this process's self-filtering identity, spec.md §4.7
// ("filters out own-process announcements by process-key").
func (s *Service) ProcessKey() string { return s.processKey }

// Announce broadcasts one beacon for a local adapter. Callers re-announce
// periodically (the launcher repeats it on every interface-discovery
// tick) since UDP delivery isn't guaranteed.
func (s *Service) Announce(iface string, address net.IP, network *net.IPNet, port int) error {
	data, err := json.Marshal(Announcement{
		Role:      s.role,
		Key:       s.processKey,
		Interface: iface,
		Address:   address.String(),
		Network:   network.String(),
		Port:      port,
	})
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(data, s.addr)
	return err
}

// OnMatch registers a callback invoked whenever an announcement from a
// complementary-role, different-process peer is observed on the IPv4
// network identified by localNetwork, spec.md §4.7. Only one callback per
// local interface is kept; re-registering replaces it.
func (s *Service) OnMatch(localIface string, localNetwork *net.IPNet, cb func(Announcement)) {
	s.mu.Lock()
	s.onMatch[localIface] = func(a Announcement) {
		if a.sameNetwork(localNetwork) {
			cb(a)
		}
	}
	s.mu.Unlock()
}

// Run listens for peer beacons until the Service is closed, dispatching
// matches to registered callbacks. Self-announcements (same process key)
// and same-role announcements are filtered per spec.md §4.7.
func (s *Service) Run() {
	buf := make([]byte, 4096)
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				s.clock.Sleep(context.Background(), 100*time.Millisecond)
				continue
			}
		}
		var a Announcement
		if err := json.Unmarshal(buf[:n], &a); err != nil {
			continue
		}
		if a.Key == s.processKey {
			continue // own-process announcement
		}
		if a.Role == s.role {
			continue // same-role announcement
		}

		s.mu.Lock()
		callbacks := make([]func(Announcement), 0, len(s.onMatch))
		for _, cb := range s.onMatch {
			callbacks = append(callbacks, cb)
		}
		s.mu.Unlock()
		for _, cb := range callbacks {
			cb(a)
		}
	}
}

// Close stops the discovery loop and releases the multicast socket.
func (s *Service) Close() error {
	s.closeOnce.Do(func() { close(s.shutdown) })
	return s.conn.Close()
}
