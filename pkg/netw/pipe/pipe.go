// Package pipe implements the duplex heartbeated byte transport of
// spec.md §4.4, grounded on networking/pipe.py's PUB/SUB ZeroMQ pair.
// There is no ZeroMQ binding in the example corpus; gorilla/websocket
// supplies the nearest idiomatic Go equivalent of a bidirectional,
// message-framed socket and is already a transitive dependency of the
// teacher's stack, promoted here to direct use.
package pipe

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/wire"
)

// Level tags a frame as user data or an internal heartbeat, spec.md §4.4.
type Level = wire.FrameLevel

const (
	User   = wire.FrameUser
	System = wire.FrameSystem
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Pipe is a single duplex connection over one network interface. One side
// binds (Sink role) and the other connects (Source role); after that,
// both sides can Send/Recv symmetrically. IsConnected reports liveness
// based on the last heartbeat or user frame received, mirroring
// Pipe.is_connected in the original.
type Pipe struct {
	clock *clock.Clock

	mu         sync.Mutex
	conn       *websocket.Conn
	lastHeard  time.Time
	heartbeat  time.Duration
	shutdownCh chan struct{}
	closeOnce  sync.Once

	server   *http.Server
	listener net.Listener
}

// New constructs an unbound, unconnected Pipe. heartbeat is the system
// frame interval (default config.PipeHeartbeatEverySec).
func New(c *clock.Clock, heartbeat time.Duration) *Pipe {
	return &Pipe{
		clock:      c,
		heartbeat:  heartbeat,
		shutdownCh: make(chan struct{}),
	}
}

// Bind starts an HTTP server on addr that upgrades the first inbound
// connection to a websocket, mirroring the original's zmq PAIR bind. It
// returns as soon as the listener is live, reporting the bound port so
// the caller can advertise it (peer discovery, spec.md §4.7); the first
// peer to connect becomes the Pipe's counterpart asynchronously, so
// Bind never blocks waiting for one.
func (p *Pipe) Bind(addr string) (acceptedPort int, err error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("pipe: binding to %q: %w", addr, err)
	}
	p.mu.Lock()
	p.listener = listener
	p.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.mu.Lock()
		existing := p.conn
		p.mu.Unlock()
		if existing != nil {
			_ = conn.Close() // only one peer per Pipe, spec.md §4.4
			return
		}
		p.setConn(conn)
	})
	p.server = &http.Server{Handler: mux}
	go func() { _ = p.server.Serve(listener) }()

	return listener.Addr().(*net.TCPAddr).Port, nil
}

// Connect dials the peer bound via Bind, mirroring the original's zmq
// PAIR connect.
func (p *Pipe) Connect(addr string) error {
	url := fmt.Sprintf("ws://%s/", addr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("pipe: connecting to %q: %w", addr, err)
	}
	p.setConn(conn)
	return nil
}

// Reconnect is an alias for Connect, matching the original's naming: a
// fresh connect is indistinguishable from the first one.
func (p *Pipe) Reconnect(addr string) error { return p.Connect(addr) }

func (p *Pipe) setConn(conn *websocket.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.lastHeard = p.clock.Now()
	p.mu.Unlock()
}

// IsConnected reports whether the connection was established, or a frame
// (user or heartbeat) was read by Recv, within 2x the heartbeat period,
// spec.md §4.4.
func (p *Pipe) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return false
	}
	return p.clock.Since(p.lastHeard) <= p.clock.Period(2*p.heartbeat)
}

// Send transmits a user frame.
func (p *Pipe) Send(data []byte) error {
	return p.send(User, data)
}

func (p *Pipe) sendHeartbeat() error {
	return p.send(System, []byte("x"))
}

func (p *Pipe) send(level Level, data []byte) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("pipe: not connected")
	}
	frame := wire.Frame(level, data)
	p.mu.Lock()
	defer p.mu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Recv blocks for the next user frame, transparently consuming and
// discarding system (heartbeat) frames while updating liveness, spec.md
// §4.4. It returns an error once the Pipe is shut down.
func (p *Pipe) Recv() ([]byte, error) {
	for {
		p.mu.Lock()
		conn := p.conn
		p.mu.Unlock()
		if conn == nil {
			return nil, fmt.Errorf("pipe: not connected")
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-p.shutdownCh:
				return nil, fmt.Errorf("pipe: shut down")
			default:
			}
			return nil, fmt.Errorf("pipe: recv: %w", err)
		}
		level, data, ok := wire.Unframe(frame)
		if !ok {
			continue
		}
		p.mu.Lock()
		p.lastHeard = p.clock.Now()
		p.mu.Unlock()
		if level == System {
			continue
		}
		return data, nil
	}
}

// RunHeartbeat emits a system frame every heartbeat period until shut
// down. Callers run this in its own goroutine (the original's
// AdapterHeartbeatWorker / Pipe.run).
func (p *Pipe) RunHeartbeat() {
	ticker := p.clock.NewTicker(p.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-p.shutdownCh:
			return
		case <-ticker.Chan():
			_ = p.sendHeartbeat()
		}
	}
}

// Close shuts the Pipe down: the heartbeat loop and any blocked Recv
// return.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.shutdownCh) })
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server != nil {
		_ = p.server.Close()
	}
	if p.listener != nil {
		_ = p.listener.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
