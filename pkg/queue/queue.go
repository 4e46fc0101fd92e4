// Package queue implements the windmill queue backends of spec.md §4.5:
// a bounded per-channel buffer decoupling production rate from allocated
// transmission rate. Grounded on queue/base.py, queue/lazy.py, and
// queue/sqlite.py.
//
// The original's persistent backend wraps persistqueue (SQLite-backed);
// no example repo imports a SQL or embedded-KV driver for a local,
// dependency-free FIFO, so Persistent here is a plain file of
// length-prefixed records under QueuePath, the smallest stdlib-only
// implementation of the same contract (put/get, drop-oldest on overflow,
// survives a process restart). See DESIGN.md.
package queue

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
)

// Queue is the windmill's buffer contract, spec.md §4.5.
type Queue interface {
	// Put enqueues data, dropping the oldest entry on overflow.
	Put(data []byte)
	// Get blocks until a value is available, then returns it.
	Get() []byte
	// Length reports the number of buffered entries.
	Length() int
	Close() error
}

// Lazy is the single-slot "cache/size 1" queue: latest-wins, readers
// block until a value is available. Grounded on queue/lazy.py.
type Lazy struct {
	mu      sync.Mutex
	cond    *sync.Cond
	content []byte
	has     bool
	closed  bool
}

// NewLazy constructs a single-slot latest-wins queue.
func NewLazy() *Lazy {
	l := &Lazy{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (q *Lazy) Put(data []byte) {
	q.mu.Lock()
	q.content, q.has = data, true
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *Lazy) Get() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.has && !q.closed {
		q.cond.Wait()
	}
	if !q.has {
		return nil
	}
	data := q.content
	q.has = false
	return data
}

func (q *Lazy) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.has {
		return 1
	}
	return 0
}

func (q *Lazy) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	return nil
}

// FIFO is the in-memory, bounded, drop-oldest queue used for
// "cache/size>1", spec.md §4.5.
type FIFO struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   [][]byte
	maxSize int
	closed  bool
}

// NewFIFO constructs a bounded in-memory FIFO of the given capacity.
func NewFIFO(maxSize int) *FIFO {
	if maxSize <= 0 {
		maxSize = 1
	}
	f := &FIFO{maxSize: maxSize}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (q *FIFO) Put(data []byte) {
	q.mu.Lock()
	q.items = append(q.items, data)
	if len(q.items) > q.maxSize {
		q.items = q.items[len(q.items)-q.maxSize:] // drop oldest
	}
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *FIFO) Get() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil
	}
	data := q.items[0]
	q.items = q.items[1:]
	return data
}

func (q *FIFO) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *FIFO) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	return nil
}

// Persistent is an on-disk FIFO with drop-oldest overflow, surviving a
// process restart, spec.md §4.5. Entries are length-prefixed records in
// a single file, dir/<channel>.queue (slashes in the channel name become
// underscores); the file is rewritten from the in-memory mirror on every
// Put and Get.
type Persistent struct {
	mu      sync.Mutex
	cond    *sync.Cond
	path    string
	maxSize int
	pending [][]byte // in-memory mirror, loaded at construction
	closed  bool
}

// NewPersistent opens (or creates) the on-disk queue for channel under
// dir, replaying any entries left over from a previous run.
func NewPersistent(dir, channel string, maxSize int) (*Persistent, error) {
	if maxSize <= 0 {
		maxSize = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("queue: creating directory %q: %w", dir, err)
	}
	path := filepath.Join(dir, sanitize(channel)+".queue")
	items, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(items) > maxSize {
		items = items[len(items)-maxSize:]
	}
	p := &Persistent{path: path, maxSize: maxSize, pending: items}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

func sanitize(channel string) string {
	out := make([]byte, len(channel))
	for i := 0; i < len(channel); i++ {
		c := channel[i]
		if c == '/' {
			c = '_'
		}
		out[i] = c
	}
	return string(out)
}

func readAll(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: opening %q: %w", path, err)
	}
	defer f.Close()

	var items [][]byte
	r := bufio.NewReader(f)
	for {
		var size uint32
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("queue: reading %q: %w", path, err)
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("queue: reading %q: %w", path, err)
		}
		items = append(items, buf)
	}
	return items, nil
}

func (q *Persistent) flush() error {
	f, err := os.Create(q.path)
	if err != nil {
		return fmt.Errorf("queue: rewriting %q: %w", q.path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, item := range q.pending {
		if err := binary.Write(w, binary.BigEndian, uint32(len(item))); err != nil {
			return err
		}
		if _, err := w.Write(item); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (q *Persistent) Put(data []byte) {
	q.mu.Lock()
	q.pending = append(q.pending, data)
	if len(q.pending) > q.maxSize {
		q.pending = q.pending[len(q.pending)-q.maxSize:]
	}
	_ = q.flush()
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *Persistent) Get() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.pending) == 0 {
		return nil
	}
	data := q.pending[0]
	q.pending = q.pending[1:]
	_ = q.flush()
	return data
}

func (q *Persistent) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Persistent) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	return nil
}

// New selects the queue backend per spec.md §4.5: cache/size 1 is Lazy,
// cache/size>1 is FIFO, persistent is the on-disk FIFO.
func New(kind model.QueueKind, size int, persistDir, channel string) (Queue, error) {
	if kind == model.QueuePersistent {
		return NewPersistent(persistDir, channel, size)
	}
	if size <= 1 {
		return NewLazy(), nil
	}
	return NewFIFO(size), nil
}
