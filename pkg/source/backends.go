package source

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

// RosKindStub is the injection point for the `ros` channel kind. spec.md
// §1 treats the actual ROS-topic subscriber as an external collaborator
// out of scope for this module ("beyond an abstract Source/Sink
// contract"); this stub is that contract's Source half — a real ROS node
// calls Inject with each message it receives off the topic.
type RosKindStub struct {
	source *Source
}

// NewRosKindStub wires src as the windmill target for a ROS-backed
// channel.
func NewRosKindStub(src *Source) *RosKindStub {
	return &RosKindStub{source: src}
}

// Inject offers one ROS message payload to the channel's windmill.
func (r *RosKindStub) Inject(data []byte) {
	r.source.Inject(data)
}

// DiskTail is the `disk` channel kind: it tails a file line-by-line,
// injecting each line as a payload. Used for replaying recorded channel
// data without a live ROS bus.
type DiskTail struct {
	path   string
	source *Source
}

// NewDiskTail constructs a disk-backed Source producer reading path.
func NewDiskTail(path string, src *Source) *DiskTail {
	return &DiskTail{path: path, source: src}
}

// Run streams path line-by-line into the windmill until ctx is done or
// the file is exhausted.
func (d *DiskTail) Run(ctx context.Context) error {
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("disk source: opening %q: %w", d.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Bytes()
		payload := make([]byte, len(line))
		copy(payload, line)
		d.source.Inject(payload)
	}
	return scanner.Err()
}

// Simulated is the `simulated` channel kind: payloads are generated
// on-demand by a caller-supplied generator function, rather than read
// from a live
// backend. This mirrors the original's synthetic-data channels used for
// load-testing the Solver without hardware in the loop.
type Simulated struct {
	source    *Source
	generator func() []byte
}

// NewSimulated constructs a synthetic producer. generator is called once
// per tick to produce the next payload.
func NewSimulated(src *Source, generator func() []byte) *Simulated {
	return &Simulated{source: src, generator: generator}
}

// Tick produces and injects one synthetic payload.
func (s *Simulated) Tick() {
	s.source.Inject(s.generator())
}
