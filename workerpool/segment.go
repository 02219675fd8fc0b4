package workerpool

import (
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// defaultSegmentSize is the fixed segment capacity (10 MB). Each worker
// slot owns one segment and reuses it across tasks; segments are not
// keyed per task.
const defaultSegmentSize = 10 * 1024 * 1024

// status is the worker result wire-format header's status byte.
type status byte

const (
	statusOK status = iota
	statusErr
	statusSpilled
)

// header is the fixed part of the wire format: {status, length}.
type header struct {
	Status status
	Length int
}

// errorDescriptor is the serialized form of a worker failure. Only
// Message is filled in and read back; Stack is never populated.
type errorDescriptor struct {
	Message string
	Stack   string
}

// segment stands in for a pre-allocated shared-memory region: a
// fixed-capacity buffer reused across tasks, with spillover to a temp
// file when a result's serialized form would overflow it. Real
// cross-process shared memory is unnecessary here because execution
// stays in-process (see DESIGN.md); msgpack marshalling and the
// spillover path are still exercised faithfully.
type segment struct {
	capacity int
	spillDir string
}

func newSegment(capacity int, spillDir string) *segment {
	if capacity <= 0 {
		capacity = defaultSegmentSize
	}
	if spillDir == "" {
		spillDir = os.TempDir()
	}
	return &segment{capacity: capacity, spillDir: spillDir}
}

// marshal encodes (value, err) per the wire format and returns its
// header plus body bytes (or, for a spilled body, the file path).
func (s *segment) marshal(value any, taskErr error) (header, []byte, error) {
	if taskErr != nil {
		desc := errorDescriptor{Message: taskErr.Error()}
		body, err := msgpack.Marshal(desc)
		if err != nil {
			return header{}, nil, fmt.Errorf("workerpool: marshal error descriptor: %w", err)
		}
		return s.finish(statusErr, body)
	}

	body, err := msgpack.Marshal(value)
	if err != nil {
		return header{}, nil, fmt.Errorf("workerpool: marshal result: %w", err)
	}
	return s.finish(statusOK, body)
}

func (s *segment) finish(st status, body []byte) (header, []byte, error) {
	if len(body) <= s.capacity {
		return header{Status: st, Length: len(body)}, body, nil
	}

	f, err := os.CreateTemp(s.spillDir, "foroutines-worker-*.msgpack")
	if err != nil {
		return header{}, nil, fmt.Errorf("workerpool: spill to file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(body); err != nil {
		return header{}, nil, fmt.Errorf("workerpool: write spill file: %w", err)
	}
	path := []byte(f.Name())
	return header{Status: statusSpilled, Length: len(path)}, path, nil
}

// unmarshal reverses marshal, reading the spillover file when the
// header says the body was spilled, and releasing it afterward.
func (s *segment) unmarshal(h header, body []byte) (any, error) {
	switch h.Status {
	case statusOK:
		var v any
		if err := msgpack.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("workerpool: unmarshal result: %w", err)
		}
		return v, nil

	case statusErr:
		var desc errorDescriptor
		if err := msgpack.Unmarshal(body, &desc); err != nil {
			return nil, fmt.Errorf("workerpool: unmarshal error descriptor: %w", err)
		}
		return nil, fmt.Errorf("%s", desc.Message)

	case statusSpilled:
		path := string(body)
		defer os.Remove(path)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("workerpool: read spill file: %w", err)
		}
		var v any
		if err := msgpack.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("workerpool: unmarshal spilled result: %w", err)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("workerpool: unknown wire status %d", h.Status)
	}
}
