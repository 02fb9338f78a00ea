package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// StreamTracer writes one JSON object per line to an io.Writer as
// events arrive. Writes are best effort: encoding or I/O failures are
// swallowed so tracing can never fail the run.
type StreamTracer struct {
	mu    sync.Mutex
	w     io.Writer
	start time.Time
	seq   uint64
}

// NewStreamTracer returns a tracer writing JSONL records to w.
func NewStreamTracer(w io.Writer) *StreamTracer {
	return &StreamTracer{
		w:     w,
		start: time.Now(),
	}
}

// Open creates or truncates the trace file at path and returns a tracer
// writing to it. The path "-" selects stderr so traces can be piped
// without touching the filesystem.
func Open(path string) (*StreamTracer, error) {
	if path == "-" {
		return NewStreamTracer(os.Stderr), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace output: %w", err)
	}
	return NewStreamTracer(f), nil
}

// Emit stamps ev with a sequence number and monotonic offset, then
// writes it as one JSON line.
func (t *StreamTracer) Emit(ev *Event) {
	if t == nil || ev == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	ev.Seq = t.seq
	ev.AtMicros = time.Since(t.start).Microseconds()

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = t.w.Write(data)
}

// Flush pushes buffered data to the sink if the writer supports it.
func (t *StreamTracer) Flush() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	// Syncing a terminal fails with EINVAL, so the "-" sink skips it.
	if f, ok := t.w.(interface{ Sync() error }); ok && t.w != os.Stderr {
		return f.Sync()
	}
	return nil
}

// Close flushes and closes the underlying writer when it is closable.
func (t *StreamTracer) Close() error {
	if t == nil {
		return nil
	}
	if err := t.Flush(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.w.(io.Closer); ok && t.w != os.Stderr {
		return c.Close()
	}
	return nil
}

// Enabled always reports true for a stream tracer.
func (t *StreamTracer) Enabled() bool {
	return t != nil
}
