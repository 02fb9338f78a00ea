// Package trace streams structured events from a generation run to a
// JSONL sink for offline analysis. One event is recorded per
// declaration and stage, with microsecond durations taken from the
// monotonic clock, so traces from slow runs can be diffed and sorted
// without worrying about wall-clock jumps.
//
// Tracing is opt-in and best effort: a tracer that fails to write must
// never disturb the run it observes.
package trace

// Event is a single trace record. Run-level stages such as emission and
// output writing carry an empty Decl.
type Event struct {
	// Seq is a strictly increasing sequence number assigned by the
	// tracer, so interleaved records can be ordered after the fact.
	Seq uint64 `json:"seq"`

	// AtMicros is the monotonic offset from tracer creation, in
	// microseconds.
	AtMicros int64 `json:"at_us"`

	// Decl names the declaration the event belongs to, if any.
	Decl string `json:"decl,omitempty"`

	// Stage is the pipeline stage name (load, validate, resolve, map,
	// emit, write).
	Stage string `json:"stage"`

	// Status reports how the stage ended for this declaration.
	Status string `json:"status"`

	// DurMicros is how long the stage ran, in microseconds. Zero for
	// events that only mark a transition.
	DurMicros int64 `json:"dur_us,omitempty"`

	// Err carries the failure message for error events.
	Err string `json:"err,omitempty"`
}

// Tracer receives generation events. Implementations must be safe for
// concurrent use; the pipeline emits from several goroutines.
type Tracer interface {
	// Emit records one event. The tracer assigns Seq and AtMicros.
	Emit(ev *Event)

	// Flush forces buffered records out to the sink.
	Flush() error

	// Close flushes and releases the sink. The tracer must not be used
	// after Close.
	Close() error

	// Enabled reports whether emitting has any effect. Callers may use
	// it to skip building events entirely.
	Enabled() bool
}
