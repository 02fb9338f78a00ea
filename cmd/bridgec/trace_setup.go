package main

import (
	"fmt"
	"os"

	"bridgec/internal/genpipeline"
	"bridgec/internal/trace"
)

// setupTracing opens the JSONL sink for --trace. The returned cleanup flushes
// and closes it and is cheap to call when tracing is off.
func setupTracing(path string) (trace.Tracer, func(), error) {
	if path == "" {
		return trace.Nop{}, func() {}, nil
	}
	tracer, err := trace.Open(path)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "trace: close error: %v\n", err)
		}
	}
	return tracer, cleanup, nil
}

// traceSink forwards finished pipeline stages to the tracer, one record per
// declaration and stage. Queued and working transitions stay out of the file.
type traceSink struct {
	tracer trace.Tracer
}

func (s traceSink) OnEvent(evt genpipeline.Event) {
	if evt.Status != genpipeline.StatusDone && evt.Status != genpipeline.StatusError {
		return
	}
	rec := trace.Event{
		Decl:      evt.Decl,
		Stage:     string(evt.Stage),
		Status:    string(evt.Status),
		DurMicros: evt.Elapsed.Microseconds(),
	}
	if evt.Err != nil {
		rec.Err = evt.Err.Error()
	}
	s.tracer.Emit(&rec)
}
