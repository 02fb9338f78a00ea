package main

import (
	"fmt"
	"io"
	"time"

	"bridgec/internal/genpipeline"
	"bridgec/internal/observ"
)

// printStageTimings renders the --timings block. Per-declaration stages are
// summed across workers, so they can exceed the run's wall clock.
func printStageTimings(out io.Writer, load time.Duration, loadNote string, timings genpipeline.Timings) {
	if out == nil {
		return
	}
	timer := observ.NewTimer()
	if load > 0 {
		timer.Observe(string(genpipeline.StageLoad), load, loadNote)
	}
	for _, stage := range []genpipeline.Stage{
		genpipeline.StageValidate,
		genpipeline.StageResolve,
		genpipeline.StageMap,
	} {
		if timings.Has(stage) {
			timer.Observe(string(stage), timings.Duration(stage), "cpu time across workers")
		}
	}
	for _, stage := range []genpipeline.Stage{genpipeline.StageEmit, genpipeline.StageWrite} {
		if timings.Has(stage) {
			timer.Observe(string(stage), timings.Duration(stage), "")
		}
	}
	if _, err := fmt.Fprint(out, timer.Summary()); err != nil {
		panic(err)
	}
}
