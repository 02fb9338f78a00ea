package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"bridgec/internal/genpipeline"
	"bridgec/internal/ui"
)

type generateOutcome struct {
	result genpipeline.Result
	err    error
}

// runGenerateWithUI runs the pipeline behind the progress TUI. extra receives
// the same event stream, so tracing keeps working under the UI.
func runGenerateWithUI(ctx context.Context, title string, decls []string, req *genpipeline.Request, extra genpipeline.ProgressSink) (genpipeline.Result, error) {
	if req == nil {
		return genpipeline.Result{}, fmt.Errorf("missing generation request")
	}
	events := make(chan genpipeline.Event, 256)
	outcomeCh := make(chan generateOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = genpipeline.MultiSink{genpipeline.ChannelSink{Ch: events}, extra}
		res, err := genpipeline.Generate(ctx, &reqCopy)
		outcomeCh <- generateOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, decls, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
