package diagfmt

import (
	"encoding/json"
	"io"

	"bridgec/internal/diag"
)

// jsonSchemaVersion is bumped whenever the shape of the JSON output changes.
const jsonSchemaVersion = 1

// DiagnosticJSON represents a single diagnostic in JSON form.
type DiagnosticJSON struct {
	Severity string   `json:"severity"`
	Code     string   `json:"code"`
	Decl     string   `json:"decl,omitempty"`
	Message  string   `json:"message"`
	Notes    []string `json:"notes,omitempty"`
}

// SummaryJSON carries aggregate counts over the emitted diagnostics.
type SummaryJSON struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Total    int `json:"total"`
}

// DiagnosticsOutput is the root structure of the JSON output.
type DiagnosticsOutput struct {
	Schema      int              `json:"schema_version"`
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Summary     SummaryJSON      `json:"summary"`
}

// BuildDiagnosticsOutput assembles the JSON output structure without serializing it.
func BuildDiagnosticsOutput(bag *diag.Bag, opts JSONOpts) DiagnosticsOutput {
	items := bag.Items()
	shown := len(items)
	if opts.Max > 0 && opts.Max < shown {
		shown = opts.Max
	}

	diagnostics := make([]DiagnosticJSON, 0, shown)
	summary := SummaryJSON{Total: bag.Len()}
	for _, d := range items {
		switch d.Severity {
		case diag.SevError:
			summary.Errors++
		case diag.SevWarning:
			summary.Warnings++
		}
	}

	for i := 0; i < shown; i++ {
		d := items[i]
		diagJSON := DiagnosticJSON{
			Severity: d.Severity.String(),
			Code:     d.Code.ID(),
			Decl:     d.Decl,
			Message:  d.Message,
		}
		if opts.IncludeNotes && len(d.Notes) > 0 {
			diagJSON.Notes = append([]string(nil), d.Notes...)
		}
		diagnostics = append(diagnostics, diagJSON)
	}

	return DiagnosticsOutput{
		Schema:      jsonSchemaVersion,
		Diagnostics: diagnostics,
		Summary:     summary,
	}
}

// JSON serializes the bag to w with stable two-space indentation.
func JSON(w io.Writer, bag *diag.Bag, opts JSONOpts) error {
	output := BuildDiagnosticsOutput(bag, opts)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
