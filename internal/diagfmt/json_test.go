package diagfmt

import (
	"bytes"
	"encoding/json"
	"testing"

	"bridgec/internal/diag"
)

func TestJSON_Shape(t *testing.T) {
	bag := diag.NewBag(16)
	bag.Add(diag.New(diag.SevError, diag.LayUnrepresentable, "Huge", "computed size 131072 exceeds limit 65536"))
	bag.Add(diag.New(diag.SevWarning, diag.ConvInfo, "getName", "result is autoreleased").
		WithNote("caller must not release the handle"))
	bag.Sort()

	var buf bytes.Buffer
	if err := JSON(&buf, bag, JSONOpts{IncludeNotes: true}); err != nil {
		t.Fatalf("JSON failed: %v", err)
	}

	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if out.Schema != jsonSchemaVersion {
		t.Errorf("expected schema_version %d, got %d", jsonSchemaVersion, out.Schema)
	}
	if len(out.Diagnostics) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(out.Diagnostics))
	}
	if out.Summary.Errors != 1 || out.Summary.Warnings != 1 || out.Summary.Total != 2 {
		t.Errorf("unexpected summary: %+v", out.Summary)
	}

	first := out.Diagnostics[0]
	if first.Code != "LAY3002" || first.Decl != "Huge" || first.Severity != "error" {
		t.Errorf("unexpected first diagnostic: %+v", first)
	}
	second := out.Diagnostics[1]
	if len(second.Notes) != 1 || second.Notes[0] != "caller must not release the handle" {
		t.Errorf("expected note to survive, got %+v", second.Notes)
	}
}

func TestJSON_NotesOmittedByDefault(t *testing.T) {
	bag := diag.NewBag(4)
	bag.Add(diag.New(diag.SevError, diag.ValUnsupported, "Weird", "unsupported type").WithNote("at field x"))

	var buf bytes.Buffer
	if err := JSON(&buf, bag, JSONOpts{}); err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte(`"notes"`)) {
		t.Errorf("notes must be omitted without IncludeNotes:\n%s", buf.String())
	}
}

func TestJSON_MaxKeepsSummaryTotal(t *testing.T) {
	bag := diag.NewBag(16)
	for _, decl := range []string{"A", "B", "C"} {
		bag.Add(diag.NewError(diag.LayCycle, decl, "recursive type"))
	}
	bag.Sort()

	var buf bytes.Buffer
	if err := JSON(&buf, bag, JSONOpts{Max: 2}); err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(out.Diagnostics) != 2 {
		t.Errorf("expected truncated list of 2, got %d", len(out.Diagnostics))
	}
	if out.Summary.Total != 3 || out.Summary.Errors != 3 {
		t.Errorf("summary must count the whole bag, got %+v", out.Summary)
	}
}

func TestJSON_Deterministic(t *testing.T) {
	build := func() string {
		bag := diag.NewBag(16)
		bag.Add(diag.NewError(diag.FrontDuplicateDecl, "Pair", "duplicate declaration"))
		bag.Add(diag.NewError(diag.LayCycle, "Node", "recursive type"))
		bag.Sort()
		var buf bytes.Buffer
		if err := JSON(&buf, bag, JSONOpts{}); err != nil {
			t.Fatalf("JSON failed: %v", err)
		}
		return buf.String()
	}
	if a, b := build(), build(); a != b {
		t.Errorf("JSON output is not deterministic:\n%s\n---\n%s", a, b)
	}
}
