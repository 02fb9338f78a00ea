package diagfmt

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"bridgec/internal/diag"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow, color.Bold)
	infoColor  = color.New(color.FgCyan, color.Bold)
	codeColor  = color.New(color.Bold)
	noteColor  = color.New(color.FgHiBlack)
)

// Pretty formats diagnostics for a terminal.
// It walks bag.Items() (bag.Sort() is expected beforehand).
// Each diagnostic prints as:
//
//	<decl>: <severity> <CODE>: <message>
//
// followed by indented notes when ShowNotes is set. Diagnostics that
// are not tied to a declaration omit the leading "<decl>: " part.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) {
	items := bag.Items()
	shown := len(items)
	if opts.Max > 0 && opts.Max < shown {
		shown = opts.Max
	}

	for i := 0; i < shown; i++ {
		d := items[i]
		if d.Decl != "" {
			fmt.Fprintf(w, "%s: ", d.Decl)
		}
		fmt.Fprintf(w, "%s %s: %s\n", severityLabel(d.Severity, opts.Color), codeLabel(d.Code, opts.Color), d.Message)
		if opts.ShowNotes {
			for _, note := range d.Notes {
				if opts.Color {
					fmt.Fprintf(w, "  %s %s\n", noteColor.Sprint("note:"), note)
				} else {
					fmt.Fprintf(w, "  note: %s\n", note)
				}
			}
		}
	}

	if rest := bag.Len() - shown; rest > 0 {
		fmt.Fprintf(w, "... and %d more diagnostics\n", rest)
	}
}

func severityLabel(sev diag.Severity, colored bool) string {
	label := sev.String()
	if !colored {
		return label
	}
	switch sev {
	case diag.SevError:
		return errorColor.Sprint(label)
	case diag.SevWarning:
		return warnColor.Sprint(label)
	default:
		return infoColor.Sprint(label)
	}
}

func codeLabel(code diag.Code, colored bool) string {
	if colored {
		return codeColor.Sprint(code.ID())
	}
	return code.ID()
}
