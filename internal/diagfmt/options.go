package diagfmt

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color     bool
	Max       int // output cap, the Bag itself is not touched
	ShowNotes bool
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	Max          int // output cap, the Bag itself is not touched
	IncludeNotes bool
}
