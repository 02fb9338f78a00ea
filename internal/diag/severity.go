package diag

// Severity ranks a diagnostic. Ordering matters: severities compare
// numerically, so SevError is the highest.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

// String returns the lowercase label used verbatim in pretty and JSON output.
func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return "unknown"
}
