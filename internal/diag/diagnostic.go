package diag

// Diagnostic describes one generation problem, keyed by the declaration it
// belongs to. Decl is empty only for configuration problems that precede any
// declaration work.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Decl     string
	Message  string
	Notes    []string
}

// New constructs a diagnostic.
func New(sev Severity, code Code, decl, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Decl:     decl,
		Message:  msg,
	}
}

// NewError is a shortcut for SevError diagnostics.
func NewError(code Code, decl, msg string) Diagnostic {
	return New(SevError, code, decl, msg)
}

// WithNote returns a copy carrying an extra context line. Notes must add new
// context, not repeat the message.
func (d Diagnostic) WithNote(msg string) Diagnostic {
	d.Notes = append(append([]string(nil), d.Notes...), msg)
	return d
}
