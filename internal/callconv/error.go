package callconv

import "fmt"

// Error reports an ambiguous ownership or error-channel declaration. Getting
// ownership wrong causes a double release or a leak at runtime, so ambiguity
// is rejected at generation time instead of resolved silently.
type Error struct {
	Slot   string // parameter name, or "result"
	Reason string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Slot == "" {
		return "calling convention: " + e.Reason
	}
	return fmt.Sprintf("calling convention: %s: %s", e.Slot, e.Reason)
}
