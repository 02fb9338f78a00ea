package layout

import (
	"fmt"
	"strings"

	"bridgec/internal/descriptor"
)

// ErrorKind enumerates layout computation failures.
type ErrorKind uint8

const (
	// ErrCycle marks a recursive value type with no fixed size.
	ErrCycle ErrorKind = iota + 1
	// ErrUnrepresentable marks a value larger than the profile allows.
	ErrUnrepresentable
	// ErrUnknownType marks a descriptor the registry never resolved.
	ErrUnknownType
)

// Error reports a failed layout computation. Failures are scoped to the
// declaration being resolved; they never abort sibling declarations.
type Error struct {
	Kind  ErrorKind
	Type  descriptor.TypeID
	Cycle []descriptor.TypeID // for ErrCycle
	Size  int64               // for ErrUnrepresentable; negative when the size overflows
	Limit int64               // for ErrUnrepresentable
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrCycle:
		if len(e.Cycle) == 0 {
			return fmt.Sprintf("recursive value type has infinite size (type#%d)", e.Type)
		}
		parts := make([]string, 0, len(e.Cycle))
		for _, id := range e.Cycle {
			parts = append(parts, fmt.Sprintf("type#%d", id))
		}
		return fmt.Sprintf("recursive value type has infinite size (cycle: %s)", strings.Join(parts, " -> "))
	case ErrUnrepresentable:
		if e.Size < 0 {
			return fmt.Sprintf("computed size exceeds the profile limit of %d bytes (type#%d)", e.Limit, e.Type)
		}
		return fmt.Sprintf("computed size %d exceeds the profile limit of %d bytes (type#%d)", e.Size, e.Limit, e.Type)
	case ErrUnknownType:
		return fmt.Sprintf("type#%d never resolved to a descriptor", e.Type)
	default:
		return fmt.Sprintf("layout error kind=%d type#%d", e.Kind, e.Type)
	}
}

// Describe renders the error with human-readable type names for
// diagnostics.
func (e *Error) Describe(reg *descriptor.Registry) string {
	if e == nil || reg == nil {
		return e.Error()
	}
	switch e.Kind {
	case ErrCycle:
		if len(e.Cycle) == 0 {
			return fmt.Sprintf("recursive value type %s has infinite size", reg.String(e.Type))
		}
		parts := make([]string, 0, len(e.Cycle))
		for _, id := range e.Cycle {
			parts = append(parts, reg.String(id))
		}
		return fmt.Sprintf("recursive value type has infinite size (cycle: %s)", strings.Join(parts, " -> "))
	case ErrUnrepresentable:
		if e.Size < 0 {
			return fmt.Sprintf("%s: computed size exceeds the profile limit of %d bytes", reg.String(e.Type), e.Limit)
		}
		return fmt.Sprintf("%s: computed size %d exceeds the profile limit of %d bytes", reg.String(e.Type), e.Size, e.Limit)
	case ErrUnknownType:
		return fmt.Sprintf("%s never resolved to a descriptor", reg.String(e.Type))
	default:
		return e.Error()
	}
}
