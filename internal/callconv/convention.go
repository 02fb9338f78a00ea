// Package callconv maps function signatures onto the foreign runtime's
// calling convention: how every slot is passed and who owns it.
package callconv

import (
	"fmt"

	"bridgec/internal/descriptor"
	"bridgec/internal/layout"
)

// Mode selects how a slot crosses the call boundary.
type Mode uint8

const (
	// ModeDirect passes the flat value in registers.
	ModeDirect Mode = iota
	// ModeIndirect passes a pointer to caller-allocated storage.
	ModeIndirect
	// ModeInout passes a pointer the callee may write back through.
	ModeInout
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeIndirect:
		return "indirect"
	case ModeInout:
		return "inout"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Ownership states who releases a reference-counted slot after the call.
type Ownership uint8

const (
	// OwnTrivial slots have no lifecycle at all.
	OwnTrivial Ownership = iota
	// OwnOwned slots transfer to the receiver, which must release them.
	OwnOwned
	// OwnBorrowed slots stay with the caller; the receiver must not
	// release them.
	OwnBorrowed
	// OwnAutoreleased slots have a deferred lifecycle; the receiver
	// retains on arrival to take ownership.
	OwnAutoreleased
)

func (o Ownership) String() string {
	switch o {
	case OwnTrivial:
		return "trivial"
	case OwnOwned:
		return "owned"
	case OwnBorrowed:
		return "borrowed"
	case OwnAutoreleased:
		return "autoreleased"
	default:
		return fmt.Sprintf("Ownership(%d)", o)
	}
}

// ParamSlot is one mapped parameter.
type ParamSlot struct {
	Name      string
	Type      descriptor.TypeID
	Layout    layout.Layout
	Ownership Ownership
	Mode      Mode
}

// ReturnSlot is the mapped result. Type is NoTypeID for functions without
// one; an indirect return crosses through caller-allocated storage.
type ReturnSlot struct {
	Type      descriptor.TypeID
	Layout    layout.Layout
	Ownership Ownership
	Mode      Mode
}

// ErrorSlot is the out-of-band channel of a failable function: an indirect
// pointer to the foreign error box reference.
type ErrorSlot struct {
	Layout layout.Layout
}

// Convention is the complete mapped signature of one declaration.
type Convention struct {
	Params []ParamSlot
	Return ReturnSlot
	Error  *ErrorSlot
}

// Throws reports whether the convention carries an error channel.
func (c *Convention) Throws() bool {
	return c.Error != nil
}

// HasResult reports whether the convention returns a value.
func (c *Convention) HasResult() bool {
	return c.Return.Type != descriptor.NoTypeID
}
