package testkit

import (
	"fmt"

	"bridgec/internal/abi"
	"bridgec/internal/callconv"
	"bridgec/internal/descriptor"
	"bridgec/internal/layout"
)

// CheckLayoutInvariants runs the structural invariants every resolved
// layout must satisfy:
// 1) alignment is a power of two and size is a multiple of it
// 2) stride is the array step: size rounded to alignment, never zero
// 3) field offsets are aligned, monotone, and inside the record
// 4) enum discriminants sit after the payload, inside the value
// 5) an address-only type is never trivially copyable
func CheckLayoutInvariants(res *layout.Resolver, id descriptor.TypeID) error {
	if res == nil {
		return fmt.Errorf("nil resolver")
	}
	l, err := res.Of(id)
	if err != nil {
		return fmt.Errorf("layout failed: %w", err)
	}

	// 1) alignment and size
	if l.Align < 1 || l.Align&(l.Align-1) != 0 {
		return fmt.Errorf("alignment %d is not a power of two", l.Align)
	}
	if l.Size < 0 {
		return fmt.Errorf("negative size %d", l.Size)
	}
	if l.Size%l.Align != 0 {
		return fmt.Errorf("size %d is not a multiple of alignment %d", l.Size, l.Align)
	}

	// 2) stride
	wantStride := l.Size
	if wantStride == 0 {
		wantStride = 1
	}
	if l.Stride != wantStride {
		return fmt.Errorf("stride = %d, want %d", l.Stride, wantStride)
	}

	// 3) field placement
	var cursor int64
	for _, f := range l.Fields {
		fl, err := res.Of(f.Type)
		if err != nil {
			return fmt.Errorf("field %q layout failed: %w", f.Name, err)
		}
		if f.Offset < cursor {
			return fmt.Errorf("field %q at offset %d overlaps the previous field ending at %d", f.Name, f.Offset, cursor)
		}
		if fl.Align > 0 && f.Offset%fl.Align != 0 {
			return fmt.Errorf("field %q offset %d is not aligned to %d", f.Name, f.Offset, fl.Align)
		}
		if end := f.Offset + fl.Size; end > l.Size {
			return fmt.Errorf("field %q ends at %d beyond record size %d", f.Name, end, l.Size)
		}
		cursor = f.Offset + fl.Size
	}

	// 4) discriminant placement
	if e := l.Enum; e != nil {
		if e.Packed {
			if e.TagWidth != 0 {
				return fmt.Errorf("packed enum has tag width %d, want 0", e.TagWidth)
			}
			if l.Size != e.PayloadSize {
				return fmt.Errorf("packed enum size %d differs from payload size %d", l.Size, e.PayloadSize)
			}
		} else {
			switch e.TagWidth {
			case 1, 2, 4:
			default:
				return fmt.Errorf("tag width %d is not a discriminant width", e.TagWidth)
			}
			if e.TagOffset < e.PayloadSize {
				return fmt.Errorf("tag at offset %d overlaps payload of size %d", e.TagOffset, e.PayloadSize)
			}
			if e.TagOffset%e.TagWidth != 0 {
				return fmt.Errorf("tag offset %d is not aligned to width %d", e.TagOffset, e.TagWidth)
			}
			if end := e.TagOffset + e.TagWidth; end > l.Size {
				return fmt.Errorf("tag ends at %d beyond enum size %d", end, l.Size)
			}
		}
	}

	// 5) copyability
	if l.AddressOnly && l.Trivial {
		return fmt.Errorf("address-only type claims to be trivially copyable")
	}
	return nil
}

// CheckConventionInvariants verifies a mapped convention against its
// signature:
// 1) slots match the declared parameters one to one
// 2) passing modes respect inout, loadability, and the direct-size cap
// 3) ownership agrees with triviality, and weak references never own
// 4) the error channel exists exactly when the signature throws
// 5) deferred ownership appears only on an autoreleased result
func CheckConventionInvariants(reg *descriptor.Registry, sig *descriptor.Signature, conv *callconv.Convention, prof *abi.Profile) error {
	if reg == nil || sig == nil || conv == nil || prof == nil {
		return fmt.Errorf("nil registry, signature, convention, or profile")
	}

	// 1) slot arity
	if len(conv.Params) != len(sig.Params) {
		return fmt.Errorf("convention has %d parameter slots, signature declares %d", len(conv.Params), len(sig.Params))
	}

	for i, slot := range conv.Params {
		p := &sig.Params[i]
		if slot.Type != p.Type {
			return fmt.Errorf("slot %q type %d differs from declared %d", slot.Name, slot.Type, p.Type)
		}

		// 2) passing mode
		if err := checkMode(slot.Mode, slot.Layout, p.Inout, prof); err != nil {
			return fmt.Errorf("slot %q: %w", slot.Name, err)
		}

		// 3) ownership
		if slot.Ownership == callconv.OwnAutoreleased {
			return fmt.Errorf("slot %q: a parameter cannot be autoreleased", slot.Name)
		}
		if slot.Layout.Trivial != (slot.Ownership == callconv.OwnTrivial) {
			return fmt.Errorf("slot %q: ownership %v disagrees with trivial=%v", slot.Name, slot.Ownership, slot.Layout.Trivial)
		}
		if tt, ok := reg.Lookup(p.Type); ok && tt.Kind == descriptor.KindClassRef && tt.Strength != descriptor.RefStrong {
			if slot.Ownership == callconv.OwnOwned {
				return fmt.Errorf("slot %q: a %v reference must not transfer ownership", slot.Name, tt.Strength)
			}
		}
	}

	ret := conv.Return
	if sig.Result == descriptor.NoTypeID {
		if ret.Type != descriptor.NoTypeID || ret.Mode != callconv.ModeDirect || ret.Ownership != callconv.OwnTrivial {
			return fmt.Errorf("void result mapped to %+v", ret)
		}
	} else {
		if ret.Type != sig.Result {
			return fmt.Errorf("result slot type %d differs from declared %d", ret.Type, sig.Result)
		}
		if err := checkMode(ret.Mode, ret.Layout, false, prof); err != nil {
			return fmt.Errorf("result: %w", err)
		}
		if ret.Layout.Trivial != (ret.Ownership == callconv.OwnTrivial) {
			return fmt.Errorf("result: ownership %v disagrees with trivial=%v", ret.Ownership, ret.Layout.Trivial)
		}
	}

	// 4) error channel
	if (conv.Error != nil) != sig.Throws {
		return fmt.Errorf("error slot present=%v, signature throws=%v", conv.Error != nil, sig.Throws)
	}
	if conv.Error != nil {
		el := conv.Error.Layout
		if el.Size != prof.PointerSize || el.Align != prof.PointerAlign {
			return fmt.Errorf("error slot is %d/%d, want pointer %d/%d", el.Size, el.Align, prof.PointerSize, prof.PointerAlign)
		}
	}

	// 5) deferred ownership
	if ret.Ownership == callconv.OwnAutoreleased && !sig.Autoreleased {
		return fmt.Errorf("result is autoreleased but the signature is not")
	}
	if sig.Autoreleased && ret.Ownership != callconv.OwnAutoreleased {
		return fmt.Errorf("signature is autoreleased but the result ownership is %v", ret.Ownership)
	}
	return nil
}

func checkMode(mode callconv.Mode, l layout.Layout, inout bool, prof *abi.Profile) error {
	if inout != (mode == callconv.ModeInout) {
		return fmt.Errorf("mode %v disagrees with inout=%v", mode, inout)
	}
	switch mode {
	case callconv.ModeDirect:
		if l.AddressOnly {
			return fmt.Errorf("address-only value passed direct")
		}
		if l.Size > prof.MaxDirectBytes() {
			return fmt.Errorf("direct value of %d bytes exceeds the %d byte cap", l.Size, prof.MaxDirectBytes())
		}
	case callconv.ModeIndirect:
		if !l.AddressOnly && l.Size <= prof.MaxDirectBytes() {
			return fmt.Errorf("loadable value of %d bytes passed indirect", l.Size)
		}
	case callconv.ModeInout:
	default:
		return fmt.Errorf("unknown mode %v", mode)
	}
	return nil
}
