package callconv

import (
	"bridgec/internal/descriptor"
	"bridgec/internal/layout"
)

// Map resolves a signature into a Convention under the resolver's profile.
// Layout failures bubble up unchanged (*layout.Error); ambiguous ownership
// declarations surface as *Error. Rules are applied per slot in declaration
// order.
func Map(sig *descriptor.Signature, res *layout.Resolver) (Convention, error) {
	if sig == nil {
		return Convention{}, &Error{Reason: "missing signature"}
	}
	prof := res.Profile
	conv := Convention{}
	if len(sig.Params) > 0 {
		conv.Params = make([]ParamSlot, 0, len(sig.Params))
	}

	for i := range sig.Params {
		p := &sig.Params[i]
		if p.Inout && p.Consumed {
			return Convention{}, &Error{Slot: p.Name, Reason: "a parameter cannot be both inout and consumed"}
		}
		l, err := res.Of(p.Type)
		if err != nil {
			return Convention{}, err
		}
		own, cerr := paramOwnership(res.Types, p, l)
		if cerr != nil {
			return Convention{}, cerr
		}
		mode := ModeDirect
		switch {
		case p.Inout:
			mode = ModeInout
		case l.AddressOnly || l.Size > prof.MaxDirectBytes():
			mode = ModeIndirect
		}
		conv.Params = append(conv.Params, ParamSlot{
			Name:      p.Name,
			Type:      p.Type,
			Layout:    l,
			Ownership: own,
			Mode:      mode,
		})
	}

	ret, err := mapReturn(sig, res)
	if err != nil {
		return Convention{}, err
	}
	conv.Return = ret

	if sig.Throws {
		conv.Error = &ErrorSlot{Layout: errorBoxLayout(res)}
	}
	return conv, nil
}

// paramOwnership applies the foreign runtime's reference-counting defaults:
// parameters are borrowed unless the declaration marks consumption. Changing
// the default silently would cause a double release or a leak on every call.
func paramOwnership(reg *descriptor.Registry, p *descriptor.Param, l layout.Layout) (Ownership, *Error) {
	if tt, ok := reg.Lookup(p.Type); ok && tt.Kind == descriptor.KindClassRef {
		switch tt.Strength {
		case descriptor.RefWeak:
			if p.Consumed {
				return OwnTrivial, &Error{Slot: p.Name, Reason: "a weak reference cannot transfer ownership"}
			}
			return OwnBorrowed, nil
		case descriptor.RefUnowned:
			return OwnTrivial, nil
		default:
			if p.Consumed {
				return OwnOwned, nil
			}
			return OwnBorrowed, nil
		}
	}
	if l.Trivial {
		return OwnTrivial, nil
	}
	if p.Consumed {
		return OwnOwned, nil
	}
	return OwnBorrowed, nil
}

func mapReturn(sig *descriptor.Signature, res *layout.Resolver) (ReturnSlot, error) {
	if sig.Result == descriptor.NoTypeID {
		if sig.Autoreleased {
			return ReturnSlot{}, &Error{Slot: "result", Reason: "autoreleased requires a result"}
		}
		return ReturnSlot{Type: descriptor.NoTypeID, Mode: ModeDirect, Ownership: OwnTrivial}, nil
	}
	l, err := res.Of(sig.Result)
	if err != nil {
		return ReturnSlot{}, err
	}
	mode := ModeDirect
	// Address-only results cover the existential tie-break: a boxed
	// protocol return always crosses through caller-allocated storage.
	if l.AddressOnly || l.Size > res.Profile.MaxDirectBytes() {
		mode = ModeIndirect
	}
	own := OwnOwned
	if l.Trivial {
		if sig.Autoreleased {
			return ReturnSlot{}, &Error{Slot: "result", Reason: "autoreleased requires a reference-counted result"}
		}
		own = OwnTrivial
	} else if sig.Autoreleased {
		if !refCounted(res.Types, sig.Result) {
			return ReturnSlot{}, &Error{Slot: "result", Reason: "autoreleased requires a reference-counted result"}
		}
		own = OwnAutoreleased
	}
	return ReturnSlot{Type: sig.Result, Layout: l, Ownership: own, Mode: mode}, nil
}

// refCounted reports whether the type is a single reference the runtime can
// retain on arrival. Only such results may defer their lifecycle.
func refCounted(reg *descriptor.Registry, id descriptor.TypeID) bool {
	tt, ok := reg.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case descriptor.KindClassRef:
		return tt.Strength == descriptor.RefStrong
	case descriptor.KindDynContainer, descriptor.KindExistential:
		return true
	default:
		return false
	}
}

// errorBoxLayout is the out-of-band slot shape: one pointer to the foreign
// error object.
func errorBoxLayout(res *layout.Resolver) layout.Layout {
	size := res.Profile.PointerSize
	return layout.Layout{
		Size:   size,
		Align:  res.Profile.PointerAlign,
		Stride: size,
	}
}
