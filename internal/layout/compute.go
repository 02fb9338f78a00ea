package layout

import (
	"strconv"

	"bridgec/internal/abi"
	"bridgec/internal/descriptor"
)

func (r *Resolver) compute(id descriptor.TypeID, state *resolveState) (Layout, *Error) {
	tt, ok := r.Types.Lookup(id)
	if !ok {
		return zeroLayout(), &Error{Kind: ErrUnknownType, Type: id}
	}

	switch tt.Kind {
	case descriptor.KindScalar:
		prim, ok := r.Profile.Primitive(tt.Class, tt.Width)
		if !ok {
			return zeroLayout(), &Error{Kind: ErrUnknownType, Type: id}
		}
		return Layout{
			Size:    prim.Size,
			Align:   prim.Align,
			Stride:  stride(prim.Size, prim.Align),
			Trivial: true,
		}, nil

	case descriptor.KindStruct:
		info, ok := r.Types.StructInfo(id)
		if !ok {
			return zeroLayout(), &Error{Kind: ErrUnknownType, Type: id}
		}
		parts := make([]recordPart, len(info.Fields))
		for i, f := range info.Fields {
			parts[i] = recordPart{Name: f.Name, Type: f.Type}
		}
		return r.recordLayout(info.Name, parts, state)

	case descriptor.KindTuple:
		info, ok := r.Types.TupleInfo(id)
		if !ok {
			return zeroLayout(), &Error{Kind: ErrUnknownType, Type: id}
		}
		parts := make([]recordPart, len(info.Elems))
		for i, elem := range info.Elems {
			parts[i] = recordPart{Name: tupleFieldName(i), Type: elem}
		}
		return r.recordLayout("", parts, state)

	case descriptor.KindEnum:
		info, ok := r.Types.EnumInfo(id)
		if !ok {
			return zeroLayout(), &Error{Kind: ErrUnknownType, Type: id}
		}
		return r.enumLayout(info, state)

	case descriptor.KindFixedArray:
		return r.arrayLayout(id, tt, state)

	case descriptor.KindDynContainer:
		// A growable container crosses the boundary as a reference-counted
		// buffer handle; the element type never affects the handle shape.
		l := r.pointerLayout()
		l.Trivial = false
		return l, nil

	case descriptor.KindClassRef:
		l := r.pointerLayout()
		// Unowned references cross the boundary without any retain or
		// release, so nothing manages their lifecycle here.
		l.Trivial = tt.Strength == descriptor.RefUnowned
		return l, nil

	case descriptor.KindExistential:
		// Boxed indirection: value pointer plus witness/metadata pointer.
		// The box is opaque to flat copies, so the type is address-only.
		ptr := r.Profile.PointerSize
		size := 2 * ptr
		return Layout{
			Size:        size,
			Align:       r.Profile.PointerAlign,
			Stride:      stride(size, r.Profile.PointerAlign),
			AddressOnly: true,
			Trivial:     false,
		}, nil

	default:
		return zeroLayout(), &Error{Kind: ErrUnknownType, Type: id}
	}
}

type recordPart struct {
	Name string
	Type descriptor.TypeID
}

// recordLayout lays parts out in declaration order under the foreign
// runtime's padding rule: each field at the next offset aligned to the
// field's alignment, total size rounded up to the record's alignment.
func (r *Resolver) recordLayout(name string, parts []recordPart, state *resolveState) (Layout, *Error) {
	var (
		size        int64
		align       int64 = 1
		addressOnly bool
		trivial     = true
	)
	fields := make([]FieldLayout, len(parts))
	for i, part := range parts {
		fl, err := r.of(part.Type, state)
		if err != nil {
			return zeroLayout(), err
		}
		fAlign := max(fl.Align, 1)
		size = roundUp(size, fAlign)
		fields[i] = FieldLayout{Name: part.Name, Type: part.Type, Offset: size}
		size += fl.Size
		align = max(align, fAlign)
		addressOnly = addressOnly || fl.AddressOnly
		trivial = trivial && fl.Trivial
	}
	size = roundUp(size, align)
	if name != "" && r.Profile.IsNonTrivial(name) {
		addressOnly = true
		trivial = false
	}
	return Layout{
		Size:        size,
		Align:       align,
		Stride:      stride(size, align),
		Fields:      fields,
		AddressOnly: addressOnly,
		Trivial:     trivial,
	}, nil
}

func (r *Resolver) enumLayout(info *descriptor.EnumInfo, state *resolveState) (Layout, *Error) {
	var (
		payloadSize  int64
		payloadAlign int64 = 1
		addressOnly  bool
		trivial      = true
		withPayload  int
		soleKind     descriptor.Kind
	)
	for _, c := range info.Cases {
		if c.Payload == descriptor.NoTypeID {
			continue
		}
		withPayload++
		pl, err := r.of(c.Payload, state)
		if err != nil {
			return zeroLayout(), err
		}
		payloadSize = max(payloadSize, pl.Size)
		payloadAlign = max(payloadAlign, pl.Align)
		addressOnly = addressOnly || pl.AddressOnly
		trivial = trivial && pl.Trivial
		if tt, ok := r.Types.Lookup(c.Payload); ok {
			soleKind = tt.Kind
		}
	}
	if r.Profile.IsNonTrivial(info.Name) {
		addressOnly = true
		trivial = false
	}

	noPayload := len(info.Cases) - withPayload

	// Spare-bit packing folds the no-payload tags into unused bit patterns
	// of a single pointer payload, so the enum is exactly its payload.
	if r.Profile.Packing == abi.PackingSpareBit &&
		withPayload == 1 && pointerBacked(soleKind) &&
		noPayload <= r.Profile.SpareBitCap {
		return Layout{
			Size:        payloadSize,
			Align:       payloadAlign,
			Stride:      stride(payloadSize, payloadAlign),
			Enum:        &EnumLayout{Packed: true, PayloadSize: payloadSize},
			AddressOnly: addressOnly,
			Trivial:     trivial,
		}, nil
	}

	tagWidth := discriminantWidth(len(info.Cases))
	tagAlign := tagWidth
	tagOffset := roundUp(payloadSize, tagAlign)
	align := max(payloadAlign, tagAlign)
	size := roundUp(tagOffset+tagWidth, align)
	return Layout{
		Size:   size,
		Align:  align,
		Stride: stride(size, align),
		Enum: &EnumLayout{
			TagOffset:   tagOffset,
			TagWidth:    tagWidth,
			PayloadSize: payloadSize,
		},
		AddressOnly: addressOnly,
		Trivial:     trivial,
	}, nil
}

func (r *Resolver) arrayLayout(id descriptor.TypeID, tt descriptor.Type, state *resolveState) (Layout, *Error) {
	el, err := r.of(tt.Elem, state)
	if err != nil {
		return zeroLayout(), err
	}
	count := int64(tt.Count)
	if el.Stride > 0 && count > r.Profile.MaxValueSize/el.Stride {
		return zeroLayout(), &Error{Kind: ErrUnrepresentable, Type: id, Size: -1, Limit: r.Profile.MaxValueSize}
	}
	size := el.Stride * count
	align := max(el.Align, 1)
	return Layout{
		Size:        size,
		Align:       align,
		Stride:      stride(size, align),
		AddressOnly: el.AddressOnly,
		Trivial:     el.Trivial,
	}, nil
}

func (r *Resolver) pointerLayout() Layout {
	return Layout{
		Size:    r.Profile.PointerSize,
		Align:   r.Profile.PointerAlign,
		Stride:  stride(r.Profile.PointerSize, r.Profile.PointerAlign),
		Trivial: true,
	}
}

// discriminantWidth is the minimum byte width covering the case count.
func discriminantWidth(cases int) int64 {
	switch {
	case cases <= 1<<8:
		return 1
	case cases <= 1<<16:
		return 2
	default:
		return 4
	}
}

// pointerBacked reports whether a payload of this kind occupies exactly one
// pointer with spare bit patterns available for tags.
func pointerBacked(kind descriptor.Kind) bool {
	return kind == descriptor.KindClassRef || kind == descriptor.KindDynContainer
}

func tupleFieldName(i int) string {
	return strconv.Itoa(i)
}

func roundUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}

// stride is the array-element step: size rounded to alignment, never zero.
func stride(size, align int64) int64 {
	s := roundUp(size, align)
	if s == 0 {
		return 1
	}
	return s
}
