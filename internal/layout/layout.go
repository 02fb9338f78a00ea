// Package layout computes the memory shape of descriptors under an ABI
// profile: sizes, alignments, strides, field offsets, and the enum
// discriminant placement the foreign runtime expects.
package layout

import (
	"bridgec/internal/abi"
	"bridgec/internal/descriptor"
)

// Layout is the resolved memory shape of one type under one profile.
type Layout struct {
	Size   int64
	Align  int64
	Stride int64

	// Struct and tuple only: ordered field placements.
	Fields []FieldLayout

	// Enum only.
	Enum *EnumLayout

	// AddressOnly types must live behind a stable address and are never
	// flat-copied. Loadable is its complement.
	AddressOnly bool

	// Trivial types carry no reference-counting lifecycle: a flat copy is
	// a complete copy.
	Trivial bool
}

// FieldLayout places one record field.
type FieldLayout struct {
	Name   string
	Type   descriptor.TypeID
	Offset int64
}

// EnumLayout describes discriminant placement. A packed enum folds the
// discriminant into spare bit patterns of its pointer payload and has
// TagWidth 0.
type EnumLayout struct {
	TagOffset   int64
	TagWidth    int64
	PayloadSize int64
	Packed      bool
}

// Loadable reports whether the value may be flat-copied and passed in
// registers.
func (l Layout) Loadable() bool {
	return !l.AddressOnly
}

// Resolver computes and caches layouts for one profile. It is not safe for
// concurrent use: concurrent pipelines each own a resolver over the shared
// read-only registry, which keeps resolution a pure function of
// (descriptor, profile).
type Resolver struct {
	Profile *abi.Profile
	Types   *descriptor.Registry

	cache map[descriptor.TypeID]cacheEntry
}

type cacheEntry struct {
	layout Layout
	err    *Error
}

// NewResolver creates a resolver for the given profile and registry.
func NewResolver(prof *abi.Profile, reg *descriptor.Registry) *Resolver {
	return &Resolver{
		Profile: prof,
		Types:   reg,
		cache:   make(map[descriptor.TypeID]cacheEntry, 32),
	}
}

type resolveState struct {
	stack []descriptor.TypeID
	index map[descriptor.TypeID]int
}

func newResolveState() *resolveState {
	return &resolveState{index: make(map[descriptor.TypeID]int, 16)}
}

// Of computes and caches the layout of a type.
func (r *Resolver) Of(id descriptor.TypeID) (Layout, error) {
	l, err := r.of(id, newResolveState())
	if err != nil {
		return l, err
	}
	return l, nil
}

func (r *Resolver) of(id descriptor.TypeID, state *resolveState) (Layout, *Error) {
	if cached, ok := r.cache[id]; ok {
		return cached.layout, cached.err
	}

	if idx, ok := state.index[id]; ok {
		cycle := append([]descriptor.TypeID(nil), state.stack[idx:]...)
		cycle = append(cycle, id)
		err := &Error{Kind: ErrCycle, Type: id, Cycle: cycle}
		r.cache[id] = cacheEntry{layout: zeroLayout(), err: err}
		return zeroLayout(), err
	}

	state.index[id] = len(state.stack)
	state.stack = append(state.stack, id)
	l, err := r.compute(id, state)
	state.stack = state.stack[:len(state.stack)-1]
	delete(state.index, id)

	if err == nil && l.Size > r.Profile.MaxValueSize {
		err = &Error{Kind: ErrUnrepresentable, Type: id, Size: l.Size, Limit: r.Profile.MaxValueSize}
	}
	if err != nil {
		l = zeroLayout()
	}
	r.cache[id] = cacheEntry{layout: l, err: err}
	return l, err
}

// SizeOf returns the size of a type in bytes.
func (r *Resolver) SizeOf(id descriptor.TypeID) (int64, error) {
	l, err := r.Of(id)
	return l.Size, err
}

// AlignOf returns the alignment requirement of a type in bytes.
func (r *Resolver) AlignOf(id descriptor.TypeID) (int64, error) {
	l, err := r.Of(id)
	return l.Align, err
}

func zeroLayout() Layout {
	return Layout{Size: 0, Align: 1, Stride: 1, Trivial: true}
}
