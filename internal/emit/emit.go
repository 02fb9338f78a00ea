// Package emit synthesizes the C translation unit bridging the native and
// foreign sides: mirrored type definitions, a forward and a reverse thunk
// per function, and the manifest the build pipeline links against.
// Emission is deterministic: plans are sorted by declaration identity and
// every pass iterates in that order, so equal inputs produce byte-identical
// output.
package emit

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"bridgec/internal/abi"
	"bridgec/internal/callconv"
	"bridgec/internal/descriptor"
	"bridgec/internal/layout"
)

// TypePlan is one type declaration that survived layout resolution.
type TypePlan struct {
	Decl descriptor.Decl
	Info layout.Layout
}

// FuncPlan is one function declaration with its mapped calling convention.
type FuncPlan struct {
	Decl descriptor.Decl
	Conv callconv.Convention
}

// Result is the complete output set of one emission pass.
type Result struct {
	Source   []byte
	Manifest Manifest
	Failures []Failure
}

// Emitter builds the bridge translation unit. It owns a private resolver
// over the shared read-only registry; the prepare pass resolves every
// layout a declaration needs before a single byte is written, so the write
// passes cannot fail halfway through the output.
type Emitter struct {
	profile *abi.Profile
	types   *descriptor.Registry
	res     *layout.Resolver

	buf      bytes.Buffer
	names    map[descriptor.TypeID]string
	emitted  map[descriptor.TypeID]bool
	synthSeq int

	manifest Manifest
	failures []Failure
}

// EmitBridge renders the bridge source and manifest for the given plans.
// Per-declaration failures are collected in Result.Failures and never
// abort the run; the returned error is reserved for unusable configuration.
func EmitBridge(prof *abi.Profile, reg *descriptor.Registry, types []TypePlan, funcs []FuncPlan) (Result, error) {
	if prof == nil || reg == nil {
		return Result{}, errors.New("emit: profile and registry are required")
	}
	e := &Emitter{
		profile: prof,
		types:   reg,
		res:     layout.NewResolver(prof, reg),
		names:   make(map[descriptor.TypeID]string, 16),
		emitted: make(map[descriptor.TypeID]bool, 16),
	}
	return e.emit(sortTypePlans(types), sortFuncPlans(funcs)), nil
}

func (e *Emitter) emit(types []TypePlan, funcs []FuncPlan) Result {
	e.manifest = newManifest(e.profile)

	typeOrder := make([]descriptor.TypeID, 0, len(types))
	okTypes := make([]TypePlan, 0, len(types))
	for _, p := range types {
		order, err := e.prepareType(p)
		if err != nil {
			e.fail(p.Decl.Name, err)
			continue
		}
		typeOrder = append(typeOrder, order...)
		okTypes = append(okTypes, p)
	}

	okFuncs := make([]FuncPlan, 0, len(funcs))
	thunks := make([]*thunkEmitter, 0, len(funcs))
	for _, p := range funcs {
		te, order, err := e.prepareFunc(p)
		if err != nil {
			e.fail(p.Decl.Name, err)
			continue
		}
		typeOrder = append(typeOrder, order...)
		okFuncs = append(okFuncs, p)
		thunks = append(thunks, te)
	}

	e.emitHeader()
	e.emitRuntimeDecls()
	for _, id := range typeOrder {
		e.emitTypedef(id)
	}
	for _, te := range thunks {
		te.emitSection()
	}

	for _, p := range okTypes {
		e.recordType(p)
	}
	for _, te := range thunks {
		e.manifest.Funcs = append(e.manifest.Funcs, te.record())
	}

	return Result{
		Source:   append([]byte(nil), e.buf.Bytes()...),
		Manifest: e.manifest,
		Failures: e.failures,
	}
}

func (e *Emitter) fail(decl string, err error) {
	var ee *Error
	if !errors.As(err, &ee) {
		ee = &Error{Decl: decl, Err: err}
	}
	e.failures = append(e.failures, Failure{Decl: decl, Err: ee})
}

// prepareType resolves everything a type declaration embeds by value and
// returns the typedefs it introduces, dependencies first.
func (e *Emitter) prepareType(p TypePlan) ([]descriptor.TypeID, error) {
	if p.Decl.Kind != descriptor.DeclType || p.Decl.Type == descriptor.NoTypeID {
		return nil, &Error{Decl: p.Decl.Name, Err: errors.New("plan does not describe a type declaration")}
	}
	var order []descriptor.TypeID
	if err := e.collectValueTypes(p.Decl.Type, &order); err != nil {
		return nil, &Error{Decl: p.Decl.Name, Err: err}
	}
	return order, nil
}

// collectValueTypes walks the value edges under id, resolves the layout of
// every type it meets, and appends nominal types to order in post-order so
// every typedef precedes its first use. Reference kinds are boundaries:
// they render as prelude handles and are never walked.
func (e *Emitter) collectValueTypes(id descriptor.TypeID, order *[]descriptor.TypeID) error {
	if _, err := e.res.Of(id); err != nil {
		return err
	}
	if _, named := e.names[id]; named {
		return nil
	}
	tt, ok := e.types.Lookup(id)
	if !ok {
		return fmt.Errorf("type#%d never resolved to a descriptor", id)
	}
	switch tt.Kind {
	case descriptor.KindStruct:
		info, ok := e.types.StructInfo(id)
		if !ok {
			return fmt.Errorf("struct metadata missing for type#%d", id)
		}
		if err := e.checkCName(info.Name); err != nil {
			return err
		}
		e.names[id] = info.Name
		for _, f := range info.Fields {
			if err := e.collectValueTypes(f.Type, order); err != nil {
				return err
			}
		}
		*order = append(*order, id)
	case descriptor.KindEnum:
		info, ok := e.types.EnumInfo(id)
		if !ok {
			return fmt.Errorf("enum metadata missing for type#%d", id)
		}
		if err := e.checkCName(info.Name); err != nil {
			return err
		}
		e.names[id] = info.Name
		for _, c := range info.Cases {
			if c.Payload == descriptor.NoTypeID {
				continue
			}
			if err := e.collectValueTypes(c.Payload, order); err != nil {
				return err
			}
		}
		*order = append(*order, id)
	case descriptor.KindTuple:
		info, ok := e.types.TupleInfo(id)
		if !ok {
			return fmt.Errorf("tuple metadata missing for type#%d", id)
		}
		for _, elem := range info.Elems {
			if err := e.collectValueTypes(elem, order); err != nil {
				return err
			}
		}
	case descriptor.KindFixedArray:
		return e.collectValueTypes(tt.Elem, order)
	}
	return nil
}

// ensureSignatureType assigns a typedef to a tuple or fixed array crossing
// a signature boundary, since C cannot pass those by value without a name.
func (e *Emitter) ensureSignatureType(id descriptor.TypeID, order *[]descriptor.TypeID) error {
	if err := e.collectValueTypes(id, order); err != nil {
		return err
	}
	if _, ok := e.valueCName(id); ok {
		return nil
	}
	tt := e.types.MustLookup(id)
	switch tt.Kind {
	case descriptor.KindTuple:
		e.names[id] = e.synthTupleName()
	case descriptor.KindFixedArray:
		e.names[id] = e.synthArrayName()
	default:
		return fmt.Errorf("no C spelling for %s", e.types.String(id))
	}
	*order = append(*order, id)
	return nil
}

func (e *Emitter) emitTypedef(id descriptor.TypeID) {
	if e.emitted[id] {
		return
	}
	e.emitted[id] = true
	name := e.names[id]
	tt := e.types.MustLookup(id)
	switch tt.Kind {
	case descriptor.KindStruct, descriptor.KindTuple:
		e.emitRecordTypedef(name, id)
	case descriptor.KindEnum:
		info, _ := e.types.EnumInfo(id)
		e.emitEnumTypedef(name, id, info)
	case descriptor.KindFixedArray:
		e.emitArrayTypedef(name, id)
	}
}

func (e *Emitter) emitHeader() {
	e.buf.WriteString("/* Generated bridge sources; do not edit. */\n")
	fmt.Fprintf(&e.buf, "/* profile: %s (%s) */\n\n", e.profile.Name, e.profile.Triple)
	e.buf.WriteString("#include \"bridge_prelude.h\"\n\n")
}

func (e *Emitter) emitRuntimeDecls() {
	rt := e.profile.Runtime
	for _, sym := range []string{rt.Retain, rt.Release, rt.UnknownRetain, rt.UnknownRelease} {
		fmt.Fprintf(&e.buf, "extern void %s(void *);\n", sym)
	}
	e.buf.WriteString("\n")
}

func (e *Emitter) recordType(p TypePlan) {
	// valueCName also covers aliases to scalars and reference handles, which
	// never receive a typedef of their own.
	name, _ := e.valueCName(p.Decl.Type)
	var cases []string
	if info, ok := e.types.EnumInfo(p.Decl.Type); ok {
		cases = make([]string, len(info.Cases))
		for i, c := range info.Cases {
			cases[i] = c.Name
		}
	}
	e.manifest.Types = append(e.manifest.Types, typeRecord(p.Decl.Name, name, p.Info, cases))
}

func sortTypePlans(plans []TypePlan) []TypePlan {
	out := append([]TypePlan(nil), plans...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Decl.Name < out[j].Decl.Name })
	return out
}

func sortFuncPlans(plans []FuncPlan) []FuncPlan {
	out := append([]FuncPlan(nil), plans...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Decl.Name < out[j].Decl.Name })
	return out
}
