package frontend

import (
	"bytes"
	"encoding/json"
	"fmt"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"

	"bridgec/internal/descriptor"
	"bridgec/internal/diag"
)

// typeExprKeys are the object keys a type expression may carry. strength is
// auxiliary and only allowed next to class.
var typeExprKeys = map[string]bool{
	"ref":       true,
	"array":     true,
	"container": true,
	"tuple":     true,
	"class":     true,
	"any":       true,
	"strength":  true,
}

var typeExprPrimaries = []string{"ref", "array", "container", "tuple", "class", "any"}

// resolveType lowers one JSON type expression to an interned TypeID. at names
// the position inside decl for messages. Failures land in the bag and report
// ok = false.
func (ld *loader) resolveType(raw json.RawMessage, decl, at string) (descriptor.TypeID, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		ld.rep.Report(diag.NewError(diag.FrontBadTypeExpr, decl, at+": missing type expression"))
		return descriptor.NoTypeID, false
	}
	if trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			ld.badExpr(decl, at, err.Error())
			return descriptor.NoTypeID, false
		}
		return ld.lookupName(norm.NFC.String(name), decl, at, true)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		ld.badExpr(decl, at, fmt.Sprintf("type expression must be a name or an object: %v", err))
		return descriptor.NoTypeID, false
	}
	for key := range obj {
		if !typeExprKeys[key] {
			ld.badExpr(decl, at, fmt.Sprintf("unknown type expression key %q", key))
			return descriptor.NoTypeID, false
		}
	}
	var primary string
	count := 0
	for _, key := range typeExprPrimaries {
		if _, ok := obj[key]; ok {
			primary = key
			count++
		}
	}
	if count != 1 {
		ld.badExpr(decl, at, "type expression needs exactly one of ref, array, container, tuple, class, any")
		return descriptor.NoTypeID, false
	}
	if _, ok := obj["strength"]; ok && primary != "class" {
		ld.badExpr(decl, at, "strength applies only to class references")
		return descriptor.NoTypeID, false
	}

	switch primary {
	case "ref":
		return ld.resolveRef(obj["ref"], decl, at)
	case "array":
		return ld.resolveArray(obj["array"], decl, at)
	case "container":
		elem, ok := ld.resolveType(obj["container"], decl, at)
		if !ok {
			return descriptor.NoTypeID, false
		}
		return ld.reg.Intern(descriptor.MakeDynContainer(elem)), true
	case "tuple":
		return ld.resolveTuple(obj["tuple"], decl, at)
	case "class":
		return ld.resolveClass(obj["class"], obj["strength"], decl, at)
	default:
		return ld.resolveExistential(obj["any"], decl, at)
	}
}

func (ld *loader) resolveRef(raw json.RawMessage, decl, at string) (descriptor.TypeID, bool) {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		ld.badExpr(decl, at, fmt.Sprintf("ref must be a declared type name: %v", err))
		return descriptor.NoTypeID, false
	}
	return ld.lookupName(norm.NFC.String(name), decl, at, false)
}

func (ld *loader) resolveArray(raw json.RawMessage, decl, at string) (descriptor.TypeID, bool) {
	var spec struct {
		Of    json.RawMessage `json:"of"`
		Count *uint64         `json:"count"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		ld.badExpr(decl, at, fmt.Sprintf("array needs {of, count}: %v", err))
		return descriptor.NoTypeID, false
	}
	if spec.Count == nil {
		ld.badExpr(decl, at, "array needs a count")
		return descriptor.NoTypeID, false
	}
	if *spec.Count == 0 {
		ld.badExpr(decl, at, "array count must be at least 1")
		return descriptor.NoTypeID, false
	}
	count, err := safecast.Conv[uint32](*spec.Count)
	if err != nil {
		ld.badExpr(decl, at, fmt.Sprintf("array count %d is out of range", *spec.Count))
		return descriptor.NoTypeID, false
	}
	elem, ok := ld.resolveType(spec.Of, decl, at)
	if !ok {
		return descriptor.NoTypeID, false
	}
	return ld.reg.Intern(descriptor.MakeFixedArray(elem, count)), true
}

func (ld *loader) resolveTuple(raw json.RawMessage, decl, at string) (descriptor.TypeID, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		ld.badExpr(decl, at, fmt.Sprintf("tuple must be a list of types: %v", err))
		return descriptor.NoTypeID, false
	}
	ids := make([]descriptor.TypeID, 0, len(elems))
	for _, elem := range elems {
		id, ok := ld.resolveType(elem, decl, at)
		if !ok {
			return descriptor.NoTypeID, false
		}
		ids = append(ids, id)
	}
	return ld.reg.Tuple(ids), true
}

func (ld *loader) resolveClass(nameRaw, strengthRaw json.RawMessage, decl, at string) (descriptor.TypeID, bool) {
	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil {
		ld.badExpr(decl, at, fmt.Sprintf("class must be a class name: %v", err))
		return descriptor.NoTypeID, false
	}
	name = norm.NFC.String(name)
	if name == "" {
		ld.badExpr(decl, at, "class reference needs a class name")
		return descriptor.NoTypeID, false
	}
	strength := descriptor.RefStrong
	if strengthRaw != nil {
		var s string
		if err := json.Unmarshal(strengthRaw, &s); err != nil {
			ld.badExpr(decl, at, fmt.Sprintf("strength must be strong, weak, or unowned: %v", err))
			return descriptor.NoTypeID, false
		}
		switch s {
		case "strong":
			strength = descriptor.RefStrong
		case "weak":
			strength = descriptor.RefWeak
		case "unowned":
			strength = descriptor.RefUnowned
		default:
			ld.badExpr(decl, at, fmt.Sprintf("unknown reference strength %q", s))
			return descriptor.NoTypeID, false
		}
	}
	return ld.reg.ClassRef(name, strength), true
}

func (ld *loader) resolveExistential(raw json.RawMessage, decl, at string) (descriptor.TypeID, bool) {
	var protocols []string
	if err := json.Unmarshal(raw, &protocols); err != nil {
		ld.badExpr(decl, at, fmt.Sprintf("any must be a list of protocol names: %v", err))
		return descriptor.NoTypeID, false
	}
	for i := range protocols {
		protocols[i] = norm.NFC.String(protocols[i])
	}
	return ld.reg.Existential(protocols), true
}

// lookupName resolves a bare type name. Scalar spellings are only valid in
// name position, never behind ref.
func (ld *loader) lookupName(name, decl, at string, allowScalar bool) (descriptor.TypeID, bool) {
	if name == "" {
		ld.badExpr(decl, at, "empty type name")
		return descriptor.NoTypeID, false
	}
	if allowScalar {
		if id, ok := ld.builtins[name]; ok {
			return id, true
		}
	}
	if id, ok := ld.types[name]; ok {
		return id, true
	}
	ld.rep.Report(diag.NewError(diag.FrontUnknownTypeRef, decl,
		fmt.Sprintf("%s: unknown type name %q", at, name)))
	return descriptor.NoTypeID, false
}

func (ld *loader) badExpr(decl, at, msg string) {
	ld.rep.Report(diag.NewError(diag.FrontBadTypeExpr, decl, at+": "+msg))
}
