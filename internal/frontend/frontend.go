// Package frontend reads JSON declaration sets and builds the descriptor
// registry the rest of the pipeline consumes. It is a syntax boundary only:
// it performs no layout or convention logic, and every structural rule beyond
// basic shape is deferred to descriptor validation.
//
// A declaration set file looks like:
//
//	{
//	  "schema_version": 1,
//	  "decls": [
//	    {"struct": "Point", "fields": [
//	      {"name": "x", "type": "f64"},
//	      {"name": "y", "type": "f64"}
//	    ]},
//	    {"enum": "Reply", "cases": [
//	      {"name": "none"},
//	      {"name": "value", "payload": "i64"}
//	    ]},
//	    {"type": "Vec3", "is": {"array": {"of": "f64", "count": 3}}},
//	    {"func": "scale", "params": [
//	      {"name": "p", "type": "Point"},
//	      {"name": "k", "type": "f64"}
//	    ], "result": "Point"}
//	  ]
//	}
//
// Type expressions are either a name (scalar spelling or a declared nominal)
// or an object with exactly one of ref, array, container, tuple, class, any.
// All identifiers are NFC-normalized at intake so equal names in different
// normal forms intern identically.
package frontend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/text/unicode/norm"

	"bridgec/internal/descriptor"
	"bridgec/internal/diag"
)

// SchemaVersion is the declaration-set format this reader understands.
const SchemaVersion = 1

// Load reads and merges declaration-set files into one registry. Unreadable
// files abort the load; everything else becomes diagnostics in the bag and
// skips only the affected declaration, so its siblings still generate.
// Forward references between structs and enums work across files; a type
// alias can reference only declarations resolved before it.
func Load(paths []string, bag *diag.Bag) (*descriptor.Registry, []descriptor.Decl, error) {
	ld := newLoader(diag.BagReporter{Bag: bag})
	var work []declWork
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read declaration set: %w", err)
		}
		work = append(work, ld.parseFile(path, data)...)
	}
	for i := range work {
		ld.resolveDecl(&work[i])
	}
	return ld.reg, ld.decls, nil
}

// LoadBytes reads a single in-memory declaration set. It behaves like Load
// over one readable file named origin, which makes it the entry point for
// tests and fuzz harnesses that never touch the filesystem.
func LoadBytes(origin string, data []byte, bag *diag.Bag) (*descriptor.Registry, []descriptor.Decl) {
	ld := newLoader(diag.BagReporter{Bag: bag})
	work := ld.parseFile(origin, data)
	for i := range work {
		ld.resolveDecl(&work[i])
	}
	return ld.reg, ld.decls
}

type workKind uint8

const (
	workStruct workKind = iota
	workEnum
	workAlias
	workFunc
)

// declWork carries one parsed declaration between the name-registration pass
// and the body-resolution pass.
type declWork struct {
	origin string
	name   string
	kind   workKind
	id     descriptor.TypeID // registered slot for structs and enums
	entry  declEntry
}

type declEntry struct {
	Struct string `json:"struct"`
	Enum   string `json:"enum"`
	Func   string `json:"func"`
	Type   string `json:"type"`

	Fields []fieldEntry    `json:"fields"`
	Cases  []caseEntry     `json:"cases"`
	Is     json.RawMessage `json:"is"`

	Params       []paramEntry    `json:"params"`
	Result       json.RawMessage `json:"result"`
	Throws       bool            `json:"throws"`
	Autoreleased bool            `json:"autoreleased"`
}

type fieldEntry struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type caseEntry struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

type paramEntry struct {
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"`
	Inout    bool            `json:"inout"`
	Consumed bool            `json:"consumed"`
}

type fileEnvelope struct {
	SchemaVersion *int              `json:"schema_version"`
	Decls         []json.RawMessage `json:"decls"`
}

type loader struct {
	reg      *descriptor.Registry
	rep      diag.Reporter
	decls    []descriptor.Decl
	origins  map[string]string            // declaration identity -> file
	types    map[string]descriptor.TypeID // nominal and alias names
	builtins map[string]descriptor.TypeID
}

func newLoader(rep diag.Reporter) *loader {
	reg := descriptor.NewRegistry()
	b := reg.Builtins()
	return &loader{
		reg:     reg,
		rep:     rep,
		origins: make(map[string]string, 16),
		types:   make(map[string]descriptor.TypeID, 16),
		builtins: map[string]descriptor.TypeID{
			"bool": b.Bool,
			"i8":   b.Int8,
			"i16":  b.Int16,
			"i32":  b.Int32,
			"i64":  b.Int64,
			"u8":   b.UInt8,
			"u16":  b.UInt16,
			"u32":  b.UInt32,
			"u64":  b.UInt64,
			"f32":  b.Float32,
			"f64":  b.Float64,
		},
	}
}

// parseFile decodes one file and registers every nominal name it declares,
// so bodies resolved later may reference structs and enums from any file.
func (ld *loader) parseFile(origin string, data []byte) []declWork {
	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		ld.rep.Report(diag.NewError(diag.FrontBadInput, "", fmt.Sprintf("%s: %v", origin, err)))
		return nil
	}
	if env.SchemaVersion != nil && *env.SchemaVersion != SchemaVersion {
		ld.rep.Report(diag.NewError(diag.FrontBadInput, "",
			fmt.Sprintf("%s: unsupported schema_version %d, this reader understands %d", origin, *env.SchemaVersion, SchemaVersion)))
		return nil
	}
	work := make([]declWork, 0, len(env.Decls))
	for i, raw := range env.Decls {
		w, ok := ld.parseDecl(origin, i+1, raw)
		if !ok {
			continue
		}
		work = append(work, w)
	}
	return work
}

func (ld *loader) parseDecl(origin string, ordinal int, raw json.RawMessage) (declWork, bool) {
	var entry declEntry
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entry); err != nil {
		ld.rep.Report(diag.NewError(diag.FrontBadDecl, "",
			fmt.Sprintf("%s: declaration #%d: %v", origin, ordinal, err)))
		return declWork{}, false
	}

	names := 0
	for _, s := range []string{entry.Struct, entry.Enum, entry.Func, entry.Type} {
		if s != "" {
			names++
		}
	}
	if names != 1 {
		ld.rep.Report(diag.NewError(diag.FrontBadDecl, "",
			fmt.Sprintf("%s: declaration #%d needs exactly one of struct, enum, func, or type", origin, ordinal)))
		return declWork{}, false
	}

	w := declWork{origin: origin, entry: entry}
	switch {
	case entry.Struct != "":
		w.kind, w.name = workStruct, entry.Struct
	case entry.Enum != "":
		w.kind, w.name = workEnum, entry.Enum
	case entry.Func != "":
		w.kind, w.name = workFunc, entry.Func
	default:
		w.kind, w.name = workAlias, entry.Type
	}
	w.name = norm.NFC.String(w.name)
	if !isCIdentifier(w.name) {
		ld.rep.Report(diag.NewError(diag.FrontBadDecl, w.name,
			fmt.Sprintf("%s: declaration name %q is not a C-compatible identifier", origin, w.name)))
		return declWork{}, false
	}
	if prev, ok := ld.origins[w.name]; ok {
		ld.rep.Report(diag.NewError(diag.FrontDuplicateDecl, w.name,
			fmt.Sprintf("%s: %s is already declared", origin, w.name)).
			WithNote("first declared in " + prev))
		return declWork{}, false
	}
	ld.origins[w.name] = origin

	switch w.kind {
	case workStruct:
		w.id = ld.reg.RegisterStruct(w.name)
		ld.types[w.name] = w.id
	case workEnum:
		w.id = ld.reg.RegisterEnum(w.name)
		ld.types[w.name] = w.id
	}
	return w, true
}

func (ld *loader) resolveDecl(w *declWork) {
	switch w.kind {
	case workStruct:
		ld.resolveStruct(w)
	case workEnum:
		ld.resolveEnum(w)
	case workAlias:
		ld.resolveAlias(w)
	case workFunc:
		ld.resolveFunc(w)
	}
}

func (ld *loader) resolveStruct(w *declWork) {
	fields := make([]descriptor.StructField, 0, len(w.entry.Fields))
	seen := make(map[string]bool, len(w.entry.Fields))
	ok := true
	for i := range w.entry.Fields {
		f := &w.entry.Fields[i]
		name := norm.NFC.String(f.Name)
		if !isCIdentifier(name) {
			ld.rep.Report(diag.NewError(diag.FrontBadDecl, w.name,
				fmt.Sprintf("field name %q is not a C-compatible identifier", f.Name)))
			ok = false
			continue
		}
		if seen[name] {
			ld.rep.Report(diag.NewError(diag.FrontBadDecl, w.name, "duplicate field "+name))
			ok = false
			continue
		}
		seen[name] = true
		ft, fok := ld.resolveType(f.Type, w.name, "field "+name)
		if !fok {
			ok = false
			continue
		}
		fields = append(fields, descriptor.StructField{Name: name, Type: ft})
	}
	if !ok {
		// Poison the registered slot so declarations referencing this struct
		// fail validation instead of seeing a silently truncated body.
		ld.reg.SetStructFields(w.id, []descriptor.StructField{{Name: "unresolved", Type: descriptor.NoTypeID}})
		return
	}
	ld.reg.SetStructFields(w.id, fields)
	ld.decls = append(ld.decls, descriptor.Decl{Name: w.name, Kind: descriptor.DeclType, Type: w.id})
}

func (ld *loader) resolveEnum(w *declWork) {
	cases := make([]descriptor.EnumCase, 0, len(w.entry.Cases))
	seen := make(map[string]bool, len(w.entry.Cases))
	ok := true
	for i := range w.entry.Cases {
		c := &w.entry.Cases[i]
		name := norm.NFC.String(c.Name)
		if name == "" {
			ld.rep.Report(diag.NewError(diag.FrontBadDecl, w.name,
				fmt.Sprintf("case #%d has no name", i+1)))
			ok = false
			continue
		}
		if seen[name] {
			ld.rep.Report(diag.NewError(diag.FrontBadDecl, w.name, "duplicate case "+name))
			ok = false
			continue
		}
		seen[name] = true
		payload := descriptor.NoTypeID
		if !isAbsent(c.Payload) {
			var pok bool
			payload, pok = ld.resolveType(c.Payload, w.name, "case "+name)
			if !pok {
				ok = false
				continue
			}
		}
		cases = append(cases, descriptor.EnumCase{Name: name, Payload: payload})
	}
	if !ok {
		// The registered slot stays caseless, which validation rejects, so
		// declarations referencing this enum fail with a path through it.
		return
	}
	ld.reg.SetEnumCases(w.id, cases)
	ld.decls = append(ld.decls, descriptor.Decl{Name: w.name, Kind: descriptor.DeclType, Type: w.id})
}

func (ld *loader) resolveAlias(w *declWork) {
	if isAbsent(w.entry.Is) {
		ld.rep.Report(diag.NewError(diag.FrontBadDecl, w.name, `type alias needs an "is" expression`))
		return
	}
	id, ok := ld.resolveType(w.entry.Is, w.name, "alias target")
	if !ok {
		return
	}
	ld.types[w.name] = id
	ld.decls = append(ld.decls, descriptor.Decl{Name: w.name, Kind: descriptor.DeclType, Type: id})
}

func (ld *loader) resolveFunc(w *declWork) {
	sig := &descriptor.Signature{
		Throws:       w.entry.Throws,
		Autoreleased: w.entry.Autoreleased,
	}
	seen := make(map[string]bool, len(w.entry.Params))
	ok := true
	for i := range w.entry.Params {
		p := &w.entry.Params[i]
		name := norm.NFC.String(p.Name)
		if !isCIdentifier(name) {
			ld.rep.Report(diag.NewError(diag.FrontBadDecl, w.name,
				fmt.Sprintf("parameter name %q is not a C-compatible identifier", p.Name)))
			ok = false
			continue
		}
		if seen[name] {
			ld.rep.Report(diag.NewError(diag.FrontBadDecl, w.name, "duplicate parameter "+name))
			ok = false
			continue
		}
		seen[name] = true
		pt, pok := ld.resolveType(p.Type, w.name, "parameter "+name)
		if !pok {
			ok = false
			continue
		}
		sig.Params = append(sig.Params, descriptor.Param{
			Name:     name,
			Type:     pt,
			Inout:    p.Inout,
			Consumed: p.Consumed,
		})
	}
	if !isAbsent(w.entry.Result) {
		rt, rok := ld.resolveType(w.entry.Result, w.name, "result")
		if !rok {
			ok = false
		} else {
			sig.Result = rt
		}
	}
	if !ok {
		return
	}
	ld.decls = append(ld.decls, descriptor.Decl{Name: w.name, Kind: descriptor.DeclFunc, Sig: sig})
}

// isAbsent treats a missing value and an explicit null the same way.
func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// isCIdentifier reports whether the name can be emitted as a C identifier.
// Leading underscores are refused: the generator reserves them for its own
// padding and synthetic members.
func isCIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '_' || r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return s != ""
}
