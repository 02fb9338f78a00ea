package descriptor

import (
	"fmt"
	"sort"
	"strings"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for the scalar primitives every declaration set
// can reference without declaring them.
type Builtins struct {
	Bool    TypeID
	Int8    TypeID
	Int16   TypeID
	Int32   TypeID
	Int64   TypeID
	UInt8   TypeID
	UInt16  TypeID
	UInt32  TypeID
	UInt64  TypeID
	Float32 TypeID
	Float64 TypeID
}

// Registry provides stable TypeIDs by hashing structural descriptors and
// keeps side tables for nominal metadata. It is mutable while the front end
// builds it and read-only afterwards, so concurrent resolvers may share it
// without locking.
type Registry struct {
	types    []Type
	index    map[typeKey]TypeID
	builtins Builtins

	structs []StructInfo
	enums   []EnumInfo
	tuples  []TupleInfo
	classes []ClassInfo
	exts    []ExistentialInfo

	classIndex map[classKey]TypeID
	extIndex   map[string]TypeID
	nominals   map[string]TypeID
}

// StructField describes a single field inside a nominal struct type.
type StructField struct {
	Name string
	Type TypeID
}

// StructInfo stores metadata for a struct type.
type StructInfo struct {
	Name   string
	Fields []StructField
}

// EnumCase describes a single case inside an enum type. Payload is NoTypeID
// for cases without one.
type EnumCase struct {
	Name    string
	Payload TypeID
}

// EnumInfo stores metadata for an enum type.
type EnumInfo struct {
	Name  string
	Cases []EnumCase
}

// TupleInfo stores the element types for a tuple type.
type TupleInfo struct {
	Elems []TypeID
}

// ClassInfo stores metadata for a reference to a class declared on the
// foreign side. Only the name and strength matter: the referent is never
// inlined.
type ClassInfo struct {
	Name     string
	Strength RefStrength
}

// ExistentialInfo stores the protocol constraint set for an existential box.
// Protocols are kept sorted so equal sets intern to the same TypeID.
type ExistentialInfo struct {
	Protocols []string
}

// NewRegistry constructs a registry seeded with the scalar builtins.
func NewRegistry() *Registry {
	r := &Registry{
		index:      make(map[typeKey]TypeID, 64),
		classIndex: make(map[classKey]TypeID, 8),
		extIndex:   make(map[string]TypeID, 8),
		nominals:   make(map[string]TypeID, 16),
	}
	r.structs = append(r.structs, StructInfo{}) // reserve 0 as invalid sentinel
	r.enums = append(r.enums, EnumInfo{})
	r.tuples = append(r.tuples, TupleInfo{})
	r.classes = append(r.classes, ClassInfo{})
	r.exts = append(r.exts, ExistentialInfo{})
	r.internRaw(Type{Kind: KindInvalid}) // reserve TypeID 0
	r.builtins.Bool = r.Intern(MakeScalar(ScalarBool, Width8))
	r.builtins.Int8 = r.Intern(MakeScalar(ScalarSigned, Width8))
	r.builtins.Int16 = r.Intern(MakeScalar(ScalarSigned, Width16))
	r.builtins.Int32 = r.Intern(MakeScalar(ScalarSigned, Width32))
	r.builtins.Int64 = r.Intern(MakeScalar(ScalarSigned, Width64))
	r.builtins.UInt8 = r.Intern(MakeScalar(ScalarUnsigned, Width8))
	r.builtins.UInt16 = r.Intern(MakeScalar(ScalarUnsigned, Width16))
	r.builtins.UInt32 = r.Intern(MakeScalar(ScalarUnsigned, Width32))
	r.builtins.UInt64 = r.Intern(MakeScalar(ScalarUnsigned, Width64))
	r.builtins.Float32 = r.Intern(MakeScalar(ScalarFloat, Width32))
	r.builtins.Float64 = r.Intern(MakeScalar(ScalarFloat, Width64))
	return r
}

// Builtins returns TypeIDs for the scalar primitives.
func (r *Registry) Builtins() Builtins {
	return r.builtins
}

// Intern ensures the provided structural descriptor has a stable TypeID.
func (r *Registry) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := makeTypeKey(t)
	if id, ok := r.index[key]; ok {
		return id
	}
	return r.internRaw(t)
}

// internRaw adds the descriptor to the storage without consulting the map.
func (r *Registry) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(r.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	r.types = append(r.types, t)
	r.index[makeTypeKey(t)] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (r *Registry) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(r.types) {
		return Type{}, false
	}
	return r.types[id], true
}

// MustLookup panics when id is invalid.
func (r *Registry) MustLookup(id TypeID) Type {
	tt, ok := r.Lookup(id)
	if !ok {
		panic("descriptor: invalid TypeID")
	}
	return tt
}

// Nominal resolves a struct or enum by its declared name.
func (r *Registry) Nominal(name string) (TypeID, bool) {
	id, ok := r.nominals[name]
	return id, ok
}

// RegisterStruct allocates a nominal struct type slot and returns its TypeID.
func (r *Registry) RegisterStruct(name string) TypeID {
	slot := r.appendStructInfo(StructInfo{Name: name})
	id := r.internRaw(Type{Kind: KindStruct, Payload: slot})
	r.nominals[name] = id
	return id
}

// SetStructFields stores the resolved field descriptors for the struct type.
func (r *Registry) SetStructFields(id TypeID, fields []StructField) {
	info := r.structInfo(id)
	if info == nil {
		return
	}
	info.Fields = cloneStructFields(fields)
}

// StructInfo returns metadata for the provided struct TypeID.
func (r *Registry) StructInfo(id TypeID) (*StructInfo, bool) {
	info := r.structInfo(id)
	if info == nil {
		return nil, false
	}
	return info, true
}

// RegisterEnum allocates a nominal enum type slot and returns its TypeID.
func (r *Registry) RegisterEnum(name string) TypeID {
	slot := r.appendEnumInfo(EnumInfo{Name: name})
	id := r.internRaw(Type{Kind: KindEnum, Payload: slot})
	r.nominals[name] = id
	return id
}

// SetEnumCases stores the resolved cases for the enum type.
func (r *Registry) SetEnumCases(id TypeID, cases []EnumCase) {
	info := r.enumInfo(id)
	if info == nil {
		return
	}
	info.Cases = cloneEnumCases(cases)
}

// EnumInfo returns metadata for the provided enum TypeID.
func (r *Registry) EnumInfo(id TypeID) (*EnumInfo, bool) {
	info := r.enumInfo(id)
	if info == nil {
		return nil, false
	}
	return info, true
}

// Tuple allocates a tuple type over the given elements.
func (r *Registry) Tuple(elems []TypeID) TypeID {
	slot := r.appendTupleInfo(TupleInfo{Elems: cloneTypeIDs(elems)})
	return r.internRaw(Type{Kind: KindTuple, Payload: slot})
}

// TupleInfo returns the element types for a tuple TypeID.
func (r *Registry) TupleInfo(id TypeID) (*TupleInfo, bool) {
	tt, ok := r.Lookup(id)
	if !ok || tt.Kind != KindTuple {
		return nil, false
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(r.tuples) {
		return nil, false
	}
	return &r.tuples[tt.Payload], true
}

// ClassRef interns a reference to a foreign class. Equal (name, strength)
// pairs share a TypeID.
func (r *Registry) ClassRef(name string, strength RefStrength) TypeID {
	key := classKey{Name: name, Strength: strength}
	if id, ok := r.classIndex[key]; ok {
		return id
	}
	slot := r.appendClassInfo(ClassInfo{Name: name, Strength: strength})
	id := r.internRaw(Type{Kind: KindClassRef, Strength: strength, Payload: slot})
	r.classIndex[key] = id
	return id
}

// ClassInfo returns metadata for the provided class reference TypeID.
func (r *Registry) ClassInfo(id TypeID) (*ClassInfo, bool) {
	tt, ok := r.Lookup(id)
	if !ok || tt.Kind != KindClassRef {
		return nil, false
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(r.classes) {
		return nil, false
	}
	return &r.classes[tt.Payload], true
}

// Existential interns a boxed existential over the protocol constraint set.
// The set is sorted and deduplicated, so equal sets share a TypeID.
func (r *Registry) Existential(protocols []string) TypeID {
	set := cloneProtocols(protocols)
	key := strings.Join(set, "&")
	if id, ok := r.extIndex[key]; ok {
		return id
	}
	slot := r.appendExistentialInfo(ExistentialInfo{Protocols: set})
	id := r.internRaw(Type{Kind: KindExistential, Payload: slot})
	r.extIndex[key] = id
	return id
}

// ExistentialInfo returns the constraint set for the provided TypeID.
func (r *Registry) ExistentialInfo(id TypeID) (*ExistentialInfo, bool) {
	tt, ok := r.Lookup(id)
	if !ok || tt.Kind != KindExistential {
		return nil, false
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(r.exts) {
		return nil, false
	}
	return &r.exts[tt.Payload], true
}

// String renders a human-readable name for diagnostics and layout listings.
func (r *Registry) String(id TypeID) string {
	tt, ok := r.Lookup(id)
	if !ok {
		return "<none>"
	}
	switch tt.Kind {
	case KindScalar:
		return scalarString(tt.Class, tt.Width)
	case KindStruct:
		if info := r.structInfo(id); info != nil {
			return "struct " + info.Name
		}
		return "struct <unknown>"
	case KindEnum:
		if info := r.enumInfo(id); info != nil {
			return "enum " + info.Name
		}
		return "enum <unknown>"
	case KindTuple:
		info, ok := r.TupleInfo(id)
		if !ok {
			return "tuple <unknown>"
		}
		parts := make([]string, len(info.Elems))
		for i, elem := range info.Elems {
			parts[i] = r.String(elem)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindFixedArray:
		return fmt.Sprintf("[%d]%s", tt.Count, r.String(tt.Elem))
	case KindDynContainer:
		return fmt.Sprintf("container<%s>", r.String(tt.Elem))
	case KindClassRef:
		info, ok := r.ClassInfo(id)
		if !ok {
			return "class <unknown>"
		}
		if info.Strength == RefStrong {
			return "class " + info.Name
		}
		return info.Strength.String() + " class " + info.Name
	case KindExistential:
		info, ok := r.ExistentialInfo(id)
		if !ok {
			return "any <unknown>"
		}
		if len(info.Protocols) == 0 {
			return "any"
		}
		return "any " + strings.Join(info.Protocols, " & ")
	default:
		return tt.Kind.String()
	}
}

func scalarString(class ScalarClass, width Width) string {
	switch class {
	case ScalarBool:
		return "bool"
	case ScalarSigned:
		return fmt.Sprintf("i%d", width)
	case ScalarUnsigned:
		return fmt.Sprintf("u%d", width)
	case ScalarFloat:
		return fmt.Sprintf("f%d", width)
	default:
		return "scalar<?>"
	}
}

func (r *Registry) structInfo(id TypeID) *StructInfo {
	tt, ok := r.Lookup(id)
	if !ok || tt.Kind != KindStruct {
		return nil
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(r.structs) {
		return nil
	}
	return &r.structs[tt.Payload]
}

func (r *Registry) enumInfo(id TypeID) *EnumInfo {
	tt, ok := r.Lookup(id)
	if !ok || tt.Kind != KindEnum {
		return nil
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(r.enums) {
		return nil
	}
	return &r.enums[tt.Payload]
}

func (r *Registry) appendStructInfo(info StructInfo) uint32 {
	r.structs = append(r.structs, StructInfo{
		Name:   info.Name,
		Fields: cloneStructFields(info.Fields),
	})
	return sideSlot(len(r.structs), "struct")
}

func (r *Registry) appendEnumInfo(info EnumInfo) uint32 {
	r.enums = append(r.enums, EnumInfo{
		Name:  info.Name,
		Cases: cloneEnumCases(info.Cases),
	})
	return sideSlot(len(r.enums), "enum")
}

func (r *Registry) appendTupleInfo(info TupleInfo) uint32 {
	r.tuples = append(r.tuples, TupleInfo{Elems: cloneTypeIDs(info.Elems)})
	return sideSlot(len(r.tuples), "tuple")
}

func (r *Registry) appendClassInfo(info ClassInfo) uint32 {
	r.classes = append(r.classes, info)
	return sideSlot(len(r.classes), "class")
}

func (r *Registry) appendExistentialInfo(info ExistentialInfo) uint32 {
	r.exts = append(r.exts, ExistentialInfo{Protocols: cloneProtocols(info.Protocols)})
	return sideSlot(len(r.exts), "existential")
}

func sideSlot(length int, table string) uint32 {
	slot, err := safecast.Conv[uint32](length - 1)
	if err != nil {
		panic(fmt.Errorf("%s info overflow: %w", table, err))
	}
	return slot
}

type typeKey struct {
	Kind     Kind
	Class    ScalarClass
	Width    Width
	Elem     TypeID
	Count    uint32
	Strength RefStrength
	Payload  uint32
}

type classKey struct {
	Name     string
	Strength RefStrength
}

func makeTypeKey(t Type) typeKey {
	return typeKey{
		Kind:     t.Kind,
		Class:    t.Class,
		Width:    t.Width,
		Elem:     t.Elem,
		Count:    t.Count,
		Strength: t.Strength,
		Payload:  t.Payload,
	}
}

func cloneStructFields(fields []StructField) []StructField {
	if len(fields) == 0 {
		return nil
	}
	result := make([]StructField, len(fields))
	copy(result, fields)
	return result
}

func cloneEnumCases(cases []EnumCase) []EnumCase {
	if len(cases) == 0 {
		return nil
	}
	result := make([]EnumCase, len(cases))
	copy(result, cases)
	return result
}

func cloneTypeIDs(ids []TypeID) []TypeID {
	if len(ids) == 0 {
		return nil
	}
	result := make([]TypeID, len(ids))
	copy(result, ids)
	return result
}

func cloneProtocols(protocols []string) []string {
	if len(protocols) == 0 {
		return nil
	}
	set := make([]string, 0, len(protocols))
	seen := make(map[string]bool, len(protocols))
	for _, p := range protocols {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		set = append(set, p)
	}
	sort.Strings(set)
	return set
}
