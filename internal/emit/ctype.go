package emit

import (
	"bytes"
	"fmt"

	"bridgec/internal/descriptor"
	"bridgec/internal/layout"
)

// refTypeName is the prelude handle for reference-counted values.
const refTypeName = "bridge_ref"

// extTypeName is the prelude box for existential values.
const extTypeName = "bridge_existential"

// errTypeName is the prelude handle for foreign error values.
const errTypeName = "bridge_error"

func scalarCName(class descriptor.ScalarClass, width descriptor.Width) string {
	switch class {
	case descriptor.ScalarBool:
		return "bool"
	case descriptor.ScalarSigned:
		return fmt.Sprintf("int%d_t", width)
	case descriptor.ScalarUnsigned:
		return fmt.Sprintf("uint%d_t", width)
	case descriptor.ScalarFloat:
		if width == descriptor.Width32 {
			return "float"
		}
		return "double"
	default:
		return "void"
	}
}

// valueCName returns the C spelling used wherever the type appears by name:
// signatures, casts, and record members. Tuples and fixed arrays have no
// spelling of their own unless a synthesized typedef was assigned, so the
// second result is false for them and callers render them inline.
func (e *Emitter) valueCName(id descriptor.TypeID) (string, bool) {
	if name, ok := e.names[id]; ok {
		return name, true
	}
	tt, ok := e.types.Lookup(id)
	if !ok {
		return "", false
	}
	switch tt.Kind {
	case descriptor.KindScalar:
		return scalarCName(tt.Class, tt.Width), true
	case descriptor.KindClassRef, descriptor.KindDynContainer:
		return refTypeName, true
	case descriptor.KindExistential:
		return extTypeName, true
	default:
		return "", false
	}
}

// mustLayout fetches a layout that the prepare pass already resolved.
func (e *Emitter) mustLayout(id descriptor.TypeID) layout.Layout {
	l, err := e.res.Of(id)
	if err != nil {
		panic(fmt.Errorf("emit: layout vanished for type#%d: %w", id, err))
	}
	return l
}

// cFieldName maps a layout field name onto a C member name. Tuple elements
// are numbered and need a leading letter.
func cFieldName(name string) string {
	if name == "" {
		return "_f"
	}
	if name[0] >= '0' && name[0] <= '9' {
		return "f" + name
	}
	return name
}

// memberDecl renders one member declaration, inlining tuples and arrays
// that carry no typedef name. suffix accumulates array extents so nested
// fixed arrays render as multi-dimensional members.
func (e *Emitter) memberDecl(buf *bytes.Buffer, id descriptor.TypeID, name, suffix, indent string) {
	if cname, ok := e.valueCName(id); ok {
		fmt.Fprintf(buf, "%s%s %s%s;\n", indent, cname, name, suffix)
		return
	}
	tt := e.types.MustLookup(id)
	switch tt.Kind {
	case descriptor.KindFixedArray:
		e.memberDecl(buf, tt.Elem, name, fmt.Sprintf("%s[%d]", suffix, tt.Count), indent)
	case descriptor.KindTuple:
		fmt.Fprintf(buf, "%sstruct {\n", indent)
		e.recordMembers(buf, e.mustLayout(id), indent+"    ")
		fmt.Fprintf(buf, "%s} %s%s;\n", indent, name, suffix)
	default:
		// Nominal kinds always resolve through valueCName once prepared.
		panic(fmt.Errorf("emit: no C spelling for %s", e.types.String(id)))
	}
}

// recordMembers renders the members of a struct or tuple layout with
// explicit padding, so the C mirror reproduces the foreign padding rule
// byte for byte.
func (e *Emitter) recordMembers(buf *bytes.Buffer, l layout.Layout, indent string) {
	end := int64(0)
	pads := 0
	for _, f := range l.Fields {
		if f.Offset > end {
			fmt.Fprintf(buf, "%suint8_t _pad%d[%d];\n", indent, pads, f.Offset-end)
			pads++
		}
		e.memberDecl(buf, f.Type, cFieldName(f.Name), "", indent)
		end = f.Offset + e.mustLayout(f.Type).Size
	}
}

// emitRecordTypedef mirrors a struct or tuple as a typed C struct and pins
// the computed layout with static assertions.
func (e *Emitter) emitRecordTypedef(name string, id descriptor.TypeID) {
	l := e.mustLayout(id)
	if l.Size == 0 {
		fmt.Fprintf(&e.buf, "typedef struct %s {\n    uint8_t _empty; /* zero-sized on the foreign side */\n} %s;\n\n", name, name)
		return
	}
	fmt.Fprintf(&e.buf, "typedef struct %s {\n", name)
	e.recordMembers(&e.buf, l, "    ")
	fmt.Fprintf(&e.buf, "} %s;\n", name)
	fmt.Fprintf(&e.buf, "_Static_assert(sizeof(%s) == %d, \"%s: size\");\n", name, l.Size, name)
	fmt.Fprintf(&e.buf, "_Static_assert(_Alignof(%s) == %d, \"%s: align\");\n", name, l.Align, name)
	for _, f := range l.Fields {
		fmt.Fprintf(&e.buf, "_Static_assert(offsetof(%s, %s) == %d, \"%s: offset of %s\");\n",
			name, cFieldName(f.Name), f.Offset, name, cFieldName(f.Name))
	}
	e.buf.WriteString("\n")
}

// emitEnumTypedef mirrors an enum. A spare-bit packed enum is exactly its
// pointer payload; a tagged enum becomes an aligned storage blob, because
// the trailing tag sits at an offset a C union cannot reproduce. The
// manifest carries the tag placement for native accessors.
func (e *Emitter) emitEnumTypedef(name string, id descriptor.TypeID, info *descriptor.EnumInfo) {
	l := e.mustLayout(id)
	if l.Enum != nil && l.Enum.Packed {
		fmt.Fprintf(&e.buf, "/* enum %s: %d cases folded into spare pointer bits */\n", name, len(info.Cases))
		fmt.Fprintf(&e.buf, "typedef struct %s {\n    %s payload;\n} %s;\n", name, refTypeName, name)
	} else {
		tag := "none"
		if l.Enum != nil {
			tag = fmt.Sprintf("uint%d at offset %d", l.Enum.TagWidth*8, l.Enum.TagOffset)
		}
		fmt.Fprintf(&e.buf, "/* enum %s: %d cases, tag %s */\n", name, len(info.Cases), tag)
		fmt.Fprintf(&e.buf, "typedef struct %s {\n    _Alignas(%d) uint8_t storage[%d];\n} %s;\n", name, l.Align, l.Size, name)
	}
	fmt.Fprintf(&e.buf, "_Static_assert(sizeof(%s) == %d, \"%s: size\");\n", name, l.Size, name)
	fmt.Fprintf(&e.buf, "_Static_assert(_Alignof(%s) == %d, \"%s: align\");\n", name, l.Align, name)
	e.buf.WriteString("\n")
}

// emitArrayTypedef wraps a fixed array that crosses a signature boundary in
// a struct, since C cannot pass or return bare arrays by value.
func (e *Emitter) emitArrayTypedef(name string, id descriptor.TypeID) {
	l := e.mustLayout(id)
	if l.Size == 0 {
		fmt.Fprintf(&e.buf, "typedef struct %s {\n    uint8_t _empty; /* zero-sized on the foreign side */\n} %s;\n\n", name, name)
		return
	}
	fmt.Fprintf(&e.buf, "typedef struct %s {\n", name)
	tt := e.types.MustLookup(id)
	e.memberDecl(&e.buf, tt.Elem, "e", fmt.Sprintf("[%d]", tt.Count), "    ")
	fmt.Fprintf(&e.buf, "} %s;\n", name)
	fmt.Fprintf(&e.buf, "_Static_assert(sizeof(%s) == %d, \"%s: size\");\n", name, l.Size, name)
	fmt.Fprintf(&e.buf, "_Static_assert(_Alignof(%s) == %d, \"%s: align\");\n", name, l.Align, name)
	e.buf.WriteString("\n")
}
