package emit

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"bridgec/internal/callconv"
	"bridgec/internal/descriptor"
)

// thunkEmitter renders one bridged function: the foreign and native extern
// declarations, the tagged result type when the function throws, and the
// forward and reverse thunks.
type thunkEmitter struct {
	e    *Emitter
	decl descriptor.Decl
	conv callconv.Convention

	foreign string
	forward string
	reverse string
	impl    string
	result  string // tagged result typedef, throwing functions only
}

// prepareFunc checks the plan against its declaration, resolves every
// signature type, and builds the thunk emitter. All failures here are
// per-declaration: the rest of the run is unaffected.
func (e *Emitter) prepareFunc(p FuncPlan) (*thunkEmitter, []descriptor.TypeID, error) {
	if p.Decl.Kind != descriptor.DeclFunc || p.Decl.Sig == nil {
		return nil, nil, &Error{Decl: p.Decl.Name, Err: errors.New("plan does not describe a function declaration")}
	}
	if len(p.Conv.Params) != len(p.Decl.Sig.Params) {
		return nil, nil, &Error{Decl: p.Decl.Name, Err: errors.New("convention does not match the declared parameter list")}
	}
	if err := e.checkCName(p.Decl.Name); err != nil {
		return nil, nil, &Error{Decl: p.Decl.Name, Err: err}
	}
	var order []descriptor.TypeID
	for i := range p.Conv.Params {
		slot := &p.Conv.Params[i]
		if err := e.checkCName(slot.Name); err != nil {
			return nil, nil, &Error{Decl: p.Decl.Name, Err: err}
		}
		if err := e.ensureSignatureType(slot.Type, &order); err != nil {
			return nil, nil, &Error{Decl: p.Decl.Name, Err: err}
		}
	}
	if p.Conv.HasResult() {
		if err := e.ensureSignatureType(p.Conv.Return.Type, &order); err != nil {
			return nil, nil, &Error{Decl: p.Decl.Name, Err: err}
		}
	}
	te := &thunkEmitter{
		e:       e,
		decl:    p.Decl,
		conv:    p.Conv,
		foreign: p.Decl.Name,
		forward: e.forwardSymbol(p.Decl.Name),
		reverse: e.reverseSymbol(p.Decl.Name),
		impl:    e.implSymbol(p.Decl.Name),
	}
	if p.Conv.Throws() {
		te.result = e.resultTypeName(p.Decl.Name)
	}
	return te, order, nil
}

func (t *thunkEmitter) record() FuncRecord {
	return FuncRecord{
		Name:    t.decl.Name,
		Foreign: t.foreign,
		Forward: t.forward,
		Reverse: t.reverse,
		Impl:    t.impl,
		Result:  t.result,
		Throws:  t.conv.Throws(),
	}
}

func (t *thunkEmitter) emitSection() {
	fmt.Fprintf(&t.e.buf, "/* %s */\n", t.decl.Name)
	if t.conv.Throws() {
		t.emitResultTypedef()
	}
	fmt.Fprintf(&t.e.buf, "extern %s %s(%s);\n", t.foreignReturnCType(), t.foreign, t.foreignParamList())
	fmt.Fprintf(&t.e.buf, "extern %s %s(%s);\n\n", t.nativeReturnCType(), t.impl, t.nativeParamList())
	t.emitForward()
	t.emitReverse()
}

// emitResultTypedef renders the tagged failure result a throwing function
// produces on the native side.
func (t *thunkEmitter) emitResultTypedef() {
	fmt.Fprintf(&t.e.buf, "typedef struct %s {\n", t.result)
	if t.conv.HasResult() {
		t.e.memberDecl(&t.e.buf, t.conv.Return.Type, "value", "", "    ")
	}
	fmt.Fprintf(&t.e.buf, "    %s error;\n    bool failed;\n} %s;\n\n", errTypeName, t.result)
}

// Signature rendering ---------------------------------------------------------

func (t *thunkEmitter) paramCType(slot *callconv.ParamSlot) string {
	name, _ := t.e.valueCName(slot.Type)
	return name
}

func (t *thunkEmitter) returnCType() string {
	name, _ := t.e.valueCName(t.conv.Return.Type)
	return name
}

// nativeReturnCType is what the forward thunk and the native impl return:
// the tagged result for throwing functions, otherwise the value itself.
func (t *thunkEmitter) nativeReturnCType() string {
	if t.conv.Throws() {
		return t.result
	}
	if !t.conv.HasResult() {
		return "void"
	}
	return t.returnCType()
}

// foreignReturnCType is what the foreign entry point and the reverse thunk
// return: indirect results cross through the leading out pointer instead.
func (t *thunkEmitter) foreignReturnCType() string {
	if !t.conv.HasResult() || t.conv.Return.Mode == callconv.ModeIndirect {
		return "void"
	}
	return t.returnCType()
}

// param renders one slot; the pointer shape is identical on both sides of
// the bridge, only the zero-size filtering differs.
func (t *thunkEmitter) param(slot *callconv.ParamSlot) string {
	ctype := t.paramCType(slot)
	switch slot.Mode {
	case callconv.ModeInout:
		return fmt.Sprintf("%s *%s", ctype, slot.Name)
	case callconv.ModeIndirect:
		if slot.Ownership == callconv.OwnOwned {
			return fmt.Sprintf("%s *%s", ctype, slot.Name)
		}
		return fmt.Sprintf("const %s *%s", ctype, slot.Name)
	default:
		return fmt.Sprintf("%s %s", ctype, slot.Name)
	}
}

func (t *thunkEmitter) nativeParamList() string {
	parts := make([]string, 0, len(t.conv.Params))
	for i := range t.conv.Params {
		parts = append(parts, t.param(&t.conv.Params[i]))
	}
	if len(parts) == 0 {
		return "void"
	}
	return strings.Join(parts, ", ")
}

// foreignParamList follows the raw foreign convention: the out pointer for
// an indirect result comes first, zero-sized values are not passed at all,
// and the error channel rides in a trailing out parameter.
func (t *thunkEmitter) foreignParamList() string {
	parts := make([]string, 0, len(t.conv.Params)+2)
	if t.conv.HasResult() && t.conv.Return.Mode == callconv.ModeIndirect {
		parts = append(parts, fmt.Sprintf("%s *%s", t.returnCType(), t.retName()))
	}
	for i := range t.conv.Params {
		slot := &t.conv.Params[i]
		if slot.Layout.Size == 0 {
			continue
		}
		parts = append(parts, t.param(slot))
	}
	if t.conv.Throws() {
		parts = append(parts, fmt.Sprintf("%s *%s", errTypeName, t.errName()))
	}
	if len(parts) == 0 {
		return "void"
	}
	return strings.Join(parts, ", ")
}

// Locals carry the profile prefix; declaration identifiers inside that
// namespace were rejected during prepare, so nothing can shadow them.

func (t *thunkEmitter) retName() string  { return t.e.profile.SymbolPrefix + "ret" }
func (t *thunkEmitter) errName() string  { return t.e.profile.SymbolPrefix + "err" }
func (t *thunkEmitter) outName() string  { return t.e.profile.SymbolPrefix + "out" }
func (t *thunkEmitter) rName() string    { return t.e.profile.SymbolPrefix + "r" }
func (t *thunkEmitter) zeroName() string { return t.e.profile.SymbolPrefix + "zero" }

// Ownership interposition -----------------------------------------------------

// refOp renders the retain or release interposed on an owned reference
// slot. The forward thunk retains at marshal time so the consuming callee
// receives its own +1; the reverse thunk releases after the call because
// the native impl only borrows what the foreign caller transferred.
// Owned aggregates transfer whole: their component lifecycles belong to
// the receiving side, so no operation is interposed here.
func (t *thunkEmitter) refOp(slot *callconv.ParamSlot, retain bool) string {
	tt, ok := t.e.types.Lookup(slot.Type)
	if !ok {
		return ""
	}
	rt := t.e.profile.Runtime
	switch tt.Kind {
	case descriptor.KindClassRef:
		if tt.Strength != descriptor.RefStrong {
			return ""
		}
		if retain {
			return fmt.Sprintf("    %s(%s); /* +1 to callee */\n", rt.Retain, slot.Name)
		}
		return fmt.Sprintf("    %s(%s); /* drop transferred +1 */\n", rt.Release, slot.Name)
	case descriptor.KindDynContainer:
		if retain {
			return fmt.Sprintf("    %s(%s); /* +1 to callee */\n", rt.Retain, slot.Name)
		}
		return fmt.Sprintf("    %s(%s); /* drop transferred +1 */\n", rt.Release, slot.Name)
	case descriptor.KindExistential:
		if retain {
			return fmt.Sprintf("    %s(%s->object); /* +1 to callee */\n", rt.UnknownRetain, slot.Name)
		}
		return fmt.Sprintf("    %s(%s->object); /* drop transferred +1 */\n", rt.UnknownRelease, slot.Name)
	default:
		return ""
	}
}

func (t *thunkEmitter) writeRetains(buf *bytes.Buffer) {
	for i := range t.conv.Params {
		slot := &t.conv.Params[i]
		if slot.Ownership != callconv.OwnOwned {
			continue
		}
		buf.WriteString(t.refOp(slot, true))
	}
}

func (t *thunkEmitter) writeReleases(buf *bytes.Buffer) {
	for i := range t.conv.Params {
		slot := &t.conv.Params[i]
		if slot.Ownership != callconv.OwnOwned {
			continue
		}
		buf.WriteString(t.refOp(slot, false))
	}
}

func (t *thunkEmitter) hasReleases() bool {
	for i := range t.conv.Params {
		slot := &t.conv.Params[i]
		if slot.Ownership == callconv.OwnOwned && t.refOp(slot, false) != "" {
			return true
		}
	}
	return false
}

// claimRetain takes ownership of an autoreleased result on arrival.
func (t *thunkEmitter) claimRetain(expr string) string {
	tt, ok := t.e.types.Lookup(t.conv.Return.Type)
	if !ok {
		return ""
	}
	rt := t.e.profile.Runtime
	switch tt.Kind {
	case descriptor.KindClassRef, descriptor.KindDynContainer:
		return fmt.Sprintf("    %s(%s); /* claim autoreleased */\n", rt.Retain, expr)
	case descriptor.KindExistential:
		return fmt.Sprintf("    %s(%s.object); /* claim autoreleased */\n", rt.UnknownRetain, expr)
	default:
		return ""
	}
}

// Thunk bodies ----------------------------------------------------------------

// forwardArgs lists the raw call arguments in foreign order: out pointer,
// declared parameters without zero-sized values, error channel.
func (t *thunkEmitter) forwardArgs(sret, errArg string) string {
	args := make([]string, 0, len(t.conv.Params)+2)
	if sret != "" {
		args = append(args, sret)
	}
	for i := range t.conv.Params {
		slot := &t.conv.Params[i]
		if slot.Layout.Size == 0 {
			continue
		}
		args = append(args, slot.Name)
	}
	if errArg != "" {
		args = append(args, errArg)
	}
	return strings.Join(args, ", ")
}

// implArgs lists the native impl call arguments. Zero-sized parameters were
// never passed by the foreign caller, so the reverse thunk rebuilds them
// from local storage.
func (t *thunkEmitter) implArgs() string {
	args := make([]string, 0, len(t.conv.Params))
	for i := range t.conv.Params {
		slot := &t.conv.Params[i]
		if slot.Layout.Size == 0 && slot.Mode != callconv.ModeDirect {
			args = append(args, "&"+slot.Name)
			continue
		}
		args = append(args, slot.Name)
	}
	return strings.Join(args, ", ")
}

// emitForward renders the thunk native code calls: marshal into the foreign
// convention, invoke the foreign entry, translate any error into the tagged
// result.
func (t *thunkEmitter) emitForward() {
	buf := &t.e.buf
	fmt.Fprintf(buf, "%s %s(%s) {\n", t.nativeReturnCType(), t.forward, t.nativeParamList())
	ret := t.conv.Return
	indirect := t.conv.HasResult() && ret.Mode == callconv.ModeIndirect

	if t.conv.Throws() {
		fmt.Fprintf(buf, "    %s %s;\n    memset(&%s, 0, sizeof %s);\n", t.result, t.outName(), t.outName(), t.outName())
		fmt.Fprintf(buf, "    %s %s = (%s)0;\n", errTypeName, t.errName(), errTypeName)
		t.writeRetains(buf)
		errArg := "&" + t.errName()
		switch {
		case indirect:
			fmt.Fprintf(buf, "    %s(%s);\n", t.foreign, t.forwardArgs("&"+t.outName()+".value", errArg))
		case t.conv.HasResult():
			fmt.Fprintf(buf, "    %s.value = %s(%s);\n", t.outName(), t.foreign, t.forwardArgs("", errArg))
		default:
			fmt.Fprintf(buf, "    %s(%s);\n", t.foreign, t.forwardArgs("", errArg))
		}
		fmt.Fprintf(buf, "    if (%s != (%s)0) {\n", t.errName(), errTypeName)
		fmt.Fprintf(buf, "        %s.failed = true;\n        %s.error = %s;\n        return %s;\n    }\n",
			t.outName(), t.outName(), t.errName(), t.outName())
		if ret.Ownership == callconv.OwnAutoreleased {
			buf.WriteString(t.claimRetain(t.outName() + ".value"))
		}
		fmt.Fprintf(buf, "    return %s;\n", t.outName())
		buf.WriteString("}\n\n")
		return
	}

	t.writeRetains(buf)
	switch {
	case indirect:
		fmt.Fprintf(buf, "    %s %s;\n", t.returnCType(), t.retName())
		fmt.Fprintf(buf, "    %s(%s);\n", t.foreign, t.forwardArgs("&"+t.retName(), ""))
		if ret.Ownership == callconv.OwnAutoreleased {
			buf.WriteString(t.claimRetain(t.retName()))
		}
		fmt.Fprintf(buf, "    return %s;\n", t.retName())
	case !t.conv.HasResult():
		fmt.Fprintf(buf, "    %s(%s);\n", t.foreign, t.forwardArgs("", ""))
	case ret.Ownership == callconv.OwnAutoreleased:
		fmt.Fprintf(buf, "    %s %s = %s(%s);\n", t.returnCType(), t.rName(), t.foreign, t.forwardArgs("", ""))
		buf.WriteString(t.claimRetain(t.rName()))
		fmt.Fprintf(buf, "    return %s;\n", t.rName())
	default:
		fmt.Fprintf(buf, "    return %s(%s);\n", t.foreign, t.forwardArgs("", ""))
	}
	buf.WriteString("}\n\n")
}

// emitReverse renders the thunk the foreign runtime calls: invoke the
// native impl, settle consumed references, translate the tagged result back
// into the foreign error channel.
func (t *thunkEmitter) emitReverse() {
	buf := &t.e.buf
	fmt.Fprintf(buf, "%s %s(%s) {\n", t.foreignReturnCType(), t.reverse, t.foreignParamList())

	for i := range t.conv.Params {
		slot := &t.conv.Params[i]
		if slot.Layout.Size != 0 {
			continue
		}
		ctype := t.paramCType(slot)
		fmt.Fprintf(buf, "    %s %s;\n    memset(&%s, 0, sizeof %s); /* zero-sized: never passed */\n",
			ctype, slot.Name, slot.Name, slot.Name)
	}

	call := fmt.Sprintf("%s(%s)", t.impl, t.implArgs())
	ret := t.conv.Return
	indirect := t.conv.HasResult() && ret.Mode == callconv.ModeIndirect

	if t.conv.Throws() {
		fmt.Fprintf(buf, "    %s %s = %s;\n", t.result, t.rName(), call)
		t.writeReleases(buf)
		fmt.Fprintf(buf, "    if (%s.failed) {\n        *%s = %s.error;\n", t.rName(), t.errName(), t.rName())
		if !t.conv.HasResult() || indirect {
			buf.WriteString("        return;\n")
		} else {
			fmt.Fprintf(buf, "        %s %s;\n        memset(&%s, 0, sizeof %s);\n        return %s;\n",
				t.returnCType(), t.zeroName(), t.zeroName(), t.zeroName(), t.zeroName())
		}
		buf.WriteString("    }\n")
		fmt.Fprintf(buf, "    *%s = (%s)0;\n", t.errName(), errTypeName)
		if ret.Ownership == callconv.OwnAutoreleased {
			buf.WriteString("    /* autoreleased result crosses at +1 */\n")
		}
		switch {
		case indirect:
			fmt.Fprintf(buf, "    *%s = %s.value;\n", t.retName(), t.rName())
		case t.conv.HasResult():
			fmt.Fprintf(buf, "    return %s.value;\n", t.rName())
		}
		buf.WriteString("}\n\n")
		return
	}

	switch {
	case indirect:
		fmt.Fprintf(buf, "    *%s = %s;\n", t.retName(), call)
		t.writeReleases(buf)
		if ret.Ownership == callconv.OwnAutoreleased {
			buf.WriteString("    /* autoreleased result crosses at +1 */\n")
		}
	case !t.conv.HasResult():
		fmt.Fprintf(buf, "    %s;\n", call)
		t.writeReleases(buf)
	case t.hasReleases() || ret.Ownership == callconv.OwnAutoreleased:
		fmt.Fprintf(buf, "    %s %s = %s;\n", t.returnCType(), t.rName(), call)
		t.writeReleases(buf)
		if ret.Ownership == callconv.OwnAutoreleased {
			buf.WriteString("    /* autoreleased result crosses at +1 */\n")
		}
		fmt.Fprintf(buf, "    return %s;\n", t.rName())
	default:
		fmt.Fprintf(buf, "    return %s;\n", call)
	}
	buf.WriteString("}\n\n")
}
