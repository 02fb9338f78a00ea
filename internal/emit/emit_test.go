package emit

import (
	"bytes"
	"strings"
	"testing"

	"bridgec/internal/abi"
	"bridgec/internal/callconv"
	"bridgec/internal/descriptor"
	"bridgec/internal/layout"
)

func testProfile() *abi.Profile {
	return abi.X8664LinuxGNU()
}

func planType(t *testing.T, reg *descriptor.Registry, name string, id descriptor.TypeID) TypePlan {
	t.Helper()
	res := layout.NewResolver(testProfile(), reg)
	l, err := res.Of(id)
	if err != nil {
		t.Fatalf("layout for %s: %v", name, err)
	}
	return TypePlan{Decl: descriptor.Decl{Name: name, Kind: descriptor.DeclType, Type: id}, Info: l}
}

func planFunc(t *testing.T, reg *descriptor.Registry, name string, sig *descriptor.Signature) FuncPlan {
	t.Helper()
	res := layout.NewResolver(testProfile(), reg)
	conv, err := callconv.Map(sig, res)
	if err != nil {
		t.Fatalf("map %s: %v", name, err)
	}
	return FuncPlan{Decl: descriptor.Decl{Name: name, Kind: descriptor.DeclFunc, Sig: sig}, Conv: conv}
}

// functionBody extracts the definition of the named generated function.
func functionBody(t *testing.T, src, symbol string) string {
	t.Helper()
	idx := strings.Index(src, symbol+"(")
	if idx < 0 {
		t.Fatalf("symbol %s not found in output:\n%s", symbol, src)
	}
	rest := src[idx:]
	end := strings.Index(rest, "\n}")
	if end < 0 {
		t.Fatalf("unterminated body for %s", symbol)
	}
	return rest[:end]
}

func pointType(t *testing.T, reg *descriptor.Registry) descriptor.TypeID {
	t.Helper()
	b := reg.Builtins()
	id := reg.RegisterStruct("Point")
	reg.SetStructFields(id, []descriptor.StructField{
		{Name: "x", Type: b.Float64},
		{Name: "y", Type: b.Float64},
	})
	return id
}

func TestEmitBridge_StructMirror(t *testing.T) {
	reg := descriptor.NewRegistry()
	b := reg.Builtins()
	point := pointType(t, reg)
	sig := &descriptor.Signature{
		Params: []descriptor.Param{
			{Name: "p", Type: point},
			{Name: "k", Type: b.Float64},
		},
		Result: point,
	}

	result, err := EmitBridge(testProfile(), reg, []TypePlan{planType(t, reg, "Point", point)}, []FuncPlan{planFunc(t, reg, "scale", sig)})
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("expected no failures, got %+v", result.Failures)
	}
	src := string(result.Source)

	for _, want := range []string{
		"#include \"bridge_prelude.h\"",
		"typedef struct Point {\n    double x;\n    double y;\n} Point;",
		"_Static_assert(sizeof(Point) == 16, \"Point: size\");",
		"_Static_assert(_Alignof(Point) == 8, \"Point: align\");",
		"_Static_assert(offsetof(Point, y) == 8, \"Point: offset of y\");",
		"extern Point scale(Point p, double k);",
		"extern Point bridge_impl_scale(Point p, double k);",
		"Point bridge_fwd_scale(Point p, double k) {\n    return scale(p, k);\n}",
		"Point bridge_rev_scale(Point p, double k) {\n    return bridge_impl_scale(p, k);\n}",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("missing %q in output:\n%s", want, src)
		}
	}

	if len(result.Manifest.Types) != 1 || result.Manifest.Types[0].Size != 16 {
		t.Errorf("unexpected type manifest: %+v", result.Manifest.Types)
	}
	if len(result.Manifest.Funcs) != 1 {
		t.Fatalf("expected one function record, got %d", len(result.Manifest.Funcs))
	}
	fn := result.Manifest.Funcs[0]
	if fn.Forward != "bridge_fwd_scale" || fn.Reverse != "bridge_rev_scale" || fn.Impl != "bridge_impl_scale" || fn.Foreign != "scale" {
		t.Errorf("unexpected symbols: %+v", fn)
	}
}

func TestEmitBridge_StructPadding(t *testing.T) {
	reg := descriptor.NewRegistry()
	b := reg.Builtins()
	id := reg.RegisterStruct("Mixed")
	reg.SetStructFields(id, []descriptor.StructField{
		{Name: "flag", Type: b.Bool},
		{Name: "count", Type: b.Int64},
		{Name: "code", Type: b.Int16},
	})

	result, err := EmitBridge(testProfile(), reg, []TypePlan{planType(t, reg, "Mixed", id)}, nil)
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	src := string(result.Source)

	want := "typedef struct Mixed {\n" +
		"    bool flag;\n" +
		"    uint8_t _pad0[7];\n" +
		"    int64_t count;\n" +
		"    int16_t code;\n" +
		"} Mixed;"
	if !strings.Contains(src, want) {
		t.Errorf("missing padded mirror in output:\n%s", src)
	}
	if !strings.Contains(src, "_Static_assert(sizeof(Mixed) == 24, \"Mixed: size\");") {
		t.Errorf("missing size assert in output:\n%s", src)
	}
}

func TestEmitBridge_EnumMirrors(t *testing.T) {
	reg := descriptor.NewRegistry()
	b := reg.Builtins()

	tagged := reg.RegisterEnum("Reply")
	reg.SetEnumCases(tagged, []descriptor.EnumCase{
		{Name: "none"},
		{Name: "value", Payload: b.Float64},
		{Name: "code", Payload: b.Int32},
	})

	obj := reg.ClassRef("Blob", descriptor.RefStrong)
	packed := reg.RegisterEnum("MaybeBlob")
	reg.SetEnumCases(packed, []descriptor.EnumCase{
		{Name: "none"},
		{Name: "some", Payload: obj},
	})

	result, err := EmitBridge(testProfile(), reg, []TypePlan{
		planType(t, reg, "Reply", tagged),
		planType(t, reg, "MaybeBlob", packed),
	}, nil)
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	src := string(result.Source)

	if !strings.Contains(src, "/* enum Reply: 3 cases, tag uint8 at offset 8 */") {
		t.Errorf("missing tagged enum comment in output:\n%s", src)
	}
	if !strings.Contains(src, "typedef struct Reply {\n    _Alignas(8) uint8_t storage[16];\n} Reply;") {
		t.Errorf("missing tagged enum blob in output:\n%s", src)
	}
	if !strings.Contains(src, "typedef struct MaybeBlob {\n    bridge_ref payload;\n} MaybeBlob;") {
		t.Errorf("missing packed enum mirror in output:\n%s", src)
	}

	var reply, maybe *TypeRecord
	for i := range result.Manifest.Types {
		switch result.Manifest.Types[i].Name {
		case "Reply":
			reply = &result.Manifest.Types[i]
		case "MaybeBlob":
			maybe = &result.Manifest.Types[i]
		}
	}
	if reply == nil || reply.Tag == nil {
		t.Fatalf("missing Reply tag record: %+v", result.Manifest.Types)
	}
	if reply.Tag.Offset != 8 || reply.Tag.Width != 1 || reply.Tag.Packed {
		t.Errorf("unexpected Reply tag: %+v", reply.Tag)
	}
	if want := []string{"none", "value", "code"}; strings.Join(reply.Tag.Cases, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected Reply cases: %v", reply.Tag.Cases)
	}
	if maybe == nil || maybe.Tag == nil || !maybe.Tag.Packed || maybe.Tag.Width != 0 {
		t.Errorf("unexpected MaybeBlob tag: %+v", maybe)
	}
}

func TestEmitBridge_OwnershipBalance(t *testing.T) {
	reg := descriptor.NewRegistry()
	obj := reg.ClassRef("Session", descriptor.RefStrong)
	sig := &descriptor.Signature{
		Params: []descriptor.Param{
			{Name: "owned", Type: obj, Consumed: true},
			{Name: "lent", Type: obj},
		},
	}

	result, err := EmitBridge(testProfile(), reg, nil, []FuncPlan{planFunc(t, reg, "consume", sig)})
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	src := string(result.Source)

	fwd := functionBody(t, src, "bridge_fwd_consume")
	rev := functionBody(t, src, "bridge_rev_consume")

	if got := strings.Count(fwd, "swift_retain(owned);"); got != 1 {
		t.Errorf("forward thunk must retain the consumed value once, got %d:\n%s", got, fwd)
	}
	if strings.Contains(fwd, "swift_release(") {
		t.Errorf("forward thunk must not release:\n%s", fwd)
	}
	if got := strings.Count(rev, "swift_release(owned);"); got != 1 {
		t.Errorf("reverse thunk must release the consumed value once, got %d:\n%s", got, rev)
	}
	if strings.Contains(rev, "swift_retain(") {
		t.Errorf("reverse thunk must not retain:\n%s", rev)
	}
	for _, body := range []string{fwd, rev} {
		if strings.Contains(body, "(lent)") {
			t.Errorf("borrowed value must cross without reference operations:\n%s", body)
		}
	}
}

func TestEmitBridge_ErrorChannelSymmetry(t *testing.T) {
	reg := descriptor.NewRegistry()
	b := reg.Builtins()
	obj := reg.ClassRef("Input", descriptor.RefStrong)
	sig := &descriptor.Signature{
		Params: []descriptor.Param{{Name: "input", Type: obj, Consumed: true}},
		Result: b.Int64,
		Throws: true,
	}

	result, err := EmitBridge(testProfile(), reg, nil, []FuncPlan{planFunc(t, reg, "parse", sig)})
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	src := string(result.Source)

	if !strings.Contains(src, "typedef struct bridge_result_parse {\n    int64_t value;\n    bridge_error error;\n    bool failed;\n} bridge_result_parse;") {
		t.Errorf("missing tagged result type in output:\n%s", src)
	}
	if !strings.Contains(src, "extern int64_t parse(bridge_ref input, bridge_error *bridge_err);") {
		t.Errorf("missing foreign extern with error channel:\n%s", src)
	}

	fwd := functionBody(t, src, "bridge_fwd_parse")
	for _, want := range []string{
		"bridge_out.value = parse(input, &bridge_err);",
		"if (bridge_err != (bridge_error)0) {",
		"bridge_out.failed = true;",
		"bridge_out.error = bridge_err;",
	} {
		if !strings.Contains(fwd, want) {
			t.Errorf("forward thunk missing %q:\n%s", want, fwd)
		}
	}

	rev := functionBody(t, src, "bridge_rev_parse")
	for _, want := range []string{
		"bridge_result_parse bridge_r = bridge_impl_parse(input);",
		"if (bridge_r.failed) {",
		"*bridge_err = bridge_r.error;",
		"*bridge_err = (bridge_error)0;",
		"return bridge_r.value;",
	} {
		if !strings.Contains(rev, want) {
			t.Errorf("reverse thunk missing %q:\n%s", want, rev)
		}
	}
}

func TestEmitBridge_IndirectResult(t *testing.T) {
	reg := descriptor.NewRegistry()
	b := reg.Builtins()
	id := reg.RegisterStruct("Quint")
	fields := make([]descriptor.StructField, 5)
	names := []string{"a", "b", "c", "d", "e"}
	for i := range fields {
		fields[i] = descriptor.StructField{Name: names[i], Type: b.Int64}
	}
	reg.SetStructFields(id, fields)
	sig := &descriptor.Signature{Result: id}

	result, err := EmitBridge(testProfile(), reg,
		[]TypePlan{planType(t, reg, "Quint", id)},
		[]FuncPlan{planFunc(t, reg, "makeQuint", sig)})
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	src := string(result.Source)

	if !strings.Contains(src, "extern void makeQuint(Quint *bridge_ret);") {
		t.Errorf("foreign extern must take a leading out pointer:\n%s", src)
	}
	fwd := functionBody(t, src, "bridge_fwd_makeQuint")
	for _, want := range []string{"Quint bridge_ret;", "makeQuint(&bridge_ret);", "return bridge_ret;"} {
		if !strings.Contains(fwd, want) {
			t.Errorf("forward thunk missing %q:\n%s", want, fwd)
		}
	}
	rev := functionBody(t, src, "bridge_rev_makeQuint")
	if !strings.Contains(rev, "*bridge_ret = bridge_impl_makeQuint();") {
		t.Errorf("reverse thunk must fill the out pointer:\n%s", rev)
	}
}

func TestEmitBridge_ExistentialParam(t *testing.T) {
	reg := descriptor.NewRegistry()
	box := reg.Existential([]string{"Drawable"})
	sig := &descriptor.Signature{
		Params: []descriptor.Param{{Name: "shape", Type: box, Consumed: true}},
	}

	result, err := EmitBridge(testProfile(), reg, nil, []FuncPlan{planFunc(t, reg, "draw", sig)})
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	src := string(result.Source)

	if !strings.Contains(src, "extern void draw(bridge_existential *shape);") {
		t.Errorf("owned existential must pass as a mutable box pointer:\n%s", src)
	}
	fwd := functionBody(t, src, "bridge_fwd_draw")
	if !strings.Contains(fwd, "swift_unknownObjectRetain(shape->object);") {
		t.Errorf("forward thunk must retain the boxed object:\n%s", fwd)
	}
	rev := functionBody(t, src, "bridge_rev_draw")
	if !strings.Contains(rev, "swift_unknownObjectRelease(shape->object);") {
		t.Errorf("reverse thunk must release the boxed object:\n%s", rev)
	}
}

func TestEmitBridge_AutoreleasedClaim(t *testing.T) {
	reg := descriptor.NewRegistry()
	obj := reg.ClassRef("Name", descriptor.RefStrong)
	sig := &descriptor.Signature{Result: obj, Autoreleased: true}

	result, err := EmitBridge(testProfile(), reg, nil, []FuncPlan{planFunc(t, reg, "currentName", sig)})
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	src := string(result.Source)

	fwd := functionBody(t, src, "bridge_fwd_currentName")
	if !strings.Contains(fwd, "swift_retain(bridge_r); /* claim autoreleased */") {
		t.Errorf("forward thunk must claim the autoreleased result:\n%s", fwd)
	}
	rev := functionBody(t, src, "bridge_rev_currentName")
	if strings.Contains(rev, "swift_retain(") {
		t.Errorf("reverse thunk must not retain an autoreleased result:\n%s", rev)
	}
	if !strings.Contains(rev, "/* autoreleased result crosses at +1 */") {
		t.Errorf("reverse thunk should note the collapsed deferral:\n%s", rev)
	}
}

func TestEmitBridge_SignatureTuple(t *testing.T) {
	reg := descriptor.NewRegistry()
	b := reg.Builtins()
	pair := reg.Tuple([]descriptor.TypeID{b.Int64, b.Float64})
	sig := &descriptor.Signature{Result: pair}

	result, err := EmitBridge(testProfile(), reg, nil, []FuncPlan{planFunc(t, reg, "makePair", sig)})
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	src := string(result.Source)

	if !strings.Contains(src, "typedef struct bridge_tuple0 {\n    int64_t f0;\n    double f1;\n} bridge_tuple0;") {
		t.Errorf("missing synthesized tuple typedef:\n%s", src)
	}
	if !strings.Contains(src, "extern bridge_tuple0 makePair(void);") {
		t.Errorf("tuple result must use the synthesized name:\n%s", src)
	}
}

func TestEmitBridge_PartialFailure(t *testing.T) {
	reg := descriptor.NewRegistry()
	b := reg.Builtins()
	point := pointType(t, reg)
	huge := reg.Intern(descriptor.MakeFixedArray(b.Int64, 1<<20))

	plans := []TypePlan{
		planType(t, reg, "Point", point),
		{Decl: descriptor.Decl{Name: "Huge", Kind: descriptor.DeclType, Type: huge}},
	}
	result, err := EmitBridge(testProfile(), reg, plans, nil)
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}

	if len(result.Failures) != 1 {
		t.Fatalf("expected exactly one failure, got %+v", result.Failures)
	}
	if result.Failures[0].Decl != "Huge" {
		t.Errorf("expected Huge to fail, got %s", result.Failures[0].Decl)
	}
	if !strings.Contains(string(result.Source), "typedef struct Point") {
		t.Errorf("surviving declaration must still be emitted")
	}
	if len(result.Manifest.Types) != 1 || result.Manifest.Types[0].Name != "Point" {
		t.Errorf("manifest must list only surviving declarations: %+v", result.Manifest.Types)
	}
}

func TestEmitBridge_ReservedNameRejected(t *testing.T) {
	reg := descriptor.NewRegistry()
	b := reg.Builtins()
	sig := &descriptor.Signature{Params: []descriptor.Param{{Name: "register", Type: b.Int32}}}

	result, err := EmitBridge(testProfile(), reg, nil, []FuncPlan{planFunc(t, reg, "step", sig)})
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].Decl != "step" {
		t.Fatalf("expected step to fail over a reserved name, got %+v", result.Failures)
	}
	if strings.Contains(string(result.Source), "bridge_fwd_step") {
		t.Errorf("failed declaration must not be emitted")
	}
}

func TestEmitBridge_Deterministic(t *testing.T) {
	build := func() Result {
		reg := descriptor.NewRegistry()
		b := reg.Builtins()
		point := pointType(t, reg)
		obj := reg.ClassRef("Session", descriptor.RefStrong)
		sigScale := &descriptor.Signature{
			Params: []descriptor.Param{{Name: "p", Type: point}, {Name: "k", Type: b.Float64}},
			Result: point,
		}
		sigClose := &descriptor.Signature{
			Params: []descriptor.Param{{Name: "s", Type: obj, Consumed: true}},
			Throws: true,
		}
		result, err := EmitBridge(testProfile(), reg,
			[]TypePlan{planType(t, reg, "Point", point)},
			[]FuncPlan{
				planFunc(t, reg, "scale", sigScale),
				planFunc(t, reg, "closeSession", sigClose),
			})
		if err != nil {
			t.Fatalf("EmitBridge failed: %v", err)
		}
		return result
	}

	first := build()
	second := build()
	if !bytes.Equal(first.Source, second.Source) {
		t.Errorf("source is not byte-identical across runs")
	}

	var bufA, bufB bytes.Buffer
	if err := first.Manifest.EncodeJSON(&bufA); err != nil {
		t.Fatalf("encode manifest: %v", err)
	}
	if err := second.Manifest.EncodeJSON(&bufB); err != nil {
		t.Fatalf("encode manifest: %v", err)
	}
	if !bytes.Equal(bufA.Bytes(), bufB.Bytes()) {
		t.Errorf("manifest is not byte-identical across runs")
	}
}

func TestEmitBridge_SectionOrderSorted(t *testing.T) {
	reg := descriptor.NewRegistry()
	b := reg.Builtins()
	sig := func() *descriptor.Signature {
		return &descriptor.Signature{Params: []descriptor.Param{{Name: "x", Type: b.Int32}}}
	}

	result, err := EmitBridge(testProfile(), reg, nil, []FuncPlan{
		planFunc(t, reg, "zeta", sig()),
		planFunc(t, reg, "alpha", sig()),
		planFunc(t, reg, "mid", sig()),
	})
	if err != nil {
		t.Fatalf("EmitBridge failed: %v", err)
	}
	src := string(result.Source)

	alpha := strings.Index(src, "/* alpha */")
	mid := strings.Index(src, "/* mid */")
	zeta := strings.Index(src, "/* zeta */")
	if alpha < 0 || mid < 0 || zeta < 0 || !(alpha < mid && mid < zeta) {
		t.Errorf("sections must be sorted by declaration identity: alpha=%d mid=%d zeta=%d", alpha, mid, zeta)
	}
	names := make([]string, len(result.Manifest.Funcs))
	for i, fn := range result.Manifest.Funcs {
		names[i] = fn.Name
	}
	if strings.Join(names, ",") != "alpha,mid,zeta" {
		t.Errorf("manifest order must be sorted, got %v", names)
	}
}
