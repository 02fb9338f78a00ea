package layout_test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"bridgec/internal/abi"
	"bridgec/internal/descriptor"
	"bridgec/internal/layout"
	"bridgec/internal/testkit"
)

func newResolver(t *testing.T) (*layout.Resolver, *descriptor.Registry) {
	t.Helper()
	reg := descriptor.NewRegistry()
	return layout.NewResolver(abi.X8664LinuxGNU(), reg), reg
}

func TestResolver_PointStructNaturalAlignment(t *testing.T) {
	r, reg := newResolver(t)
	b := reg.Builtins()
	point := reg.RegisterStruct("Point")
	reg.SetStructFields(point, []descriptor.StructField{
		{Name: "x", Type: b.Float64},
		{Name: "y", Type: b.Float64},
	})
	l, err := r.Of(point)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if l.Size != 16 || l.Align != 8 {
		t.Fatalf("expected size=16 align=8, got size=%d align=%d", l.Size, l.Align)
	}
	if len(l.Fields) != 2 || l.Fields[0].Offset != 0 || l.Fields[1].Offset != 8 {
		t.Fatalf("expected offsets {0, 8}, got %+v", l.Fields)
	}
	if l.AddressOnly || !l.Trivial {
		t.Fatalf("Point must be loadable and trivial, got %+v", l)
	}
}

func TestResolver_StructPaddingBetweenFields(t *testing.T) {
	r, reg := newResolver(t)
	b := reg.Builtins()
	mixed := reg.RegisterStruct("Mixed")
	reg.SetStructFields(mixed, []descriptor.StructField{
		{Name: "flag", Type: b.Bool},
		{Name: "value", Type: b.Int64},
		{Name: "tail", Type: b.Int16},
	})
	l, err := r.Of(mixed)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	// flag at 0, value padded to 8, tail at 16, total rounded to align 8.
	if l.Fields[0].Offset != 0 || l.Fields[1].Offset != 8 || l.Fields[2].Offset != 16 {
		t.Fatalf("unexpected offsets: %+v", l.Fields)
	}
	if l.Size != 24 || l.Align != 8 {
		t.Fatalf("expected size=24 align=8, got size=%d align=%d", l.Size, l.Align)
	}
}

func TestResolver_ThreeCaseEnumIsOneByte(t *testing.T) {
	r, reg := newResolver(t)
	color := reg.RegisterEnum("Color")
	reg.SetEnumCases(color, []descriptor.EnumCase{
		{Name: "red"}, {Name: "green"}, {Name: "blue"},
	})
	l, err := r.Of(color)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if l.Size != 1 || l.Align != 1 {
		t.Fatalf("expected size=1 align=1, got size=%d align=%d", l.Size, l.Align)
	}
	if l.Enum == nil || l.Enum.TagWidth != 1 || l.Enum.TagOffset != 0 || l.Enum.Packed {
		t.Fatalf("expected 1-byte trailing tag, got %+v", l.Enum)
	}
}

func TestResolver_DiscriminantWidthCoversCases(t *testing.T) {
	r, reg := newResolver(t)
	cases := make([]descriptor.EnumCase, 300)
	for i := range cases {
		cases[i] = descriptor.EnumCase{Name: fmt.Sprintf("case%03d", i)}
	}
	wide := reg.RegisterEnum("Wide")
	reg.SetEnumCases(wide, cases)
	l, err := r.Of(wide)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if l.Enum == nil || l.Enum.TagWidth != 2 {
		t.Fatalf("300 cases need a 2-byte tag, got %+v", l.Enum)
	}
	if l.Size != 2 {
		t.Fatalf("expected size=2, got %d", l.Size)
	}
}

func TestResolver_PayloadEnumTrailingTag(t *testing.T) {
	r, reg := newResolver(t)
	b := reg.Builtins()
	prof := abi.X8664LinuxGNU()
	prof.Packing = abi.PackingTagged
	r = layout.NewResolver(prof, reg)

	result := reg.RegisterEnum("Result")
	reg.SetEnumCases(result, []descriptor.EnumCase{
		{Name: "ok", Payload: b.Float64},
		{Name: "err", Payload: b.Int32},
	})
	l, err := r.Of(result)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	// Payload region is the max payload (8 bytes), tag right after it.
	if l.Enum == nil || l.Enum.PayloadSize != 8 || l.Enum.TagOffset != 8 || l.Enum.TagWidth != 1 {
		t.Fatalf("unexpected enum layout: %+v", l.Enum)
	}
	if l.Size != 16 || l.Align != 8 {
		t.Fatalf("expected size=16 align=8, got size=%d align=%d", l.Size, l.Align)
	}
}

func TestResolver_SpareBitPacksPointerPayload(t *testing.T) {
	r, reg := newResolver(t)
	opt := reg.RegisterEnum("OptionalNode")
	reg.SetEnumCases(opt, []descriptor.EnumCase{
		{Name: "some", Payload: reg.ClassRef("Node", descriptor.RefStrong)},
		{Name: "none"},
	})
	l, err := r.Of(opt)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if l.Size != 8 || l.Align != 8 {
		t.Fatalf("packed optional must be pointer-sized, got size=%d align=%d", l.Size, l.Align)
	}
	if l.Enum == nil || !l.Enum.Packed || l.Enum.TagWidth != 0 {
		t.Fatalf("expected packed layout, got %+v", l.Enum)
	}
}

func TestResolver_SpareBitFallsBackForScalarPayload(t *testing.T) {
	r, reg := newResolver(t)
	b := reg.Builtins()
	opt := reg.RegisterEnum("OptionalInt")
	reg.SetEnumCases(opt, []descriptor.EnumCase{
		{Name: "some", Payload: b.Int64},
		{Name: "none"},
	})
	l, err := r.Of(opt)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	// An integer payload has no spare bit patterns: tag stays out of band.
	if l.Enum == nil || l.Enum.Packed {
		t.Fatalf("scalar payload must not pack, got %+v", l.Enum)
	}
	if l.Size != 16 {
		t.Fatalf("expected size=16, got %d", l.Size)
	}
}

func TestResolver_FixedArrayUsesElementStride(t *testing.T) {
	r, reg := newResolver(t)
	b := reg.Builtins()
	odd := reg.RegisterStruct("Odd")
	reg.SetStructFields(odd, []descriptor.StructField{
		{Name: "a", Type: b.Int32},
		{Name: "b", Type: b.Int8},
	})
	arr := reg.Intern(descriptor.MakeFixedArray(odd, 3))
	l, err := r.Of(arr)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	// Odd is size 8 (5 rounded to align 4): three elements step by stride.
	if l.Size != 24 || l.Align != 4 {
		t.Fatalf("expected size=24 align=4, got size=%d align=%d", l.Size, l.Align)
	}
}

func TestResolver_ReferenceKindsArePointerSized(t *testing.T) {
	r, reg := newResolver(t)
	cases := []struct {
		name        string
		id          descriptor.TypeID
		addressOnly bool
		trivial     bool
		size        int64
	}{
		{"strong class", reg.ClassRef("Node", descriptor.RefStrong), false, false, 8},
		{"weak class", reg.ClassRef("Node", descriptor.RefWeak), false, false, 8},
		{"unowned class", reg.ClassRef("Node", descriptor.RefUnowned), false, true, 8},
		{"container", reg.Intern(descriptor.MakeDynContainer(reg.Builtins().Float64)), false, false, 8},
		{"existential", reg.Existential([]string{"Shape"}), true, false, 16},
	}
	for _, tc := range cases {
		l, err := r.Of(tc.id)
		if err != nil {
			t.Fatalf("%s: unexpected layout error: %v", tc.name, err)
		}
		if l.Size != tc.size {
			t.Fatalf("%s: size=%d, want %d", tc.name, l.Size, tc.size)
		}
		if l.AddressOnly != tc.addressOnly || l.Trivial != tc.trivial {
			t.Fatalf("%s: addressOnly=%v trivial=%v, want %v/%v", tc.name, l.AddressOnly, l.Trivial, tc.addressOnly, tc.trivial)
		}
	}
}

func TestResolver_NonTrivialProfileMarkForcesAddressOnly(t *testing.T) {
	reg := descriptor.NewRegistry()
	prof := abi.X8664LinuxGNU()
	prof.NonTrivial = map[string]bool{"Handle": true}
	r := layout.NewResolver(prof, reg)

	handle := reg.RegisterStruct("Handle")
	reg.SetStructFields(handle, []descriptor.StructField{
		{Name: "raw", Type: reg.Builtins().UInt64},
	})
	l, err := r.Of(handle)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if !l.AddressOnly || l.Trivial {
		t.Fatalf("profile mark must force address-only non-trivial, got %+v", l)
	}
}

func TestResolver_AddressOnlyPropagatesThroughFields(t *testing.T) {
	r, reg := newResolver(t)
	outer := reg.RegisterStruct("Outer")
	reg.SetStructFields(outer, []descriptor.StructField{
		{Name: "shape", Type: reg.Existential([]string{"Shape"})},
		{Name: "count", Type: reg.Builtins().Int32},
	})
	l, err := r.Of(outer)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if !l.AddressOnly {
		t.Fatalf("existential field must make the struct address-only")
	}
}

func TestResolver_RecursiveStructReportsCycle(t *testing.T) {
	r, reg := newResolver(t)
	node := reg.RegisterStruct("Node")
	reg.SetStructFields(node, []descriptor.StructField{{Name: "next", Type: node}})
	_, err := r.Of(node)
	if err == nil {
		t.Fatal("expected recursive layout error, got nil")
	}
	var lerr *layout.Error
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *layout.Error, got %T (%v)", err, err)
	}
	if lerr.Kind != layout.ErrCycle {
		t.Fatalf("expected ErrCycle, got kind=%d (%v)", lerr.Kind, lerr)
	}
	if len(lerr.Cycle) == 0 {
		t.Fatalf("expected non-empty cycle path, got %+v", lerr)
	}
}

func TestResolver_RecursionThroughClassRefIsSized(t *testing.T) {
	r, reg := newResolver(t)
	node := reg.RegisterStruct("Node")
	reg.SetStructFields(node, []descriptor.StructField{
		{Name: "value", Type: reg.Builtins().Int64},
		{Name: "next", Type: reg.ClassRef("Node", descriptor.RefStrong)},
	})
	l, err := r.Of(node)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if l.Size != 16 || l.Align != 8 {
		t.Fatalf("expected size=16 align=8, got size=%d align=%d", l.Size, l.Align)
	}
	if l.Trivial {
		t.Fatalf("struct holding a strong reference is not trivial")
	}
}

func TestResolver_OversizedValueIsUnrepresentable(t *testing.T) {
	r, reg := newResolver(t)
	big := reg.Intern(descriptor.MakeFixedArray(reg.Builtins().Float64, 100000))
	_, err := r.Of(big)
	var lerr *layout.Error
	if !errors.As(err, &lerr) || lerr.Kind != layout.ErrUnrepresentable {
		t.Fatalf("expected ErrUnrepresentable, got %v", err)
	}
}

func TestResolver_TupleLaysOutLikeStruct(t *testing.T) {
	r, reg := newResolver(t)
	b := reg.Builtins()
	tup := reg.Tuple([]descriptor.TypeID{b.Int8, b.Float64, b.Int16})
	l, err := r.Of(tup)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if l.Fields[0].Offset != 0 || l.Fields[1].Offset != 8 || l.Fields[2].Offset != 16 {
		t.Fatalf("unexpected tuple offsets: %+v", l.Fields)
	}
	if l.Size != 24 || l.Align != 8 {
		t.Fatalf("expected size=24 align=8, got size=%d align=%d", l.Size, l.Align)
	}
}

func TestResolver_ZeroSizedTypesHaveStrideOne(t *testing.T) {
	r, reg := newResolver(t)
	empty := reg.RegisterStruct("Empty")
	reg.SetStructFields(empty, nil)
	l, err := r.Of(empty)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if l.Size != 0 || l.Stride != 1 {
		t.Fatalf("expected size=0 stride=1, got size=%d stride=%d", l.Size, l.Stride)
	}
}

// Writing each field through its computed offset and reading it back must
// reconstruct the original values bit for bit.
func TestResolver_LoadableStructRoundTripsThroughOffsets(t *testing.T) {
	r, reg := newResolver(t)
	b := reg.Builtins()
	sample := reg.RegisterStruct("Sample")
	reg.SetStructFields(sample, []descriptor.StructField{
		{Name: "x", Type: b.Float64},
		{Name: "n", Type: b.Int32},
		{Name: "f", Type: b.Bool},
	})
	l, err := r.Of(sample)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if l.AddressOnly {
		t.Fatalf("sample must be loadable")
	}

	buf := make([]byte, l.Size)
	binary.LittleEndian.PutUint64(buf[l.Fields[0].Offset:], math.Float64bits(2.5))
	n := int32(-7)
	binary.LittleEndian.PutUint32(buf[l.Fields[1].Offset:], uint32(n))
	buf[l.Fields[2].Offset] = 1

	if got := math.Float64frombits(binary.LittleEndian.Uint64(buf[l.Fields[0].Offset:])); got != 2.5 {
		t.Fatalf("x round trip = %v, want 2.5", got)
	}
	if got := int32(binary.LittleEndian.Uint32(buf[l.Fields[1].Offset:])); got != -7 {
		t.Fatalf("n round trip = %v, want -7", got)
	}
	if buf[l.Fields[2].Offset] != 1 {
		t.Fatalf("f round trip lost the flag")
	}
}

func TestResolver_SameInputsSameLayouts(t *testing.T) {
	build := func() (layout.Layout, error) {
		reg := descriptor.NewRegistry()
		b := reg.Builtins()
		s := reg.RegisterStruct("S")
		reg.SetStructFields(s, []descriptor.StructField{
			{Name: "a", Type: b.Int8},
			{Name: "b", Type: reg.Intern(descriptor.MakeFixedArray(b.Float32, 5))},
		})
		return layout.NewResolver(abi.X8664LinuxGNU(), reg).Of(s)
	}
	l1, err1 := build()
	l2, err2 := build()
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if l1.Size != l2.Size || l1.Align != l2.Align || len(l1.Fields) != len(l2.Fields) {
		t.Fatalf("layout not deterministic: %+v vs %+v", l1, l2)
	}
	for i := range l1.Fields {
		if l1.Fields[i].Offset != l2.Fields[i].Offset {
			t.Fatalf("field %d offset differs", i)
		}
	}
}

func TestResolver_InvariantsAcrossProfiles(t *testing.T) {
	profiles := map[string]*abi.Profile{
		"x86_64-linux-gnu":   abi.X8664LinuxGNU(),
		"arm64-apple-darwin": abi.ARM64AppleDarwin(),
	}
	for name, prof := range profiles {
		t.Run(name, func(t *testing.T) {
			reg := descriptor.NewRegistry()
			b := reg.Builtins()

			padded := reg.RegisterStruct("Padded")
			reg.SetStructFields(padded, []descriptor.StructField{
				{Name: "flag", Type: b.Bool},
				{Name: "value", Type: b.Float64},
				{Name: "count", Type: b.Int16},
			})
			empty := reg.RegisterStruct("Empty")
			reg.SetStructFields(empty, nil)
			nested := reg.RegisterStruct("Nested")
			reg.SetStructFields(nested, []descriptor.StructField{
				{Name: "inner", Type: padded},
				{Name: "tail", Type: b.UInt8},
			})

			plain := reg.RegisterEnum("Plain")
			reg.SetEnumCases(plain, []descriptor.EnumCase{
				{Name: "a"}, {Name: "b"}, {Name: "c"},
			})
			loaded := reg.RegisterEnum("Loaded")
			reg.SetEnumCases(loaded, []descriptor.EnumCase{
				{Name: "none"},
				{Name: "some", Payload: reg.ClassRef("Box", descriptor.RefStrong)},
			})

			ids := []descriptor.TypeID{
				b.Bool, b.Int64, b.Float32,
				padded, empty, nested, plain, loaded,
				reg.Intern(descriptor.MakeFixedArray(b.Float64, 3)),
				reg.Intern(descriptor.MakeFixedArray(padded, 4)),
				reg.Tuple([]descriptor.TypeID{b.Int32, b.Bool}),
				reg.ClassRef("Box", descriptor.RefStrong),
				reg.ClassRef("Box", descriptor.RefWeak),
				reg.ClassRef("Box", descriptor.RefUnowned),
				reg.Intern(descriptor.MakeDynContainer(b.Int32)),
				reg.Existential([]string{"Shape", "Sink"}),
			}

			res := layout.NewResolver(prof, reg)
			for _, id := range ids {
				if err := testkit.CheckLayoutInvariants(res, id); err != nil {
					t.Errorf("%s: %v", reg.String(id), err)
				}
			}
		})
	}
}
