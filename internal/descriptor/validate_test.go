package descriptor

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateAcceptsNestedValueTypes(t *testing.T) {
	r := NewRegistry()
	b := r.Builtins()
	inner := r.RegisterStruct("Inner")
	r.SetStructFields(inner, []StructField{{Name: "v", Type: b.Int32}})
	outer := r.RegisterStruct("Outer")
	r.SetStructFields(outer, []StructField{
		{Name: "a", Type: inner},
		{Name: "b", Type: r.Intern(MakeFixedArray(inner, 3))},
		{Name: "c", Type: r.Tuple([]TypeID{b.Bool, b.Float32})},
	})
	if err := Validate(r, outer); err != nil {
		t.Fatalf("expected valid descriptor, got %v", err)
	}
}

func TestValidateRejectsInlineCycle(t *testing.T) {
	r := NewRegistry()
	node := r.RegisterStruct("Node")
	r.SetStructFields(node, []StructField{{Name: "next", Type: node}})
	err := Validate(r, node)
	var unsup *UnsupportedError
	if !errors.As(err, &unsup) {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
	if !strings.Contains(unsup.Reason, "recursive") {
		t.Fatalf("unexpected reason: %q", unsup.Reason)
	}
	if len(unsup.Path) == 0 {
		t.Fatalf("cycle error should carry the walk path")
	}
}

func TestValidateAllowsRecursionThroughClassRef(t *testing.T) {
	r := NewRegistry()
	node := r.RegisterStruct("Node")
	r.SetStructFields(node, []StructField{
		{Name: "value", Type: r.Builtins().Int64},
		{Name: "next", Type: r.ClassRef("Node", RefStrong)},
	})
	if err := Validate(r, node); err != nil {
		t.Fatalf("class indirection must break the cycle, got %v", err)
	}
}

func TestValidateRejectsRecursionThroughContainer(t *testing.T) {
	r := NewRegistry()
	tree := r.RegisterStruct("Tree")
	r.SetStructFields(tree, []StructField{
		{Name: "children", Type: r.Intern(MakeDynContainer(tree))},
	})
	var unsup *UnsupportedError
	if err := Validate(r, tree); !errors.As(err, &unsup) {
		t.Fatalf("containers are not an indirection boundary, got %v", err)
	}
}

func TestValidateRejectsEmptyEnum(t *testing.T) {
	r := NewRegistry()
	never := r.RegisterEnum("Never")
	r.SetEnumCases(never, nil)
	var unsup *UnsupportedError
	if err := Validate(r, never); !errors.As(err, &unsup) {
		t.Fatalf("expected UnsupportedError for empty enum, got %v", err)
	}
}

func TestValidateRejectsMissingReference(t *testing.T) {
	r := NewRegistry()
	s := r.RegisterStruct("Broken")
	r.SetStructFields(s, []StructField{{Name: "f", Type: NoTypeID}})
	var unsup *UnsupportedError
	if err := Validate(r, s); !errors.As(err, &unsup) {
		t.Fatalf("expected UnsupportedError for missing field type, got %v", err)
	}
}

func TestValidateSignature(t *testing.T) {
	r := NewRegistry()
	b := r.Builtins()
	sig := &Signature{
		Params: []Param{
			{Name: "a", Type: b.Float64},
			{Name: "n", Type: r.ClassRef("Node", RefStrong)},
		},
		Result: b.Int32,
		Throws: true,
	}
	if err := ValidateSignature(r, sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	bad := &Signature{Params: []Param{{Name: "x", Type: NoTypeID}}}
	var unsup *UnsupportedError
	if err := ValidateSignature(r, bad); !errors.As(err, &unsup) {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
	if err := ValidateSignature(r, nil); err == nil {
		t.Fatalf("nil signature must be rejected")
	}
}

func TestValidateSharedSubtreeVisitedOnce(t *testing.T) {
	r := NewRegistry()
	b := r.Builtins()
	shared := r.RegisterStruct("Shared")
	r.SetStructFields(shared, []StructField{{Name: "v", Type: b.Int8}})
	top := r.RegisterStruct("Top")
	r.SetStructFields(top, []StructField{
		{Name: "l", Type: shared},
		{Name: "r", Type: shared},
	})
	// Diamond sharing is not a cycle.
	if err := Validate(r, top); err != nil {
		t.Fatalf("shared subtree misreported: %v", err)
	}
}
