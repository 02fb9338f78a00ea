package diag

import "testing"

func TestBagSortIsDeterministic(t *testing.T) {
	b := NewBag(10)
	b.Add(NewError(LayCycle, "zeta", "second"))
	b.Add(NewError(ValUnsupported, "alpha", "first"))
	b.Add(NewError(LayCycle, "zeta", "also"))
	b.Sort()
	items := b.Items()
	if items[0].Decl != "alpha" {
		t.Fatalf("expected alpha first, got %q", items[0].Decl)
	}
	if items[1].Message != "also" || items[2].Message != "second" {
		t.Fatalf("ties must order by message: %+v", items)
	}
}

func TestBagDedup(t *testing.T) {
	b := NewBag(10)
	d := NewError(ValUnsupported, "point", "bad field")
	b.Add(d)
	b.Add(d)
	b.Add(NewError(ValUnsupported, "point", "other field"))
	b.Dedup()
	if b.Len() != 2 {
		t.Fatalf("expected 2 diagnostics after dedup, got %d", b.Len())
	}
}

func TestBagCap(t *testing.T) {
	b := NewBag(1)
	if !b.Add(NewError(UnknownCode, "", "kept")) {
		t.Fatalf("first add must succeed")
	}
	if b.Add(NewError(UnknownCode, "", "dropped")) {
		t.Fatalf("cap must reject the second add")
	}
	if b.Len() != 1 {
		t.Fatalf("expected len 1, got %d", b.Len())
	}
}

func TestBagMergeGrowsCap(t *testing.T) {
	a := NewBag(1)
	a.Add(NewError(UnknownCode, "a", "one"))
	other := NewBag(2)
	other.Add(NewError(UnknownCode, "b", "two"))
	other.Add(NewError(UnknownCode, "c", "three"))
	a.Merge(other)
	if a.Len() != 3 {
		t.Fatalf("merge must keep all items, got %d", a.Len())
	}
	if !a.HasErrors() || a.ErrorCount() != 3 {
		t.Fatalf("error accounting wrong: %d", a.ErrorCount())
	}
}

func TestCodeID(t *testing.T) {
	cases := []struct {
		code Code
		id   string
	}{
		{FrontBadInput, "FRONT1001"},
		{ValUnsupported, "VAL2001"},
		{LayCycle, "LAY3001"},
		{ConvAmbiguousOwnership, "CONV4001"},
		{EmitInternal, "EMIT5001"},
		{CfgBadProfile, "CFG6002"},
		{UnknownCode, "E0000"},
	}
	for _, tc := range cases {
		if got := tc.code.ID(); got != tc.id {
			t.Fatalf("ID(%d) = %q, want %q", tc.code, got, tc.id)
		}
	}
}
