package frontend_test

import (
	"os"
	"path/filepath"
	"testing"

	"bridgec/internal/descriptor"
	"bridgec/internal/diag"
	"bridgec/internal/frontend"
)

func writeDecls(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func load(t *testing.T, content string) (*descriptor.Registry, []descriptor.Decl, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(100)
	reg, decls, err := frontend.Load([]string{writeDecls(t, "decls.json", content)}, bag)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return reg, decls, bag
}

func hasCode(bag *diag.Bag, code diag.Code) bool {
	for _, d := range bag.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestLoad_BuildsRegistryAndDecls(t *testing.T) {
	reg, decls, bag := load(t, `{
		"schema_version": 1,
		"decls": [
			{"struct": "Point", "fields": [
				{"name": "x", "type": "f64"},
				{"name": "y", "type": "f64"}
			]},
			{"enum": "Reply", "cases": [
				{"name": "none"},
				{"name": "value", "payload": "i64"}
			]},
			{"type": "Vec3", "is": {"array": {"of": "f64", "count": 3}}},
			{"func": "scale", "params": [
				{"name": "p", "type": "Point"},
				{"name": "k", "type": "f64"}
			], "result": "Point", "throws": true}
		]
	}`)
	if bag.Len() != 0 {
		t.Fatalf("expected clean load, got %+v", bag.Items())
	}
	if len(decls) != 4 {
		t.Fatalf("expected 4 declarations, got %d", len(decls))
	}

	point, ok := reg.Nominal("Point")
	if !ok {
		t.Fatal("Point never registered")
	}
	info, ok := reg.StructInfo(point)
	if !ok || len(info.Fields) != 2 || info.Fields[0].Name != "x" {
		t.Fatalf("unexpected Point metadata: %+v", info)
	}

	reply, _ := reg.Nominal("Reply")
	einfo, ok := reg.EnumInfo(reply)
	if !ok || len(einfo.Cases) != 2 {
		t.Fatalf("unexpected Reply metadata: %+v", einfo)
	}
	if einfo.Cases[0].Payload != descriptor.NoTypeID {
		t.Error("payload-free case must resolve to NoTypeID")
	}
	if einfo.Cases[1].Payload == descriptor.NoTypeID {
		t.Error("value case lost its payload")
	}

	var vec3 descriptor.Decl
	var scale descriptor.Decl
	for _, d := range decls {
		switch d.Name {
		case "Vec3":
			vec3 = d
		case "scale":
			scale = d
		}
	}
	tt, ok := reg.Lookup(vec3.Type)
	if !ok || tt.Kind != descriptor.KindFixedArray || tt.Count != 3 {
		t.Fatalf("Vec3 alias resolved to %+v", tt)
	}
	if scale.Kind != descriptor.DeclFunc || scale.Sig == nil {
		t.Fatal("scale is not a function declaration")
	}
	if len(scale.Sig.Params) != 2 || scale.Sig.Params[0].Name != "p" {
		t.Fatalf("unexpected scale parameters: %+v", scale.Sig.Params)
	}
	if scale.Sig.Result != point || !scale.Sig.Throws {
		t.Fatalf("unexpected scale signature: %+v", scale.Sig)
	}
}

func TestLoad_CrossFileReferences(t *testing.T) {
	bag := diag.NewBag(100)
	a := writeDecls(t, "a.json", `{"decls": [
		{"func": "origin", "result": "Point"}
	]}`)
	b := writeDecls(t, "b.json", `{"decls": [
		{"struct": "Point", "fields": [{"name": "x", "type": "f64"}]}
	]}`)
	_, decls, err := frontend.Load([]string{a, b}, bag)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if bag.Len() != 0 {
		t.Fatalf("forward reference across files must resolve, got %+v", bag.Items())
	}
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}
}

func TestLoad_NormalizesIdentifiers(t *testing.T) {
	// The same class name, composed in one declaration and decomposed in the
	// other. Both must intern to one TypeID.
	_, decls, bag := load(t, `{"decls": [
		{"func": "open", "params": [{"name": "c", "type": {"class": "Café"}}]},
		{"func": "close", "params": [{"name": "c", "type": {"class": "Café"}}]}
	]}`)
	if bag.Len() != 0 {
		t.Fatalf("expected clean load, got %+v", bag.Items())
	}
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}
	if a, b := decls[0].Sig.Params[0].Type, decls[1].Sig.Params[0].Type; a != b {
		t.Fatalf("normal forms interned to different types: %d vs %d", a, b)
	}
}

func TestLoad_DuplicateDecl(t *testing.T) {
	_, decls, bag := load(t, `{"decls": [
		{"struct": "Point", "fields": []},
		{"struct": "Point", "fields": []}
	]}`)
	if !hasCode(bag, diag.FrontDuplicateDecl) {
		t.Fatalf("expected a duplicate diagnostic, got %+v", bag.Items())
	}
	if len(decls) != 1 {
		t.Fatalf("expected the first declaration to survive, got %d", len(decls))
	}
}

func TestLoad_UnknownTypeRef(t *testing.T) {
	_, decls, bag := load(t, `{"decls": [
		{"struct": "Bad", "fields": [{"name": "x", "type": "Missing"}]}
	]}`)
	if !hasCode(bag, diag.FrontUnknownTypeRef) {
		t.Fatalf("expected an unknown-type diagnostic, got %+v", bag.Items())
	}
	if len(decls) != 0 {
		t.Fatalf("unresolvable declaration must be skipped, got %d", len(decls))
	}
	if bag.Items()[0].Decl != "Bad" {
		t.Errorf("diagnostic keyed to %q, want Bad", bag.Items()[0].Decl)
	}
}

func TestLoad_UnresolvedStructPoisonsDependents(t *testing.T) {
	reg, decls, bag := load(t, `{"decls": [
		{"struct": "Bad", "fields": [{"name": "x", "type": "Missing"}]},
		{"struct": "Good", "fields": [{"name": "b", "type": "Bad"}]}
	]}`)
	if !hasCode(bag, diag.FrontUnknownTypeRef) {
		t.Fatalf("expected an unknown-type diagnostic, got %+v", bag.Items())
	}
	// Good still loads: Bad's name is registered even though its body never
	// resolved. Validation must then reject Good instead of treating Bad as
	// an empty struct.
	if len(decls) != 1 || decls[0].Name != "Good" {
		t.Fatalf("expected only Good to load, got %+v", decls)
	}
	if err := descriptor.Validate(reg, decls[0].Type); err == nil {
		t.Fatal("declaration referencing an unresolved struct must fail validation")
	}
}

func TestLoad_BadJSON(t *testing.T) {
	_, decls, bag := load(t, `{"decls": [`)
	if !hasCode(bag, diag.FrontBadInput) {
		t.Fatalf("expected a bad-input diagnostic, got %+v", bag.Items())
	}
	if len(decls) != 0 {
		t.Fatalf("expected no declarations, got %d", len(decls))
	}
}

func TestLoad_SchemaVersionMismatch(t *testing.T) {
	_, _, bag := load(t, `{"schema_version": 99, "decls": []}`)
	if !hasCode(bag, diag.FrontBadInput) {
		t.Fatalf("expected a bad-input diagnostic, got %+v", bag.Items())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	bag := diag.NewBag(100)
	_, _, err := frontend.Load([]string{filepath.Join(t.TempDir(), "absent.json")}, bag)
	if err == nil {
		t.Fatal("expected an error for an unreadable file")
	}
}

func TestLoad_MalformedDecls(t *testing.T) {
	cases := []struct {
		name string
		body string
		code diag.Code
	}{
		{"no discriminator", `{"fields": []}`, diag.FrontBadDecl},
		{"two discriminators", `{"struct": "A", "func": "A"}`, diag.FrontBadDecl},
		{"reserved identifier", `{"struct": "_Hidden", "fields": []}`, diag.FrontBadDecl},
		{"unknown decl key", `{"struct": "A", "fielsd": []}`, diag.FrontBadDecl},
		{"duplicate field", `{"struct": "A", "fields": [
			{"name": "x", "type": "i32"}, {"name": "x", "type": "i32"}]}`, diag.FrontBadDecl},
		{"array without count", `{"type": "A", "is": {"array": {"of": "i32"}}}`, diag.FrontBadTypeExpr},
		{"array count zero", `{"type": "A", "is": {"array": {"of": "i32", "count": 0}}}`, diag.FrontBadTypeExpr},
		{"array count overflow", `{"type": "A", "is": {"array": {"of": "i32", "count": 4294967296}}}`, diag.FrontBadTypeExpr},
		{"unknown strength", `{"type": "A", "is": {"class": "C", "strength": "fuzzy"}}`, diag.FrontBadTypeExpr},
		{"strength without class", `{"type": "A", "is": {"tuple": ["i32"], "strength": "weak"}}`, diag.FrontBadTypeExpr},
		{"two primaries", `{"type": "A", "is": {"class": "C", "tuple": []}}`, diag.FrontBadTypeExpr},
		{"ref to scalar", `{"type": "A", "is": {"ref": "i32"}}`, diag.FrontUnknownTypeRef},
		{"missing param type", `{"func": "f", "params": [{"name": "x"}]}`, diag.FrontBadTypeExpr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, decls, bag := load(t, `{"decls": [`+tc.body+`]}`)
			if !hasCode(bag, tc.code) {
				t.Fatalf("expected code %d, got %+v", tc.code, bag.Items())
			}
			if len(decls) != 0 {
				t.Fatalf("malformed declaration must be skipped, got %+v", decls)
			}
		})
	}
}

func TestLoad_FuncDefaults(t *testing.T) {
	_, decls, bag := load(t, `{"decls": [{"func": "ping"}]}`)
	if bag.Len() != 0 {
		t.Fatalf("expected clean load, got %+v", bag.Items())
	}
	sig := decls[0].Sig
	if len(sig.Params) != 0 || sig.Result != descriptor.NoTypeID || sig.Throws || sig.Autoreleased {
		t.Fatalf("unexpected defaults: %+v", sig)
	}
}
