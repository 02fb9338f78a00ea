// Package abi describes the layout and calling-convention rules of a
// foreign runtime target. A Profile is resolved once per generation run and
// shared read-only by every declaration pipeline.
package abi

import (
	"fmt"
	"sort"
	"strings"

	"bridgec/internal/descriptor"
)

// Packing selects how enum discriminants are represented.
type Packing string

const (
	// PackingTagged stores the discriminant in a separate tag region after
	// the payload.
	PackingTagged Packing = "tagged"
	// PackingSpareBit folds the discriminant into unused bit patterns of a
	// pointer-backed payload when possible, falling back to tagged layout
	// otherwise.
	PackingSpareBit Packing = "spare-bit"
)

// Primitive gives the byte size and alignment of one scalar.
type Primitive struct {
	Size  int64
	Align int64
}

// RuntimeSymbols names the foreign runtime entry points generated thunks
// reference. Custom profiles may rename them to point at instrumented or
// prefixed builds of the runtime.
type RuntimeSymbols struct {
	Retain         string
	Release        string
	UnknownRetain  string
	UnknownRelease string
}

// Profile is the full rule set for one target: primitive table, padding and
// packing policy, register budget, and the runtime symbol table.
type Profile struct {
	Name         string
	Triple       string
	PointerSize  int64
	PointerAlign int64

	// MaxDirectWords is the register budget: loadable values up to this
	// many machine words pass directly, larger ones spill to an indirect
	// pointer.
	MaxDirectWords int

	// MaxValueSize bounds the computed size of any single value. Exceeding
	// it is a per-declaration layout failure, not a run abort.
	MaxValueSize int64

	Packing Packing

	// SpareBitCap bounds how many no-payload cases a spare-bit enum can
	// absorb into a pointer payload.
	SpareBitCap int

	// NonTrivial marks nominal types whose copy/move needs the runtime;
	// such types are always address-only.
	NonTrivial map[string]bool

	SymbolPrefix string
	Primitives   map[string]Primitive
	Runtime      RuntimeSymbols
}

// X8664LinuxGNU returns the builtin profile for 64-bit Linux targets.
func X8664LinuxGNU() *Profile {
	return &Profile{
		Name:           "x86_64-linux-gnu",
		Triple:         "x86_64-unknown-linux-gnu",
		PointerSize:    8,
		PointerAlign:   8,
		MaxDirectWords: 4,
		MaxValueSize:   1 << 16,
		Packing:        PackingSpareBit,
		SpareBitCap:    2047,
		SymbolPrefix:   "bridge_",
		Primitives:     naturalPrimitives(),
		Runtime:        defaultRuntimeSymbols(),
	}
}

// ARM64AppleDarwin returns the builtin profile for 64-bit Darwin targets.
func ARM64AppleDarwin() *Profile {
	return &Profile{
		Name:           "arm64-apple-darwin",
		Triple:         "arm64-apple-darwin",
		PointerSize:    8,
		PointerAlign:   8,
		MaxDirectWords: 4,
		MaxValueSize:   1 << 16,
		Packing:        PackingSpareBit,
		SpareBitCap:    2047,
		SymbolPrefix:   "bridge_",
		Primitives:     naturalPrimitives(),
		Runtime:        defaultRuntimeSymbols(),
	}
}

// Builtin resolves a builtin profile by name.
func Builtin(name string) (*Profile, bool) {
	switch name {
	case "x86_64-linux-gnu":
		return X8664LinuxGNU(), true
	case "arm64-apple-darwin":
		return ARM64AppleDarwin(), true
	default:
		return nil, false
	}
}

// BuiltinNames lists builtin profile names in stable order.
func BuiltinNames() []string {
	return []string{"arm64-apple-darwin", "x86_64-linux-gnu"}
}

func naturalPrimitives() map[string]Primitive {
	return map[string]Primitive{
		"bool": {Size: 1, Align: 1},
		"i8":   {Size: 1, Align: 1},
		"i16":  {Size: 2, Align: 2},
		"i32":  {Size: 4, Align: 4},
		"i64":  {Size: 8, Align: 8},
		"u8":   {Size: 1, Align: 1},
		"u16":  {Size: 2, Align: 2},
		"u32":  {Size: 4, Align: 4},
		"u64":  {Size: 8, Align: 8},
		"f32":  {Size: 4, Align: 4},
		"f64":  {Size: 8, Align: 8},
	}
}

func defaultRuntimeSymbols() RuntimeSymbols {
	return RuntimeSymbols{
		Retain:         "swift_retain",
		Release:        "swift_release",
		UnknownRetain:  "swift_unknownObjectRetain",
		UnknownRelease: "swift_unknownObjectRelease",
	}
}

// Primitive resolves the table entry for a scalar descriptor.
func (p *Profile) Primitive(class descriptor.ScalarClass, width descriptor.Width) (Primitive, bool) {
	prim, ok := p.Primitives[primitiveKey(class, width)]
	return prim, ok
}

func primitiveKey(class descriptor.ScalarClass, width descriptor.Width) string {
	switch class {
	case descriptor.ScalarBool:
		return "bool"
	case descriptor.ScalarSigned:
		return fmt.Sprintf("i%d", width)
	case descriptor.ScalarUnsigned:
		return fmt.Sprintf("u%d", width)
	case descriptor.ScalarFloat:
		return fmt.Sprintf("f%d", width)
	default:
		return ""
	}
}

// MaxDirectBytes is the register budget in bytes.
func (p *Profile) MaxDirectBytes() int64 {
	return int64(p.MaxDirectWords) * p.PointerSize
}

// IsNonTrivial reports whether the named nominal type needs runtime-managed
// copy/move.
func (p *Profile) IsNonTrivial(name string) bool {
	return p.NonTrivial[name]
}

// Validate checks the profile for internal consistency. A broken profile is
// a fatal configuration error: the whole run aborts instead of producing
// layouts under wrong rules.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile: missing name")
	}
	if p.PointerSize != 4 && p.PointerSize != 8 {
		return fmt.Errorf("profile %s: pointer size must be 4 or 8, got %d", p.Name, p.PointerSize)
	}
	if p.PointerAlign != p.PointerSize {
		return fmt.Errorf("profile %s: pointer alignment %d does not match pointer size %d", p.Name, p.PointerAlign, p.PointerSize)
	}
	if p.MaxDirectWords < 1 {
		return fmt.Errorf("profile %s: max direct words must be at least 1, got %d", p.Name, p.MaxDirectWords)
	}
	if p.MaxValueSize < p.PointerSize {
		return fmt.Errorf("profile %s: max value size %d is smaller than a pointer", p.Name, p.MaxValueSize)
	}
	switch p.Packing {
	case PackingTagged, PackingSpareBit:
	default:
		return fmt.Errorf("profile %s: unknown packing policy %q", p.Name, p.Packing)
	}
	if p.SpareBitCap < 0 {
		return fmt.Errorf("profile %s: spare bit cap must not be negative", p.Name)
	}
	for _, key := range primitiveNames() {
		prim, ok := p.Primitives[key]
		if !ok {
			return fmt.Errorf("profile %s: primitive table missing %q", p.Name, key)
		}
		if prim.Size <= 0 || prim.Align <= 0 {
			return fmt.Errorf("profile %s: primitive %q has non-positive size or alignment", p.Name, key)
		}
		if prim.Align&(prim.Align-1) != 0 {
			return fmt.Errorf("profile %s: primitive %q alignment %d is not a power of two", p.Name, key, prim.Align)
		}
		if prim.Size%prim.Align != 0 {
			return fmt.Errorf("profile %s: primitive %q size %d not a multiple of alignment %d", p.Name, key, prim.Size, prim.Align)
		}
	}
	for _, sym := range []string{p.Runtime.Retain, p.Runtime.Release, p.Runtime.UnknownRetain, p.Runtime.UnknownRelease} {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("profile %s: runtime symbol table incomplete", p.Name)
		}
	}
	return nil
}

// Fingerprint renders every rule that affects generated output into one
// canonical string. Equal fingerprints guarantee byte-identical output for
// equal inputs, which is what the generation cache keys on.
func (p *Profile) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "name=%s;triple=%s;ptr=%d/%d;words=%d;max=%d;pack=%s;spare=%d;prefix=%s",
		p.Name, p.Triple, p.PointerSize, p.PointerAlign, p.MaxDirectWords, p.MaxValueSize, p.Packing, p.SpareBitCap, p.SymbolPrefix)
	for _, key := range primitiveNames() {
		prim := p.Primitives[key]
		fmt.Fprintf(&b, ";%s=%d/%d", key, prim.Size, prim.Align)
	}
	names := make([]string, 0, len(p.NonTrivial))
	for name, marked := range p.NonTrivial {
		if marked {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	fmt.Fprintf(&b, ";nontrivial=%s", strings.Join(names, ","))
	fmt.Fprintf(&b, ";rt=%s,%s,%s,%s", p.Runtime.Retain, p.Runtime.Release, p.Runtime.UnknownRetain, p.Runtime.UnknownRelease)
	return b.String()
}

func primitiveNames() []string {
	return []string{"bool", "i8", "i16", "i32", "i64", "u8", "u16", "u32", "u64", "f32", "f64"}
}
