package abi

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type profileFile struct {
	Profile    profileSection            `toml:"profile"`
	Primitives map[string]primitiveEntry `toml:"primitives"`
	Runtime    runtimeSection            `toml:"runtime"`
}

type profileSection struct {
	Name           string   `toml:"name"`
	Triple         string   `toml:"triple"`
	Base           string   `toml:"base"`
	PointerSize    int64    `toml:"pointer_size"`
	PointerAlign   int64    `toml:"pointer_align"`
	MaxDirectWords int      `toml:"max_direct_words"`
	MaxValueSize   int64    `toml:"max_value_size"`
	Packing        string   `toml:"packing"`
	SpareBitCap    int      `toml:"spare_bit_cap"`
	NonTrivial     []string `toml:"non_trivial"`
	SymbolPrefix   string   `toml:"symbol_prefix"`
}

type primitiveEntry struct {
	Size  int64 `toml:"size"`
	Align int64 `toml:"align"`
}

type runtimeSection struct {
	Retain         string `toml:"retain"`
	Release        string `toml:"release"`
	UnknownRetain  string `toml:"unknown_retain"`
	UnknownRelease string `toml:"unknown_release"`
}

// LoadFile reads a custom profile from TOML. The file starts from a builtin
// base profile ([profile].base, default x86_64-linux-gnu) and overrides
// individual rules; the result must still pass Validate.
func LoadFile(path string) (*Profile, error) {
	var file profileFile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("profile") {
		return nil, fmt.Errorf("%s: missing [profile]", path)
	}
	if !meta.IsDefined("profile", "name") || strings.TrimSpace(file.Profile.Name) == "" {
		return nil, fmt.Errorf("%s: missing [profile].name", path)
	}

	base := file.Profile.Base
	if base == "" {
		base = "x86_64-linux-gnu"
	}
	prof, ok := Builtin(base)
	if !ok {
		return nil, fmt.Errorf("%s: unknown base profile %q", path, base)
	}

	prof.Name = file.Profile.Name
	if meta.IsDefined("profile", "triple") {
		prof.Triple = file.Profile.Triple
	}
	if meta.IsDefined("profile", "pointer_size") {
		prof.PointerSize = file.Profile.PointerSize
	}
	if meta.IsDefined("profile", "pointer_align") {
		prof.PointerAlign = file.Profile.PointerAlign
	} else if meta.IsDefined("profile", "pointer_size") {
		prof.PointerAlign = file.Profile.PointerSize
	}
	if meta.IsDefined("profile", "max_direct_words") {
		prof.MaxDirectWords = file.Profile.MaxDirectWords
	}
	if meta.IsDefined("profile", "max_value_size") {
		prof.MaxValueSize = file.Profile.MaxValueSize
	}
	if meta.IsDefined("profile", "packing") {
		prof.Packing = Packing(file.Profile.Packing)
	}
	if meta.IsDefined("profile", "spare_bit_cap") {
		prof.SpareBitCap = file.Profile.SpareBitCap
	}
	if meta.IsDefined("profile", "symbol_prefix") {
		prof.SymbolPrefix = file.Profile.SymbolPrefix
	}
	if len(file.Profile.NonTrivial) > 0 {
		prof.NonTrivial = make(map[string]bool, len(file.Profile.NonTrivial))
		for _, name := range file.Profile.NonTrivial {
			name = strings.TrimSpace(name)
			if name != "" {
				prof.NonTrivial[name] = true
			}
		}
	}
	for key, entry := range file.Primitives {
		if _, known := prof.Primitives[key]; !known {
			return nil, fmt.Errorf("%s: unknown primitive %q", path, key)
		}
		prof.Primitives[key] = Primitive{Size: entry.Size, Align: entry.Align}
	}
	if meta.IsDefined("runtime", "retain") {
		prof.Runtime.Retain = file.Runtime.Retain
	}
	if meta.IsDefined("runtime", "release") {
		prof.Runtime.Release = file.Runtime.Release
	}
	if meta.IsDefined("runtime", "unknown_retain") {
		prof.Runtime.UnknownRetain = file.Runtime.UnknownRetain
	}
	if meta.IsDefined("runtime", "unknown_release") {
		prof.Runtime.UnknownRelease = file.Runtime.UnknownRelease
	}

	if err := prof.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prof, nil
}

// Resolve loads a profile by builtin name or, when the argument names an
// existing file or ends in .toml, from a custom profile file.
func Resolve(nameOrPath string) (*Profile, error) {
	if prof, ok := Builtin(nameOrPath); ok {
		return prof, nil
	}
	if strings.HasSuffix(nameOrPath, ".toml") {
		return LoadFile(nameOrPath)
	}
	if _, err := os.Stat(nameOrPath); err == nil {
		return LoadFile(nameOrPath)
	}
	return nil, fmt.Errorf("unknown profile %q (builtins: %s)", nameOrPath, strings.Join(BuiltinNames(), ", "))
}
