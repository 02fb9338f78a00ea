// Package runtimeembed provides the embedded C prelude shipped next to
// generated bridge sources.
package runtimeembed

import (
	_ "embed"
)

//go:embed bridge_prelude.h
var preludeSource []byte

// PreludeFileName is the on-disk name generated sources include.
const PreludeFileName = "bridge_prelude.h"

// Prelude returns a copy of the C prelude source.
func Prelude() []byte {
	return append([]byte(nil), preludeSource...)
}
