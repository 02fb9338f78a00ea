// Package fuzztests houses Go fuzz harnesses that exercise the declaration
// intake path (JSON -> registry -> layout -> convention). Its goal is to
// smoke test robustness: arbitrary inputs must come back as diagnostics or
// typed errors, never as panics or self-contradictory geometry.
//
// The harnesses load bytes through frontend.LoadBytes, then push whatever
// survives validation through the default profile's resolver and mapper.
//
// Not covered here: emission, caching, the CLI.
package fuzztests
