// Package diag defines the diagnostic model shared by all generation phases.
//
// Diagnostics are deterministic, serialisable records keyed by declaration
// identity: the front end, validator, layout resolver, convention mapper, and
// emitter all report through this model, and the pipeline folds per-phase
// errors into it at the declaration boundary. The package performs no
// formatting or IO; rendering lives in internal/diagfmt.
//
// Producers either fill a Bag directly or go through a Reporter when the
// storage should stay pluggable. Bags support merging, deterministic sorting,
// and deduplication so concurrent pipelines can aggregate without caring
// about completion order.
package diag
