package emit

import "fmt"

// Error reports an internal consistency failure discovered while emitting
// one declaration: a type that never resolved, a convention that does not
// match its signature, or a name the generated C could not carry.
type Error struct {
	Decl string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("emission failed for %s: %v", e.Decl, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Failure pairs a declaration identity with the error that excluded it from
// the output set.
type Failure struct {
	Decl string
	Err  *Error
}
