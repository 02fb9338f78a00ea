package descriptor

// DeclKind separates type declarations from function declarations.
type DeclKind uint8

const (
	DeclType DeclKind = iota
	DeclFunc
)

func (k DeclKind) String() string {
	if k == DeclFunc {
		return "func"
	}
	return "type"
}

// Param describes one function parameter as the front end declared it.
type Param struct {
	Name     string
	Type     TypeID
	Inout    bool
	Consumed bool
}

// Signature describes a bridgeable function: ordered parameters, an optional
// result (NoTypeID when the function returns nothing), and the error-channel
// flag. Autoreleased marks a foreign result whose lifecycle is deferred.
type Signature struct {
	Params       []Param
	Result       TypeID
	Throws       bool
	Autoreleased bool
}

// Decl is one entry of the declaration set. Name is the declaration
// identity: unique per set, NFC-normalized by the front end, and the key
// every diagnostic and generated symbol refers back to.
type Decl struct {
	Name string
	Kind DeclKind
	Type TypeID     // for DeclType
	Sig  *Signature // for DeclFunc
}

// CloneSignature returns a deep copy so callers can hold signatures past
// front-end mutation.
func CloneSignature(sig *Signature) *Signature {
	if sig == nil {
		return nil
	}
	out := &Signature{
		Result:       sig.Result,
		Throws:       sig.Throws,
		Autoreleased: sig.Autoreleased,
	}
	if len(sig.Params) > 0 {
		out.Params = make([]Param, len(sig.Params))
		copy(out.Params, sig.Params)
	}
	return out
}
