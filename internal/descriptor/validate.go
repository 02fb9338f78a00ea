package descriptor

import (
	"fmt"
	"strings"
)

// UnsupportedError reports a descriptor outside the bridgeable subset.
// Path holds the walk from the root to the offending node so the user can
// find the construct in their annotations.
type UnsupportedError struct {
	Type   TypeID
	Path   []string
	Reason string
}

func (e *UnsupportedError) Error() string {
	if len(e.Path) == 0 {
		return "unsupported type: " + e.Reason
	}
	return fmt.Sprintf("unsupported type: %s (at %s)", e.Reason, strings.Join(e.Path, " -> "))
}

type visitState uint8

const (
	stateUnvisited visitState = iota
	stateVisiting
	stateDone
)

type validator struct {
	reg   *Registry
	state map[TypeID]visitState
	path  []string
}

// Validate checks that the type graph reachable from root stays inside the
// bridgeable subset. It is total: class references and existentials are
// indirection boundaries and are never walked into, and any inline cycle
// (one not broken by such an indirection) is rejected rather than followed.
func Validate(reg *Registry, root TypeID) error {
	v := &validator{reg: reg, state: make(map[TypeID]visitState, 16)}
	return v.walk(root)
}

// ValidateSignature checks every parameter and result type of a function
// declaration.
func ValidateSignature(reg *Registry, sig *Signature) error {
	if sig == nil {
		return &UnsupportedError{Reason: "function declaration without a signature"}
	}
	v := &validator{reg: reg, state: make(map[TypeID]visitState, 16)}
	for i := range sig.Params {
		p := &sig.Params[i]
		v.path = append(v.path[:0], "parameter "+p.Name)
		if err := v.walk(p.Type); err != nil {
			return err
		}
	}
	if sig.Result != NoTypeID {
		v.path = append(v.path[:0], "result")
		if err := v.walk(sig.Result); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) walk(id TypeID) error {
	if id == NoTypeID {
		return v.fail(id, "missing type reference")
	}
	tt, ok := v.reg.Lookup(id)
	if !ok {
		return v.fail(id, "unknown type reference")
	}
	switch v.state[id] {
	case stateDone:
		return nil
	case stateVisiting:
		return v.fail(id, "recursive type without class or existential indirection")
	}
	v.state[id] = stateVisiting
	v.path = append(v.path, v.reg.String(id))
	defer func() {
		v.path = v.path[:len(v.path)-1]
	}()

	switch tt.Kind {
	case KindScalar:
		if err := v.checkScalar(id, tt); err != nil {
			return err
		}
	case KindStruct:
		info, ok := v.reg.StructInfo(id)
		if !ok {
			return v.fail(id, "struct metadata never resolved")
		}
		for _, f := range info.Fields {
			v.path = append(v.path, "field "+f.Name)
			err := v.walk(f.Type)
			v.path = v.path[:len(v.path)-1]
			if err != nil {
				return err
			}
		}
	case KindEnum:
		info, ok := v.reg.EnumInfo(id)
		if !ok {
			return v.fail(id, "enum metadata never resolved")
		}
		if len(info.Cases) == 0 {
			return v.fail(id, "enum with no cases cannot cross the boundary")
		}
		for _, c := range info.Cases {
			if c.Payload == NoTypeID {
				continue
			}
			v.path = append(v.path, "case "+c.Name)
			err := v.walk(c.Payload)
			v.path = v.path[:len(v.path)-1]
			if err != nil {
				return err
			}
		}
	case KindTuple:
		info, ok := v.reg.TupleInfo(id)
		if !ok {
			return v.fail(id, "tuple metadata never resolved")
		}
		for i, elem := range info.Elems {
			v.path = append(v.path, fmt.Sprintf("element %d", i))
			err := v.walk(elem)
			v.path = v.path[:len(v.path)-1]
			if err != nil {
				return err
			}
		}
	case KindFixedArray:
		v.path = append(v.path, "element")
		err := v.walk(tt.Elem)
		v.path = v.path[:len(v.path)-1]
		if err != nil {
			return err
		}
	case KindDynContainer:
		v.path = append(v.path, "element")
		err := v.walk(tt.Elem)
		v.path = v.path[:len(v.path)-1]
		if err != nil {
			return err
		}
	case KindClassRef:
		info, ok := v.reg.ClassInfo(id)
		if !ok {
			return v.fail(id, "class metadata never resolved")
		}
		if info.Name == "" {
			return v.fail(id, "class reference without a class name")
		}
		// Indirection boundary: the referent is runtime-polymorphic and
		// never inlined, so the walk stops here.
	case KindExistential:
		if _, ok := v.reg.ExistentialInfo(id); !ok {
			return v.fail(id, "existential metadata never resolved")
		}
		// Indirection boundary, same as class references.
	default:
		return v.fail(id, fmt.Sprintf("kind %s is outside the bridgeable subset", tt.Kind))
	}

	v.state[id] = stateDone
	return nil
}

func (v *validator) checkScalar(id TypeID, tt Type) error {
	switch tt.Width {
	case Width8, Width16, Width32, Width64:
	default:
		return v.fail(id, fmt.Sprintf("scalar width %d is not representable", tt.Width))
	}
	switch tt.Class {
	case ScalarBool:
		if tt.Width != Width8 {
			return v.fail(id, "bool wider than one byte")
		}
	case ScalarFloat:
		if tt.Width != Width32 && tt.Width != Width64 {
			return v.fail(id, fmt.Sprintf("float width %d is not representable", tt.Width))
		}
	case ScalarSigned, ScalarUnsigned:
	default:
		return v.fail(id, fmt.Sprintf("scalar class %s is outside the bridgeable subset", tt.Class))
	}
	return nil
}

func (v *validator) fail(id TypeID, reason string) error {
	path := make([]string, len(v.path))
	copy(path, v.path)
	return &UnsupportedError{Type: id, Path: path, Reason: reason}
}
