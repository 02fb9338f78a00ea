package descriptor

import "fmt"

// TypeID uniquely identifies a type inside the registry.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all bridgeable kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindScalar
	KindStruct
	KindEnum
	KindTuple
	KindFixedArray
	KindDynContainer
	KindClassRef
	KindExistential
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindScalar:
		return "scalar"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindTuple:
		return "tuple"
	case KindFixedArray:
		return "array"
	case KindDynContainer:
		return "container"
	case KindClassRef:
		return "class"
	case KindExistential:
		return "existential"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// ScalarClass captures the interpretation of a scalar's bits.
type ScalarClass uint8

const (
	ScalarBool ScalarClass = iota
	ScalarSigned
	ScalarUnsigned
	ScalarFloat
)

func (c ScalarClass) String() string {
	switch c {
	case ScalarBool:
		return "bool"
	case ScalarSigned:
		return "signed"
	case ScalarUnsigned:
		return "unsigned"
	case ScalarFloat:
		return "float"
	default:
		return fmt.Sprintf("ScalarClass(%d)", c)
	}
}

// Width captures the precision of scalars in bits.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// RefStrength captures how a class reference participates in reference
// counting.
type RefStrength uint8

const (
	RefStrong RefStrength = iota
	RefWeak
	RefUnowned
)

func (s RefStrength) String() string {
	switch s {
	case RefStrong:
		return "strong"
	case RefWeak:
		return "weak"
	case RefUnowned:
		return "unowned"
	default:
		return fmt.Sprintf("RefStrength(%d)", s)
	}
}

// Type is a compact descriptor for any bridgeable type. Nominal kinds keep
// their metadata in registry side tables addressed by Payload.
type Type struct {
	Kind     Kind
	Class    ScalarClass // for scalars
	Width    Width       // for scalars
	Elem     TypeID      // for fixed arrays and dynamic containers
	Count    uint32      // for fixed arrays
	Strength RefStrength // for class references
	Payload  uint32      // side-table slot for nominal kinds
}

// Descriptor helpers ---------------------------------------------------------

// MakeScalar describes a scalar of the given class and bit width.
func MakeScalar(class ScalarClass, width Width) Type {
	return Type{Kind: KindScalar, Class: class, Width: width}
}

// MakeFixedArray describes a fixed-length inline array of the element type.
func MakeFixedArray(elem TypeID, count uint32) Type {
	return Type{Kind: KindFixedArray, Elem: elem, Count: count}
}

// MakeDynContainer describes a growable container handle over the element
// type. Growth policy belongs to the foreign runtime and is opaque here.
func MakeDynContainer(elem TypeID) Type {
	return Type{Kind: KindDynContainer, Elem: elem}
}
