package state

import "fmt"

// Kind is the coarse type tag reported to readers that do not know a key's
// type in advance.
type Kind int

const (
	KindMissing Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	}
	return "other"
}

// Scalar lists the types a store value may hold.
type Scalar interface {
	bool | int | float64 | string | Lifecycle
}

// Value is a tagged variant over Scalar.
type Value struct {
	v any
}

func ValueOf[T Scalar](v T) Value {
	return Value{v: v}
}

func (v Value) Kind() Kind {
	switch v.v.(type) {
	case nil:
		return KindMissing
	case bool:
		return KindBool
	case int:
		return KindInt
	case float64:
		return KindDouble
	case string:
		return KindString
	}
	return KindOther
}

// typeName is exact, unlike Kind which folds lifecycle into other.
func (v Value) typeName() string {
	if _, ok := v.v.(Lifecycle); ok {
		return "lifecycle"
	}
	return v.Kind().String()
}

func (v Value) Interface() any {
	return v.v
}

func (v Value) String() string {
	return fmt.Sprint(v.v)
}

func typeNameOf[T Scalar]() string {
	var zero T
	return Value{v: zero}.typeName()
}
