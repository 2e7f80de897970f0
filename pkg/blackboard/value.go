package blackboard

import (
	"fmt"

	"github.com/emberline/blueprint/pkg/codec"
	"github.com/emberline/blueprint/pkg/schema"
)

// Kind discriminates the closed set of value types a blackboard slot can hold.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	default:
		return "Invalid"
	}
}

// Value is a tagged union over the supported variable types. The zero Value
// is invalid; checked accessors report false for it and for kind mismatches.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
}

func IntValue(v int64) Value      { return Value{kind: KindInt, i: v} }
func FloatValue(v float64) Value  { return Value{kind: KindFloat, f: v} }
func BoolValue(v bool) Value      { return Value{kind: KindBool, b: v} }
func StringValue(v string) Value  { return Value{kind: KindString, s: v} }

func (v Value) Kind() Kind { return v.kind }

// Int returns the held integer, or false when the value holds another kind.
func (v Value) Int() (int64, bool) {
	return v.i, v.kind == KindInt
}

func (v Value) Float() (float64, bool) {
	return v.f, v.kind == KindFloat
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) Str() (string, bool) {
	return v.s, v.kind == KindString
}

// Any unboxes the value for expression-evaluation scopes. Invalid yields nil.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Encode renders the value in the string wire format used by data ports.
func (v Value) Encode() string {
	switch v.kind {
	case KindInt:
		return codec.FormatInt(v.i)
	case KindFloat:
		return codec.FormatFloat(v.f)
	case KindBool:
		return codec.FormatBool(v.b)
	case KindString:
		return v.s
	default:
		return ""
	}
}

// String renders the value with its kind for logs and snapshots.
func (v Value) String() string {
	if v.kind == KindString {
		return fmt.Sprintf("String(%q)", v.s)
	}
	return fmt.Sprintf("%s(%s)", v.kind, v.Encode())
}

// ZeroValue returns the typed zero for a declared variable type: 0, 0.0,
// false or "". Unknown types zero to the empty string.
func ZeroValue(varType string) Value {
	switch varType {
	case schema.VariableInt:
		return IntValue(0)
	case schema.VariableFloat:
		return FloatValue(0)
	case schema.VariableBool:
		return BoolValue(false)
	default:
		return StringValue("")
	}
}

// ParseValue builds a Value from a declared variable type and its raw string,
// e.g. ("Int", "3"). The type names are the exporter's, see schema.Variable*.
func ParseValue(varType, raw string) (Value, error) {
	switch varType {
	case schema.VariableInt:
		n, err := codec.ParseInt(raw)
		if err != nil {
			return Value{}, schema.NewErrorf(schema.ErrCodeValidation, "invalid Int value %q", raw).WithCause(err)
		}
		return IntValue(n), nil
	case schema.VariableFloat:
		f, err := codec.ParseFloat(raw)
		if err != nil {
			return Value{}, schema.NewErrorf(schema.ErrCodeValidation, "invalid Float value %q", raw).WithCause(err)
		}
		return FloatValue(f), nil
	case schema.VariableBool:
		b, err := codec.ParseBool(raw)
		if err != nil {
			return Value{}, schema.NewErrorf(schema.ErrCodeValidation, "invalid Bool value %q", raw).WithCause(err)
		}
		return BoolValue(b), nil
	case schema.VariableString:
		return StringValue(raw), nil
	default:
		return Value{}, schema.NewErrorf(schema.ErrCodeValidation, "unknown variable type %q", varType)
	}
}
