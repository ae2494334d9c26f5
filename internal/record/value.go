// Package record provides the tagged record model and the sanitize/validate
// steps applied to every inbound batch before it reaches the store.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a sum over {string, integer, null}. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  int64
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a textual value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer value.
func Int(n int64) Value { return Value{kind: KindInt, num: n} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Int64 returns the integer payload and whether v is an integer.
func (v Value) Int64() (int64, bool) { return v.num, v.kind == KindInt }

// Interface returns nil, string or int64.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	default:
		return nil
	}
}

// GoString makes test failure output readable.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	default:
		return "null"
	}
}

// FromInterface converts a decoded JSON, msgpack or driver value into a
// Value. Only nil, strings and integral numbers are accepted.
func FromInterface(x interface{}) (Value, error) {
	switch n := x.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(n), nil
	case []byte:
		return String(string(n)), nil
	case int:
		return Int(int64(n)), nil
	case int8:
		return Int(int64(n)), nil
	case int16:
		return Int(int64(n)), nil
	case int32:
		return Int(int64(n)), nil
	case int64:
		return Int(n), nil
	case uint8:
		return Int(int64(n)), nil
	case uint16:
		return Int(int64(n)), nil
	case uint32:
		return Int(int64(n)), nil
	case uint64:
		if n > math.MaxInt64 {
			return Value{}, fmt.Errorf("record: integer %d overflows int64", n)
		}
		return Int(int64(n)), nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return Value{}, fmt.Errorf("record: number %v is not an integer", n)
		}
		return Int(int64(n)), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return Value{}, fmt.Errorf("record: number %s is not an integer", n)
		}
		return Int(i), nil
	default:
		return Value{}, fmt.Errorf("record: unsupported value type %T", x)
	}
}

// MarshalJSON encodes v as JSON null, string or number.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes null, strings and integral numbers.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var x interface{}
	if err := dec.Decode(&x); err != nil {
		return err
	}
	parsed, err := FromInterface(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
