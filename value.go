package eventz

import (
	"fmt"
	"math"
)

// ValueKind identifies the active variant of a Value.
type ValueKind uint8

// The closed set of field value kinds. The set intentionally mirrors the
// value kinds a tracing front-end can record; it is not a general-purpose
// serialization surface.
const (
	KindNone ValueKind = iota
	KindUint64
	KindInt64
	KindUint128
	KindInt128
	KindFloat64
	KindBool
	KindString
	KindChar
)

// Value is a closed tagged union of field values. The zero Value is KindNone,
// which is never written to the wire; encoders skip None fields entirely.
//
// Scalar payloads share the num/hi words; only strings carry a pointer.
type Value struct {
	str  string
	num  uint64 // Scalar bits, or the low 64 bits of a 128-bit integer.
	hi   uint64 // High 64 bits of a 128-bit integer.
	kind ValueKind
}

// Kind returns the active variant.
func (v Value) Kind() ValueKind { return v.kind }

// Uint64Value returns a Value holding an unsigned 64-bit integer.
func Uint64Value(u uint64) Value { return Value{kind: KindUint64, num: u} }

// Int64Value returns a Value holding a signed 64-bit integer.
func Int64Value(i int64) Value { return Value{kind: KindInt64, num: uint64(i)} }

// Uint128Value returns a Value holding an unsigned 128-bit integer given as
// high and low 64-bit words.
func Uint128Value(hi, lo uint64) Value { return Value{kind: KindUint128, num: lo, hi: hi} }

// Int128Value returns a Value holding a signed 128-bit integer given as high
// and low 64-bit words of its two's-complement representation.
func Int128Value(hi, lo uint64) Value { return Value{kind: KindInt128, num: lo, hi: hi} }

// Float64Value returns a Value holding a 64-bit float.
func Float64Value(f float64) Value { return Value{kind: KindFloat64, num: math.Float64bits(f)} }

// BoolValue returns a Value holding a boolean.
func BoolValue(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// StringValue returns a Value holding UTF-8 text. The string is retained as
// given; callers passing transient buffers must copy first.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// CharValue returns a Value holding a single character.
func CharValue(c rune) Value { return Value{kind: KindChar, num: uint64(uint32(c))} }

// FormatValue returns a Value holding the debug-formatted rendering of an
// arbitrary input. This is the lossy fallback for values outside the closed
// kind set; the formatting allocates, which is unavoidable since the source
// does not outlive the call.
func FormatValue(v interface{}) Value {
	return Value{kind: KindString, str: fmt.Sprintf("%v", v)}
}

// ValueOf converts a raw front-end input into a Value. Inputs outside the
// supported kinds fall back to a debug-formatted string, except errors,
// which are deliberately dropped (returned as KindNone) to match the
// front-end contract for structured error objects.
func ValueOf(v interface{}) Value {
	switch x := v.(type) {
	case Value:
		return x
	case uint64:
		return Uint64Value(x)
	case uint:
		return Uint64Value(uint64(x))
	case uint32:
		return Uint64Value(uint64(x))
	case uint16:
		return Uint64Value(uint64(x))
	case uint8:
		return Uint64Value(uint64(x))
	case int64:
		return Int64Value(x)
	case int:
		return Int64Value(int64(x))
	case int16:
		return Int64Value(int64(x))
	case int8:
		return Int64Value(int64(x))
	case float64:
		return Float64Value(x)
	case float32:
		return Float64Value(float64(x))
	case bool:
		return BoolValue(x)
	case string:
		return StringValue(x)
	case rune:
		return CharValue(x)
	case error:
		// Structured errors are not supported; dropped by design.
		return Value{}
	case nil:
		return Value{}
	default:
		return FormatValue(v)
	}
}

// Uint returns the scalar bits for integer, bool, and char variants, or the
// low word of a 128-bit integer.
func (v Value) Uint() uint64 { return v.num }

// Int returns the signed interpretation of the scalar bits.
func (v Value) Int() int64 { return int64(v.num) }

// Words returns the (high, low) 64-bit words of a 128-bit integer.
func (v Value) Words() (hi, lo uint64) { return v.hi, v.num }

// Float returns the float payload of a KindFloat64 value.
func (v Value) Float() float64 { return math.Float64frombits(v.num) }

// Bool reports the boolean payload of a KindBool value.
func (v Value) Bool() bool { return v.num != 0 }

// Str returns the string payload of a KindString value.
func (v Value) Str() string { return v.str }

// Char returns the character payload of a KindChar value.
func (v Value) Char() rune { return rune(uint32(v.num)) }

// bytes128 returns the little-endian byte representation of a 128-bit value.
func (v Value) bytes128() [16]byte {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v.num >> (8 * i))
		b[8+i] = byte(v.hi >> (8 * i))
	}
	return b
}
