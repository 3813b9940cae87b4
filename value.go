package mmdb

import (
	"bytes"
	"encoding/hex"
	"maps"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies the type of a decoded Value. The numbers match the type
// codes used in the data section; pointers are always resolved during
// decoding, so there is no pointer kind.
type Kind uint8

const (
	KindInvalid Kind = 0
	KindString  Kind = 2
	KindFloat64 Kind = 3
	KindBytes   Kind = 4
	KindUint16  Kind = 5
	KindUint32  Kind = 6
	KindMap     Kind = 7
	KindInt32   Kind = 8
	KindUint64  Kind = 9
	KindUint128 Kind = 10
	KindSlice   Kind = 11
	KindBool    Kind = 14
	KindFloat32 Kind = 15
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFloat64:
		return "float64"
	case KindBytes:
		return "bytes"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindMap:
		return "map"
	case KindInt32:
		return "int32"
	case KindUint64:
		return "uint64"
	case KindUint128:
		return "uint128"
	case KindSlice:
		return "slice"
	case KindBool:
		return "bool"
	case KindFloat32:
		return "float32"
	default:
		return "invalid"
	}
}

// Value is a decoded data section value. The zero Value is invalid.
//
// Values are immutable: composite values may be shared between records
// (e.g. when the decoder cache is on), so callers must not modify the
// slices and maps returned by the accessors.
type Value struct {
	kind Kind
	bits uint64 // unsigned ints, int32, bool, float bits
	str  string
	raw  []byte
	big  *big.Int
	arr  []Value
	m    map[string]Value
}

func String(s string) Value { return Value{kind: KindString, str: s} }
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }
func Uint16(v uint16) Value { return Value{kind: KindUint16, bits: uint64(v)} }
func Uint32(v uint32) Value { return Value{kind: KindUint32, bits: uint64(v)} }
func Uint64(v uint64) Value { return Value{kind: KindUint64, bits: v} }
func Int32(v int32) Value { return Value{kind: KindInt32, bits: uint64(uint32(v))} }
func Float64(v float64) Value { return Value{kind: KindFloat64, bits: math.Float64bits(v)} }
func Float32(v float32) Value { return Value{kind: KindFloat32, bits: uint64(math.Float32bits(v))} }
func Slice(items ...Value) Value { return Value{kind: KindSlice, arr: items} }

func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

// Uint128 wraps v, which must be non-negative and fit into 128 bits.
func Uint128(v *big.Int) Value {
	return Value{kind: KindUint128, big: v}
}

// Map builds a map value. The map is retained, not copied.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Str returns the string, or "" for non-strings.
func (v Value) Str() string { return v.str }

// Raw returns the payload of a bytes value.
func (v Value) Raw() []byte { return v.raw }

// Bool reports the value of a bool; false for other kinds.
func (v Value) Bool() bool { return v.kind == KindBool && v.bits != 0 }

// Uint returns the value of any unsigned kind that fits into 64 bits.
func (v Value) Uint() (uint64, bool) {
	switch v.kind {
	case KindUint16, KindUint32, KindUint64:
		return v.bits, true
	case KindUint128:
		if v.big.IsUint64() {
			return v.big.Uint64(), true
		}
	}
	return 0, false
}

func (v Value) Int() (int32, bool) {
	if v.kind != KindInt32 {
		return 0, false
	}
	return int32(uint32(v.bits)), true
}

// Float returns the value of a float32 or float64 as a float64.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat64:
		return math.Float64frombits(v.bits), true
	case KindFloat32:
		return float64(math.Float32frombits(uint32(v.bits))), true
	}
	return 0, false
}

// BigInt returns any unsigned integer kind as a big.Int. The result must not
// be modified.
func (v Value) BigInt() *big.Int {
	switch v.kind {
	case KindUint128:
		return v.big
	case KindUint16, KindUint32, KindUint64:
		return new(big.Int).SetUint64(v.bits)
	}
	return nil
}

func (v Value) Slice() []Value { return v.arr }
func (v Value) Map() map[string]Value { return v.m }
func (v Value) Get(key string) Value { return v.m[key] }

// Len returns the element count of slices and maps, the byte length of
// strings and bytes, and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindSlice:
		return len(v.arr)
	case KindMap:
		return len(v.m)
	case KindString:
		return len(v.str)
	case KindBytes:
		return len(v.raw)
	}
	return 0
}

// Keys returns the map keys in sorted order.
func (v Value) Keys() []string {
	return slices.Sorted(maps.Keys(v.m))
}

// Equal reports structural equality. Kinds must match exactly, so
// Uint16(1) and Uint32(1) are not equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInvalid:
		return true
	case KindString:
		return v.str == o.str
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	case KindUint128:
		return v.big.Cmp(o.big) == 0
	case KindSlice:
		return slices.EqualFunc(v.arr, o.arr, Value.Equal)
	case KindMap:
		return maps.EqualFunc(v.m, o.m, Value.Equal)
	default:
		return v.bits == o.bits
	}
}

// Interface converts v into plain Go values: string, []byte, uint16, uint32,
// uint64, *big.Int, int32, float32, float64, bool, []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindBytes:
		return v.raw
	case KindUint16:
		return uint16(v.bits)
	case KindUint32:
		return uint32(v.bits)
	case KindUint64:
		return v.bits
	case KindUint128:
		return v.big
	case KindInt32:
		return int32(uint32(v.bits))
	case KindFloat32:
		return math.Float32frombits(uint32(v.bits))
	case KindFloat64:
		return math.Float64frombits(v.bits)
	case KindBool:
		return v.bits != 0
	case KindSlice:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	}
	return nil
}

// String returns a compact debug representation with sorted map keys.
func (v Value) String() string {
	var buf strings.Builder
	v.dump(&buf)
	return buf.String()
}

func (v Value) dump(buf *strings.Builder) {
	switch v.kind {
	case KindString:
		buf.WriteString(strconv.Quote(v.str))
	case KindBytes:
		buf.WriteString("0x")
		buf.WriteString(hex.EncodeToString(v.raw))
	case KindUint16, KindUint32, KindUint64:
		buf.WriteString(strconv.FormatUint(v.bits, 10))
	case KindUint128:
		buf.WriteString(v.big.String())
	case KindInt32:
		buf.WriteString(strconv.FormatInt(int64(int32(uint32(v.bits))), 10))
	case KindFloat32:
		buf.WriteString(strconv.FormatFloat(float64(math.Float32frombits(uint32(v.bits))), 'g', -1, 32))
	case KindFloat64:
		buf.WriteString(strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64))
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.bits != 0))
	case KindSlice:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteString(", ")
			}
			item.dump(buf)
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(k)
			buf.WriteString(": ")
			v.m[k].dump(buf)
		}
		buf.WriteByte('}')
	default:
		buf.WriteString("<invalid>")
	}
}
