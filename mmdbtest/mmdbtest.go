// Package mmdbtest builds small MaxMind DB images for tests.
//
// The value helpers return encoded data section bytes and can be nested:
//
//	mmdbtest.Map(mmdbtest.String("country"), mmdbtest.String("US"))
package mmdbtest

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/big"
)

// Type codes as they appear in the data section.
const (
	TypeExtended = iota
	TypePointer
	TypeString
	TypeFloat64
	TypeBytes
	TypeUint16
	TypeUint32
	TypeMap
	TypeInt32
	TypeUint64
	TypeUint128
	TypeSlice
	TypeContainer
	TypeEndMarker
	TypeBool
	TypeFloat32
)

var MetadataMarker = []byte("\xAB\xCD\xEFMaxMind.com")

// Ctrl encodes a control byte for typ with the given payload size (or element
// count), including the extended type byte and extended size bytes.
func Ctrl(typ int, size int) []byte {
	var first byte
	var out []byte
	if typ > 7 {
		out = []byte{0, byte(typ - 7)}
	} else {
		first = byte(typ << 5)
		out = []byte{0}
	}
	switch {
	case size < 29:
		first |= byte(size)
	case size < 285:
		first |= 29
		out = append(out, byte(size-29))
	case size < 65821:
		first |= 30
		out = binary.BigEndian.AppendUint16(out, uint16(size-285))
	default:
		first |= 31
		v := size - 65821
		out = append(out, byte(v>>16), byte(v>>8), byte(v))
	}
	out[0] = first
	return out
}

func String(s string) []byte {
	return append(Ctrl(TypeString, len(s)), s...)
}

func Bytes(b []byte) []byte {
	return append(Ctrl(TypeBytes, len(b)), b...)
}

func Uint16(v uint16) []byte { return uintValue(TypeUint16, uint64(v)) }
func Uint32(v uint32) []byte { return uintValue(TypeUint32, uint64(v)) }
func Uint64(v uint64) []byte { return uintValue(TypeUint64, v) }

func Uint128(v *big.Int) []byte {
	b := v.Bytes()
	return append(Ctrl(TypeUint128, len(b)), b...)
}

// Int32 uses the shortest encoding for non-negative values and four bytes
// for negative ones.
func Int32(v int32) []byte {
	if v < 0 {
		return append(Ctrl(TypeInt32, 4), binary.BigEndian.AppendUint32(nil, uint32(v))...)
	}
	return uintValue(TypeInt32, uint64(v))
}

func Float64(v float64) []byte {
	return append(Ctrl(TypeFloat64, 8), binary.BigEndian.AppendUint64(nil, math.Float64bits(v))...)
}

func Float32(v float32) []byte {
	return append(Ctrl(TypeFloat32, 4), binary.BigEndian.AppendUint32(nil, math.Float32bits(v))...)
}

func Bool(v bool) []byte {
	if v {
		return Ctrl(TypeBool, 1)
	}
	return Ctrl(TypeBool, 0)
}

// Map encodes alternating keys and values.
func Map(kvs ...[]byte) []byte {
	if len(kvs)%2 != 0 {
		panic("mmdbtest.Map: odd number of arguments")
	}
	return append(Ctrl(TypeMap, len(kvs)/2), bytes.Join(kvs, nil)...)
}

func Slice(items ...[]byte) []byte {
	return append(Ctrl(TypeSlice, len(items)), bytes.Join(items, nil)...)
}

// Pointer encodes a pointer to offset p of the data section using the
// smallest size class.
func Pointer(p uint) []byte {
	switch {
	case p < 2048:
		return []byte{0x20 | byte(p>>8)&0x7, byte(p)}
	case p < 526336:
		v := p - 2048
		return []byte{0x20 | 1<<3 | byte(v>>16)&0x7, byte(v >> 8), byte(v)}
	case p < 134744064:
		v := p - 526336
		return []byte{0x20 | 2<<3 | byte(v>>24)&0x7, byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{0x20 | 3<<3, byte(p >> 24), byte(p >> 16), byte(p >> 8), byte(p)}
	}
}

func uintValue(typ int, v uint64) []byte {
	b := binary.BigEndian.AppendUint64(nil, v)
	for len(b) > 0 && b[0] == 0 {
		b = b[1:]
	}
	return append(Ctrl(typ, len(b)), b...)
}

// Cat concatenates encoded pieces.
func Cat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}
