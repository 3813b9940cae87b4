package mmdb

import (
	"bytes"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

type dataType uint

const (
	typeExtended dataType = iota
	typePointer
	typeString
	typeFloat64
	typeBytes
	typeUint16
	typeUint32
	typeMap
	typeInt32
	typeUint64
	typeUint128
	typeSlice
	typeContainer
	typeEndMarker
	typeBool
	typeFloat32
)

// maxNesting bounds composite nesting plus pointer hops, which also stops
// pointer cycles.
const maxNesting = 512

var pointerBias = [5]uint{1: 0, 2: 2048, 3: 526336, 4: 0}

// decoder reads values from the data section (or the metadata block) of buf.
// Pointers are relative to pointerBase.
type decoder struct {
	buf         []byte
	pointerBase uint
	cache       *lru.Cache[uint, Value]
}

func newDecoder(buf []byte, pointerBase uint, cacheSize int) (*decoder, error) {
	d := &decoder{buf: buf, pointerBase: pointerBase}
	if cacheSize > 0 {
		c, err := lru.New[uint, Value](cacheSize)
		if err != nil {
			return nil, err
		}
		d.cache = c
	}
	return d, nil
}

// decode decodes the value at off, following pointers, and returns it along
// with the offset just past its encoding. For a pointer, that is the end of
// the pointer itself, not of its target.
func (d *decoder) decode(off uint) (Value, uint, error) {
	return d.decodeAt(off, 0)
}

// resolve decodes a value that is the target of a pointer or a search tree
// leaf. These are the offsets shared between records, so this is where the
// cache sits.
func (d *decoder) resolve(off uint, depth int) (Value, error) {
	if d.cache != nil {
		if v, ok := d.cache.Get(off); ok {
			return v, nil
		}
	}
	v, _, err := d.decodeAt(off, depth)
	if err != nil {
		return Value{}, err
	}
	if d.cache != nil {
		d.cache.Add(off, v)
	}
	return v, nil
}

func (d *decoder) decodeAt(off uint, depth int) (Value, uint, error) {
	if depth > maxNesting {
		return Value{}, 0, formatErrf(DataMalformed, off, nil, "nesting deeper than %d levels", maxNesting)
	}
	typ, size, next, err := d.decodeCtrl(off)
	if err != nil {
		return Value{}, 0, err
	}
	if typ == typePointer {
		target, next, err := d.decodePointer(size, next)
		if err != nil {
			return Value{}, 0, err
		}
		v, err := d.resolve(target, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		return v, next, nil
	}
	return d.decodeFromType(typ, size, next, off, depth)
}

// decodeCtrl parses the control byte (plus the extended type byte and the
// extended size bytes, if any) at off.
func (d *decoder) decodeCtrl(off uint) (typ dataType, size uint, next uint, err error) {
	b, err := span(d.buf, off, 1)
	if err != nil {
		return 0, 0, 0, err
	}
	ctrl := b[0]
	next = off + 1

	typ = dataType(ctrl >> 5)
	if typ == typeExtended {
		b, err = span(d.buf, next, 1)
		if err != nil {
			return 0, 0, 0, err
		}
		typ = dataType(b[0]) + 7
		if typ < 8 || typ > typeFloat32 {
			return 0, 0, 0, formatErrf(UnknownValueTag, off, nil, "extended type byte %d", b[0])
		}
		next++
	}

	size = uint(ctrl & 0x1f)
	if typ == typePointer || size < 29 {
		return typ, size, next, nil
	}

	n := size - 28
	b, err = span(d.buf, next, n)
	if err != nil {
		return 0, 0, 0, err
	}
	switch size {
	case 29:
		size = 29 + uint(b[0])
	case 30:
		size = 285 + uint(uintFromBytes(0, b))
	default:
		size = 65821 + uint(uintFromBytes(0, b))
	}
	return typ, size, next + n, nil
}

func (d *decoder) decodePointer(size, off uint) (target uint, next uint, err error) {
	n := ((size >> 3) & 0x3) + 1
	b, err := span(d.buf, off, n)
	if err != nil {
		return 0, 0, err
	}
	var prefix uint64
	if n != 4 {
		prefix = uint64(size & 0x7)
	}
	target = uint(uintFromBytes(prefix, b)) + pointerBias[n] + d.pointerBase
	return target, off + n, nil
}

func (d *decoder) decodeFromType(typ dataType, size, off, start uint, depth int) (Value, uint, error) {
	switch typ {
	case typeMap:
		return d.decodeMap(size, off, depth)
	case typeSlice:
		return d.decodeSlice(size, off, depth)
	case typeBool:
		if size > 1 {
			return Value{}, 0, formatErrf(DataMalformed, start, nil, "bool with size %d", size)
		}
		return Bool(size == 1), off, nil
	case typeContainer, typeEndMarker:
		return Value{}, 0, formatErrf(UnknownValueTag, start, nil, "type %d is not valid in data", typ)
	}

	b, err := span(d.buf, off, size)
	if err != nil {
		return Value{}, 0, err
	}
	next := off + size

	switch typ {
	case typeString:
		return String(string(b)), next, nil
	case typeBytes:
		return Bytes(bytes.Clone(b)), next, nil
	case typeFloat64:
		if size != 8 {
			return Value{}, 0, formatErrf(DataMalformed, start, nil, "float64 with size %d", size)
		}
		return Float64(math.Float64frombits(uintFromBytes(0, b))), next, nil
	case typeFloat32:
		if size != 4 {
			return Value{}, 0, formatErrf(DataMalformed, start, nil, "float32 with size %d", size)
		}
		return Float32(math.Float32frombits(uint32(uintFromBytes(0, b)))), next, nil
	case typeUint16:
		if size > 2 {
			return Value{}, 0, formatErrf(DataMalformed, start, nil, "uint16 with size %d", size)
		}
		return Uint16(uint16(uintFromBytes(0, b))), next, nil
	case typeUint32:
		if size > 4 {
			return Value{}, 0, formatErrf(DataMalformed, start, nil, "uint32 with size %d", size)
		}
		return Uint32(uint32(uintFromBytes(0, b))), next, nil
	case typeInt32:
		if size > 4 {
			return Value{}, 0, formatErrf(DataMalformed, start, nil, "int32 with size %d", size)
		}
		return Int32(int32(uint32(uintFromBytes(0, b)))), next, nil
	case typeUint64:
		if size > 8 {
			return Value{}, 0, formatErrf(DataMalformed, start, nil, "uint64 with size %d", size)
		}
		return Uint64(uintFromBytes(0, b)), next, nil
	case typeUint128:
		if size > 16 {
			return Value{}, 0, formatErrf(DataMalformed, start, nil, "uint128 with size %d", size)
		}
		return Uint128(bigFromBytes(b)), next, nil
	default:
		return Value{}, 0, formatErrf(UnknownValueTag, start, nil, "type %d", typ)
	}
}

func (d *decoder) decodeSlice(size, off uint, depth int) (Value, uint, error) {
	items := make([]Value, 0, min(size, 1024))
	for range size {
		var item Value
		var err error
		item, off, err = d.decodeAt(off, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		items = append(items, item)
	}
	return Slice(items...), off, nil
}

func (d *decoder) decodeMap(size, off uint, depth int) (Value, uint, error) {
	m := make(map[string]Value, min(size, 1024))
	for range size {
		keyOff := off
		key, off2, err := d.decodeAt(off, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		if key.Kind() != KindString {
			return Value{}, 0, formatErrf(DataMalformed, keyOff, nil, "map key is %v, wanted string", key.Kind())
		}
		var val Value
		val, off, err = d.decodeAt(off2, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		m[key.Str()] = val
	}
	return Map(m), off, nil
}
