package sink

import (
	"bytes"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/mmdb"
)

// MsgPack writes each record as a separate msgpack map with the keys "net",
// "bits" and "data", back to back.
type MsgPack struct {
	enc   *msgpack.Encoder
	count int
}

func NewMsgPack(w io.Writer) *MsgPack {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return &MsgPack{enc: enc}
}

func (m *MsgPack) Emit(rec mmdb.Record) error {
	m.count++
	enc := m.enc
	if err := enc.EncodeMapLen(3); err != nil {
		return err
	}
	if err := enc.EncodeString("net"); err != nil {
		return err
	}
	if err := enc.EncodeString(rec.Network.Addr().String()); err != nil {
		return err
	}
	if err := enc.EncodeString("bits"); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(rec.Network.Bits())); err != nil {
		return err
	}
	if err := enc.EncodeString("data"); err != nil {
		return err
	}
	return EncodeMsgPackValue(enc, rec.Value)
}

func (m *MsgPack) Count() int {
	return m.count
}

// Close does nothing; the records are written as they arrive.
func (m *MsgPack) Close() error {
	return nil
}

// EncodeMsgPackValue writes v with sorted map keys. uint128 values that do not
// fit into 64 bits are written as 16-byte big-endian bin values.
func EncodeMsgPackValue(enc *msgpack.Encoder, v mmdb.Value) error {
	switch v.Kind() {
	case mmdb.KindString:
		return enc.EncodeString(v.Str())
	case mmdb.KindBytes:
		return enc.EncodeBytes(v.Raw())
	case mmdb.KindUint16, mmdb.KindUint32, mmdb.KindUint64, mmdb.KindUint128:
		if u, ok := v.Uint(); ok {
			return enc.EncodeUint(u)
		}
		var b [16]byte
		return enc.EncodeBytes(v.BigInt().FillBytes(b[:]))
	case mmdb.KindInt32:
		i, _ := v.Int()
		return enc.EncodeInt(int64(i))
	case mmdb.KindFloat32:
		f, _ := v.Float()
		return enc.EncodeFloat32(float32(f))
	case mmdb.KindFloat64:
		f, _ := v.Float()
		return enc.EncodeFloat64(f)
	case mmdb.KindBool:
		return enc.EncodeBool(v.Bool())
	case mmdb.KindSlice:
		if err := enc.EncodeArrayLen(v.Len()); err != nil {
			return err
		}
		for _, item := range v.Slice() {
			if err := EncodeMsgPackValue(enc, item); err != nil {
				return err
			}
		}
		return nil
	case mmdb.KindMap:
		if err := enc.EncodeMapLen(v.Len()); err != nil {
			return err
		}
		for _, k := range v.Keys() {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := EncodeMsgPackValue(enc, v.Get(k)); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.EncodeNil()
	}
}

// MarshalMsgPack encodes a single value, the way Bolt stores record data.
func MarshalMsgPack(v mmdb.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	err := EncodeMsgPackValue(enc, v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
