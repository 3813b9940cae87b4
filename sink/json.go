// Package sink contains mmdb.Sink implementations that serialize dumped
// records.
package sink

import (
	"encoding/base64"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/andreyvit/mmdb"
)

const jsonFlushThreshold = 64 * 1024

// JSON writes records as a single JSON array of
// {"net": "1.2.3.0", "bits": 24, "data": ...} objects. Separators are written
// before every element but the first, so the output is valid JSON at any
// record count once Close has been called.
//
// JSON has no NaN or infinities: a record holding one fails Emit with the
// stream's "unsupported value" error, which aborts the dump.
type JSON struct {
	stream *jsoniter.Stream
	count  int
	closed bool
}

func NewJSON(w io.Writer) *JSON {
	stream := jsoniter.NewStream(jsoniter.ConfigCompatibleWithStandardLibrary, w, jsonFlushThreshold)
	stream.WriteArrayStart()
	return &JSON{stream: stream}
}

func (j *JSON) Emit(rec mmdb.Record) error {
	s := j.stream
	if j.count > 0 {
		s.WriteMore()
	}
	j.count++

	s.WriteObjectStart()
	s.WriteObjectField("net")
	s.WriteString(rec.Network.Addr().String())
	s.WriteMore()
	s.WriteObjectField("bits")
	s.WriteInt(rec.Network.Bits())
	s.WriteMore()
	s.WriteObjectField("data")
	WriteJSONValue(s, rec.Value)
	s.WriteObjectEnd()

	if s.Error != nil {
		return s.Error
	}
	if s.Buffered() >= jsonFlushThreshold {
		return s.Flush()
	}
	return nil
}

// Count is the number of records written so far.
func (j *JSON) Count() int {
	return j.count
}

// Close terminates the array and flushes. It does not close the underlying
// writer.
func (j *JSON) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	j.stream.WriteArrayEnd()
	if j.stream.Error != nil {
		return j.stream.Error
	}
	return j.stream.Flush()
}

// WriteJSONValue writes v with sorted map keys. Bytes become base64 strings,
// and uint128 values become plain (possibly very large) number literals.
func WriteJSONValue(s *jsoniter.Stream, v mmdb.Value) {
	switch v.Kind() {
	case mmdb.KindString:
		s.WriteString(v.Str())
	case mmdb.KindBytes:
		s.WriteString(base64.StdEncoding.EncodeToString(v.Raw()))
	case mmdb.KindUint16, mmdb.KindUint32, mmdb.KindUint64:
		u, _ := v.Uint()
		s.WriteUint64(u)
	case mmdb.KindUint128:
		s.WriteRaw(v.BigInt().String())
	case mmdb.KindInt32:
		i, _ := v.Int()
		s.WriteInt32(i)
	case mmdb.KindFloat32:
		f, _ := v.Float()
		s.WriteFloat32(float32(f))
	case mmdb.KindFloat64:
		f, _ := v.Float()
		s.WriteFloat64(f)
	case mmdb.KindBool:
		s.WriteBool(v.Bool())
	case mmdb.KindSlice:
		s.WriteArrayStart()
		for i, item := range v.Slice() {
			if i > 0 {
				s.WriteMore()
			}
			WriteJSONValue(s, item)
		}
		s.WriteArrayEnd()
	case mmdb.KindMap:
		s.WriteObjectStart()
		for i, k := range v.Keys() {
			if i > 0 {
				s.WriteMore()
			}
			s.WriteObjectField(k)
			WriteJSONValue(s, v.Get(k))
		}
		s.WriteObjectEnd()
	default:
		s.WriteNil()
	}
}
