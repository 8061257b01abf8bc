package dmap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"radar-uptime/internal/models"
)

// Encode writes each epoch as one scalar-only record. Scalar types follow
// the Go type of each value; keys are written in sorted order.
func Encode(w io.Writer, epochs []models.Epoch) error {
	for i, e := range epochs {
		rec, err := encodeRecord(e)
		if err != nil {
			return fmt.Errorf("encode epoch %d: %w", i, err)
		}
		if _, err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func encodeRecord(e models.Epoch) ([]byte, error) {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var body bytes.Buffer
	le := binary.LittleEndian
	for _, k := range keys {
		body.WriteString(k)
		body.WriteByte(0)
		switch v := e[k].(type) {
		case int8:
			body.WriteByte(byte(Char))
			body.WriteByte(byte(v))
		case uint8:
			body.WriteByte(byte(UChar))
			body.WriteByte(v)
		case int16:
			body.WriteByte(byte(Short))
			body.Write(le.AppendUint16(nil, uint16(v)))
		case uint16:
			body.WriteByte(byte(UShort))
			body.Write(le.AppendUint16(nil, v))
		case int32:
			body.WriteByte(byte(Int))
			body.Write(le.AppendUint32(nil, uint32(v)))
		case uint32:
			body.WriteByte(byte(UInt))
			body.Write(le.AppendUint32(nil, v))
		case int64:
			body.WriteByte(byte(Long))
			body.Write(le.AppendUint64(nil, uint64(v)))
		case uint64:
			body.WriteByte(byte(ULong))
			body.Write(le.AppendUint64(nil, v))
		case float32:
			body.WriteByte(byte(Float))
			body.Write(le.AppendUint32(nil, math.Float32bits(v)))
		case float64:
			body.WriteByte(byte(Double))
			body.Write(le.AppendUint64(nil, math.Float64bits(v)))
		case string:
			body.WriteByte(byte(String))
			body.WriteString(v)
			body.WriteByte(0)
		default:
			return nil, fmt.Errorf("field %q: unsupported type %T", k, v)
		}
	}

	out := make([]byte, 0, headerSize+body.Len())
	out = le.AppendUint32(out, uint32(RecordCode))
	out = le.AppendUint32(out, uint32(headerSize+body.Len()))
	out = le.AppendUint32(out, uint32(len(keys)))
	out = le.AppendUint32(out, 0)
	return append(out, body.Bytes()...), nil
}
