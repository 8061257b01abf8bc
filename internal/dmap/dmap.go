// Package dmap reads the DataMap container used by rawacf files.
//
// A file is a sequence of little-endian records. Each record starts with a
// 16 byte header (code, total size, scalar count, array count) followed by
// the scalars and then the arrays. Only scalars are surfaced; array blocks
// are validated and skipped.
package dmap

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"radar-uptime/internal/models"
)

// Type is a DataMap value type code.
type Type int8

const (
	Char   Type = 1
	Short  Type = 2
	Int    Type = 3
	Float  Type = 4
	Double Type = 8
	String Type = 9
	Long   Type = 10
	UChar  Type = 16
	UShort Type = 17
	UInt   Type = 18
	ULong  Type = 19
)

// RecordCode marks the start of every record.
const RecordCode int32 = 0x00010001

const (
	headerSize    = 16
	maxRecordSize = 64 << 20

	// Smallest encodings: a scalar is an empty name, a type code and one
	// value byte; an array is an empty name, a type code, a dimension count
	// and one range.
	minScalarSize = 3
	minArraySize  = 10
)

func (t Type) size() (int, bool) {
	switch t {
	case Char, UChar:
		return 1, true
	case Short, UShort:
		return 2, true
	case Int, UInt, Float:
		return 4, true
	case Double, Long, ULong:
		return 8, true
	case String:
		return 0, true
	}
	return 0, false
}

// DataError reports a corrupt or truncated DataMap stream.
type DataError struct {
	Record  int
	Offset  int64
	Message string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("dmap: record %d at offset %d: %s", e.Record, e.Offset, e.Message)
}

// IsTransient returns false; re-reading a corrupt file gives the same result.
func (e *DataError) IsTransient() bool {
	return false
}

// DecodeFile reads every record of a .rawacf file. Files ending in .bz2 are
// decompressed on the fly.
func DecodeFile(path string) ([]models.Epoch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".bz2") {
		r = bzip2.NewReader(r)
	}
	return Decode(r)
}

// Decode reads records until EOF and returns their scalars, one epoch per
// record.
func Decode(r io.Reader) ([]models.Epoch, error) {
	var (
		epochs []models.Epoch
		offset int64
		header [headerSize]byte
	)

	for idx := 0; ; idx++ {
		n, err := io.ReadFull(r, header[:])
		if err == io.EOF {
			return epochs, nil
		}
		if err != nil {
			return nil, wrapReadErr(idx, offset, n, err, "header")
		}

		code := int32(binary.LittleEndian.Uint32(header[0:4]))
		size := int32(binary.LittleEndian.Uint32(header[4:8]))
		nscalars := int32(binary.LittleEndian.Uint32(header[8:12]))
		narrays := int32(binary.LittleEndian.Uint32(header[12:16]))

		if code != RecordCode {
			return nil, &DataError{Record: idx, Offset: offset, Message: fmt.Sprintf("bad record code 0x%08x", uint32(code))}
		}
		if size < headerSize || size > maxRecordSize {
			return nil, &DataError{Record: idx, Offset: offset, Message: fmt.Sprintf("bad record size %d", size)}
		}
		if nscalars < 0 || narrays < 0 {
			return nil, &DataError{Record: idx, Offset: offset, Message: "negative field count"}
		}
		if int64(nscalars)*minScalarSize+int64(narrays)*minArraySize > int64(size-headerSize) {
			return nil, &DataError{Record: idx, Offset: offset, Message: fmt.Sprintf(
				"%d scalars and %d arrays cannot fit in %d bytes", nscalars, narrays, size-headerSize)}
		}

		body := make([]byte, size-headerSize)
		if n, err := io.ReadFull(r, body); err != nil {
			return nil, wrapReadErr(idx, offset, n, err, "body")
		}

		p := &parser{buf: body, record: idx, base: offset + headerSize}
		epoch, err := p.readRecord(int(nscalars), int(narrays))
		if err != nil {
			return nil, err
		}
		epochs = append(epochs, epoch)
		offset += int64(size)
	}
}

func wrapReadErr(idx int, offset int64, n int, err error, what string) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &DataError{Record: idx, Offset: offset, Message: fmt.Sprintf("truncated %s (%d bytes read)", what, n)}
	}
	var bzErr bzip2.StructuralError
	if errors.As(err, &bzErr) {
		return &DataError{Record: idx, Offset: offset, Message: err.Error()}
	}
	return fmt.Errorf("dmap: read %s of record %d: %w", what, idx, err)
}

type parser struct {
	buf    []byte
	pos    int
	record int
	base   int64
}

func (p *parser) fail(format string, args ...any) error {
	return &DataError{Record: p.record, Offset: p.base + int64(p.pos), Message: fmt.Sprintf(format, args...)}
}

func (p *parser) readRecord(nscalars, narrays int) (models.Epoch, error) {
	epoch := make(models.Epoch, nscalars)
	for i := 0; i < nscalars; i++ {
		name, err := p.cstring()
		if err != nil {
			return nil, err
		}
		t, err := p.typeCode()
		if err != nil {
			return nil, err
		}
		v, err := p.value(t)
		if err != nil {
			return nil, err
		}
		epoch[name] = v
	}
	for i := 0; i < narrays; i++ {
		if err := p.skipArray(); err != nil {
			return nil, err
		}
	}
	if p.pos != len(p.buf) {
		return nil, p.fail("%d trailing bytes in record", len(p.buf)-p.pos)
	}
	return epoch, nil
}

func (p *parser) take(n int) ([]byte, error) {
	if n < 0 || p.pos+n > len(p.buf) {
		return nil, p.fail("need %d bytes, %d left", n, len(p.buf)-p.pos)
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

func (p *parser) cstring() (string, error) {
	i := bytes.IndexByte(p.buf[p.pos:], 0)
	if i < 0 {
		return "", p.fail("unterminated string")
	}
	s := string(p.buf[p.pos : p.pos+i])
	p.pos += i + 1
	return s, nil
}

func (p *parser) typeCode() (Type, error) {
	b, err := p.take(1)
	if err != nil {
		return 0, err
	}
	t := Type(int8(b[0]))
	if _, ok := t.size(); !ok {
		return 0, p.fail("unknown type code %d", t)
	}
	return t, nil
}

func (p *parser) value(t Type) (any, error) {
	if t == String {
		return p.cstring()
	}
	size, _ := t.size()
	b, err := p.take(size)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	switch t {
	case Char:
		return int8(b[0]), nil
	case UChar:
		return b[0], nil
	case Short:
		return int16(le.Uint16(b)), nil
	case UShort:
		return le.Uint16(b), nil
	case Int:
		return int32(le.Uint32(b)), nil
	case UInt:
		return le.Uint32(b), nil
	case Long:
		return int64(le.Uint64(b)), nil
	case ULong:
		return le.Uint64(b), nil
	case Float:
		return math.Float32frombits(le.Uint32(b)), nil
	case Double:
		return math.Float64frombits(le.Uint64(b)), nil
	}
	return nil, p.fail("unknown type code %d", t)
}

func (p *parser) skipArray() error {
	if _, err := p.cstring(); err != nil {
		return err
	}
	t, err := p.typeCode()
	if err != nil {
		return err
	}
	b, err := p.take(4)
	if err != nil {
		return err
	}
	dim := int32(binary.LittleEndian.Uint32(b))
	if dim <= 0 {
		return p.fail("bad array dimension %d", dim)
	}

	count := int64(1)
	for d := int32(0); d < dim; d++ {
		b, err := p.take(4)
		if err != nil {
			return err
		}
		rng := int32(binary.LittleEndian.Uint32(b))
		if rng < 0 {
			return p.fail("negative array range %d", rng)
		}
		count *= int64(rng)
		if count > int64(len(p.buf)) {
			return p.fail("array larger than record")
		}
	}

	if t == String {
		for i := int64(0); i < count; i++ {
			if _, err := p.cstring(); err != nil {
				return err
			}
		}
		return nil
	}
	size, _ := t.size()
	_, err = p.take(int(count) * size)
	return err
}
