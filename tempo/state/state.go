// Package state encodes and decodes the timing core's save states.
//
// Every component writes its fields in a fixed order with Writer and reads them
// back in the same order with Reader. Values are little endian and fixed
// width so that re-encoding a decoded state reproduces the same bytes.
package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrCorrupt is returned when a save state is truncated or holds values that
// can't belong to a valid component state.
var ErrCorrupt = errors.New("corrupt save state")

// Writer accumulates a save state. The first error sticks and is returned by Bytes.
type Writer struct {
	buf bytes.Buffer
	err error
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) U8(v uint8) {
	if w.err != nil {
		return
	}
	w.buf.WriteByte(v)
}

func (w *Writer) U16(v uint16) {
	if w.err != nil {
		return
	}
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (w *Writer) U32(v uint32) {
	if w.err != nil {
		return
	}
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (w *Writer) U64(v uint64) {
	if w.err != nil {
		return
	}
	w.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
}

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// String writes a length-prefixed string.
func (w *Writer) String(v string) {
	w.U32(uint32(len(v)))
	if w.err != nil {
		return
	}
	w.buf.WriteString(v)
}

// Value writes any fixed-size value (see encoding/binary).
func (w *Writer) Value(v any) {
	if w.err != nil {
		return
	}
	if err := binary.Write(&w.buf, binary.LittleEndian, v); err != nil {
		w.err = fmt.Errorf("state: encoding %T: %w", v, err)
	}
}

// Tag writes a short section marker, checked by Reader.Expect.
func (w *Writer) Tag(tag string) {
	w.String(tag)
}

// Err returns the first error hit while writing.
func (w *Writer) Err() error {
	return w.err
}

// Bytes returns the encoded state.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return bytes.Clone(w.buf.Bytes()), nil
}

// Reader decodes a save state. The first error sticks; later reads return zero values.
type Reader struct {
	r   *bytes.Reader
	err error
}

func NewReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

func (r *Reader) read(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.err = fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return b
}

func (r *Reader) U8() uint8 {
	return r.read(1)[0]
}

func (r *Reader) U16() uint16 {
	return binary.LittleEndian.Uint16(r.read(2))
}

func (r *Reader) U32() uint32 {
	return binary.LittleEndian.Uint32(r.read(4))
}

func (r *Reader) U64() uint64 {
	return binary.LittleEndian.Uint64(r.read(8))
}

func (r *Reader) Bool() bool {
	switch v := r.U8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		r.Fail("invalid bool %d", v)
		return false
	}
}

func (r *Reader) String() string {
	n := r.U32()
	if r.err != nil {
		return ""
	}
	if int64(n) > int64(r.r.Len()) {
		r.Fail("string length %d past end of data", n)
		return ""
	}
	return string(r.read(int(n)))
}

// Value reads into a pointer to a fixed-size value.
func (r *Reader) Value(v any) {
	if r.err != nil {
		return
	}
	if err := binary.Read(r.r, binary.LittleEndian, v); err != nil {
		r.err = fmt.Errorf("%w: decoding %T: %w", ErrCorrupt, v, err)
	}
}

// Expect reads a section marker and fails unless it matches tag.
func (r *Reader) Expect(tag string) {
	if got := r.String(); r.err == nil && got != tag {
		r.Fail("expected section %q, found %q", tag, got)
	}
}

// Fail records a validation failure. Only the first failure is kept.
func (r *Reader) Fail(format string, args ...any) {
	if r.err != nil {
		return
	}
	r.err = fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// Err returns the first error hit while reading.
func (r *Reader) Err() error {
	return r.err
}

// Done fails if unread bytes remain and returns the reader's error.
func (r *Reader) Done() error {
	if r.err == nil && r.r.Len() != 0 {
		r.Fail("%d trailing bytes", r.r.Len())
	}
	return r.err
}
