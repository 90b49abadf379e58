// Package buffer provides the primitive byte I/O the packet codec is built on.
//
// All multi-byte fixed-width values are big-endian (network byte order).
// Variable-length integers use the unsigned LEB128 layout of encoding/binary:
// seven payload bits per byte, high bit set on every byte except the last.
//
//	varint(300) = 0xAC 0x02
//
// Strings and byte spans carry an unsigned varint length prefix. A Reader
// owns a single forward-only cursor; nothing ever seeks backwards.
package buffer

import (
	"encoding/binary"
	"math"
	"sync"
	"unicode/utf8"
)

// Presence bytes written in front of a nullable value.
const (
	NullMarker    byte = 0x00 // value absent, no payload follows
	PresentMarker byte = 0x01 // value present, payload follows
)

// Reader reads primitives from an in-memory byte span.
type Reader struct {
	buf []byte
	pos int
}

// NewReader creates a Reader positioned at the first byte of data.
// The Reader does not copy data; the caller must not modify it while reading.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Offset reports how many bytes have been consumed so far.
func (r *Reader) Offset() int {
	return r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// PeekIsNullMarker reports whether the next byte is NullMarker without consuming it.
func (r *Reader) PeekIsNullMarker() bool {
	return r.pos < len(r.buf) && r.buf[r.pos] == NullMarker
}

// SkipByte consumes one byte.
func (r *Reader) SkipByte() error {
	_, err := r.take(1)
	return err
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBool reads one byte that must be 0 or 1.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidBool
	}
}

func (r *Reader) ReadShort() (int16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *Reader) ReadInt() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) ReadLong() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) ReadFloat() (float32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) ReadDouble() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// ReadBytes reads exactly n raw bytes into a freshly allocated slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadString reads a varint length prefix followed by that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUnsignedVarInt()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// ReadUnsignedVarLong reads an unsigned varint of up to 64 bits.
func (r *Reader) ReadUnsignedVarLong() (uint64, error) {
	if r.Remaining() == 0 {
		return 0, ErrTruncated
	}
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n == 0 {
		return 0, ErrTruncated
	}
	if n < 0 {
		return 0, ErrVarintOverflow
	}
	r.pos += n
	return v, nil
}

// ReadUnsignedVarInt reads an unsigned varint that must fit in 32 bits.
func (r *Reader) ReadUnsignedVarInt() (uint32, error) {
	v, err := r.ReadUnsignedVarLong()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, ErrVarintOverflow
	}
	return uint32(v), nil
}

// ReadUnsignedVarShort reads an unsigned varint that must fit in 16 bits.
func (r *Reader) ReadUnsignedVarShort() (uint16, error) {
	v, err := r.ReadUnsignedVarLong()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint16 {
		return 0, ErrVarintOverflow
	}
	return uint16(v), nil
}

// Writer appends primitives to a growable byte slice.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer with a small preallocated capacity.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// Bytes returns the written bytes. The slice aliases the Writer's storage
// and is only valid until the next write or Reset.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

func (w *Writer) WriteNullMarker() {
	w.buf = append(w.buf, NullMarker)
}

func (w *Writer) WritePresentMarker() {
	w.buf = append(w.buf, PresentMarker)
}

func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) WriteShort(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *Writer) WriteInt(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) WriteLong(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *Writer) WriteFloat(v float32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *Writer) WriteDouble(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// WriteBytes appends p without a length prefix.
func (w *Writer) WriteBytes(p []byte) {
	w.buf = append(w.buf, p...)
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// WriteString appends a varint length prefix and the UTF-8 bytes of s.
func (w *Writer) WriteString(s string) error {
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	if uint64(len(s)) > math.MaxUint32 {
		return ErrTooLong
	}
	w.WriteUnsignedVarInt(uint32(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

func (w *Writer) WriteUnsignedVarLong(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *Writer) WriteUnsignedVarInt(v uint32) {
	w.buf = binary.AppendUvarint(w.buf, uint64(v))
}

func (w *Writer) WriteUnsignedVarShort(v uint16) {
	w.buf = binary.AppendUvarint(w.buf, uint64(v))
}

var writerPool = sync.Pool{
	New: func() any {
		return NewWriter()
	},
}

// GetWriter takes an empty Writer from the shared pool.
func GetWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// PutWriter returns w to the pool. w must not be used afterwards.
func PutWriter(w *Writer) {
	if cap(w.buf) > 64*1024 {
		return
	}
	writerPool.Put(w)
}
