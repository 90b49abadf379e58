package buffer

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestFixedWidthRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteBool(true)
	w.WriteByte(0xfe)
	w.WriteShort(-2)
	w.WriteInt(math.MinInt32)
	w.WriteLong(math.MaxInt64)
	w.WriteFloat(1.5)
	w.WriteDouble(-0.25)

	r := NewReader(w.Bytes())
	if v, err := r.ReadBool(); err != nil || !v {
		t.Fatalf("ReadBool = %v, %v", v, err)
	}
	if v, err := r.ReadByte(); err != nil || v != 0xfe {
		t.Fatalf("ReadByte = %x, %v", v, err)
	}
	if v, err := r.ReadShort(); err != nil || v != -2 {
		t.Fatalf("ReadShort = %d, %v", v, err)
	}
	if v, err := r.ReadInt(); err != nil || v != math.MinInt32 {
		t.Fatalf("ReadInt = %d, %v", v, err)
	}
	if v, err := r.ReadLong(); err != nil || v != math.MaxInt64 {
		t.Fatalf("ReadLong = %d, %v", v, err)
	}
	if v, err := r.ReadFloat(); err != nil || v != 1.5 {
		t.Fatalf("ReadFloat = %v, %v", v, err)
	}
	if v, err := r.ReadDouble(); err != nil || v != -0.25 {
		t.Fatalf("ReadDouble = %v, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected no remaining bytes, got %d", r.Remaining())
	}
}

func TestBigEndianLayout(t *testing.T) {
	w := NewWriter()
	w.WriteInt(0x01020304)
	if !bytes.Equal(w.Bytes(), []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected layout: %x", w.Bytes())
	}
}

func TestVarintLayout(t *testing.T) {
	w := NewWriter()
	w.WriteUnsignedVarInt(300)
	if !bytes.Equal(w.Bytes(), []byte{0xac, 0x02}) {
		t.Fatalf("varint(300) = %x", w.Bytes())
	}
	r := NewReader(w.Bytes())
	v, err := r.ReadUnsignedVarInt()
	if err != nil || v != 300 {
		t.Fatalf("ReadUnsignedVarInt = %d, %v", v, err)
	}
}

func TestVarintWidthOverflow(t *testing.T) {
	w := NewWriter()
	w.WriteUnsignedVarLong(math.MaxUint32 + 1)
	if _, err := NewReader(w.Bytes()).ReadUnsignedVarInt(); !errors.Is(err, ErrVarintOverflow) {
		t.Fatalf("expected ErrVarintOverflow, got %v", err)
	}

	w.Reset()
	w.WriteUnsignedVarInt(math.MaxUint16 + 1)
	if _, err := NewReader(w.Bytes()).ReadUnsignedVarShort(); !errors.Is(err, ErrVarintOverflow) {
		t.Fatalf("expected ErrVarintOverflow, got %v", err)
	}
}

func TestVarintTruncated(t *testing.T) {
	_, err := NewReader([]byte{0x80, 0x80}).ReadUnsignedVarLong()
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	w := NewWriter()
	if err := w.WriteString("héllo"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	s, err := NewReader(w.Bytes()).ReadString()
	if err != nil || s != "héllo" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
}

func TestStringInvalidUTF8(t *testing.T) {
	w := NewWriter()
	if err := w.WriteString(string([]byte{0xff, 0xfe})); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8 on write, got %v", err)
	}
	_, err := NewReader([]byte{2, 0xff, 0xfe}).ReadString()
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8 on read, got %v", err)
	}
}

func TestReadBytesTruncated(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.ReadBytes(3); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if r.Offset() != 0 {
		t.Fatalf("failed read must not advance the cursor, offset=%d", r.Offset())
	}
}

func TestReadBoolRejectsOtherValues(t *testing.T) {
	if _, err := NewReader([]byte{2}).ReadBool(); !errors.Is(err, ErrInvalidBool) {
		t.Fatalf("expected ErrInvalidBool, got %v", err)
	}
}

func TestNullMarkerPeek(t *testing.T) {
	w := NewWriter()
	w.WriteNullMarker()
	w.WritePresentMarker()
	r := NewReader(w.Bytes())
	if !r.PeekIsNullMarker() {
		t.Fatalf("expected null marker")
	}
	if err := r.SkipByte(); err != nil {
		t.Fatalf("SkipByte: %v", err)
	}
	if r.PeekIsNullMarker() {
		t.Fatalf("present marker reported as null")
	}
	if err := r.SkipByte(); err != nil {
		t.Fatalf("SkipByte: %v", err)
	}
	if r.PeekIsNullMarker() {
		t.Fatalf("empty reader reported a null marker")
	}
	if err := r.SkipByte(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestWriterPoolReset(t *testing.T) {
	w := GetWriter()
	w.WriteInt(7)
	PutWriter(w)
	w2 := GetWriter()
	if w2.Len() != 0 {
		t.Fatalf("pooled writer not reset, len=%d", w2.Len())
	}
	PutWriter(w2)
}
