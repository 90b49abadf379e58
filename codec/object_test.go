package codec

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"liquidnet/buffer"
)

type color int32

const (
	red color = iota
	green
	blue
)

func (color) EnumLen() int { return 3 }

type profile struct {
	ID   int32 `wire:"unsigned"`
	Name string
	Tags []string
}

type inner struct {
	A int16
	B *string
}

type allShapes struct {
	Flag    bool
	I8      int8
	U8      uint8
	S       int16
	I       int32
	L       int64
	US      uint16
	UI      uint32
	UL      uint64
	VS      int16 `wire:"unsigned"`
	VL      int64 `wire:"unsigned"`
	F       float32
	D       float64
	Str     string
	Color   color
	Raw     []byte
	Fixed   [4]byte
	List    []int32
	VList   []int64 `wire:"unsigned"`
	Nested  inner
	PNested *inner
	OptInt  *int32
	OptU    *int64   `wire:"unsigned"`
	OptList []string `wire:"nullable"`
	Matrix  [][]int32
	Colors  []color
	Items   []inner
	PItems  []*inner
	Skipped string `wire:"-"`
	hidden  int
}

type node struct {
	Value int32
	Next  *node
}

func strPtr(s string) *string { return &s }

func TestProfileLayout(t *testing.T) {
	c := NewObjectCodec(nil)
	data, err := c.Marshal(profile{ID: 300, Name: "Foo", Tags: []string{"a", "bb"}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := []byte{0xac, 0x02, 0x03, 'F', 'o', 'o', 0x02, 0x01, 'a', 0x02, 'b', 'b'}
	if !bytes.Equal(data, want) {
		t.Fatalf("unexpected encoding:\n got %x\nwant %x", data, want)
	}

	var got profile
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(profile{ID: 300, Name: "Foo", Tags: []string{"a", "bb"}}, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAllShapesRoundTrip(t *testing.T) {
	opt := int32(-7)
	optU := int64(1 << 40)
	in := allShapes{
		Flag:    true,
		I8:      -5,
		U8:      250,
		S:       math.MinInt16,
		I:       -123456,
		L:       math.MaxInt64,
		US:      math.MaxUint16,
		UI:      math.MaxUint32,
		UL:      math.MaxUint64,
		VS:      math.MaxInt16,
		VL:      math.MaxInt64,
		F:       3.25,
		D:       -1e100,
		Str:     "héllo, wörld",
		Color:   blue,
		Raw:     []byte{0, 1, 2, 0xff},
		Fixed:   [4]byte{9, 8, 7, 6},
		List:    []int32{-1, 0, 1},
		VList:   []int64{0, 300, math.MaxInt64},
		Nested:  inner{A: 42, B: strPtr("x")},
		PNested: &inner{A: -1},
		OptInt:  &opt,
		OptU:    &optU,
		OptList: []string{},
		Matrix:  [][]int32{{1, 2}, {}, {3}},
		Colors:  []color{green, red},
		Items:   []inner{{A: 1, B: strPtr("a")}, {A: 2}},
		PItems:  []*inner{{A: 3}, nil, {A: 4, B: strPtr("")}},
		Skipped: "not on the wire",
		hidden:  99,
	}

	c := NewObjectCodec(nil)
	data, err := c.Marshal(&in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out allShapes
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	want := in
	want.Skipped = ""
	if diff := cmp.Diff(want, out, cmpopts.IgnoreUnexported(allShapes{})); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if out.hidden != 0 {
		t.Fatalf("unexported field was decoded: %d", out.hidden)
	}
}

func TestNilOptionalsRoundTrip(t *testing.T) {
	c := NewObjectCodec(nil)
	data, err := c.Marshal(allShapes{})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out allShapes
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out.PNested != nil || out.OptInt != nil || out.OptU != nil || out.OptList != nil {
		t.Fatalf("absent values decoded as present: %+v", out)
	}
	if out.List == nil || len(out.List) != 0 {
		t.Fatalf("empty list should decode as empty non-nil slice, got %#v", out.List)
	}
}

func TestFieldOrderIsDeclarationOrder(t *testing.T) {
	type ab struct {
		A int32
		B int16
	}
	type ba struct {
		B int16
		A int32
	}
	c := NewObjectCodec(nil)
	x, _ := c.Marshal(ab{A: 1, B: 2})
	y, _ := c.Marshal(ba{A: 1, B: 2})
	if !bytes.Equal(x, []byte{0, 0, 0, 1, 0, 2}) {
		t.Fatalf("ab encoded as %x", x)
	}
	if !bytes.Equal(y, []byte{0, 2, 0, 0, 0, 1}) {
		t.Fatalf("ba encoded as %x", y)
	}

	d, err := c.Describe(reflect.TypeFor[allShapes]())
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	var names []string
	for _, f := range d.Fields {
		names = append(names, f.Name)
	}
	want := []string{"Flag", "I8", "U8", "S", "I", "L", "US", "UI", "UL", "VS", "VL", "F", "D", "Str",
		"Color", "Raw", "Fixed", "List", "VList", "Nested", "PNested", "OptInt", "OptU", "OptList", "Matrix", "Colors",
		"Items", "PItems"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("field order mismatch (-want +got):\n%s", diff)
	}
}

func TestNullableByteEqualToMarker(t *testing.T) {
	type opt struct {
		B *uint8
	}
	c := NewObjectCodec(nil)
	zero := uint8(0)

	present, err := c.Marshal(opt{B: &zero})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(present, []byte{0x01, 0x00}) {
		t.Fatalf("present zero encoded as %x", present)
	}
	absent, _ := c.Marshal(opt{})
	if !bytes.Equal(absent, []byte{0x00}) {
		t.Fatalf("absent encoded as %x", absent)
	}

	var got opt
	if err := c.Unmarshal(present, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.B == nil || *got.B != 0 {
		t.Fatalf("present zero decoded as %v", got.B)
	}
	got = opt{B: &zero}
	if err := c.Unmarshal(absent, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.B != nil {
		t.Fatalf("absent decoded as %v", *got.B)
	}
}

func TestNonNullableNeverPeeks(t *testing.T) {
	type plain struct {
		B uint8
		S string
	}
	c := NewObjectCodec(nil)
	var got plain
	if err := c.Unmarshal([]byte{0x00, 0x00}, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.B != 0 || got.S != "" {
		t.Fatalf("unexpected value %+v", got)
	}
}

func TestCorruptPresenceByte(t *testing.T) {
	type opt struct {
		V *int32
	}
	err := NewObjectCodec(nil).Unmarshal([]byte{0x02, 0, 0, 0, 1}, &opt{})
	if !errors.Is(err, ErrCorruptPresence) {
		t.Fatalf("expected ErrCorruptPresence, got %v", err)
	}
	if !IsDataError(err) {
		t.Fatalf("expected a data error, got %T", err)
	}
}

func TestUnsignedVersusSigned(t *testing.T) {
	type pair struct {
		Fixed int32
		Var   int32 `wire:"unsigned"`
	}
	c := NewObjectCodec(nil)
	data, err := c.Marshal(pair{Fixed: 1, Var: 1})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0, 0, 0, 1, 1}) {
		t.Fatalf("unexpected encoding %x", data)
	}

	_, err = c.Marshal(pair{Var: -1})
	if !errors.Is(err, ErrNegativeUnsigned) {
		t.Fatalf("expected ErrNegativeUnsigned, got %v", err)
	}
	var ee *EncodeError
	if !errors.As(err, &ee) || ee.Field != "Var" {
		t.Fatalf("expected EncodeError on Var, got %#v", err)
	}
}

func TestUnsignedOverflowOnDecode(t *testing.T) {
	type small struct {
		V int16 `wire:"unsigned"`
	}
	// varint(40000) fits 16 unsigned bits but not int16.
	err := NewObjectCodec(nil).Unmarshal([]byte{0xc0, 0xb8, 0x02}, &small{})
	if !errors.Is(err, ErrVarintOverflow) {
		t.Fatalf("expected ErrVarintOverflow, got %v", err)
	}
}

func TestEnumBounds(t *testing.T) {
	type paint struct {
		C color
	}
	c := NewObjectCodec(nil)
	data, err := c.Marshal(paint{C: blue})
	if err != nil || !bytes.Equal(data, []byte{0x02}) {
		t.Fatalf("Marshal = %x, %v", data, err)
	}
	if err := c.Unmarshal([]byte{0x03}, &paint{}); !errors.Is(err, ErrEnumOrdinal) {
		t.Fatalf("expected ErrEnumOrdinal on decode, got %v", err)
	}
	if _, err := c.Marshal(paint{C: 5}); !errors.Is(err, ErrEnumOrdinal) {
		t.Fatalf("expected ErrEnumOrdinal on encode, got %v", err)
	}
	if _, err := c.Marshal(paint{C: -1}); !errors.Is(err, ErrEnumOrdinal) {
		t.Fatalf("expected ErrEnumOrdinal for negative ordinal, got %v", err)
	}
}

func TestListOfNestedRecords(t *testing.T) {
	type team struct{ Members []inner }
	type roster struct{ Members []*inner }
	c := NewObjectCodec(nil)

	data, err := c.Marshal(team{Members: []inner{{A: 1, B: strPtr("x")}}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	// count, A, B present, len, 'x'
	if !bytes.Equal(data, []byte{0x01, 0x00, 0x01, 0x01, 0x01, 'x'}) {
		t.Fatalf("team encoded as %x", data)
	}

	in := roster{Members: []*inner{{A: 1}, nil}}
	data, err = c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	// count, element present, A, B absent, element absent
	if !bytes.Equal(data, []byte{0x02, 0x01, 0x00, 0x01, 0x00, 0x00}) {
		t.Fatalf("roster encoded as %x", data)
	}
	var out roster
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyList(t *testing.T) {
	c := NewObjectCodec(nil)
	data, err := c.Marshal(profile{})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0x00, 0x00, 0x00}) {
		t.Fatalf("unexpected encoding %x", data)
	}
	var got profile
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got.Tags)
	}
}

func TestTruncatedInputLeavesTargetUntouched(t *testing.T) {
	c := NewObjectCodec(nil)
	data, _ := c.Marshal(profile{ID: 300, Name: "Foo", Tags: []string{"a", "bb"}})

	for n := 0; n < len(data); n++ {
		got := profile{Name: "unchanged"}
		err := c.Unmarshal(data[:n], &got)
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("prefix %d: expected ErrTruncated, got %v", n, err)
		}
		if got.Name != "unchanged" || got.ID != 0 || got.Tags != nil {
			t.Fatalf("prefix %d: target modified: %+v", n, got)
		}
	}
}

func TestDecodeErrorLocation(t *testing.T) {
	c := NewObjectCodec(nil)
	data := []byte{0x01, 0x00, 0x02, 0x01, 'a'}
	err := c.Unmarshal(data, &profile{})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T: %v", err, err)
	}
	if de.Field != "Tags" || de.Type != reflect.TypeFor[profile]() {
		t.Fatalf("unexpected location %s.%s", de.Type, de.Field)
	}
	if de.Offset != len(data) {
		t.Fatalf("unexpected offset %d", de.Offset)
	}
}

func TestTrailingBytes(t *testing.T) {
	c := NewObjectCodec(nil)
	data, _ := c.Marshal(profile{ID: 1})
	data = append(data, 0xff)
	if err := c.Unmarshal(data, &profile{}); !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
}

func TestInvalidTarget(t *testing.T) {
	c := NewObjectCodec(nil)
	if err := c.Unmarshal([]byte{0}, profile{}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for non-pointer, got %v", err)
	}
	var p *profile
	if err := c.Unmarshal([]byte{0}, p); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for nil pointer, got %v", err)
	}
	if err := c.Unmarshal([]byte{0}, nil); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for nil, got %v", err)
	}

	var pp *profile
	if err := c.Unmarshal([]byte{0, 0, 0}, &pp); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for pointer to pointer, got %v", err)
	}
	if pp != nil {
		t.Fatalf("target modified on error: %+v", pp)
	}
	if err := c.DecodeFrom(buffer.NewReader([]byte{0, 0, 0}), &pp); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget from DecodeFrom, got %v", err)
	}
	n := int32(0)
	if err := c.Unmarshal([]byte{0, 0, 0, 1}, &n); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for pointer to int32, got %v", err)
	}
}

func TestInvalidBoolAndUTF8(t *testing.T) {
	type flags struct {
		On bool
	}
	type text struct {
		S string
	}
	c := NewObjectCodec(nil)
	if err := c.Unmarshal([]byte{2}, &flags{}); !errors.Is(err, ErrInvalidBool) {
		t.Fatalf("expected ErrInvalidBool, got %v", err)
	}
	if err := c.Unmarshal([]byte{1, 0xff}, &text{}); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8 on decode, got %v", err)
	}
	if _, err := c.Marshal(text{S: "\xff"}); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8 on encode, got %v", err)
	}
}

func TestFixedArrayLength(t *testing.T) {
	type digest struct {
		Sum [4]byte
	}
	c := NewObjectCodec(nil)
	data, _ := c.Marshal(digest{Sum: [4]byte{1, 2, 3, 4}})
	if !bytes.Equal(data, []byte{4, 1, 2, 3, 4}) {
		t.Fatalf("unexpected encoding %x", data)
	}
	if err := c.Unmarshal([]byte{3, 1, 2, 3}, &digest{}); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestElementLimit(t *testing.T) {
	c := NewObjectCodec(nil, WithMaxElements(2))
	if _, err := c.Marshal(profile{Tags: []string{"a", "b", "c"}}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge on encode, got %v", err)
	}
	if err := c.Unmarshal([]byte{0, 0, 3}, &profile{}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge on decode, got %v", err)
	}
	// A huge declared count must fail cleanly rather than allocate.
	big := NewObjectCodec(nil)
	if err := big.Unmarshal([]byte{0, 0, 0xff, 0xff, 0x3f}, &profile{}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestRecursiveTypeAndDepthLimit(t *testing.T) {
	list := &node{Value: 1, Next: &node{Value: 2, Next: &node{Value: 3}}}
	c := NewObjectCodec(nil)
	data, err := c.Marshal(list)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var got node
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(*list, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	shallow := NewObjectCodec(nil, WithMaxDepth(2))
	if _, err := shallow.Marshal(list); !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded on encode, got %v", err)
	}
	if err := shallow.Unmarshal(data, &node{}); !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded on decode, got %v", err)
	}
}

func TestStructuralErrors(t *testing.T) {
	type withInt struct{ N int }
	type withMap struct{ M map[string]int32 }
	type withChan struct{ C chan int32 }
	type badTag struct {
		S string `wire:"unsigned"`
	}
	type unknownTag struct {
		N int32 `wire:"varint"`
	}
	type nullableValue struct {
		N int32 `wire:"nullable"`
	}
	type ptrPtr struct{ P **int32 }
	type intArray struct{ A [3]int32 }
	type deep struct {
		Inner struct{ N uint }
	}

	cases := []struct {
		name string
		v    any
		want error
		// field is the innermost field that caused the error
		field string
	}{
		{"int", withInt{}, ErrUnsupportedType, "N"},
		{"map", withMap{}, ErrUnsupportedType, "M"},
		{"chan", withChan{}, ErrUnsupportedType, "C"},
		{"unsigned string", badTag{}, ErrInvalidAnnotation, "S"},
		{"unknown option", unknownTag{}, ErrInvalidAnnotation, "N"},
		{"nullable value", nullableValue{}, ErrInvalidAnnotation, "N"},
		{"pointer to pointer", ptrPtr{}, ErrUnsupportedType, "P"},
		{"int array", intArray{}, ErrUnsupportedType, "A"},
		{"nested", deep{}, ErrUnsupportedType, "N"},
	}

	c := NewObjectCodec(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Describe(reflect.TypeOf(tc.v))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !IsStructural(err) || IsDataError(err) {
				t.Fatalf("expected a structural error, got %T", err)
			}
			var de *DescriptorError
			if !errors.As(err, &de) || de.Field != tc.field {
				t.Fatalf("expected error on field %q, got %#v", tc.field, err)
			}
			if _, err := c.Marshal(tc.v); !errors.Is(err, tc.want) {
				t.Fatalf("Marshal: expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := c.Describe(reflect.TypeFor[string]()); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType for a non-struct record, got %v", err)
	}
}

func TestDescriptorIsCached(t *testing.T) {
	c := NewObjectCodec(nil)
	a, err := c.Describe(reflect.TypeFor[profile]())
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	b, _ := c.Describe(reflect.TypeFor[*profile]())
	if a != b {
		t.Fatalf("expected the same descriptor instance for repeated lookups")
	}
}

func TestConcurrentDescribe(t *testing.T) {
	c := NewObjectCodec(nil)
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			_, err := c.Marshal(allShapes{Str: "x"})
			errs <- err
		}()
	}
	for i := 0; i < 16; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
	}
}

func TestCodecInterface(t *testing.T) {
	obj := NewObjectCodec(nil)
	for _, ct := range []CodecType{CodecTypeJSON, CodecTypeBinary} {
		cd, err := GetCodec(ct, obj)
		if err != nil {
			t.Fatalf("GetCodec(%s) failed: %v", ct, err)
		}
		if cd.Type() != ct {
			t.Fatalf("GetCodec(%s) returned %s codec", ct, cd.Type())
		}
		data, err := cd.Encode(profile{ID: 7, Name: "n", Tags: []string{"t"}})
		if err != nil {
			t.Fatalf("%s Encode failed: %v", ct, err)
		}
		var got profile
		if err := cd.Decode(data, &got); err != nil {
			t.Fatalf("%s Decode failed: %v", ct, err)
		}
		if diff := cmp.Diff(profile{ID: 7, Name: "n", Tags: []string{"t"}}, got); diff != "" {
			t.Fatalf("%s round trip mismatch (-want +got):\n%s", ct, diff)
		}
	}
	if _, err := GetCodec(CodecType(9), obj); err == nil {
		t.Fatalf("expected error for unknown codec type")
	}
}
