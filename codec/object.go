package codec

import (
	"reflect"
	"sync"

	"liquidnet/buffer"
)

const (
	DefaultMaxDepth    = 64
	DefaultMaxElements = 1 << 20
)

type Option func(*ObjectCodec)

// WithMaxDepth bounds record nesting on encode and decode.
func WithMaxDepth(n int) Option {
	return func(c *ObjectCodec) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithMaxElements bounds list counts and byte lengths.
func WithMaxElements(n int) Option {
	return func(c *ObjectCodec) {
		if n > 0 {
			c.maxElements = n
		}
	}
}

// ObjectCodec is the binary codec for packet structs. It is safe for
// concurrent use; descriptors are built on first use of each type and shared
// afterwards.
type ObjectCodec struct {
	registry    *Registry
	maxDepth    int
	maxElements int

	mu          sync.Mutex // serializes descriptor construction
	descriptors sync.Map   // reflect.Type -> *TypeDescriptor
}

// NewObjectCodec creates a codec backed by reg. A nil reg means no custom
// codecs.
func NewObjectCodec(reg *Registry, opts ...Option) *ObjectCodec {
	c := &ObjectCodec{
		registry:    reg,
		maxDepth:    DefaultMaxDepth,
		maxElements: DefaultMaxElements,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ObjectCodec) Registry() *Registry {
	return c.registry
}

// Marshal encodes the struct v (or pointer to struct).
func (c *ObjectCodec) Marshal(v any) ([]byte, error) {
	w := buffer.GetWriter()
	defer buffer.PutWriter(w)
	if err := c.EncodeTo(w, v); err != nil {
		return nil, err
	}
	out := make([]byte, w.Len())
	copy(out, w.Bytes())
	return out, nil
}

// EncodeTo appends the encoding of v to w. On error w may hold a partial
// record.
func (c *ObjectCodec) EncodeTo(w *buffer.Writer, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return &EncodeError{Type: rv.Type(), Err: ErrNilValue}
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return &EncodeError{Err: ErrNilValue}
	}
	d, err := c.Describe(rv.Type())
	if err != nil {
		return err
	}
	ctx := &EncodeContext{codec: c, w: w, root: d.Type}
	return c.encodeRecord(ctx, d, rv)
}

// Unmarshal decodes data into v, which must be a non-nil pointer to a
// struct. All of data must be consumed. v is left untouched on error.
func (c *ObjectCodec) Unmarshal(data []byte, v any) error {
	rv, err := decodeTarget(v)
	if err != nil {
		return err
	}
	r := buffer.NewReader(data)
	tmp := reflect.New(rv.Type().Elem())
	if err := c.DecodeFrom(r, tmp.Interface()); err != nil {
		return err
	}
	if r.Remaining() > 0 {
		return &DecodeError{Type: rv.Type().Elem(), Offset: r.Offset(), Err: ErrTrailingBytes}
	}
	rv.Elem().Set(tmp.Elem())
	return nil
}

// DecodeFrom decodes one record from r into v, leaving r positioned after
// it.
func (c *ObjectCodec) DecodeFrom(r *buffer.Reader, v any) error {
	rv, err := decodeTarget(v)
	if err != nil {
		return err
	}
	d, err := c.Describe(rv.Type().Elem())
	if err != nil {
		return err
	}
	fresh := reflect.New(d.Type).Elem()
	ctx := &DecodeContext{codec: c, r: r, root: d.Type}
	if err := c.decodeRecord(ctx, d, fresh); err != nil {
		return err
	}
	rv.Elem().Set(fresh)
	return nil
}

// decodeTarget checks that v is a non-nil pointer to a struct.
func decodeTarget(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Type().Elem().Kind() != reflect.Struct {
		return reflect.Value{}, &DecodeError{Type: reflect.TypeOf(v), Err: ErrInvalidTarget}
	}
	return rv, nil
}

func (c *ObjectCodec) Encode(v any) ([]byte, error) {
	return c.Marshal(v)
}

func (c *ObjectCodec) Decode(data []byte, v any) error {
	return c.Unmarshal(data, v)
}

func (c *ObjectCodec) Type() CodecType {
	return CodecTypeBinary
}
