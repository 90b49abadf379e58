package codec

import (
	"reflect"
	"strings"

	"liquidnet/buffer"
)

// EncodeContext is handed to custom codecs during an encode.
type EncodeContext struct {
	codec *ObjectCodec
	w     *buffer.Writer
	root  reflect.Type
	depth int
	path  []string
}

func (ctx *EncodeContext) Writer() *buffer.Writer {
	return ctx.w
}

// Encode writes the struct v inline, through the same descriptors and limits
// as the enclosing record.
func (ctx *EncodeContext) Encode(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ErrNilValue
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return ErrNilValue
	}
	d, err := ctx.codec.Describe(rv.Type())
	if err != nil {
		return err
	}
	return ctx.codec.encodeRecord(ctx, d, rv)
}

func (ctx *EncodeContext) fail(err error) error {
	if _, ok := err.(*EncodeError); ok {
		return err
	}
	if _, ok := err.(*DescriptorError); ok {
		return err
	}
	return &EncodeError{Type: ctx.root, Field: strings.Join(ctx.path, "."), Err: err}
}

// DecodeContext is handed to custom codecs during a decode.
type DecodeContext struct {
	codec  *ObjectCodec
	r      *buffer.Reader
	root   reflect.Type
	target reflect.Type
	depth  int
	path   []string
}

func (ctx *DecodeContext) Reader() *buffer.Reader {
	return ctx.r
}

// Target is the type the current custom codec must produce.
func (ctx *DecodeContext) Target() reflect.Type {
	return ctx.target
}

// Decode reads a struct inline into v, a non-nil pointer.
func (ctx *DecodeContext) Decode(v any) error {
	rv, err := decodeTarget(v)
	if err != nil {
		return err
	}
	d, err := ctx.codec.Describe(rv.Type().Elem())
	if err != nil {
		return err
	}
	fresh := reflect.New(d.Type).Elem()
	if err := ctx.codec.decodeRecord(ctx, d, fresh); err != nil {
		return err
	}
	rv.Elem().Set(fresh)
	return nil
}

func (ctx *DecodeContext) fail(err error) error {
	if _, ok := err.(*DecodeError); ok {
		return err
	}
	if _, ok := err.(*DescriptorError); ok {
		return err
	}
	return &DecodeError{Type: ctx.root, Field: strings.Join(ctx.path, "."), Offset: ctx.r.Offset(), Err: err}
}
