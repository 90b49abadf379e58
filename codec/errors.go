package codec

import (
	"errors"
	"fmt"
	"reflect"

	"liquidnet/buffer"
)

// Structural errors: the Go type itself cannot be encoded. They are reported
// when a descriptor is built, before any bytes are touched.
var (
	ErrUnsupportedType   = errors.New("codec: unsupported type")
	ErrInvalidAnnotation = errors.New("codec: invalid wire tag")
)

// ErrInvalidTarget is returned when a decode target is not a non-nil pointer
// to a struct.
var ErrInvalidTarget = errors.New("codec: decode target must be a non-nil pointer to a struct")

// Data errors: the bytes (or the value being encoded) do not fit the type.
var (
	ErrTruncated        = buffer.ErrTruncated
	ErrVarintOverflow   = buffer.ErrVarintOverflow
	ErrInvalidBool      = buffer.ErrInvalidBool
	ErrInvalidUTF8      = buffer.ErrInvalidUTF8
	ErrEnumOrdinal      = errors.New("codec: enum ordinal out of range")
	ErrCorruptPresence  = errors.New("codec: corrupt presence byte")
	ErrLengthMismatch   = errors.New("codec: fixed-size array length mismatch")
	ErrTooLarge         = errors.New("codec: element count exceeds limit")
	ErrDepthExceeded    = errors.New("codec: nesting depth exceeds limit")
	ErrTrailingBytes    = errors.New("codec: trailing bytes after record")
	ErrNegativeUnsigned = errors.New("codec: negative value in unsigned field")
	ErrNilValue         = errors.New("codec: nil value in non-nullable field")
	ErrCustomCodec      = errors.New("codec: custom codec returned wrong type")
)

// DescriptorError reports a type that cannot be described.
type DescriptorError struct {
	Type   reflect.Type
	Field  string
	Reason string
	Err    error
}

func (e *DescriptorError) Error() string {
	where := "<nil>"
	if e.Type != nil {
		where = e.Type.String()
	}
	if e.Field != "" {
		where += "." + e.Field
	}
	if e.Reason == "" {
		return fmt.Sprintf("%v: %s", e.Err, where)
	}
	return fmt.Sprintf("%v: %s: %s", e.Err, where, e.Reason)
}

func (e *DescriptorError) Unwrap() error { return e.Err }

// DecodeError locates a decode failure: the record type being decoded, the
// dotted field path and the byte offset reached.
type DecodeError struct {
	Type   reflect.Type
	Field  string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Type == nil {
		return fmt.Sprintf("codec: decode: %v", e.Err)
	}
	if e.Field == "" {
		return fmt.Sprintf("codec: decode %s at offset %d: %v", e.Type, e.Offset, e.Err)
	}
	return fmt.Sprintf("codec: decode %s.%s at offset %d: %v", e.Type, e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError locates an encode failure.
type EncodeError struct {
	Type  reflect.Type
	Field string
	Err   error
}

func (e *EncodeError) Error() string {
	if e.Type == nil {
		return fmt.Sprintf("codec: encode: %v", e.Err)
	}
	if e.Field == "" {
		return fmt.Sprintf("codec: encode %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("codec: encode %s.%s: %v", e.Type, e.Field, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// IsStructural reports whether err means the type can never be encoded.
func IsStructural(err error) bool {
	return errors.Is(err, ErrUnsupportedType) || errors.Is(err, ErrInvalidAnnotation)
}

// IsDataError reports whether err came from malformed input bytes.
func IsDataError(err error) bool {
	var de *DecodeError
	if !errors.As(err, &de) {
		return false
	}
	return !errors.Is(err, ErrInvalidTarget) && !IsStructural(err)
}
