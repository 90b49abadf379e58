// Package codec turns packet structs into bytes and back.
//
// The binary format has no schema and no field tags: a struct is encoded as
// its fields, in declaration order, concatenated. The reader must already
// know which type it is decoding; the frame header tells it.
//
//	type S2CIncomingFriendRequestRejected struct {
//	    From      string
//	    RequestID int32 `wire:"unsigned"`
//	}
//
//	┌─────────────┬──────────────────┐
//	│ len │ From  │ varint(RequestID)│
//	└─────────────┴──────────────────┘
//
// Field shape decides the encoding (see ObjectCodec), the `wire` struct tag
// adds per-field options, and types outside the built-in set are handled by
// codecs registered in a Registry.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Binary
}

// GetCodec returns the codec for codecType. Binary frames are handled by obj,
// the object codec the caller built with its custom registry.
func GetCodec(codecType CodecType, obj *ObjectCodec) (Codec, error) {
	switch codecType {
	case CodecTypeJSON:
		return &JSONCodec{}, nil
	case CodecTypeBinary:
		if obj == nil {
			return nil, fmt.Errorf("codec: no object codec configured for %s frames", codecType)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec type %d", byte(codecType))
	}
}
