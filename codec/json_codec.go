package codec

import (
	"encoding/json"
)

// JSONCodec uses encoding/json. It exists for debugging and tooling: frames
// tagged CodecTypeJSON are readable in a packet capture, and the journal dump
// prints packets through it.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
