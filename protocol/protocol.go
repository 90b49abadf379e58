// Package protocol implements the frame protocol liquidnet packets travel in.
//
// A TCP stream has no message boundaries, so every packet is wrapped in a
// frame: a fixed 16-byte header followed by a variable-length body. The
// receiver reads the header, learns the body length, then reads exactly that
// many bytes. The header also carries the packet identity (bound + id), which
// the object codec deliberately leaves out of the body.
//
// Frame format:
//
//	0      3  4  5  6  7  8         12        16
//	┌──────┬──┬──┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│bd│id│   seq   │ bodyLen │    body ...    │
//	│ lqn  │01│  │  │  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"liquidnet/codec"
	"liquidnet/packet"
)

// Magic bytes "lqn". Lets a server reject connections that do not speak the
// protocol (an HTTP client on the wrong port) on the first read.
const (
	MagicByte1 byte = 0x6c // 'l'
	MagicByte2 byte = 0x71 // 'q'
	MagicByte3 byte = 0x6e // 'n'
	Version    byte = 0x01
	HeaderSize int  = 16 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 1 (bound) + 1 (id) + 4 (seq) + 4 (bodyLen)
)

// MaxBodyLen caps the body a peer may announce. Frames above it are
// rejected before any body bytes are allocated.
const MaxBodyLen uint32 = 16 << 20

var (
	ErrInvalidMagic       = errors.New("protocol: invalid magic number")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrUnsupportedCodec   = errors.New("protocol: unsupported codec type")
	ErrUnsupportedMsgType = errors.New("protocol: unsupported message type")
	ErrInvalidBound       = errors.New("protocol: invalid bound")
	ErrBodyTooLarge       = errors.New("protocol: body too large")
)

// MsgType distinguishes what a frame is for.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // expects a response with the same seq
	MsgTypeResponse  MsgType = 1 // answers the request with the same seq
	MsgTypePush      MsgType = 2 // one-way packet, either direction, no reply
	MsgTypeHeartbeat MsgType = 3 // keepalive probe, no body
	MsgTypeError     MsgType = 4 // failed request; body is a UTF-8 message
	MsgTypeAck       MsgType = 5 // request handled with no reply packet, no body
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeRequest:
		return "request"
	case MsgTypeResponse:
		return "response"
	case MsgTypePush:
		return "push"
	case MsgTypeHeartbeat:
		return "heartbeat"
	case MsgTypeError:
		return "error"
	case MsgTypeAck:
		return "ack"
	default:
		return fmt.Sprintf("msgtype(%d)", byte(t))
	}
}

func (t MsgType) valid() bool {
	return t <= MsgTypeAck
}

// Header is the fixed frame header.
type Header struct {
	CodecType codec.CodecType // how the body is encoded
	MsgType   MsgType
	Bound     packet.Bound // direction of the packet in the body
	PacketID  byte
	Seq       uint32 // matches requests to responses on a multiplexed connection
	BodyLen   uint32
}

// Encode writes a complete frame (header + body) to w. h.BodyLen is set
// from body.
// The caller must hold a write lock if multiple goroutines share the same
// writer, otherwise frames from different packets interleave and corrupt the
// stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint64(len(body)) > uint64(MaxBodyLen) {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}
	h.BodyLen = uint32(len(body))

	// Header and body go out in one write so a frame is never split by a
	// concurrent writer that forgot the lock.
	buf := make([]byte, HeaderSize+len(body))
	buf[0], buf[1], buf[2] = MagicByte1, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = byte(h.CodecType)
	buf[5] = byte(h.MsgType)
	buf[6] = byte(h.Bound)
	buf[7] = h.PacketID
	binary.BigEndian.PutUint32(buf[8:12], h.Seq)
	binary.BigEndian.PutUint32(buf[12:16], h.BodyLen)
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame (header + body) from r and validates every
// header field. io.ReadFull guarantees exactly N bytes or an error.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicByte1 || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("%w: %x", ErrInvalidMagic, headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, headerBuf[3])
	}
	ct := codec.CodecType(headerBuf[4])
	if ct != codec.CodecTypeJSON && ct != codec.CodecTypeBinary {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedCodec, headerBuf[4])
	}
	mt := MsgType(headerBuf[5])
	if !mt.valid() {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedMsgType, headerBuf[5])
	}
	bound := packet.Bound(headerBuf[6])
	if !bound.Valid() {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidBound, headerBuf[6])
	}

	h := &Header{
		CodecType: ct,
		MsgType:   mt,
		Bound:     bound,
		PacketID:  headerBuf[7],
		Seq:       binary.BigEndian.Uint32(headerBuf[8:12]),
		BodyLen:   binary.BigEndian.Uint32(headerBuf[12:16]),
	}
	if h.BodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, h.BodyLen)
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return h, body, nil
}
