// Package message defines the Envelope that carries one packet through the
// handler and middleware chain on either side of a connection.
package message

import (
	"fmt"
	"reflect"

	"liquidnet/packet"
)

// Error strings shared by both sides. Retry decides on them, so they are
// part of the contract between server, transport and middleware.
const (
	ErrTimeout          = "request timed out"
	ErrRateLimited      = "rate limit exceeded"
	ErrConnectionClosed = "connection closed"
	ErrNoHandler        = "no handler for packet"
)

// Envelope carries a single packet and its routing context.
//
//   - On request: Packet is the decoded request, Error is empty.
//   - On response: Packet is the reply (nil for a bare acknowledgement),
//     Error is non-empty if handling failed.
type Envelope struct {
	Session string // server-assigned session id, empty on the client side
	Seq     uint32 // frame sequence number the reply must echo
	Packet  packet.Packet
	Error   string
}

// Reply builds the response to req carrying p.
func Reply(req *Envelope, p packet.Packet) *Envelope {
	return &Envelope{Session: req.Session, Seq: req.Seq, Packet: p}
}

// Fail builds an error response to req.
func Fail(req *Envelope, format string, args ...any) *Envelope {
	return &Envelope{Session: req.Session, Seq: req.Seq, Error: fmt.Sprintf(format, args...)}
}

func (e *Envelope) Failed() bool {
	return e != nil && e.Error != ""
}

// PacketName is a short label for logs, e.g. "server:11 C2SStopBeingFriends".
func (e *Envelope) PacketName() string {
	if e == nil || e.Packet == nil {
		return "-"
	}
	t := reflect.TypeOf(e.Packet)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return fmt.Sprintf("%s:%d %s", e.Packet.Bound(), e.Packet.ID(), t.Name())
}
