// Package packet gives encoded records an identity on the wire.
//
// A packet is any struct that reports a one-byte id and the direction it
// travels. The pair (bound, id) is unique within a Catalog and is what the
// frame header carries; the object codec never sees it.
package packet

import "fmt"

// Bound is the direction a packet travels.
type Bound byte

const (
	BoundClient Bound = iota // server to client
	BoundServer              // client to server
)

func (b Bound) String() string {
	switch b {
	case BoundClient:
		return "client"
	case BoundServer:
		return "server"
	default:
		return fmt.Sprintf("bound(%d)", byte(b))
	}
}

// EnumLen makes Bound encodable as an enum field.
func (Bound) EnumLen() int { return 2 }

func (b Bound) Valid() bool {
	return b == BoundClient || b == BoundServer
}

// Opposite returns the direction of a reply to a packet travelling b.
func (b Bound) Opposite() Bound {
	if b == BoundClient {
		return BoundServer
	}
	return BoundClient
}

type Packet interface {
	ID() byte
	Bound() Bound
}
