package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"

	"liquidnet/codec"
	"liquidnet/packet"
	"liquidnet/protocol"
)

// Session is one client connection.
type Session struct {
	ID        string
	conn      net.Conn
	startedAt time.Time

	writeMu   sync.Mutex // shared by every goroutine writing to conn
	codecType atomic.Uint32
}

func newSession(conn net.Conn) *Session {
	s := &Session{
		ID:        ksuid.New().String(),
		conn:      conn,
		startedAt: time.Now(),
	}
	s.codecType.Store(uint32(codec.CodecTypeBinary))
	return s
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// CodecType is the codec the client last used; pushes are encoded with it.
func (s *Session) CodecType() codec.CodecType {
	return codec.CodecType(s.codecType.Load())
}

func (s *Session) writeFrame(h *protocol.Header, body []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.Encode(s.conn, h, body)
}

func (s *Session) writeError(seq uint32, msg string) error {
	return s.writeFrame(&protocol.Header{
		CodecType: s.CodecType(),
		MsgType:   protocol.MsgTypeError,
		Bound:     packet.BoundClient,
		Seq:       seq,
	}, []byte(msg))
}

type sessionKey struct{}

// SessionFromContext returns the session a handler is serving.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}
