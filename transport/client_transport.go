// Package transport implements the client side of a liquidnet connection:
// multiplexed requests, server pushes and heartbeats over one TCP stream.
//
// Each request gets a unique sequence number, and a background goroutine
// (recvLoop) reads every incoming frame and routes responses to the waiting
// caller through a per-request channel. Pushes from the server have no
// caller and go to the push handler instead.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] chan → goroutine-2 wakes up
//	           ←── push(S2C...)    → OnPush handler
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"liquidnet/codec"
	"liquidnet/message"
	"liquidnet/packet"
	"liquidnet/protocol"
)

var ErrClosed = errors.New("transport: connection closed")

const DefaultHeartbeatInterval = 30 * time.Second

// PushHandler receives packets the server pushes. It runs on the receive
// goroutine, so it must not block for long.
type PushHandler func(env *message.Envelope)

type Options struct {
	CodecType codec.CodecType
	// HeartbeatInterval defaults to DefaultHeartbeatInterval; negative
	// disables heartbeats.
	HeartbeatInterval time.Duration
	OnPush            PushHandler
	Logger            *zap.Logger
}

// ClientTransport manages a single multiplexed TCP connection.
type ClientTransport struct {
	conn    net.Conn
	catalog *packet.Catalog
	codec   codec.Codec
	onPush  PushHandler
	logger  *zap.Logger

	seq     uint32     // protected by sending
	pending sync.Map   // map[uint32]chan *message.Envelope, one per in-flight request
	sending sync.Mutex // frames from different goroutines must not interleave on conn

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewClientTransport wraps conn and starts two background goroutines:
//   - recvLoop: reads frames and dispatches responses and pushes
//   - heartbeatLoop: sends periodic heartbeat frames to detect dead connections
func NewClientTransport(conn net.Conn, catalog *packet.Catalog, opts Options) (*ClientTransport, error) {
	cd, err := codec.GetCodec(opts.CodecType, catalog.Codec())
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	t := &ClientTransport{
		conn:    conn,
		catalog: catalog,
		codec:   cd,
		onPush:  opts.OnPush,
		logger:  opts.Logger.With(zap.String("remote", conn.RemoteAddr().String())),
		done:    make(chan struct{}),
	}
	go t.recvLoop()
	if opts.HeartbeatInterval > 0 {
		go t.heartbeatLoop(opts.HeartbeatInterval)
	}
	return t, nil
}

// Send encodes p and writes it as a frame of msgType. For requests it returns
// the sequence number and a channel that receives exactly one response
// envelope; for pushes the channel is nil.
//
// The sending mutex makes the whole frame one atomic write with respect to
// other senders. ctx bounds the write through the connection deadline.
func (t *ClientTransport) Send(ctx context.Context, msgType protocol.MsgType, p packet.Packet) (uint32, <-chan *message.Envelope, error) {
	if msgType != protocol.MsgTypeRequest && msgType != protocol.MsgTypePush {
		return 0, nil, fmt.Errorf("transport: cannot send %s frames", msgType)
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if t.closed.Load() {
		return 0, nil, ErrClosed
	}

	body, err := t.catalog.EncodeWith(t.codec, p)
	if err != nil {
		return 0, nil, err
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	t.seq++
	seq := t.seq
	header := protocol.Header{
		CodecType: t.codec.Type(),
		MsgType:   msgType,
		Bound:     p.Bound(),
		PacketID:  p.ID(),
		Seq:       seq,
	}

	// Register the response channel BEFORE writing, or a fast response
	// could reach recvLoop before anyone is waiting for it.
	var respChan chan *message.Envelope
	if msgType == protocol.MsgTypeRequest {
		respChan = make(chan *message.Envelope, 1) // buffered so recvLoop never blocks
		t.pending.Store(seq, respChan)
		// recvLoop may have drained pending between the closed check above
		// and the Store.
		if t.closed.Load() {
			t.pending.Delete(seq)
			return 0, nil, ErrClosed
		}
	}

	deadline, _ := ctx.Deadline()
	t.conn.SetWriteDeadline(deadline)
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}
	if respChan == nil {
		return seq, nil, nil
	}
	return seq, respChan, nil
}

// Forget drops the pending entry for seq, for callers that stop waiting.
func (t *ClientTransport) Forget(seq uint32) {
	t.pending.Delete(seq)
}

// recvLoop is the only reader of the connection. TCP is a byte stream, so
// frame boundaries can only be found by reading sequentially.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.shutdown(err)
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeResponse:
			env := &message.Envelope{Seq: header.Seq}
			p, err := t.decode(header, body)
			if err != nil {
				env.Error = "decode response: " + err.Error()
			} else {
				env.Packet = p
			}
			t.deliver(env)
		case protocol.MsgTypeAck:
			t.deliver(&message.Envelope{Seq: header.Seq})
		case protocol.MsgTypeError:
			t.deliver(&message.Envelope{Seq: header.Seq, Error: string(body)})
		case protocol.MsgTypePush:
			p, err := t.decode(header, body)
			if err != nil {
				t.logger.Warn("dropping undecodable push",
					zap.Stringer("bound", header.Bound), zap.Uint8("id", header.PacketID), zap.Error(err))
				continue
			}
			if t.onPush == nil {
				t.logger.Debug("no push handler", zap.Uint8("id", header.PacketID))
				continue
			}
			t.onPush(&message.Envelope{Seq: header.Seq, Packet: p})
		case protocol.MsgTypeHeartbeat:
		default:
			t.logger.Warn("unexpected frame from server", zap.Stringer("type", header.MsgType))
		}
	}
}

func (t *ClientTransport) decode(h *protocol.Header, body []byte) (packet.Packet, error) {
	cd, err := codec.GetCodec(h.CodecType, t.catalog.Codec())
	if err != nil {
		return nil, err
	}
	return t.catalog.DecodeWith(cd, h.Bound, h.PacketID, body)
}

// deliver routes env to the caller waiting on its seq. Responses nobody waits
// for any more (the caller timed out) are dropped.
func (t *ClientTransport) deliver(env *message.Envelope) {
	if ch, ok := t.pending.LoadAndDelete(env.Seq); ok {
		ch.(chan *message.Envelope) <- env
	}
}

func (t *ClientTransport) shutdown(cause error) {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.conn.Close()
		if cause != nil && !errors.Is(cause, net.ErrClosed) {
			t.logger.Debug("connection lost", zap.Error(cause))
		}
		t.closeAllPending()
		close(t.done)
	})
}

// closeAllPending fails every in-flight request so no caller blocks forever
// on a dead connection.
func (t *ClientTransport) closeAllPending() {
	t.pending.Range(func(key, value any) bool {
		if ch, ok := t.pending.LoadAndDelete(key); ok {
			ch.(chan *message.Envelope) <- &message.Envelope{Seq: key.(uint32), Error: message.ErrConnectionClosed}
		}
		return true
	})
}

// Close closes the connection and fails all pending requests.
func (t *ClientTransport) Close() error {
	t.shutdown(nil)
	return nil
}

// Done is closed once the connection is gone.
func (t *ClientTransport) Done() <-chan struct{} {
	return t.done
}

func (t *ClientTransport) Closed() bool {
	return t.closed.Load()
}

func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// heartbeatLoop keeps an idle connection from being reaped by the server.
// Heartbeats have no body, so they are cheap.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{
			CodecType: t.codec.Type(),
			MsgType:   protocol.MsgTypeHeartbeat,
			Bound:     packet.BoundServer,
		}
		t.sending.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(interval))
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			t.shutdown(err)
			return
		}
	}
}
