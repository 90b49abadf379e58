// Package server implements the liquidnet packet server: handler routing by
// packet id, a middleware chain, parallel request processing, server pushes
// and graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing)
//	    → Catalog.Decode → Middleware Chain → handler → Catalog.Encode → write response
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"liquidnet/codec"
	"liquidnet/message"
	"liquidnet/middleware"
	"liquidnet/packet"
	"liquidnet/protocol"
	"liquidnet/registry"
)

var (
	ErrUnknownSession = errors.New("server: unknown session")
	ErrNotServing     = errors.New("server: not serving")
)

const (
	DefaultServiceName = "liquidnet"
	DefaultRegistryTTL = 10 // seconds, renewed by KeepAlive
)

type Options struct {
	// ServiceName is the name the server registers under.
	ServiceName string
	// IdleTimeout closes connections that send nothing, heartbeats included,
	// for this long. Zero disables it.
	IdleTimeout time.Duration
	RegistryTTL int64
	Logger      *zap.Logger
}

// Server routes server-bound packets to handlers and sends client-bound
// packets back.
type Server struct {
	catalog     *packet.Catalog
	opts        Options
	logger      *zap.Logger
	handlers    map[byte]middleware.HandlerFunc // server-bound packet id → handler
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(businessHandler)))

	mu            sync.Mutex
	listener      net.Listener
	registry      registry.Registry
	advertiseAddr string

	sessions sync.Map       // session id → *Session
	wg       sync.WaitGroup // in-flight requests, for graceful shutdown
	connWG   sync.WaitGroup // connection read loops
	shutdown atomic.Bool    // written under mu; set during shutdown
}

func NewServer(catalog *packet.Catalog, opts Options) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultServiceName
	}
	if opts.RegistryTTL <= 0 {
		opts.RegistryTTL = DefaultRegistryTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		catalog:  catalog,
		opts:     opts,
		logger:   opts.Logger,
		handlers: make(map[byte]middleware.HandlerFunc),
	}
}

// Handle routes the server-bound packet id to h. Must be called before Serve.
func (svr *Server) Handle(id byte, h middleware.HandlerFunc) error {
	if _, ok := svr.catalog.Lookup(packet.BoundServer, id); !ok {
		return fmt.Errorf("server: no server-bound packet %d in catalog", id)
	}
	if _, dup := svr.handlers[id]; dup {
		return fmt.Errorf("server: packet %d already has a handler", id)
	}
	svr.handlers[id] = h
	return nil
}

// Register routes every handler method of rcvr (see service) to its packet.
func (svr *Server) Register(rcvr any) error {
	svc, err := newService(rcvr, svr.catalog)
	if err != nil {
		return err
	}
	ids := make([]int, 0, len(svc.method))
	for id := range svc.method {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		m := svc.method[byte(id)]
		if err := svr.Handle(m.id, m.handler()); err != nil {
			return err
		}
		svr.logger.Debug("registered handler",
			zap.String("method", svc.name+"."+m.name), zap.Uint8("packet", m.id))
	}
	return nil
}

// Use appends a middleware. Middlewares are applied in the order they are
// added. Must be called before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address, registers advertiseAddr with reg (nil skips
// discovery) and runs the accept loop until Shutdown.
//
// advertiseAddr differs from the listen address because ":7450" is not
// routable for other hosts; the registry needs "10.0.0.5:7450".
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener, advertiseAddr, reg)
}

// ServeListener is Serve on an existing listener.
func (svr *Server) ServeListener(listener net.Listener, advertiseAddr string, reg registry.Registry) error {
	// Build the middleware chain once at startup, not per request:
	//   Chain(A, B, C)(handler) → A(B(C(handler)))
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)

	svr.mu.Lock()
	svr.listener = listener
	svr.advertiseAddr = advertiseAddr
	svr.registry = reg
	svr.mu.Unlock()

	if reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := reg.Register(ctx, svr.opts.ServiceName, registry.ServiceInstance{Addr: advertiseAddr, Weight: 1}, svr.opts.RegistryTTL)
		cancel()
		if err != nil {
			listener.Close()
			return fmt.Errorf("server: register %s: %w", advertiseAddr, err)
		}
	}
	svr.logger.Info("serving",
		zap.String("addr", listener.Addr().String()),
		zap.String("advertise", advertiseAddr),
		zap.Int("packets", svr.catalog.Len()),
		zap.Int("handlers", len(svr.handlers)))

	for {
		conn, err := listener.Accept()
		if err != nil {
			// listener.Close during shutdown makes Accept fail; that is not
			// an error for the caller.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		if !svr.admit(&svr.connWG) {
			conn.Close()
			return nil
		}
		go svr.handleConn(conn)
	}
}

// admit adds one to wg unless shutdown has started. The flag is read and
// written under mu so no Add can race with Shutdown's Wait.
func (svr *Server) admit(wg *sync.WaitGroup) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	wg.Add(1)
	return true
}

// Addr returns the listening address, or nil before Serve.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// handleConn reads frames from one connection. Reads are sequential (one
// reader per connection, or frame boundaries are lost), but every request is
// dispatched to its own goroutine so a slow handler does not stall the rest.
func (svr *Server) handleConn(conn net.Conn) {
	defer svr.connWG.Done()
	sess := newSession(conn)
	svr.sessions.Store(sess.ID, sess)
	logger := svr.logger.With(zap.String("session", sess.ID))
	logger.Debug("session opened", zap.Stringer("remote", conn.RemoteAddr()))
	defer func() {
		svr.sessions.Delete(sess.ID)
		conn.Close()
		logger.Debug("session closed", zap.Duration("age", time.Since(sess.startedAt)))
	}()
	// accepted just before Shutdown closed the listener
	if svr.shutdown.Load() {
		return
	}

	for {
		if svr.opts.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(svr.opts.IdleTimeout))
		}
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		sess.codecType.Store(uint32(header.CodecType))

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeRequest, protocol.MsgTypePush:
			if !svr.admit(&svr.wg) {
				if header.MsgType == protocol.MsgTypeRequest {
					sess.writeError(header.Seq, "server shutting down")
				}
				continue
			}
			go svr.handleRequest(sess, header, body, logger)
		default:
			logger.Warn("unexpected frame from client", zap.Stringer("type", header.MsgType))
		}
	}
}

// handleRequest decodes one packet, runs it through the chain and writes the
// reply. Pushes from the client get no reply; their failures are logged.
func (svr *Server) handleRequest(sess *Session, header *protocol.Header, body []byte, logger *zap.Logger) {
	defer svr.wg.Done()
	wantsReply := header.MsgType == protocol.MsgTypeRequest

	fail := func(msg string, err error) {
		logger.Warn(msg, zap.Uint8("packet", header.PacketID), zap.Uint32("seq", header.Seq), zap.Error(err))
		if wantsReply {
			if werr := sess.writeError(header.Seq, msg+": "+err.Error()); werr != nil {
				logger.Debug("write error frame failed", zap.Error(werr))
			}
		}
	}

	if header.Bound != packet.BoundServer {
		fail("rejecting packet", fmt.Errorf("%w: client sent a %s-bound packet", packet.ErrUnknownPacket, header.Bound))
		return
	}
	cd, err := codec.GetCodec(header.CodecType, svr.catalog.Codec())
	if err != nil {
		fail("unsupported codec", err)
		return
	}
	p, err := svr.catalog.DecodeWith(cd, header.Bound, header.PacketID, body)
	if err != nil {
		fail("decode failed", err)
		return
	}

	env := &message.Envelope{Session: sess.ID, Seq: header.Seq, Packet: p}
	ctx := context.WithValue(context.Background(), sessionKey{}, sess)
	resp := svr.handler(ctx, env)
	if resp == nil {
		resp = message.Reply(env, nil)
	}

	if !wantsReply {
		if resp.Failed() {
			logger.Warn("push handler failed", zap.String("packet", env.PacketName()), zap.String("error", resp.Error))
		}
		return
	}

	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		Bound:     packet.BoundClient,
		Seq:       header.Seq, // same seq as the request; this is how multiplexing works
	}
	var replyBody []byte
	switch {
	case resp.Failed():
		replyHeader.MsgType = protocol.MsgTypeError
		replyBody = []byte(resp.Error)
	case resp.Packet == nil:
		replyHeader.MsgType = protocol.MsgTypeAck
	case resp.Packet.Bound() != packet.BoundClient:
		fail("invalid reply", fmt.Errorf("reply %s is not client-bound", resp.PacketName()))
		return
	default:
		replyBody, err = svr.catalog.EncodeWith(cd, resp.Packet)
		if err != nil {
			fail("encode reply failed", err)
			return
		}
		replyHeader.MsgType = protocol.MsgTypeResponse
		replyHeader.PacketID = resp.Packet.ID()
	}
	if err := sess.writeFrame(&replyHeader, replyBody); err != nil {
		logger.Debug("write reply failed", zap.Error(err))
	}
}

// businessHandler is the innermost handler: it dispatches by packet id.
func (svr *Server) businessHandler(ctx context.Context, req *message.Envelope) *message.Envelope {
	h, ok := svr.handlers[req.Packet.ID()]
	if !ok {
		return message.Fail(req, "%s: %s", message.ErrNoHandler, req.PacketName())
	}
	return h(ctx, req)
}

// Push sends a client-bound packet to one session without waiting for a
// reply.
func (svr *Server) Push(sessionID string, p packet.Packet) error {
	v, ok := svr.sessions.Load(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return svr.push(v.(*Session), p)
}

// Broadcast pushes p to every connected session and returns the combined
// errors of the sessions it could not reach.
func (svr *Server) Broadcast(p packet.Packet) error {
	var errs error
	svr.sessions.Range(func(_, v any) bool {
		errs = multierr.Append(errs, svr.push(v.(*Session), p))
		return true
	})
	return errs
}

func (svr *Server) push(sess *Session, p packet.Packet) error {
	if p.Bound() != packet.BoundClient {
		return fmt.Errorf("server: push of %s-bound packet %d", p.Bound(), p.ID())
	}
	cd, err := codec.GetCodec(sess.CodecType(), svr.catalog.Codec())
	if err != nil {
		return err
	}
	body, err := svr.catalog.EncodeWith(cd, p)
	if err != nil {
		return err
	}
	return sess.writeFrame(&protocol.Header{
		CodecType: cd.Type(),
		MsgType:   protocol.MsgTypePush,
		Bound:     packet.BoundClient,
		PacketID:  p.ID(),
	}, body)
}

// Sessions lists the ids of the connected sessions.
func (svr *Server) Sessions() []string {
	var ids []string
	svr.sessions.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (clients stop routing to this server)
//  2. Set the shutdown flag (so the Accept error is recognized as intentional)
//  3. Close the listener (stop accepting new connections)
//  4. Wait for in-flight requests to finish (with timeout)
//  5. Close the remaining client connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.Lock()
	listener, reg, addr := svr.listener, svr.registry, svr.advertiseAddr
	svr.mu.Unlock()
	if listener == nil {
		return ErrNotServing
	}

	var errs error
	if reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		errs = multierr.Append(errs, reg.Deregister(ctx, svr.opts.ServiceName, addr))
		cancel()
	}

	// Set the flag BEFORE closing the listener, or Serve could see the
	// Accept error first and report it.
	svr.mu.Lock()
	svr.shutdown.Store(true)
	svr.mu.Unlock()
	if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = multierr.Append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		errs = multierr.Append(errs, fmt.Errorf("server: timeout waiting for ongoing requests to finish"))
	}

	svr.sessions.Range(func(_, v any) bool {
		v.(*Session).conn.Close()
		return true
	})
	svr.connWG.Wait()
	svr.logger.Info("server stopped", zap.Error(errs))
	return errs
}
