// Package client is the caller side of liquidnet: it discovers server
// instances, picks one per call with a load balancer and sends packets over
// pooled multiplexed transports.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"liquidnet/codec"
	"liquidnet/loadbalance"
	"liquidnet/message"
	"liquidnet/middleware"
	"liquidnet/packet"
	"liquidnet/protocol"
	"liquidnet/registry"
	"liquidnet/transport"
)

var ErrClientClosed = errors.New("client: closed")

const (
	DefaultServiceName = "liquidnet"
	DefaultPoolSize    = 2
	DefaultDialTimeout = 3 * time.Second
)

// RemoteError is a failure reported by the server or the call chain for one
// packet.
type RemoteError struct {
	Packet  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("client: %s: %s", e.Packet, e.Message)
}

// PushFunc handles one client-bound packet pushed by the server.
type PushFunc func(p packet.Packet)

type Options struct {
	ServiceName string
	// Balancer defaults to round robin.
	Balancer  loadbalance.Balancer
	CodecType codec.CodecType
	// PoolSize is the number of connections kept per server address. Each
	// connection is multiplexed, so a small pool is enough.
	PoolSize          int
	DialTimeout       time.Duration
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

type Client struct {
	registry registry.Registry
	catalog  *packet.Catalog
	opts     Options
	logger   *zap.Logger

	mu     sync.Mutex
	pools  map[string]*pool // server address → transports
	closed bool

	pushMu       sync.RWMutex
	pushHandlers map[byte]PushFunc

	chainMu     sync.Mutex
	middlewares []middleware.Middleware
	handler     atomic.Pointer[middleware.HandlerFunc]

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// pool holds the transports of one address and hands them out round robin.
type pool struct {
	next       atomic.Uint64
	mu         sync.Mutex
	transports []*transport.ClientTransport
}

// NewClient creates a client for the servers registered under
// opts.ServiceName and starts watching the registry so connections to
// servers that go away are closed.
func NewClient(reg registry.Registry, cat *packet.Catalog, opts Options) (*Client, error) {
	if reg == nil {
		return nil, errors.New("client: nil registry")
	}
	if _, err := codec.GetCodec(opts.CodecType, cat.Codec()); err != nil {
		return nil, err
	}
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultServiceName
	}
	if opts.Balancer == nil {
		opts.Balancer = &loadbalance.RoundRobinBalancer{}
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		registry:     reg,
		catalog:      cat,
		opts:         opts,
		logger:       opts.Logger.With(zap.String("service", opts.ServiceName)),
		pools:        make(map[string]*pool),
		pushHandlers: make(map[byte]PushFunc),
		stopWatch:    cancel,
		watchDone:    make(chan struct{}),
	}
	c.rebuildChain()
	go c.watch(ctx)
	return c, nil
}

// Use appends a middleware around every Call. The first middleware added is
// the outermost.
func (c *Client) Use(mw middleware.Middleware) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	c.middlewares = append(c.middlewares, mw)
	c.rebuildChain()
}

func (c *Client) rebuildChain() {
	h := middleware.Chain(c.middlewares...)(c.roundTrip)
	c.handler.Store(&h)
}

// OnPush routes pushes of the client-bound packet id to fn.
func (c *Client) OnPush(id byte, fn PushFunc) error {
	if _, ok := c.catalog.Lookup(packet.BoundClient, id); !ok {
		return fmt.Errorf("client: no client-bound packet %d in catalog", id)
	}
	c.pushMu.Lock()
	c.pushHandlers[id] = fn
	c.pushMu.Unlock()
	return nil
}

func (c *Client) dispatchPush(env *message.Envelope) {
	c.pushMu.RLock()
	fn, ok := c.pushHandlers[env.Packet.ID()]
	c.pushMu.RUnlock()
	if !ok {
		c.logger.Debug("unhandled push", zap.String("packet", env.PacketName()))
		return
	}
	fn(env.Packet)
}

type keyCtx struct{}

// Call sends req and waits for the reply. key selects the server for
// key-aware balancers; a nil reply packet means the server acknowledged the
// request without a reply.
func (c *Client) Call(ctx context.Context, key string, req packet.Packet) (packet.Packet, error) {
	if req == nil || req.Bound() != packet.BoundServer {
		return nil, fmt.Errorf("client: request must be a server-bound packet")
	}
	env := &message.Envelope{Packet: req}
	h := *c.handler.Load()
	resp := h(context.WithValue(ctx, keyCtx{}, key), env)
	if resp == nil {
		return nil, nil
	}
	if resp.Failed() {
		return nil, &RemoteError{Packet: env.PacketName(), Message: resp.Error}
	}
	return resp.Packet, nil
}

// roundTrip is the innermost handler of the call chain.
func (c *Client) roundTrip(ctx context.Context, req *message.Envelope) *message.Envelope {
	key, _ := ctx.Value(keyCtx{}).(string)
	t, err := c.pick(ctx, key)
	if err != nil {
		return message.Fail(req, "%s", err)
	}
	seq, ch, err := t.Send(ctx, protocol.MsgTypeRequest, req.Packet)
	if err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return message.Fail(req, "%s", message.ErrConnectionClosed)
		}
		return message.Fail(req, "%s", err)
	}
	select {
	case resp := <-ch:
		return resp
	case <-ctx.Done():
		t.Forget(seq)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return message.Fail(req, "%s", message.ErrTimeout)
		}
		return message.Fail(req, "%s", ctx.Err())
	}
}

// Send writes p to a server as a push; no reply is expected.
func (c *Client) Send(ctx context.Context, key string, p packet.Packet) error {
	if p == nil || p.Bound() != packet.BoundServer {
		return fmt.Errorf("client: push must be a server-bound packet")
	}
	t, err := c.pick(ctx, key)
	if err != nil {
		return err
	}
	_, _, err = t.Send(ctx, protocol.MsgTypePush, p)
	return err
}

// pick discovers the instances, lets the balancer choose one and returns a
// live transport to it.
func (c *Client) pick(ctx context.Context, key string) (*transport.ClientTransport, error) {
	instances, err := c.registry.Discover(ctx, c.opts.ServiceName)
	if err != nil {
		return nil, err
	}
	instance, err := c.opts.Balancer.Pick(key, instances)
	if err != nil {
		return nil, err
	}
	return c.getTransport(ctx, instance.Addr)
}

func (c *Client) getTransport(ctx context.Context, addr string) (*transport.ClientTransport, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	p, ok := c.pools[addr]
	if !ok {
		p = &pool{transports: make([]*transport.ClientTransport, c.opts.PoolSize)}
		c.pools[addr] = p
	}
	c.mu.Unlock()

	i := int(p.next.Add(1)-1) % len(p.transports)
	p.mu.Lock()
	defer p.mu.Unlock()
	if t := p.transports[i]; t != nil && !t.Closed() {
		return t, nil
	}

	// dead or never dialed
	dialer := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	t, err := transport.NewClientTransport(conn, c.catalog, transport.Options{
		CodecType:         c.opts.CodecType,
		HeartbeatInterval: c.opts.HeartbeatInterval,
		OnPush:            c.dispatchPush,
		Logger:            c.logger,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.transports[i] = t
	c.logger.Debug("connected", zap.String("addr", addr), zap.Int("slot", i))
	return t, nil
}

// watch closes the pools of addresses that leave the registry.
func (c *Client) watch(ctx context.Context) {
	defer close(c.watchDone)
	for instances := range c.registry.Watch(ctx, c.opts.ServiceName) {
		live := make(map[string]bool, len(instances))
		for _, in := range instances {
			live[in.Addr] = true
		}
		c.mu.Lock()
		var gone []*pool
		for addr, p := range c.pools {
			if !live[addr] {
				gone = append(gone, p)
				delete(c.pools, addr)
				c.logger.Info("server left", zap.String("addr", addr))
			}
		}
		c.mu.Unlock()
		for _, p := range gone {
			p.close()
		}
	}
}

func (p *pool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs error
	for i, t := range p.transports {
		if t != nil {
			errs = multierr.Append(errs, t.Close())
			p.transports[i] = nil
		}
	}
	return errs
}

// Close stops the registry watch and closes every connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pools := c.pools
	c.pools = nil
	c.mu.Unlock()

	c.stopWatch()
	<-c.watchDone

	var errs error
	for _, p := range pools {
		errs = multierr.Append(errs, p.close())
	}
	return errs
}
