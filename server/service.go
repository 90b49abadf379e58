package server

import (
	"context"
	"fmt"
	"reflect"

	"liquidnet/message"
	"liquidnet/middleware"
	"liquidnet/packet"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	packetType  = reflect.TypeFor[packet.Packet]()
	errorType   = reflect.TypeFor[error]()
)

// methodType is one handler method found on a service receiver.
type methodType struct {
	name    string
	fn      reflect.Value // bound to the receiver
	ReqType reflect.Type  // struct type of the request packet
	id      byte
}

// service is a receiver whose exported methods handle server-bound packets:
//
//	func (s *Online) InvitePartyMember(ctx context.Context, req *catalog.C2SInvitePartyMember) (packet.Packet, error)
//
// The request packet type decides which packet id the method handles. A nil
// reply packet is sent as an acknowledgement.
type service struct {
	name   string
	method map[byte]*methodType
}

func newService(rcvr any, cat *packet.Catalog) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: service must be a pointer to a struct, got %v", typ)
	}
	val := reflect.ValueOf(rcvr)
	svc := &service{
		name:   typ.Elem().Name(),
		method: make(map[byte]*methodType),
	}

	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		reqType, ok := handlerSignature(m.Type)
		if !ok {
			continue
		}
		p := reflect.New(reqType).Interface().(packet.Packet)
		if p.Bound() != packet.BoundServer {
			return nil, fmt.Errorf("server: %s.%s handles %s, which is not server-bound", svc.name, m.Name, reqType)
		}
		if registered, ok := cat.Lookup(packet.BoundServer, p.ID()); !ok || registered != reqType {
			return nil, fmt.Errorf("server: %s.%s handles %s, which is not in the catalog", svc.name, m.Name, reqType)
		}
		if prev, dup := svc.method[p.ID()]; dup {
			return nil, fmt.Errorf("server: %s.%s and %s.%s both handle packet %d", svc.name, prev.name, svc.name, m.Name, p.ID())
		}
		svc.method[p.ID()] = &methodType{name: m.Name, fn: val.Method(i), ReqType: reqType, id: p.ID()}
	}
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("server: %s has no packet handler methods", svc.name)
	}
	return svc, nil
}

// handlerSignature checks (receiver, context.Context, *P) (packet.Packet, error)
// and returns P.
func handlerSignature(mt reflect.Type) (reflect.Type, bool) {
	if mt.NumIn() != 3 || mt.NumOut() != 2 {
		return nil, false
	}
	if mt.In(1) != contextType || mt.Out(0) != packetType || mt.Out(1) != errorType {
		return nil, false
	}
	req := mt.In(2)
	if req.Kind() != reflect.Pointer || req.Elem().Kind() != reflect.Struct || !req.Implements(packetType) {
		return nil, false
	}
	return req.Elem(), true
}

// handler adapts m to the middleware handler signature.
func (m *methodType) handler() middleware.HandlerFunc {
	return func(ctx context.Context, req *message.Envelope) *message.Envelope {
		arg := reflect.ValueOf(req.Packet)
		if arg.Type() != reflect.PointerTo(m.ReqType) {
			return message.Fail(req, "packet %d: expected %s, got %s", m.id, m.ReqType, arg.Type())
		}
		out := m.fn.Call([]reflect.Value{reflect.ValueOf(ctx), arg})
		if errv := out[1]; !errv.IsNil() {
			return message.Fail(req, "%s", errv.Interface().(error).Error())
		}
		if out[0].IsNil() {
			return message.Reply(req, nil)
		}
		return message.Reply(req, out[0].Interface().(packet.Packet))
	}
}
