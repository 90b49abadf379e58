package journal

import (
	"context"

	"go.uber.org/zap"

	"liquidnet/message"
	"liquidnet/middleware"
	"liquidnet/packet"
)

// Middleware records every handled request, with the handler's error if it
// failed, and the reply packet if there is one. Journal failures are logged
// and never fail the request.
func Middleware(j *Journal, cat *packet.Catalog, logger *zap.Logger) middleware.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	record := func(env *message.Envelope, p packet.Packet, errMsg string) {
		e := &Entry{
			Session:  env.Session,
			Seq:      env.Seq,
			Bound:    p.Bound(),
			PacketID: p.ID(),
		}
		if errMsg != "" {
			e.Error = &errMsg
		}
		payload, err := cat.Encode(p)
		if err == nil {
			e.Payload = payload
			_, err = j.Append(e)
		}
		if err != nil {
			logger.Warn("journal append failed", zap.String("packet", env.PacketName()), zap.Error(err))
		}
	}

	return func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			resp := next(ctx, req)
			errMsg := ""
			if resp.Failed() {
				errMsg = resp.Error
			}
			record(req, req.Packet, errMsg)
			if resp != nil && resp.Packet != nil {
				record(resp, resp.Packet, "")
			}
			return resp
		}
	}
}
