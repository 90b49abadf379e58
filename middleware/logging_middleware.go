package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"liquidnet/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("packet", req.PacketName()),
				zap.Uint32("seq", req.Seq),
				zap.Duration("duration", time.Since(start)),
			}
			if req.Session != "" {
				fields = append(fields, zap.String("session", req.Session))
			}
			if resp.Failed() {
				logger.Warn("packet failed", append(fields, zap.String("error", resp.Error))...)
				return resp
			}
			logger.Debug("packet handled", fields...)
			return resp
		}
	}
}
