package middleware

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"liquidnet/message"
)

var retryable = []string{
	message.ErrTimeout,
	message.ErrConnectionClosed,
	"connection refused",
}

func isRetryable(errMsg string) bool {
	for _, s := range retryable {
		if strings.Contains(errMsg, s) {
			return true
		}
	}
	return false
}

// RetryMiddleware re-issues a failed request up to maxRetries times with
// exponential backoff starting at baseDelay. Only transport-level failures
// are retried; a handler error is returned as is.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if !resp.Failed() || !isRetryable(resp.Error) {
					return resp
				}
				logger.Info("retrying packet",
					zap.Int("attempt", i+1),
					zap.String("packet", req.PacketName()),
					zap.String("error", resp.Error))

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return resp
				case <-timer.C:
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}
