package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"liquidnet/message"
)

// RateLimitMiddleware rejects requests beyond a token bucket of r per second
// with the given burst. The bucket is shared by every request through the
// returned middleware.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			if !limiter.Allow() {
				return message.Fail(req, message.ErrRateLimited)
			}
			return next(ctx, req)
		}
	}
}
