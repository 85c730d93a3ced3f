package middleware

import (
	"fmt"
	"net/http"
	"time"

	"callmon-api/internal/http/httperr"
	"callmon-api/internal/observability/logger"
	"callmon-api/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RateLimitMiddleware enforces a per-client limit. The key is the
// authenticated client name when available, otherwise the remote
// address. A Redis failure fails open so the limiter never takes the
// API down with it.
func RateLimitMiddleware(limiter *ratelimit.RedisRateLimiter, limitPerMin int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.GetLogger(ctx)

			client := logger.GetClientFromContext(ctx)
			if client == "" {
				client = sanitizeRemoteAddr(r.RemoteAddr)
			}

			allowed, remaining, err := limiter.AllowRequest(ctx, client, limitPerMin, 60)
			if err != nil {
				log.Error(ctx, "rate limit check failed",
					logger.Module("http"),
					logger.Action("rate_limit"),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limitPerMin))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(60*time.Second).Unix()))

			if !allowed {
				span := trace.SpanFromContext(ctx)
				span.AddEvent("rate_limit_exceeded")

				log.Warn(ctx, "rate limit exceeded",
					logger.Module("http"),
					logger.Action("rate_limit"),
					zap.String("client", client),
					zap.Int("limit", limitPerMin),
				)

				w.Header().Set("Retry-After", "60")
				httperr.TooManyRequests429(w, ctx, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
