package ratelimit

import (
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"delivery-orchestrator/internal/logx"
)

type retryHinter interface {
	RetryAfter() time.Duration
}

// Middleware answers 429 once a client drained its bucket. refused may be
// nil. Use it after chi's RealIP so proxied clients get their own bucket.
func Middleware(logger logx.Logger, refused prometheus.Counter, limiter Limiter) func(http.Handler) http.Handler {
	if limiter == nil {
		limiter = Nop{}
	}
	retryAfter := "1"
	if h, ok := limiter.(retryHinter); ok {
		retryAfter = strconv.Itoa(int(math.Ceil(h.RetryAfter().Seconds())))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if limiter.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}
			if refused != nil {
				refused.Inc()
			}
			logger.Warn("rate limit exceeded",
				logx.String("ip", ip),
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			if _, err := io.WriteString(w, `{"error":"too many requests"}`); err != nil {
				logger.Debug("rate limit response write failed", logx.String("ip", ip), logx.Err(err))
			}
		})
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
