package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/htmlshot/htmlshot/internal/api/response"
	"github.com/htmlshot/htmlshot/internal/ratelimit"
	"github.com/htmlshot/htmlshot/internal/telemetry"
)

// RateLimit applies a fixed-window budget per client identity.
type RateLimit struct {
	limiter *ratelimit.Limiter
	metrics *telemetry.Metrics
}

func NewRateLimit(limiter *ratelimit.Limiter, metrics *telemetry.Metrics) *RateLimit {
	return &RateLimit{limiter: limiter, metrics: metrics}
}

// Limit returns middleware enforcing the given endpoint class's budget.
// The check runs before credential verification and is never rolled back:
// rejected attempts still consume quota. On store error the request is
// allowed through (fail open), matching the hygiene-not-correctness role
// of the limiter.
func (rl *RateLimit) Limit(class ratelimit.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := rl.limiter.Check(r.Context(), ClientIdentity(r), class)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := int(time.Until(result.ResetAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				if rl.metrics != nil {
					rl.metrics.RateLimitRejections.WithLabelValues(string(class)).Inc()
				}
				response.Error(w, http.StatusTooManyRequests,
					"RATE_LIMITED", "Too many requests, please try again later", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIdentity extracts the best-available client address: forwarded
// headers in order of trust, then the connection's remote address. All
// untraceable clients share the "unknown" bucket.
func ClientIdentity(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return "unknown"
}
