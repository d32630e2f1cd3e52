package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// requestLog collects fields that are only known after Logger has handed
// the request downstream. Resolve fills in the principal once a
// credential verifies.
type requestLog struct {
	principalID int64
}

type requestLogKey struct{}

func logEntry(ctx context.Context) *requestLog {
	entry, _ := ctx.Value(requestLogKey{}).(*requestLog)
	return entry
}

// Logger writes one line per request on completion. The client field uses
// the same identity the rate limiter buckets on.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		entry := &requestLog{}
		r = r.WithContext(context.WithValue(r.Context(), requestLogKey{}, entry))

		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"client", ClientIdentity(r),
		}
		if entry.principalID != 0 {
			attrs = append(attrs, "user_id", entry.principalID)
		}
		slog.Info("request", attrs...)
	})
}
