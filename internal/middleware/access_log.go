package middleware

import (
	"net/http"
	"time"

	"github.com/better-wallet/agent-custody/internal/logger"
)

// AccessLog logs one line per request after it completes.
// Request headers are logged at debug level with credentials redacted.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		ctx := r.Context()
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if actor := GetActor(ctx); actor != "" {
			args = append(args, "actor", actor)
		}

		switch {
		case rec.StatusCode >= http.StatusInternalServerError:
			logger.Error(ctx, "request completed", args...)
		default:
			logger.Info(ctx, "request completed", args...)
		}
		logger.Debug(ctx, "request headers", "headers", RedactHeaders(r.Header))
	})
}
