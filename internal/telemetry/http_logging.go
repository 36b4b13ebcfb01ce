package telemetry

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/media_fetcher/internal/logctx"
)

// HTTPLogging logs one line per request: 5xx at ERROR, 4xx at WARN,
// everything else at INFO.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logctx.LoggerFromContext(ctx)
		start := time.Now()

		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		status := wrapped.status
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"size", humanize.Bytes(uint64(wrapped.bytesWritten)),
			"remote_addr", r.RemoteAddr,
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorContext(ctx, "http request completed", attrs...)
		case status >= http.StatusBadRequest:
			logger.WarnContext(ctx, "http request completed", attrs...)
		default:
			logger.InfoContext(ctx, "http request completed", attrs...)
		}
	})
}
