package telemetry

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/italolelis/media_fetcher/internal/logctx"
)

const RequestIDHeader = "X-Request-ID"

// RequestID middleware generates a unique request_id for each request.
// If an X-Request-ID header is present (upstream propagation), it is reused.
// The request_id is stored in the context and set as a response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := logctx.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
