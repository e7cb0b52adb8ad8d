package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/remote"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// loggingMiddleware puts a request-scoped logger in the context and logs one
// line per request. Stale writes are part of normal sync traffic, so 409 is
// logged at info.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		fields := map[string]any{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
		}
		if base := r.Header.Get(remote.BaseTimestampHeader); base != "" {
			fields["base"] = base
		}
		log := logger.Default().WithFields(fields)
		r = r.WithContext(logger.NewContext(r.Context(), log))

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log = log.WithFields(map[string]any{
			"status":      wrapped.status,
			"size":        wrapped.size,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case wrapped.status >= 500:
			log.Error("request failed")
		case wrapped.status == http.StatusConflict:
			log.Info("request rejected as stale")
		case wrapped.status >= 400:
			log.Warn("request rejected")
		default:
			log.Debug("request completed")
		}
	})
}

// recoveryMiddleware turns a panic into a JSON internal error.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.FromContext(r.Context()).Error("panic recovered: %v", rec)
				handleError(w, r, apperrors.ErrInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// apiHeadersMiddleware marks every response as uncacheable JSON. Item
// versions change underneath clients, so nothing may be served from a cache.
func apiHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware answers 503 once timeout passes; clients treat that as a
// retryable network failure.
func timeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, `{"error":{"code":"NETWORK_FAILURE","message":"request timed out"}}`)
	}
}
