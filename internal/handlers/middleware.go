package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"buildhub/internal/logger"
	"buildhub/internal/marketerrors"

	"github.com/go-chi/chi/v5/middleware"
)

type sessionKey struct{}

// RequireSession takes the bearer token off the request and stores it for the
// handlers. The token is only resolved to a user by the workflow facade.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			writeError(w, r, "RequireSession", fmt.Errorf("%w: missing bearer token", marketerrors.ErrUnauthenticated))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, token)))
	})
}

func sessionFrom(r *http.Request) string {
	s, _ := r.Context().Value(sessionKey{}).(string)
	return s
}

// RequestLogger logs one line per request with its outcome and latency.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
			"bytes":      ww.BytesWritten(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": middleware.GetReqID(r.Context()),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("http request", fields)
			return
		}
		logger.Info("http request", fields)
	})
}
