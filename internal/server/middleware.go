package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type contextKey int

const hubKey contextKey = iota

// withHubCtx returns a new context carrying the given RepoHub.
func withHubCtx(ctx context.Context, h *RepoHub) context.Context {
	return context.WithValue(ctx, hubKey, h)
}

// hubFromCtx extracts the RepoHub from the request context. Returns nil
// if no hub is present.
func hubFromCtx(ctx context.Context) *RepoHub {
	h, _ := ctx.Value(hubKey).(*RepoHub)
	return h
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// requestLogger logs method, path, status, and duration for each HTTP request.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration", time.Since(start).Round(time.Microsecond),
			"ip", getClientIP(r),
		)
	})
}

// writeDeadline wraps a handler to set a per-response write deadline using
// ResponseController. This enforces a timeout on individual HTTP responses
// without affecting long-lived WebSocket connections (which are not wrapped).
func writeDeadline(d time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Now().Add(d))
		next(w, r)
	}
}

// corsMiddleware adds permissive CORS headers, since a CLI or a
// browser-based dashboard may reach this server from a different origin
// than it's served from.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
