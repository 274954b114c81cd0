// Package middleware holds the HTTP middleware chain of the API server:
// request IDs, request logging, tracing, metrics, CORS and rate limiting.
package middleware

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// NewLogger returns a JSON logger at info level in production and a text
// logger at debug level everywhere else.
func NewLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Logging writes one "request completed" line per request. 5xx responses
// log at error level and 4xx at warn; error_code is only attached to
// those. A panicking handler produces no line.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newRecorder(w)
			next.ServeHTTP(rec, r)

			ctx := r.Context()
			if rec.ctx != nil {
				ctx = rec.ctx
			}

			attrs := make([]slog.Attr, 0, 9)
			attrs = append(attrs,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				slog.Int64("size", rec.written),
			)
			for _, f := range []struct{ key, val string }{
				{"request_id", GetRequestID(ctx)},
				{"trace_id", TraceID(ctx)},
				{"subject", GetSubject(ctx)},
			} {
				if f.val != "" {
					attrs = append(attrs, slog.String(f.key, f.val))
				}
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}
			if level > slog.LevelInfo {
				if code := GetErrorCode(ctx); code != "" {
					attrs = append(attrs, slog.String("error_code", code))
				}
			}
			logger.LogAttrs(r.Context(), level, "request completed", attrs...)
		})
	}
}
