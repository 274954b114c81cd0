package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/bughunt/internal/middleware"
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		// Scheme is case-insensitive.
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			token, ok = header[7:], true
		}
	}
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// RequireAdmin rejects requests without a valid admin token. The token
// subject is stored in the request context for logging and rate limiting.
// A nil svc disables the check.
func RequireAdmin(svc *JWTService, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if svc == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				unauthorized(w, r, "Missing bearer token")
				return
			}

			claims, err := svc.ValidateAdminToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "admin token rejected",
					slog.String("path", r.URL.Path),
					slog.String("reason", err.Error()),
				)
				switch {
				case errors.Is(err, ErrExpiredToken):
					unauthorized(w, r, "Token has expired")
				case errors.Is(err, ErrNotAdmin):
					forbidden(w, r)
				default:
					unauthorized(w, r, "Invalid token")
				}
				return
			}

			ctx := middleware.SetSubject(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	middleware.UpdateResponseContext(w, middleware.SetErrorCode(r.Context(), "unauthorized"))
	w.Header().Set("WWW-Authenticate", `Bearer realm="bughunt-admin"`)
	writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	middleware.UpdateResponseContext(w, middleware.SetErrorCode(r.Context(), "forbidden"))
	writeError(w, http.StatusForbidden, "forbidden", "Admin access required")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}
