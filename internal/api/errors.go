// Package api provides the HTTP handlers of the bug hunt server and the
// standardized JSON error envelope they share.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/bughunt/internal/authoring"
	"github.com/onnwee/bughunt/internal/game"
	"github.com/onnwee/bughunt/internal/middleware"
	"github.com/onnwee/bughunt/internal/scene"
)

// Error codes carried in the "code" field of every error response.
const (
	ErrCodeValidation      = "validation_error"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeForbidden       = "forbidden"
	ErrCodeNotFound        = "not_found"
	ErrCodeSceneNotFound   = "scene_not_found"
	ErrCodeBugNotFound     = "bug_not_found"
	ErrCodeConflict        = "conflict"
	ErrCodeNotDrawing      = "not_drawing"
	ErrCodeNoActiveBug     = "no_active_bug"
	ErrCodeTooLarge        = "too_large"
	ErrCodeUnsupportedType = "unsupported_type"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeUnavailable     = "unavailable"
	ErrCodeInternal        = "internal_error"
)

// codeStatus is the HTTP status each code is normally sent with.
var codeStatus = map[string]int{
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeForbidden:       http.StatusForbidden,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeSceneNotFound:   http.StatusNotFound,
	ErrCodeBugNotFound:     http.StatusNotFound,
	ErrCodeConflict:        http.StatusConflict,
	ErrCodeNotDrawing:      http.StatusConflict,
	ErrCodeNoActiveBug:     http.StatusConflict,
	ErrCodeTooLarge:        http.StatusRequestEntityTooLarge,
	ErrCodeUnsupportedType: http.StatusUnsupportedMediaType,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
	ErrCodeInternal:        http.StatusInternalServerError,
}

// StatusFor returns the status for code, 500 for unknown codes.
func StatusFor(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the body of every error: {"error": {"code": ..., "message": ...}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure. Field is set for validation errors.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes the error envelope with status. ctx is handed to the
// logging middleware, which logs the error code when ctx carries one.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	writeDetail(w, ctx, status, ErrorDetail{Code: code, Message: message})
}

func writeDetail(w http.ResponseWriter, ctx context.Context, status int, detail ErrorDetail) {
	middleware.UpdateResponseContext(w, ctx)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: detail}); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// writeErrorCode records code on the request context and writes the
// envelope.
func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteError(w, middleware.SetErrorCode(r.Context(), code), status, code, message)
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
// It writes the error response itself and reports whether decoding worked.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

// ClassifyError maps an error from the game, store or authoring session to
// an error code and its status.
func ClassifyError(err error) (int, string) {
	code := ErrCodeInternal
	var ve *scene.ValidationError
	switch {
	case errors.As(err, &ve):
		code = ErrCodeValidation
	case errors.Is(err, scene.ErrSceneNotFound):
		code = ErrCodeSceneNotFound
	case errors.Is(err, scene.ErrBugNotFound):
		code = ErrCodeBugNotFound
	case errors.Is(err, authoring.ErrNotDrawing):
		code = ErrCodeNotDrawing
	case errors.Is(err, game.ErrNoActiveBug):
		code = ErrCodeNoActiveBug
	}
	return StatusFor(code), code
}

// writeServiceError writes the response for err. Internal failures are
// logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := ClassifyError(err)
	ctx := middleware.SetErrorCode(r.Context(), code)
	if code == ErrCodeInternal {
		slog.ErrorContext(ctx, "request failed", "error", err, "path", r.URL.Path)
		writeDetail(w, ctx, status, ErrorDetail{Code: code, Message: "Internal server error"})
		return
	}
	detail := ErrorDetail{Code: code, Message: err.Error()}
	var ve *scene.ValidationError
	if errors.As(err, &ve) {
		detail.Field = ve.Field
	}
	writeDetail(w, ctx, status, detail)
}
