package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/bughunt/internal/upload"
)

// SignUploadRequest represents the request body for POST /api/admin/uploads/sign.
type SignUploadRequest struct {
	Kind        string  `json:"kind"`
	ContentType string  `json:"contentType"`
	SizeBytes   int64   `json:"sizeBytes"`
	OwnerID     *string `json:"ownerId,omitempty"`
}

// SignUploadResponse represents the response for POST /api/admin/uploads/sign.
type SignUploadResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	PublicURL string `json:"publicUrl"`
	ExpiresAt string `json:"expiresAt"` // ISO 8601 format
}

// UploadHandlers holds dependencies for upload HTTP handlers.
type UploadHandlers struct {
	uploadService *upload.Service
}

// NewUploadHandlers creates a new UploadHandlers instance. A nil service
// makes every request fail with 503.
func NewUploadHandlers(uploadService *upload.Service) *UploadHandlers {
	return &UploadHandlers{
		uploadService: uploadService,
	}
}

// SignUpload handles POST /api/admin/uploads/sign - generates a pre-signed
// upload URL for a scene or bug image.
func (h *UploadHandlers) SignUpload(w http.ResponseWriter, r *http.Request) {
	if h.uploadService == nil {
		writeErrorCode(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "Object storage is not configured")
		return
	}

	var req SignUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.ContentType == "" {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, "contentType is required")
		return
	}
	if req.SizeBytes <= 0 {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, "sizeBytes must be positive")
		return
	}
	if req.Kind == "" {
		req.Kind = upload.KindScene
	}

	signedURL, err := h.uploadService.GenerateSignedURL(r.Context(), upload.SignedURLRequest{
		Kind:        req.Kind,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		OwnerID:     req.OwnerID,
	})
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, SignUploadResponse{
		URL:       signedURL.URL,
		Key:       signedURL.Key,
		PublicURL: signedURL.PublicURL,
		ExpiresAt: signedURL.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, upload.ErrUnsupportedType):
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeUnsupportedType,
			"Unsupported content type. Allowed types: image/jpeg, image/png, image/webp")
	case errors.Is(err, upload.ErrFileTooLarge):
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, "File size exceeds maximum allowed")
	case errors.Is(err, upload.ErrEmptyFile):
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, "File is empty")
	case errors.Is(err, upload.ErrInvalidOwnerID):
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, "Invalid owner ID")
	case errors.Is(err, upload.ErrInvalidKind):
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, "kind must be scenes or bugs")
	default:
		slog.ErrorContext(r.Context(), "object storage request failed", "error", err)
		writeErrorCode(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to reach object storage")
	}
}
