package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/bughunt/internal/image"
	"github.com/onnwee/bughunt/internal/upload"
)

// DefaultMaxImageBytes caps an image upload when no limit is configured.
const DefaultMaxImageBytes = 10 << 20

// ImageProcessor sanitizes uploaded image bytes.
type ImageProcessor interface {
	ProcessBytes(data []byte) (image.Result, error)
}

// ObjectStore persists processed images. *upload.Service implements it.
type ObjectStore interface {
	Put(ctx context.Context, kind string, ownerID *string, contentType string, data []byte) (*upload.StoredObject, error)
}

// ImageResponse is returned by POST /api/admin/images. URL is either a
// data URI or the public address of the stored object; it is what scene
// and bug image fields expect.
type ImageResponse struct {
	URL         string `json:"url"`
	Key         string `json:"key,omitempty"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// ImageHandlers accepts scene and bug images.
type ImageHandlers struct {
	processor ImageProcessor
	store     ObjectStore
	maxBytes  int64
}

// NewImageHandlers creates image handlers. With a nil store processed
// images are returned inline as data URIs.
func NewImageHandlers(processor ImageProcessor, store ObjectStore, maxBytes int64) *ImageHandlers {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ImageHandlers{processor: processor, store: store, maxBytes: maxBytes}
}

// Upload handles POST /api/admin/images. The multipart form carries the
// file in "image" and optionally "kind" (scenes or bugs) and "owner_id".
func (h *ImageHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorCode(w, r, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "Image exceeds maximum allowed size")
			return
		}
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Expected a multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, "image file is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		writeErrorCode(w, r, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "Image exceeds maximum allowed size")
		return
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && upload.CheckContentType(ct) != nil {
		writeErrorCode(w, r, http.StatusUnsupportedMediaType, ErrCodeUnsupportedType,
			"Unsupported content type. Allowed types: image/jpeg, image/png, image/webp")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read image")
		return
	}
	if len(data) == 0 {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, "image file is empty")
		return
	}

	res, err := h.processor.ProcessBytes(data)
	if err != nil {
		slog.WarnContext(r.Context(), "image rejected", "error", err, "filename", header.Filename)
		writeErrorCode(w, r, http.StatusUnsupportedMediaType, ErrCodeUnsupportedType, "Image could not be decoded")
		return
	}

	resp := ImageResponse{
		ContentType: res.ContentType,
		Width:       res.Width,
		Height:      res.Height,
	}
	if h.store == nil {
		resp.URL = res.DataURI()
		writeJSON(w, r, http.StatusCreated, resp)
		return
	}

	kind := r.FormValue("kind")
	if kind == "" {
		kind = upload.KindScene
	}
	var owner *string
	if v := strings.TrimSpace(r.FormValue("owner_id")); v != "" {
		owner = &v
	}
	obj, err := h.store.Put(r.Context(), kind, owner, res.ContentType, res.Data)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}
	resp.URL = obj.PublicURL
	resp.Key = obj.Key
	writeJSON(w, r, http.StatusCreated, resp)
}
