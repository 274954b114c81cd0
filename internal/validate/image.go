package validate

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"slices"
	"strings"
)

var (
	ErrInvalidImageRef = errors.New("invalid image reference")
	ErrInvalidMIMEType = errors.New("invalid MIME type")
	ErrFileTooLarge    = errors.New("file too large")
)

// Image types accepted for scenes and bugs.
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
	MIMEImageGIF  = "image/gif"
	MIMEImageWebP = "image/webp"
)

// AllowedImageTypes are the types an image reference may carry.
var AllowedImageTypes = []string{MIMEImageJPEG, MIMEImagePNG, MIMEImageGIF, MIMEImageWebP}

// MaxImageBytes caps the decoded size of an inline image.
const MaxImageBytes = 10 << 20

// maxImageRefLength is MaxImageBytes after base64 plus room for the header.
const maxImageRefLength = MaxImageBytes/3*4 + 64

// MIMEType returns the lowercased media type of contentType when it is one
// of allowed. Parameters such as charset are dropped.
func MIMEType(contentType string, allowed []string) (string, error) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return "", ErrEmpty
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMIMEType, err)
	}
	if !slices.ContainsFunc(allowed, func(a string) bool { return strings.EqualFold(a, mediaType) }) {
		return "", fmt.Errorf("%w: %q not in allowed types", ErrInvalidMIMEType, mediaType)
	}
	return mediaType, nil
}

// ImageRef validates the image attached to a scene or bug, which is one of
//
//	data:image/png;base64,...
//	/images/kitchen.png
//	https://cdn.example.com/kitchen.png
func ImageRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", ErrEmpty
	case len(ref) > maxImageRefLength:
		return "", fmt.Errorf("%w: got %d bytes, maximum is %d", ErrFileTooLarge, len(ref), maxImageRefLength)
	case strings.HasPrefix(ref, "data:"):
		if err := checkDataURI(ref); err != nil {
			return "", err
		}
		return ref, nil
	case strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//"):
		if strings.ContainsAny(ref, " \t\r\n") || strings.Contains(ref, "..") {
			return "", fmt.Errorf("%w: malformed path", ErrInvalidImageRef)
		}
		return ref, nil
	}
	if _, err := URL(ref, ImageURLConstraints); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidImageRef, err)
	}
	return ref, nil
}

func checkDataURI(ref string) error {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return fmt.Errorf("%w: data URI has no payload", ErrInvalidImageRef)
	}
	mediaType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return fmt.Errorf("%w: data URI must be base64", ErrInvalidImageRef)
	}
	if _, err := MIMEType(mediaType, AllowedImageTypes); err != nil {
		return err
	}
	if payload == "" {
		return fmt.Errorf("%w: empty data URI", ErrInvalidImageRef)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImageRef, err)
	}
	return nil
}

// DataURI encodes image bytes as a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
