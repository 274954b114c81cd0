package upload

import (
	"strings"

	"github.com/google/uuid"
)

// Object kinds, used as the first key segment.
const (
	KindScene = "scenes"
	KindBug   = "bugs"
)

// extensions maps each accepted content type to its object suffix.
var extensions = map[string]string{
	MIMEImageJPEG: ".jpg",
	MIMEImagePNG:  ".png",
	MIMEImageWebP: ".webp",
}

// ObjectKey builds "<kind>/<owner>/<uuid><ext>". A nil or empty owner
// files the object under "temp".
func ObjectKey(kind, contentType string, ownerID *string) (string, error) {
	if kind != KindScene && kind != KindBug {
		return "", ErrInvalidKind
	}
	ext, ok := extensions[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}

	owner := "temp"
	if ownerID != nil && *ownerID != "" {
		if owner = cleanSegment(*ownerID); owner == "" {
			return "", ErrInvalidOwnerID
		}
	}
	return kind + "/" + owner + "/" + uuid.NewString() + ext, nil
}

// cleanSegment keeps ASCII letters, digits, '-' and '_' so an owner id can
// never add or climb path segments.
func cleanSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, s)
}
