package upload

import (
	"errors"
	"regexp"
	"testing"
)

func TestObjectKey(t *testing.T) {
	sceneID := "5b0c3b1e-8d1f-4a43-9f0e-1c2d3e4f5a6b"
	dotted := "scene.1"
	traversal := "../../"
	empty := ""
	uuidPart := `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`

	tests := []struct {
		name        string
		kind        string
		contentType string
		ownerID     *string
		want        string
		wantErr     error
	}{
		{"scene jpeg with owner", KindScene, MIMEImageJPEG, &sceneID, `^scenes/` + sceneID + `/` + uuidPart + `\.jpg$`, nil},
		{"bug png without owner", KindBug, MIMEImagePNG, nil, `^bugs/temp/` + uuidPart + `\.png$`, nil},
		{"empty owner is temp", KindScene, MIMEImageWebP, &empty, `^scenes/temp/` + uuidPart + `\.webp$`, nil},
		{"owner cleaned", KindBug, MIMEImagePNG, &dotted, `^bugs/scene1/`, nil},
		{"owner only separators", KindScene, MIMEImagePNG, &traversal, "", ErrInvalidOwnerID},
		{"unknown kind", "posts", MIMEImagePNG, nil, "", ErrInvalidKind},
		{"unsupported type", KindScene, "image/gif", nil, "", ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ObjectKey(tt.kind, tt.contentType, tt.ownerID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ObjectKey() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && !regexp.MustCompile(tt.want).MatchString(key) {
				t.Errorf("ObjectKey() = %q, want match %s", key, tt.want)
			}
		})
	}
}

func TestCleanSegment(t *testing.T) {
	tests := map[string]string{
		"scene123":         "scene123",
		"scene-123_abc":    "scene-123_abc",
		"../../etc/passwd": "etcpasswd",
		"scene@#$%123":     "scene123",
		"ünïcode":          "ncode",
		"":                 "",
		"@#$%^&*()":        "",
	}
	for in, want := range tests {
		if got := cleanSegment(in); got != want {
			t.Errorf("cleanSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
