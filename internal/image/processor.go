// Package image sanitizes uploaded scene and bug images: metadata is
// stripped, oversized images are scaled down and the result is re-encoded.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/h2non/bimg"

	"github.com/onnwee/bughunt/internal/validate"
)

// ErrUnsupportedFormat is returned for inputs that are not JPEG, PNG or WebP.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ProcessorConfig holds configuration for image processing.
type ProcessorConfig struct {
	// Quality for JPEG/WebP encoding (1-100, default: 85)
	Quality int
	// OutputFormat forces jpeg, webp or png. Empty keeps the input format.
	OutputFormat string
	// StripMetadata removes all EXIF/metadata (default: true)
	StripMetadata bool
	// MaxWidth limits image width (0 = no limit)
	MaxWidth int
	// MaxHeight limits image height (0 = no limit)
	MaxHeight int
}

// DefaultConfig returns sensible defaults for image processing.
func DefaultConfig() ProcessorConfig {
	return ProcessorConfig{
		Quality:       85,
		StripMetadata: true,
		MaxWidth:      2048,
		MaxHeight:     2048,
	}
}

// Result is a processed image.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// DataURI encodes the image the way the game stores images inline.
func (r Result) DataURI() string {
	return validate.DataURI(r.ContentType, r.Data)
}

// Processor handles image sanitization and re-encoding.
type Processor struct {
	config ProcessorConfig
}

// NewProcessor creates a new image processor with the given config.
func NewProcessor(config ProcessorConfig) *Processor {
	return &Processor{config: config}
}

// Process reads an image, strips metadata, scales it to fit the configured
// bounds and re-encodes it.
func (p *Processor) Process(r io.Reader) (Result, error) {
	inputBytes, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read input image: %w", err)
	}

	img := bimg.NewImage(inputBytes)
	metadata, err := img.Metadata()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read image metadata: %w", err)
	}

	outType, err := outputType(p.config.OutputFormat, metadata.Type)
	if err != nil {
		return Result{}, err
	}

	options := bimg.Options{
		Quality:       p.config.Quality,
		StripMetadata: p.config.StripMetadata,
		Type:          outType,
		// Rotate per EXIF before the orientation tag is stripped
		Rotate: bimg.Angle(0),
	}

	width, height := fit(metadata.Size.Width, metadata.Size.Height, p.config.MaxWidth, p.config.MaxHeight)
	if width != metadata.Size.Width || height != metadata.Size.Height {
		options.Width = width
		options.Height = height
		options.Embed = true
	}

	outputBytes, err := img.Process(options)
	if err != nil {
		return Result{}, fmt.Errorf("failed to process image: %w", err)
	}

	size, err := bimg.NewImage(outputBytes).Size()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read processed image size: %w", err)
	}

	return Result{
		Data:        outputBytes,
		ContentType: "image/" + bimg.ImageTypeName(outType),
		Width:       size.Width,
		Height:      size.Height,
	}, nil
}

// ProcessBytes is a convenience wrapper for processing image bytes directly.
func (p *Processor) ProcessBytes(inputBytes []byte) (Result, error) {
	return p.Process(bytes.NewReader(inputBytes))
}

// fit scales w x h down, keeping the aspect ratio, until it fits inside
// maxW x maxH. Zero bounds are unlimited.
func fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}
	if scale == 1.0 {
		return w, h
	}
	nw, nh := int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// outputType resolves the encoding for an image whose detected type is
// inputType. Scene art with transparency stays PNG unless a format is forced.
func outputType(format, inputType string) (bimg.ImageType, error) {
	switch format {
	case "jpeg", "jpg":
		return bimg.JPEG, nil
	case "webp":
		return bimg.WEBP, nil
	case "png":
		return bimg.PNG, nil
	case "":
	default:
		return bimg.UNKNOWN, fmt.Errorf("%w: output %q", ErrUnsupportedFormat, format)
	}

	switch inputType {
	case "jpeg":
		return bimg.JPEG, nil
	case "png":
		return bimg.PNG, nil
	case "webp":
		return bimg.WEBP, nil
	default:
		return bimg.UNKNOWN, fmt.Errorf("%w: %s", ErrUnsupportedFormat, inputType)
	}
}

// VerifyNoEXIF checks if the image has EXIF metadata.
// Returns true if no EXIF data is present, false otherwise.
func VerifyNoEXIF(imageBytes []byte) (bool, error) {
	img := bimg.NewImage(imageBytes)
	metadata, err := img.Metadata()
	if err != nil {
		return false, fmt.Errorf("failed to read image metadata: %w", err)
	}

	exif := metadata.EXIF
	hasEXIF := exif.Make != "" || exif.Model != "" ||
		exif.GPSLatitude != "" || exif.GPSLongitude != "" ||
		exif.DateTimeOriginal != "" || exif.Software != ""

	return !hasEXIF, nil
}
