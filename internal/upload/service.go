// Package upload stores scene and bug images in an S3-compatible bucket
// (Cloudflare R2 in production) and presigns direct browser uploads.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/onnwee/bughunt/internal/validate"
)

const (
	MIMEImageJPEG = validate.MIMEImageJPEG
	MIMEImagePNG  = validate.MIMEImagePNG
	MIMEImageWebP = validate.MIMEImageWebP
)

var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrFileTooLarge    = errors.New("file size exceeds maximum allowed")
	ErrEmptyFile       = errors.New("file size must be positive")
	ErrInvalidOwnerID  = errors.New("invalid owner ID")
	ErrInvalidKind     = errors.New("kind must be scenes or bugs")
)

var accepted = []string{MIMEImageJPEG, MIMEImagePNG, MIMEImageWebP}

const (
	defaultMaxSizeMB = 10
	defaultURLExpiry = 5 * time.Minute
	immutableCache   = "public, max-age=31536000, immutable"
)

// SignedURLRequest asks for a presigned PUT. A nil OwnerID files the
// object under "temp".
type SignedURLRequest struct {
	Kind        string
	ContentType string
	SizeBytes   int64
	OwnerID     *string
}

// SignedURLResponse is returned to the browser, which PUTs the file to URL
// before ExpiresAt.
type SignedURLResponse struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	PublicURL string    `json:"public_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoredObject describes an image written by Put.
type StoredObject struct {
	Key       string `json:"key"`
	PublicURL string `json:"public_url"`
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Service writes images to the bucket and signs upload URLs.
type Service struct {
	putter    objectPutter
	presigner *s3.PresignClient
	bucket    string
	publicURL string
	maxBytes  int64
	expiry    time.Duration
	now       func() time.Time
}

// ServiceConfig configures a Service. PublicBaseURL is optional; without it
// objects are addressed as "/" + key.
type ServiceConfig struct {
	BucketName       string
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	PublicBaseURL    string
	MaxSizeMB        int
	URLExpiryMinutes int
}

func (c ServiceConfig) validate() error {
	var errs []error
	for _, f := range []struct{ value, msg string }{
		{c.BucketName, "bucket name is required"},
		{c.AccessKeyID, "access key ID is required"},
		{c.SecretAccessKey, "secret access key is required"},
		{c.Endpoint, "endpoint is required"},
	} {
		if f.value == "" {
			errs = append(errs, errors.New(f.msg))
		}
	}
	return errors.Join(errs...)
}

// NewService builds a path-style S3 client for cfg.Endpoint.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	maxMB := cfg.MaxSizeMB
	if maxMB <= 0 {
		maxMB = defaultMaxSizeMB
	}
	expiry := time.Duration(cfg.URLExpiryMinutes) * time.Minute
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}

	client := s3.New(s3.Options{
		Region:       "auto",
		Credentials:  aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &Service{
		putter:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.BucketName,
		publicURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxBytes:  int64(maxMB) << 20,
		expiry:    expiry,
		now:       time.Now,
	}, nil
}

// CheckContentType reports whether contentType, parameters ignored, is an
// accepted image type.
func CheckContentType(contentType string) error {
	_, err := contentTypeOf(contentType)
	return err
}

func contentTypeOf(contentType string) (string, error) {
	mt, err := validate.MIMEType(contentType, accepted)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnsupportedType, err)
	}
	return mt, nil
}

// CheckSize rejects empty files and files over the configured limit.
func (s *Service) CheckSize(n int64) error {
	switch {
	case n <= 0:
		return ErrEmptyFile
	case n > s.maxBytes:
		return ErrFileTooLarge
	}
	return nil
}

func (s *Service) MaxSizeBytes() int64 { return s.maxBytes }

func (s *Service) Bucket() string { return s.bucket }

// PublicURL returns where key is served from.
func (s *Service) PublicURL(key string) string {
	return s.publicURL + "/" + key
}

// prepare validates an upload and allocates its key.
func (s *Service) prepare(kind, contentType string, size int64, ownerID *string) (key, mt string, err error) {
	if mt, err = contentTypeOf(contentType); err != nil {
		return "", "", err
	}
	if err = s.CheckSize(size); err != nil {
		return "", "", err
	}
	key, err = ObjectKey(kind, mt, ownerID)
	return key, mt, err
}

// GenerateSignedURL presigns a PUT for a new object. Signing is local; no
// request reaches the bucket.
func (s *Service) GenerateSignedURL(ctx context.Context, req SignedURLRequest) (*SignedURLResponse, error) {
	key, mt, err := s.prepare(req.Kind, req.ContentType, req.SizeBytes, req.OwnerID)
	if err != nil {
		return nil, err
	}

	signed, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(mt),
		ContentLength: aws.Int64(req.SizeBytes),
	}, func(o *s3.PresignOptions) { o.Expires = s.expiry })
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}

	return &SignedURLResponse{
		URL:       signed.URL,
		Key:       key,
		PublicURL: s.PublicURL(key),
		ExpiresAt: s.now().Add(s.expiry),
	}, nil
}

// Put writes an already processed image.
func (s *Service) Put(ctx context.Context, kind string, ownerID *string, contentType string, data []byte) (*StoredObject, error) {
	key, mt, err := s.prepare(kind, contentType, int64(len(data)), ownerID)
	if err != nil {
		return nil, err
	}

	_, err = s.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mt),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String(immutableCache),
	})
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", key, err)
	}
	return &StoredObject{Key: key, PublicURL: s.PublicURL(key)}, nil
}
