// Package config loads server settings from an optional YAML file through
// koanf, overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Browser origins allowed to call the API. Empty disables CORS.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Persistence
	StorageDriver string `koanf:"storage_driver"`
	SQLitePath    string `koanf:"sqlite_path"`
	DatabaseURL   string `koanf:"database_url"`

	// Admin authentication. Empty disables the admin token check.
	AdminJWTSecret string `koanf:"admin_jwt_secret"`

	// Previous secret still accepted while a rotation is in progress.
	AdminJWTSecretPrevious string `koanf:"admin_jwt_secret_previous"`

	// Redis backs the distributed click rate limiter when set.
	RedisURL                string `koanf:"redis_url"`
	ClickRateLimitPerMinute int    `koanf:"click_rate_limit_per_minute"`

	// R2 (Cloudflare Object Storage)
	R2BucketName      string `koanf:"r2_bucket_name"`
	R2AccessKeyID     string `koanf:"r2_access_key_id"`
	R2SecretAccessKey string `koanf:"r2_secret_access_key"`
	R2Endpoint        string `koanf:"r2_endpoint"`
	R2MaxUploadSizeMB int    `koanf:"r2_max_upload_size_mb"` // Default: 10MB
	R2PublicBaseURL   string `koanf:"r2_public_base_url"`

	// Scene image processing
	ImageMaxWidth  int `koanf:"image_max_width"`
	ImageMaxHeight int `koanf:"image_max_height"`
	ImageQuality   int `koanf:"image_quality"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
}

// Configuration validation errors.
var (
	ErrInvalidStorageDriver         = errors.New("STORAGE_DRIVER must be one of memory, sqlite, postgres")
	ErrMissingDatabaseURL           = errors.New("DATABASE_URL is required for the postgres storage driver")
	ErrMissingSQLitePath            = errors.New("SQLITE_PATH is required for the sqlite storage driver")
	ErrWeakAdminJWTSecret           = errors.New("ADMIN_JWT_SECRET must be at least 32 characters")
	ErrPreviousSecretWithoutCurrent = errors.New("ADMIN_JWT_SECRET_PREVIOUS requires ADMIN_JWT_SECRET")
	ErrInvalidRateLimit             = errors.New("CLICK_RATE_LIMIT_PER_MINUTE must be positive")
	ErrMissingR2BucketName          = errors.New("R2_BUCKET_NAME is required")
	ErrMissingR2AccessKeyID         = errors.New("R2_ACCESS_KEY_ID is required")
	ErrMissingR2SecretAccessKey     = errors.New("R2_SECRET_ACCESS_KEY is required")
	ErrMissingR2Endpoint            = errors.New("R2_ENDPOINT is required")
	ErrInvalidImageQuality          = errors.New("IMAGE_QUALITY must be between 1 and 100")
	ErrInvalidImageDimensions       = errors.New("IMAGE_MAX_WIDTH and IMAGE_MAX_HEIGHT must be positive")
	ErrInvalidTracingExporter       = errors.New("TRACING_EXPORTER must be otlp-http or otlp-grpc")
	ErrInvalidSampleRate            = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidPort                  = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                    = 8080
	DefaultEnv                     = "development"
	DefaultStorageDriver           = StorageMemory
	DefaultSQLitePath              = "bughunt.db"
	DefaultClickRateLimitPerMinute = 120
	DefaultR2MaxUploadSizeMB       = 10
	DefaultImageMaxWidth           = 2048
	DefaultImageMaxHeight          = 2048
	DefaultImageQuality            = 85
	DefaultTracingExporter         = "otlp-http"
	DefaultTracingSampleRate       = 0.1

	minAdminSecretLength = 32
)

// source resolves one setting at a time: the first non-empty environment
// variable wins, then the file value, then the default. Parse failures are
// collected rather than returned.
type source struct {
	k    *koanf.Koanf
	errs []error
}

func firstEnv(keys []string) (key, val string) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return key, val
		}
	}
	return "", ""
}

func (s *source) str(fileKey, def string, env ...string) string {
	if _, v := firstEnv(env); v != "" {
		return v
	}
	if v := s.k.String(fileKey); v != "" {
		return v
	}
	return def
}

func (s *source) num(fileKey string, def int, env ...string) int {
	key, v := firstEnv(env)
	if v == "" {
		if n := s.k.Int(fileKey); n != 0 {
			return n
		}
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if fileKey == "port" {
			err = ErrInvalidPort
		}
		s.errs = append(s.errs, fmt.Errorf("%s must be a valid integer: %w", key, err))
		return 0
	}
	return n
}

// ratio honors an explicit 0 in the file.
func (s *source) ratio(fileKey string, def float64, env string) float64 {
	if v := os.Getenv(env); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.errs = append(s.errs, fmt.Errorf("%s must be a valid float: %w", env, err))
			return 0
		}
		return f
	}
	if s.k.Exists(fileKey) {
		return s.k.Float64(fileKey)
	}
	return def
}

// flag accepts true/1/yes/on and false/0/no/off; anything else in the
// environment is ignored.
func (s *source) flag(fileKey string, def bool, env string) bool {
	switch strings.ToLower(os.Getenv(env)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	if s.k.Exists(fileKey) {
		return s.k.Bool(fileKey)
	}
	return def
}

// list splits a comma-separated variable, dropping blanks.
func (s *source) list(fileKey, env string) []string {
	v := os.Getenv(env)
	if v == "" {
		return s.k.Strings(fileKey)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load merges an optional YAML file with the environment, which takes
// precedence, and validates the result. Only a missing or malformed file
// yields a nil Config; every other problem is reported in the error slice.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}
	src := &source{k: k}

	cfg := &Config{
		Port:                    src.num("port", DefaultPort, "BUGHUNT_PORT", "PORT"),
		Env:                     src.str("env", DefaultEnv, "BUGHUNT_ENV", "ENV", "GO_ENV"),
		CORSAllowedOrigins:      src.list("cors_allowed_origins", "CORS_ALLOWED_ORIGINS"),
		StorageDriver:           strings.ToLower(src.str("storage_driver", DefaultStorageDriver, "STORAGE_DRIVER")),
		SQLitePath:              src.str("sqlite_path", DefaultSQLitePath, "SQLITE_PATH"),
		DatabaseURL:             src.str("database_url", "", "DATABASE_URL"),
		AdminJWTSecret:          src.str("admin_jwt_secret", "", "ADMIN_JWT_SECRET"),
		AdminJWTSecretPrevious:  src.str("admin_jwt_secret_previous", "", "ADMIN_JWT_SECRET_PREVIOUS"),
		RedisURL:                src.str("redis_url", "", "REDIS_URL"),
		ClickRateLimitPerMinute: src.num("click_rate_limit_per_minute", DefaultClickRateLimitPerMinute, "CLICK_RATE_LIMIT_PER_MINUTE"),
		R2BucketName:            src.str("r2_bucket_name", "", "R2_BUCKET_NAME"),
		R2AccessKeyID:           src.str("r2_access_key_id", "", "R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:       src.str("r2_secret_access_key", "", "R2_SECRET_ACCESS_KEY"),
		R2Endpoint:              src.str("r2_endpoint", "", "R2_ENDPOINT"),
		R2PublicBaseURL:         src.str("r2_public_base_url", "", "R2_PUBLIC_BASE_URL"),
		R2MaxUploadSizeMB:       src.num("r2_max_upload_size_mb", DefaultR2MaxUploadSizeMB, "R2_MAX_UPLOAD_SIZE_MB"),
		ImageMaxWidth:           src.num("image_max_width", DefaultImageMaxWidth, "IMAGE_MAX_WIDTH"),
		ImageMaxHeight:          src.num("image_max_height", DefaultImageMaxHeight, "IMAGE_MAX_HEIGHT"),
		ImageQuality:            src.num("image_quality", DefaultImageQuality, "IMAGE_QUALITY"),
		TracingEnabled:          src.flag("tracing_enabled", false, "TRACING_ENABLED"),
		TracingExporter:         src.str("tracing_exporter", DefaultTracingExporter, "TRACING_EXPORTER"),
		OTLPEndpoint:            src.str("otlp_endpoint", "", "OTLP_ENDPOINT"),
		TracingSampleRate:       src.ratio("tracing_sample_rate", DefaultTracingSampleRate, "TRACING_SAMPLE_RATE"),
	}
	return cfg, append(src.errs, cfg.Validate()...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// AdminAuthEnabled reports whether admin routes require a bearer token.
func (c *Config) AdminAuthEnabled() bool {
	return c.AdminJWTSecret != ""
}

// R2Enabled reports whether every object storage setting is present.
func (c *Config) R2Enabled() bool {
	return c.R2BucketName != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2Endpoint != ""
}

// Validate returns every problem found; an empty slice means usable. R2
// settings are all-or-nothing.
func (c *Config) Validate() []error {
	var errs []error

	switch c.StorageDriver {
	case StorageMemory:
	case StorageSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, ErrMissingSQLitePath)
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	default:
		errs = append(errs, ErrInvalidStorageDriver)
	}

	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < minAdminSecretLength {
		errs = append(errs, ErrWeakAdminJWTSecret)
	}
	if c.AdminJWTSecretPrevious != "" && c.AdminJWTSecret == "" {
		errs = append(errs, ErrPreviousSecretWithoutCurrent)
	}
	if c.ClickRateLimitPerMinute <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}

	r2 := []struct {
		value string
		err   error
	}{
		{c.R2BucketName, ErrMissingR2BucketName},
		{c.R2AccessKeyID, ErrMissingR2AccessKeyID},
		{c.R2SecretAccessKey, ErrMissingR2SecretAccessKey},
		{c.R2Endpoint, ErrMissingR2Endpoint},
	}
	var missing []error
	for _, f := range r2 {
		if f.value == "" {
			missing = append(missing, f.err)
		}
	}
	if len(missing) < len(r2) {
		errs = append(errs, missing...)
	}

	if c.ImageMaxWidth <= 0 || c.ImageMaxHeight <= 0 {
		errs = append(errs, ErrInvalidImageDimensions)
	}
	if c.ImageQuality < 1 || c.ImageQuality > 100 {
		errs = append(errs, ErrInvalidImageQuality)
	}

	if c.TracingEnabled && c.TracingExporter != "otlp-http" && c.TracingExporter != "otlp-grpc" {
		errs = append(errs, ErrInvalidTracingExporter)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}

	return errs
}

// LogSummary flattens the configuration for a startup log line with every
// secret masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                        strconv.Itoa(c.Port),
		"env":                         c.Env,
		"cors_allowed_origins":        strings.Join(c.CORSAllowedOrigins, ","),
		"storage_driver":              c.StorageDriver,
		"sqlite_path":                 c.SQLitePath,
		"database_url":                maskDatabaseURL(c.DatabaseURL),
		"admin_jwt_secret":            maskSecret(c.AdminJWTSecret),
		"admin_jwt_secret_previous":   maskSecret(c.AdminJWTSecretPrevious),
		"redis_url":                   maskDatabaseURL(c.RedisURL),
		"click_rate_limit_per_minute": strconv.Itoa(c.ClickRateLimitPerMinute),
		"r2_bucket_name":              c.R2BucketName,
		"r2_access_key_id":            maskSecret(c.R2AccessKeyID),
		"r2_secret_access_key":        maskSecret(c.R2SecretAccessKey),
		"r2_endpoint":                 c.R2Endpoint,
		"r2_max_upload_size_mb":       strconv.Itoa(c.R2MaxUploadSizeMB),
		"r2_public_base_url":          c.R2PublicBaseURL,
		"image_max_width":             strconv.Itoa(c.ImageMaxWidth),
		"image_max_height":            strconv.Itoa(c.ImageMaxHeight),
		"image_quality":               strconv.Itoa(c.ImageQuality),
		"tracing_enabled":             strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":            c.TracingExporter,
		"otlp_endpoint":               c.OTLPEndpoint,
		"tracing_sample_rate":         strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
	}
}

// maskSecret keeps the first four characters of secrets of at least eight.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "<not set>"
	case len(s) < 8:
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL hides the password of a connection URL. Values that are
// not absolute URLs are masked as secrets.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return maskSecret(s)
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}
