package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/once/pkg/once"
	"github.com/tendant/once/pkg/once/signature"
	"github.com/tendant/once/pkg/once/sweeper"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Port:               "8080",
		Environment:        "development",
		BaseURL:            "http://localhost:8080/",
		SignatureHeader:    signature.DefaultHeader,
		SignatureTolerance: int(signature.DefaultTolerance / time.Second),
		UploadExpiresIn:    int(once.DefaultUploadExpiry / time.Second),
		DownloadExpiresIn:  int(once.DefaultDownloadExpiry / time.Second),
		SweepSchedule:      sweeper.DefaultSchedule,
		ReplayCacheEnabled: true,
		IssueRateBurst:     10,
		DatabaseURL:        "memory",
		StorageURL:         "memory://",
		LogLevel:           "info",
		S3: S3Config{
			Region: "us-east-1",
		},
	}
}

// Config represents the configuration of the once service
type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing

	// Public URL that download links are built on
	BaseURL string `env:"BASE_URL" env-default:"http://localhost:8080/"`

	// Base64 encoded shared secret
	SecretKey          string `env:"SECRET_KEY"`
	SignatureHeader    string `env:"SIGNATURE_HEADER" env-default:"x-once-signature"`
	SignatureTolerance int    `env:"SIGNATURE_TIME_TOLERANCE" env-default:"5"`
	ReplayCacheEnabled bool   `env:"REPLAY_CACHE_ENABLED" env-default:"true"`

	UploadExpiresIn   int `env:"UPLOAD_EXPIRES_IN" env-default:"300"`
	DownloadExpiresIn int `env:"DOWNLOAD_EXPIRES_IN" env-default:"20"`

	// Empty means once.DefaultMaskedUserAgents
	MaskedUserAgents []string `env:"MASKED_USER_AGENTS" env-separator:","`

	SweepSchedule string `env:"SWEEP_SCHEDULE" env-default:"@every 24h"`

	// Ticket requests per second, 0 disables the limit
	IssueRateLimit float64 `env:"ISSUE_RATE_LIMIT" env-default:"0"`
	IssueRateBurst int     `env:"ISSUE_RATE_BURST" env-default:"10"`

	// memory | postgres://... | dynamodb://table?region=... | redis://...
	DatabaseURL string `env:"DATABASE_URL" env-default:"memory"`

	// memory:// | file:///path | s3://bucket?region=...
	StorageURL string `env:"STORAGE_URL" env-default:"memory://"`

	// Where local file URLs are served, defaults to BaseURL + "_blob"
	FSURLPrefix string `env:"FS_URL_PREFIX"`

	S3 S3Config

	Debug    bool   `env:"DEBUG" env-default:"false"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
}

// S3Config holds the S3 settings that are not part of STORAGE_URL
type S3Config struct {
	Region          string `env:"S3_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	CreateBucket    bool   `env:"S3_CREATE_BUCKET" env-default:"false"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got: %q", c.BaseURL)
	}

	if _, err := c.Secret(); err != nil {
		return err
	}

	if c.SignatureTolerance <= 0 {
		return errors.New("signature_time_tolerance must be positive")
	}
	if c.UploadExpiresIn <= 0 {
		return errors.New("upload_expires_in must be positive")
	}
	if c.DownloadExpiresIn <= 0 {
		return errors.New("download_expires_in must be positive")
	}
	if c.IssueRateLimit < 0 {
		return errors.New("issue_rate_limit cannot be negative")
	}
	if c.IssueRateLimit > 0 && c.IssueRateBurst < 1 {
		return errors.New("issue_rate_burst must be at least 1")
	}

	if _, err := c.databaseType(); err != nil {
		return err
	}
	if _, err := c.storageType(); err != nil {
		return err
	}

	return nil
}

// Secret decodes the shared secret key
func (c *Config) Secret() ([]byte, error) {
	if c.SecretKey == "" {
		return nil, errors.New("secret_key is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("secret_key must be base64 encoded: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("secret_key is empty")
	}
	return key, nil
}

// SignatureTimeTolerance returns the accepted timestamp age
func (c *Config) SignatureTimeTolerance() time.Duration {
	return time.Duration(c.SignatureTolerance) * time.Second
}

// UploadExpiry returns the lifetime of upload credentials
func (c *Config) UploadExpiry() time.Duration {
	return time.Duration(c.UploadExpiresIn) * time.Second
}

// DownloadExpiry returns the lifetime of download URLs
func (c *Config) DownloadExpiry() time.Duration {
	return time.Duration(c.DownloadExpiresIn) * time.Second
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) databaseType() (string, error) {
	switch {
	case c.DatabaseURL == "" || c.DatabaseURL == "memory":
		return "memory", nil
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres", nil
	case strings.HasPrefix(c.DatabaseURL, "dynamodb://"):
		return "dynamodb", nil
	case strings.HasPrefix(c.DatabaseURL, "redis://"), strings.HasPrefix(c.DatabaseURL, "rediss://"):
		return "redis", nil
	default:
		return "", fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgres://...', 'dynamodb://table' or 'redis://...')", c.DatabaseURL)
	}
}

func (c *Config) storageType() (string, error) {
	switch {
	case c.StorageURL == "" || c.StorageURL == "memory" || c.StorageURL == "memory://":
		return "memory", nil
	case strings.HasPrefix(c.StorageURL, "file://"):
		if strings.TrimPrefix(c.StorageURL, "file://") == "" {
			return "", errors.New("filesystem path cannot be empty in STORAGE_URL")
		}
		return "fs", nil
	case strings.HasPrefix(c.StorageURL, "s3://"):
		u, err := url.Parse(c.StorageURL)
		if err != nil || u.Host == "" {
			return "", errors.New("S3 bucket name cannot be empty in STORAGE_URL")
		}
		return "s3", nil
	default:
		return "", fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...' or 's3://...')", c.StorageURL)
	}
}
