// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Document store for widget configuration. Empty keeps it in memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Object store ("local", "s3", "smb" or "memory")
	StorageBackend   string `envconfig:"STORAGE_BACKEND" default:"local"`
	LocalStoragePath string `envconfig:"LOCAL_STORAGE_PATH" default:"/data/storage"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT" default:"http://localhost:9000"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"desktop"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" default:"minioadmin"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" default:"minioadmin"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`

	SMBServer    string `envconfig:"SMB_SERVER"`
	SMBDomain    string `envconfig:"SMB_DOMAIN"`
	SMBMountPath string `envconfig:"SMB_MOUNT_PATH" default:"/mnt/desktop"`

	// Auth
	JWTSecret     string `envconfig:"JWT_SECRET"`
	OIDCIssuerURL string `envconfig:"OIDC_ISSUER_URL"`
	OIDCClientID  string `envconfig:"OIDC_CLIENT_ID"`

	// Filesystem behaviour
	MaxUploadSize int64         `envconfig:"MAX_UPLOAD_SIZE" default:"104857600"` // 100MB
	Concurrency   int           `envconfig:"VFS_CONCURRENCY" default:"8"`
	SignedURLTTL  time.Duration `envconfig:"SIGNED_URL_TTL" default:"15m"`
	ArchiveFormat string        `envconfig:"ARCHIVE_FORMAT" default:"zip"`

	// Requests per minute per user on the API, 0 for unlimited
	RateLimitRPM int `envconfig:"RATE_LIMIT_RPM" default:"600"`

	// Widget sessions unused for this long are dropped from memory
	SessionIdleTimeout time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
}

var (
	storageBackends = []string{"local", "s3", "smb", "memory"}
	archiveFormats  = []string{"zip", "tar.gz", "tar.zst"}
	logFormats      = []string{"json", "console"}
)

// Load reads server configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg, err := process()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTool reads the same environment for command line tools, which only
// need a signing secret to mint tokens.
func LoadTool() (*Config, error) {
	cfg, err := process()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateSettings(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func process() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the signing secret, enumerated settings and numeric bounds.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return c.validateSettings()
}

func (c *Config) validateSettings() error {
	if !oneOf(c.StorageBackend, storageBackends) {
		return fmt.Errorf("STORAGE_BACKEND must be one of %s, got %q", strings.Join(storageBackends, ", "), c.StorageBackend)
	}
	if !oneOf(c.ArchiveFormat, archiveFormats) {
		return fmt.Errorf("ARCHIVE_FORMAT must be one of %s, got %q", strings.Join(archiveFormats, ", "), c.ArchiveFormat)
	}
	if !oneOf(c.LogFormat, logFormats) {
		return fmt.Errorf("LOG_FORMAT must be one of %s, got %q", strings.Join(logFormats, ", "), c.LogFormat)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("VFS_CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.MaxUploadSize)
	}
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be positive, got %s", c.SignedURLTTL)
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must not be negative, got %d", c.RateLimitRPM)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive, got %s", c.SessionIdleTimeout)
	}
	if c.OIDCIssuerURL != "" && c.OIDCClientID == "" {
		return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC_ISSUER_URL is set")
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
