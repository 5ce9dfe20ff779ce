// Package factory builds storage backends from configuration.
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/config"
	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/retry"
	"github.com/sdisaacson/desktop/internal/storage"
	"github.com/sdisaacson/desktop/internal/storage/local"
	"github.com/sdisaacson/desktop/internal/storage/memory"
	s3backend "github.com/sdisaacson/desktop/internal/storage/s3"
	"github.com/sdisaacson/desktop/internal/storage/smb"
)

// NewBackendFromConfig creates a Backend from a backend type string and JSON config.
func NewBackendFromConfig(ctx context.Context, backendType string, config json.RawMessage) (storage.Backend, error) {
	switch backendType {
	case "s3":
		return s3backend.NewBackendFromJSON(ctx, config)
	case "local":
		return local.NewFromJSON(config)
	case "smb":
		return smb.NewFromJSON(config)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

// BackendConfigJSON renders the backend section of cfg in the form
// NewBackendFromConfig accepts.
func BackendConfigJSON(cfg *config.Config) (json.RawMessage, error) {
	switch cfg.StorageBackend {
	case "s3":
		return json.Marshal(s3backend.BackendConfig{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	case "local":
		return json.Marshal(local.Config{
			RootPath:   cfg.LocalStoragePath,
			CreateDirs: true,
		})
	case "smb":
		return json.Marshal(smb.Config{
			Server:    cfg.SMBServer,
			Domain:    cfg.SMBDomain,
			MountPath: cfg.SMBMountPath,
		})
	}
	return nil, nil
}

// Open builds the backend selected by cfg. S3 buckets are created when
// missing; the object store gets a few attempts to come up first.
func Open(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	raw, err := BackendConfigJSON(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode backend config: %w", err)
	}
	backend, err := NewBackendFromConfig(ctx, cfg.StorageBackend, raw)
	if err != nil {
		return nil, err
	}

	if s3b, ok := backend.(*s3backend.Backend); ok {
		rc := retry.DefaultConfig()
		rc.OnRetry = func(attempt int, wait time.Duration, err error) {
			logging.Warn("object store not ready",
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}
		if err := retry.Do(ctx, rc, func() error {
			return retry.Retryable(s3b.EnsureBucket(ctx))
		}); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
	}

	logging.Info("storage backend ready", zap.String("backend", backend.Type()))
	return backend, nil
}
