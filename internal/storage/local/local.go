// Package local provides a local filesystem storage backend.
//
// Keys map to files under the root path. Directories exist only while they
// hold files, so a one-level listing of the disk matches what an object
// store would return for the same keys.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/metrics"
	"github.com/sdisaacson/desktop/internal/storage"
)

const tempPattern = ".desktop-*.tmp"

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `json:"root_path"`
	CreateDirs bool   `json:"create_dirs"`
}

// Backend implements storage.Backend using the local filesystem.
type Backend struct {
	rootPath string
}

// New creates a new local filesystem backend.
func New(cfg Config) (*Backend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	case os.IsNotExist(err) && cfg.CreateDirs:
		if err := os.MkdirAll(cfg.RootPath, 0o755); err != nil {
			return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
	}

	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}
	return &Backend{rootPath: root}, nil
}

// NewFromJSON creates a Backend from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*Backend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse local config: %w", err)
	}
	return New(cfg)
}

// fullPath maps key onto disk and refuses keys that escape the root.
func (b *Backend) fullPath(key string) (string, error) {
	p := filepath.Join(b.rootPath, filepath.FromSlash(key))
	if p != b.rootPath && !strings.HasPrefix(p, b.rootPath+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return p, nil
}

func (b *Backend) record(op string, start time.Time, err error) {
	metrics.RecordStorageOperation("local", op, time.Since(start), err == nil)
}

// WriteObject writes data atomically through a temp file and rename.
func (b *Backend) WriteObject(_ context.Context, key string, data []byte) (err error) {
	start := time.Now()
	defer func() { b.record("write", start, err) }()

	p, err := b.fullPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}

	metrics.RecordStorageBytes("local", "write", len(data))
	logging.Debug("local write object", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

func (b *Backend) ReadObject(_ context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() { b.record("read", start, err) }()

	p, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", key, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	metrics.RecordStorageBytes("local", "read", len(data))
	return data, nil
}

// DeleteObject removes the file and prunes directories it leaves empty.
func (b *Backend) DeleteObject(_ context.Context, key string) (err error) {
	start := time.Now()
	defer func() { b.record("delete", start, err) }()

	p, err := b.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	b.pruneEmptyDirs(filepath.Dir(p))
	logging.Debug("local delete object", zap.String("key", key))
	return nil
}

func (b *Backend) pruneEmptyDirs(dir string) {
	for dir != b.rootPath && strings.HasPrefix(dir, b.rootPath) {
		// os.Remove fails on non-empty directories, which ends the walk.
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (b *Backend) ListOneLevel(_ context.Context, prefix string) (listing *storage.Listing, err error) {
	start := time.Now()
	defer func() { b.record("list", start, err) }()

	dirKey, partial := path.Split(prefix)
	dir, err := b.fullPath(dirKey)
	if err != nil {
		return nil, err
	}

	listing = &storage.Listing{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return listing, nil
		}
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, partial) || isTemp(name) {
			continue
		}
		if e.IsDir() {
			listing.Prefixes = append(listing.Prefixes, dirKey+name+storage.Delimiter)
		} else {
			listing.Keys = append(listing.Keys, dirKey+name)
		}
	}
	return listing, nil
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".desktop-") && strings.HasSuffix(name, ".tmp")
}

func (b *Backend) ObjectMetadata(_ context.Context, key string) (meta *storage.ObjectMeta, err error) {
	start := time.Now()
	defer func() { b.record("stat", start, err) }()

	p, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", key, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("stat %s: %w", key, storage.ErrNotFound)
	}

	meta = &storage.ObjectMeta{Key: key, Size: info.Size(), Updated: info.ModTime()}
	if mt, err := mimetype.DetectFile(p); err == nil {
		meta.ContentType = mt.String()
	}
	return meta, nil
}

// SignedURL is not available; callers stream the object instead.
func (b *Backend) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", storage.ErrNotSupported
}

// Type returns "local".
func (b *Backend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *Backend) Close() error { return nil }
