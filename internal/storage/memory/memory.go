// Package memory provides an in-process object store. It backs development
// servers started with STORAGE_BACKEND=memory and most tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/metrics"
	"github.com/sdisaacson/desktop/internal/storage"
)

type object struct {
	data    []byte
	updated time.Time
}

// Backend implements storage.Backend on a map.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for update times.
func (b *Backend) WithClock(now func() time.Time) *Backend {
	b.now = now
	return b
}

func (b *Backend) WriteObject(_ context.Context, key string, data []byte) error {
	start := time.Now()
	cp := make([]byte, len(data))
	copy(cp, data)

	b.mu.Lock()
	b.objects[key] = object{data: cp, updated: b.now()}
	b.mu.Unlock()

	metrics.RecordStorageOperation("memory", "write", time.Since(start), true)
	metrics.RecordStorageBytes("memory", "write", len(data))
	logging.Debug("memory write object", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

func (b *Backend) ReadObject(_ context.Context, key string) ([]byte, error) {
	start := time.Now()
	b.mu.RLock()
	obj, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		metrics.RecordStorageOperation("memory", "read", time.Since(start), false)
		return nil, fmt.Errorf("read %s: %w", key, storage.ErrNotFound)
	}

	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	metrics.RecordStorageOperation("memory", "read", time.Since(start), true)
	metrics.RecordStorageBytes("memory", "read", len(out))
	return out, nil
}

func (b *Backend) DeleteObject(_ context.Context, key string) error {
	start := time.Now()
	b.mu.Lock()
	delete(b.objects, key)
	b.mu.Unlock()
	metrics.RecordStorageOperation("memory", "delete", time.Since(start), true)
	logging.Debug("memory delete object", zap.String("key", key))
	return nil
}

func (b *Backend) ListOneLevel(_ context.Context, prefix string) (*storage.Listing, error) {
	start := time.Now()
	seen := make(map[string]struct{})
	listing := &storage.Listing{}

	b.mu.RLock()
	for key := range b.objects {
		child, isPrefix, ok := storage.SplitChild(prefix, key)
		if !ok {
			continue
		}
		if !isPrefix {
			listing.Keys = append(listing.Keys, child)
			continue
		}
		if _, dup := seen[child]; !dup {
			seen[child] = struct{}{}
			listing.Prefixes = append(listing.Prefixes, child)
		}
	}
	b.mu.RUnlock()

	metrics.RecordStorageOperation("memory", "list", time.Since(start), true)
	return listing, nil
}

func (b *Backend) ObjectMetadata(_ context.Context, key string) (*storage.ObjectMeta, error) {
	b.mu.RLock()
	obj, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", key, storage.ErrNotFound)
	}
	return &storage.ObjectMeta{
		Key:         key,
		Size:        int64(len(obj.data)),
		Updated:     obj.updated,
		ContentType: mimetype.Detect(obj.data).String(),
	}, nil
}

// SignedURL is not available for in-memory objects.
func (b *Backend) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", storage.ErrNotSupported
}

// Keys returns every stored key in order. Tests use it to inspect raw state.
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *Backend) Type() string { return "memory" }

func (b *Backend) Close() error { return nil }
