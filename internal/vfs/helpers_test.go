package vfs

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sdisaacson/desktop/internal/storage"
	"github.com/sdisaacson/desktop/internal/storage/memory"
)

var errInjected = errors.New("injected failure")

// faultyBackend wraps the memory backend and fails selected calls.
type faultyBackend struct {
	*memory.Backend

	mu    sync.Mutex
	rules []faultRule
	calls map[string]int
}

type faultRule struct {
	op     string // read, write, delete, list, stat
	substr string // fails when the key contains substr
}

func newFaulty() *faultyBackend {
	return &faultyBackend{Backend: memory.New(), calls: map[string]int{}}
}

func (b *faultyBackend) failOn(op, substr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = append(b.rules, faultRule{op: op, substr: substr})
}

func (b *faultyBackend) check(op, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	for _, r := range b.rules {
		if r.op == op && strings.Contains(key, r.substr) {
			return errInjected
		}
	}
	return nil
}

func (b *faultyBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *faultyBackend) WriteObject(ctx context.Context, key string, data []byte) error {
	if err := b.check("write", key); err != nil {
		return err
	}
	return b.Backend.WriteObject(ctx, key, data)
}

func (b *faultyBackend) ReadObject(ctx context.Context, key string) ([]byte, error) {
	if err := b.check("read", key); err != nil {
		return nil, err
	}
	return b.Backend.ReadObject(ctx, key)
}

func (b *faultyBackend) DeleteObject(ctx context.Context, key string) error {
	if err := b.check("delete", key); err != nil {
		return err
	}
	return b.Backend.DeleteObject(ctx, key)
}

func (b *faultyBackend) ListOneLevel(ctx context.Context, prefix string) (*storage.Listing, error) {
	if err := b.check("list", prefix); err != nil {
		return nil, err
	}
	return b.Backend.ListOneLevel(ctx, prefix)
}

func (b *faultyBackend) ObjectMetadata(ctx context.Context, key string) (*storage.ObjectMeta, error) {
	if err := b.check("stat", key); err != nil {
		return nil, err
	}
	return b.Backend.ObjectMetadata(ctx, key)
}

const testRoot = Root("users/u1/files")

// seed writes relative path -> content pairs under testRoot.
func seed(t *testing.T, b storage.Backend, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		key, ok := testRoot.StoragePath(rel, false)
		require.True(t, ok)
		require.NoError(t, b.WriteObject(context.Background(), key, []byte(body)))
	}
}

// tree returns every relative path stored under testRoot, sorted.
func tree(b *faultyBackend) []string {
	var out []string
	for _, k := range b.Keys() {
		if rel, ok := testRoot.RelativePath(k, false); ok {
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out
}

func newTestFS(t *testing.T) (*FileSystem, *faultyBackend) {
	t.Helper()
	b := newFaulty()
	b.WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	return New(b, testRoot, WithConcurrency(4)), b
}
