package filemanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdisaacson/desktop/internal/storage/memory"
	"github.com/sdisaacson/desktop/internal/vfs"
)

func TestRegistryReusesSessions(t *testing.T) {
	var built atomic.Int32
	backend := memory.New()
	r := NewRegistry(func(ctx context.Context, uid, widgetID string) (*Session, error) {
		built.Add(1)
		return New(vfs.New(backend, vfs.RootFor(uid)), nil, WithWidgetID(widgetID)), nil
	})
	ctx := context.Background()

	a1, err := r.Get(ctx, "alice", "w1")
	require.NoError(t, err)
	a2, err := r.Get(ctx, "alice", "w1")
	require.NoError(t, err)
	assert.Same(t, a1, a2)

	b1, err := r.Get(ctx, "alice", "w2")
	require.NoError(t, err)
	assert.NotSame(t, a1, b1)

	_, err = r.Get(ctx, "bob", "w1")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())
	assert.EqualValues(t, 3, built.Load())

	r.Drop("alice", "w1")
	assert.Equal(t, 2, r.Len())
}

func TestRegistryConcurrentGet(t *testing.T) {
	r := NewRegistry(func(ctx context.Context, uid, widgetID string) (*Session, error) {
		return New(vfs.New(memory.New(), vfs.RootFor(uid)), nil), nil
	})

	var wg sync.WaitGroup
	got := make([]*Session, 16)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Get(context.Background(), "u", "w")
			if err == nil {
				got[i] = s
			}
		}()
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
}

func TestRegistryFactoryError(t *testing.T) {
	boom := errors.New("doc store down")
	r := NewRegistry(func(context.Context, string, string) (*Session, error) { return nil, boom })

	_, err := r.Get(context.Background(), "u", "w")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, r.Len())
}

func TestRegistryCleanupDropsIdleSessions(t *testing.T) {
	var built atomic.Int32
	backend := memory.New()
	r := NewRegistry(func(ctx context.Context, uid, widgetID string) (*Session, error) {
		built.Add(1)
		return New(vfs.New(backend, vfs.RootFor(uid)), nil, WithWidgetID(widgetID)), nil
	})
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }
	ctx := context.Background()

	idle, err := r.Get(ctx, "u", "idle")
	require.NoError(t, err)
	_, err = r.Get(ctx, "u", "busy")
	require.NoError(t, err)

	clock = clock.Add(20 * time.Minute)
	_, err = r.Get(ctx, "u", "busy")
	require.NoError(t, err)

	clock = clock.Add(15 * time.Minute)
	assert.Equal(t, 1, r.Cleanup(30*time.Minute))
	assert.Equal(t, 1, r.Len())

	again, err := r.Get(ctx, "u", "idle")
	require.NoError(t, err)
	assert.NotSame(t, idle, again)
	assert.EqualValues(t, 3, built.Load())
}
