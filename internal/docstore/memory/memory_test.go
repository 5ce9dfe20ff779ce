package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdisaacson/desktop/internal/docstore"
)

func TestMergeWidget(t *testing.T) {
	ctx := context.Background()
	var s docstore.Store = New()

	cfg, err := s.Widget(ctx, "u1", "files")
	require.NoError(t, err)
	assert.Empty(t, cfg)

	require.NoError(t, s.MergeWidget(ctx, "u1", "files", map[string]any{"currentPath": "/a/", "view": "grid"}))
	require.NoError(t, s.MergeWidget(ctx, "u1", "files", map[string]any{"currentPath": "/b/"}))
	require.NoError(t, s.MergeWidget(ctx, "u1", "notes", map[string]any{"text": "hi"}))

	cfg, err = s.Widget(ctx, "u1", "files")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"currentPath": "/b/", "view": "grid"}, cfg)

	cfg["currentPath"] = "mutated"
	again, _ := s.Widget(ctx, "u1", "files")
	assert.Equal(t, "/b/", again["currentPath"])

	other, _ := s.Widget(ctx, "u2", "files")
	assert.Empty(t, other)
}

func TestPersisterAndStringField(t *testing.T) {
	ctx := context.Background()
	s := New()

	persist := docstore.Persister(s, "u1", "files")
	require.NoError(t, persist(ctx, map[string]any{"currentPath": "/docs/"}))

	p, err := docstore.StringField(ctx, s, "u1", "files", "currentPath", "/")
	require.NoError(t, err)
	assert.Equal(t, "/docs/", p)

	p, err = docstore.StringField(ctx, s, "u1", "other", "currentPath", "/")
	require.NoError(t, err)
	assert.Equal(t, "/", p)
}
