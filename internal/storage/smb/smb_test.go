package smb

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdisaacson/desktop/internal/storage"
)

func TestBackendUsesMountPath(t *testing.T) {
	ctx := context.Background()
	mount := t.TempDir()

	b, err := New(Config{Server: "//files/desktop", MountPath: mount})
	require.NoError(t, err)
	assert.Equal(t, "smb", b.Type())
	assert.Equal(t, "//files/desktop", b.Server())

	var _ storage.Backend = b
	require.NoError(t, b.WriteObject(ctx, "users/u1/files/a.txt", []byte("hello")))
	assert.FileExists(t, filepath.Join(mount, "users", "u1", "files", "a.txt"))

	data, err := b.ReadObject(ctx, "users/u1/files/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestNewRequiresMountedShare(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{MountPath: filepath.Join(t.TempDir(), "not-mounted")})
	assert.Error(t, err)
}

func TestNewFromJSON(t *testing.T) {
	raw, err := json.Marshal(Config{Server: "//s/share", MountPath: t.TempDir()})
	require.NoError(t, err)
	b, err := NewFromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "smb", b.Type())

	_, err = NewFromJSON(json.RawMessage(`{`))
	assert.Error(t, err)
}
