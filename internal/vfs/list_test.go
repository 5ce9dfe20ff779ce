package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestListEntries(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{
		"/b.txt":                "bb",
		"/A.txt":                "a",
		"/zeta/x.txt":           "x",
		"/Alpha/.placeholder":   "",
		"/alpha/deep/y.txt":     "y",
		"/" + PlaceholderName:   "",
		"/alpha/inner.txt":      "i",
	})

	entries, err := fs.ListEntries(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "alpha", "zeta", "A.txt", "b.txt"}, names(entries))

	folder := entries[1]
	assert.True(t, folder.IsFolder)
	assert.Equal(t, "/alpha/", folder.RelativePath)
	assert.Equal(t, "users/u1/files/alpha/", folder.FullPath)
	assert.Nil(t, folder.Size)

	file := entries[4]
	assert.False(t, file.IsFolder)
	assert.Equal(t, "/b.txt", file.RelativePath)
	assert.Equal(t, "users/u1/files/b.txt", file.FullPath)
	require.NotNil(t, file.Size)
	assert.EqualValues(t, 2, *file.Size)
	require.NotNil(t, file.Updated)
}

func TestListEntriesHidesPlaceholder(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{"/empty/" + PlaceholderName: ""})

	entries, err := fs.ListEntries(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, entries)

	root, err := fs.ListEntries(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"empty"}, names(root))
}

func TestListEntriesAllOrNothing(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{"/a.txt": "a", "/b.txt": "b", "/c.txt": "c"})
	b.failOn("stat", "b.txt")

	entries, err := fs.ListEntries(ctx, "/")
	require.Error(t, err)
	assert.Nil(t, entries)
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, FailedBeforeMutation, OutcomeOf(err))
}

func TestListEntriesListFailure(t *testing.T) {
	fs, b := newTestFS(t)
	b.failOn("list", "")

	_, err := fs.ListEntries(context.Background(), "/docs/")
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "list", opErr.Op)
	assert.Equal(t, "/docs/", opErr.Path)
}

func TestListEntriesUnavailable(t *testing.T) {
	fs := New(newFaulty(), Root(""))
	_, err := fs.ListEntries(context.Background(), "/")
	assert.ErrorIs(t, err, ErrUnavailable)

	var nilFS *FileSystem
	assert.False(t, nilFS.Available())
}

func TestListEntriesStaysInsideRoot(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	require.NoError(t, b.WriteObject(ctx, "users/u2/files/secret.txt", []byte("s")))
	seed(t, b, map[string]string{"/mine.txt": "m"})

	entries, err := fs.ListEntries(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"mine.txt"}, names(entries))
}

func TestStat(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{"/docs/a.txt": "abc", "/empty/" + PlaceholderName: ""})

	e, err := fs.Stat(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.False(t, e.IsFolder)
	assert.EqualValues(t, 3, *e.Size)

	e, err = fs.Stat(ctx, "/docs")
	require.NoError(t, err)
	assert.True(t, e.IsFolder)
	assert.Equal(t, "/docs/", e.RelativePath)

	e, err = fs.Stat(ctx, "/empty/")
	require.NoError(t, err)
	assert.True(t, e.IsFolder)

	e, err = fs.Stat(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, RootPath, e.RelativePath)

	_, err = fs.Stat(ctx, "/nope")
	assert.ErrorIs(t, err, ErrNotExist)
}
