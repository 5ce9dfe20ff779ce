package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relPaths(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RelativePath
	}
	return out
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{
		"/a.pdf":                           "a",
		"/notes.txt":                       "n",
		"/docs/b.pdf":                      "b",
		"/docs/2024/c.pdf":                 "c",
		"/docs/2024/" + PlaceholderName:    "",
		"/reports-2024/" + PlaceholderName: "",
		"/other/d.txt":                     "d",
	})

	tests := []struct {
		folder  string
		pattern string
		want    []string
	}{
		{"/", "**/*.pdf", []string{"/a.pdf", "/docs/2024/c.pdf", "/docs/b.pdf"}},
		{"/", "*.pdf", []string{"/a.pdf"}},
		{"/docs/", "**/*.pdf", []string{"/docs/2024/c.pdf", "/docs/b.pdf"}},
		{"/", "*2024*", []string{"/reports-2024/"}},
		{"/", "**/2024", []string{"/docs/2024/"}},
		{"/", "/other/*", []string{"/other/d.txt"}},
		{"/", "**/" + PlaceholderName, []string{}},
		{"/missing/", "**", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.folder+tt.pattern, func(t *testing.T) {
			entries, err := fs.Find(ctx, tt.folder, tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, relPaths(entries))
		})
	}

	entries, err := fs.Find(ctx, "/", "docs/b.pdf")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Size)
	assert.EqualValues(t, 1, *entries[0].Size)
}

func TestFindErrors(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{"/docs/a.txt": "a"})

	_, err := fs.Find(ctx, "/", "[unclosed")
	assert.ErrorIs(t, err, ErrBadPattern)
	_, err = fs.Find(ctx, "/", "")
	assert.ErrorIs(t, err, ErrBadPattern)

	b.failOn("list", "docs")
	_, err = fs.Find(ctx, "/", "**")
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, FailedBeforeMutation, OutcomeOf(err))

	_, err = New(b, "").Find(ctx, "/", "**")
	assert.ErrorIs(t, err, ErrUnavailable)
}
