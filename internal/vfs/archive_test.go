package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdisaacson/desktop/internal/archive"
)

func entryFor(t *testing.T, fs *FileSystem, p string) FileEntry {
	t.Helper()
	e, err := fs.Stat(context.Background(), p)
	require.NoError(t, err)
	return e
}

func memberPaths(entries []archive.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestBuildArchive(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{
		"/docs/a.txt":                    "alpha",
		"/docs/sub/b.txt":                "beta",
		"/docs/empty/" + PlaceholderName: "",
		"/notes.md":                      "notes",
		"/pics/deep/c.png":               "c",
	})

	selection := []FileEntry{
		entryFor(t, fs, "/docs/"),
		entryFor(t, fs, "/notes.md"),
		entryFor(t, fs, "/pics/deep/c.png"),
		entryFor(t, fs, "/docs/a.txt"), // already covered by /docs/
	}

	data, err := fs.BuildArchive(ctx, selection, archive.Zip())
	require.NoError(t, err)

	members, err := archive.Zip().Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"docs/",
		"docs/a.txt",
		"docs/empty/",
		"docs/sub/",
		"docs/sub/b.txt",
		"notes.md",
		"pics/",
		"pics/deep/",
		"pics/deep/c.png",
	}, memberPaths(members))

	for _, m := range members {
		assert.NotContains(t, m.Path, PlaceholderName)
	}
}

func TestBuildArchiveDirectoriesPrecedeFiles(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{"/x/y/z/file.txt": "f"})

	data, err := fs.BuildArchive(ctx, []FileEntry{entryFor(t, fs, "/x/y/z/file.txt")}, archive.TarGz())
	require.NoError(t, err)

	members, err := archive.TarGz().Parse(data)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, m := range members {
		if m.IsDirectory {
			seen[m.Path] = true
			continue
		}
		assert.True(t, seen["x/"] && seen["x/y/"] && seen["x/y/z/"], "parents of %s", m.Path)
	}
}

func TestBuildArchiveAbortsOnReadFailure(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{"/docs/a.txt": "a", "/docs/b.txt": "b"})
	sel := []FileEntry{entryFor(t, fs, "/docs/")}
	b.failOn("read", "b.txt")

	data, err := fs.BuildArchive(ctx, sel, archive.Zip())
	require.ErrorIs(t, err, errInjected)
	assert.Nil(t, data)
	assert.Equal(t, FailedBeforeMutation, OutcomeOf(err))
}

func TestExtractArchive(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)

	w := archive.Zip().NewWriter()
	require.NoError(t, w.AddDirectory("proj"))
	require.NoError(t, w.AddFile("proj/main.go", []byte("package main")))
	require.NoError(t, w.AddDirectory("proj/empty"))
	require.NoError(t, w.AddFile("readme.txt", []byte("hi")))
	data, err := w.Serialize()
	require.NoError(t, err)
	require.NoError(t, fs.Upload(ctx, "/downloads", []UploadFile{{Name: "bundle.zip", Data: data}}))

	err = fs.ExtractArchive(ctx, entryFor(t, fs, "/downloads/bundle.zip"), "/downloads/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/downloads/bundle.zip",
		"/downloads/proj/main.go",
		"/downloads/readme.txt",
	}, tree(b))

	body, err := fs.ReadFile(ctx, "/downloads/proj/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main", string(body))
}

func TestExtractArchiveSkipsCurrentDirEntry(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)

	w := archive.TarGz().NewWriter()
	require.NoError(t, w.AddDirectory("."))
	require.NoError(t, w.AddFile("./a.txt", []byte("alpha")))
	require.NoError(t, w.AddDirectory("./sub"))
	require.NoError(t, w.AddFile("./sub/b.txt", []byte("beta")))
	data, err := w.Serialize()
	require.NoError(t, err)
	seed(t, b, map[string]string{"/site.tar.gz": string(data)})

	members, err := archive.TarGz().Parse(data)
	require.NoError(t, err)
	require.Equal(t, "./", members[0].Path)

	require.NoError(t, fs.ExtractArchive(ctx, entryFor(t, fs, "/site.tar.gz"), "/out/"))
	assert.Equal(t, []string{"/out/a.txt", "/out/sub/b.txt", "/site.tar.gz"}, tree(b))
}

func TestArchiveRoundTripThroughExtraction(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{
		"/a/b.txt":              "hello, world",
		"/c/" + PlaceholderName: "",
	})

	data, err := fs.BuildArchive(ctx, []FileEntry{
		entryFor(t, fs, "/a/b.txt"),
		entryFor(t, fs, "/c/"),
	}, archive.Zip())
	require.NoError(t, err)
	require.NoError(t, fs.Upload(ctx, "/", []UploadFile{{Name: "bundle.zip", Data: data}}))

	require.NoError(t, fs.ExtractArchive(ctx, entryFor(t, fs, "/bundle.zip"), "/restored/"))

	body, err := fs.ReadFile(ctx, "/restored/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(body))
	assert.Equal(t, []string{
		"/a/b.txt",
		"/bundle.zip",
		"/c/" + PlaceholderName,
		"/restored/a/b.txt",
	}, tree(b), "directory members write nothing")
}

func TestExtractArchiveRejectsBeforeWriting(t *testing.T) {
	ctx := context.Background()

	evil := archive.TarGz().NewWriter()
	require.NoError(t, evil.AddFile("ok.txt", []byte("fine")))
	require.NoError(t, evil.AddFile("../../escape.txt", []byte("bad")))
	evilData, err := evil.Serialize()
	require.NoError(t, err)

	tests := []struct {
		name    string
		file    string
		data    []byte
		wantErr error
	}{
		{"corrupt", "broken.zip", []byte("not a zip"), archive.ErrCorrupt},
		{"path traversal", "evil.tar.gz", evilData, archive.ErrUnsafePath},
		{"not an archive", "notes.txt", []byte("text"), ErrNotArchive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, b := newTestFS(t)
			seed(t, b, map[string]string{"/" + tt.file: string(tt.data)})
			before := tree(b)

			err := fs.ExtractArchive(ctx, entryFor(t, fs, "/"+tt.file), "/")
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, FailedBeforeMutation, OutcomeOf(err))
			assert.Equal(t, before, tree(b))
		})
	}
}

func TestExtractArchiveRejectsFolder(t *testing.T) {
	fs, b := newTestFS(t)
	seed(t, b, map[string]string{"/stuff.zip/inner.txt": "x"})

	err := fs.ExtractArchive(context.Background(), entryFor(t, fs, "/stuff.zip/"), "/")
	assert.ErrorIs(t, err, ErrNotArchive)
}

func TestExtractArchiveWriteFailureIsPartial(t *testing.T) {
	ctx := context.Background()
	fs, b := newTestFS(t)

	w := archive.TarZst().NewWriter()
	for _, n := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, w.AddFile(n, []byte(n)))
	}
	data, err := w.Serialize()
	require.NoError(t, err)
	seed(t, b, map[string]string{"/pack.tar.zst": string(data)})

	fs = New(b, testRoot, WithConcurrency(1))
	b.failOn("write", "/out/c.txt")

	err = fs.ExtractArchive(ctx, entryFor(t, fs, "/pack.tar.zst"), "/out/")
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, FailedPartial, OutcomeOf(err))
}
