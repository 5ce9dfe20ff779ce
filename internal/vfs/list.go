package vfs

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdisaacson/desktop/internal/storage"
)

// ListEntries returns the direct children of folder, folders first and then
// by name. Placeholders are hidden. Any storage error fails the whole
// listing; partial results are never returned.
func (f *FileSystem) ListEntries(ctx context.Context, folder string) (entries []FileEntry, err error) {
	start, tr := time.Now(), &tracker{}
	folder = EnsureFolderPath(folder)
	defer func() {
		err = f.finish(ctx, "list", folder, start, tr, err)
		if err != nil {
			entries = nil
		}
	}()

	prefix, err := f.key(folder, true)
	if err != nil {
		return nil, err
	}
	listing, err := f.backend.ListOneLevel(ctx, prefix)
	if err != nil {
		return nil, err
	}

	entries = make([]FileEntry, 0, len(listing.Prefixes)+len(listing.Keys))
	for _, p := range listing.Prefixes {
		rel, ok := f.root.RelativePath(p, true)
		if !ok || rel == folder {
			continue
		}
		entries = append(entries, FileEntry{
			Name:         BaseName(rel),
			FullPath:     p,
			RelativePath: rel,
			IsFolder:     true,
		})
	}

	var keys []string
	for _, k := range listing.Keys {
		if BaseName(k) != PlaceholderName {
			keys = append(keys, k)
		}
	}
	files, err := f.describe(ctx, keys)
	if err != nil {
		return nil, err
	}
	entries = append(entries, files...)

	SortEntries(entries)
	return entries, nil
}

// describe fetches metadata for keys concurrently. The result keeps the
// order of keys.
func (f *FileSystem) describe(ctx context.Context, keys []string) ([]FileEntry, error) {
	out := make([]FileEntry, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, key := range keys {
		g.Go(func() error {
			meta, err := f.backend.ObjectMetadata(gctx, key)
			if err != nil {
				return err
			}
			rel, ok := f.root.RelativePath(key, false)
			if !ok {
				return ErrUnavailable
			}
			out[i] = fileEntry(key, rel, meta)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func fileEntry(key, rel string, meta *storage.ObjectMeta) FileEntry {
	size, updated := meta.Size, meta.Updated
	return FileEntry{
		Name:         BaseName(rel),
		FullPath:     key,
		RelativePath: rel,
		Size:         &size,
		Updated:      &updated,
	}
}

// Stat describes the file or folder at p. A path names a folder when any
// object lives under it; the root always exists.
func (f *FileSystem) Stat(ctx context.Context, p string) (entry FileEntry, err error) {
	start, tr := time.Now(), &tracker{}
	defer func() { err = f.finish(ctx, "stat", p, start, tr, err) }()

	folder := EnsureFolderPath(p)
	prefix, err := f.key(folder, true)
	if err != nil {
		return FileEntry{}, err
	}
	if folder == RootPath {
		return FileEntry{Name: "", FullPath: prefix, RelativePath: RootPath, IsFolder: true}, nil
	}

	if !IsFolderPath(p) {
		file := CleanFilePath(p)
		key, _ := f.key(file, false)
		meta, err := f.backend.ObjectMetadata(ctx, key)
		if err == nil {
			return fileEntry(key, file, meta), nil
		}
		if !isNotFound(err) {
			return FileEntry{}, err
		}
	}

	listing, err := f.backend.ListOneLevel(ctx, prefix)
	if err != nil {
		return FileEntry{}, err
	}
	if len(listing.Keys) == 0 && len(listing.Prefixes) == 0 {
		return FileEntry{}, ErrNotExist
	}
	return FileEntry{Name: BaseName(folder), FullPath: prefix, RelativePath: folder, IsFolder: true}, nil
}
