package vfs

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// UploadFile is one file handed to Upload.
type UploadFile struct {
	Name string
	Data []byte
}

// ─── Key-level primitives ───────────────────────────────────────────────
//
// These work on raw object keys and raw listings, so placeholders are moved,
// copied and deleted along with everything else.

// moveObject copies src to dst and then deletes src.
func (f *FileSystem) moveObject(ctx context.Context, src, dst string, tr *tracker) error {
	data, err := f.backend.ReadObject(ctx, src)
	if err != nil {
		return err
	}
	if err := f.backend.WriteObject(ctx, dst, data); err != nil {
		return err
	}
	tr.mutated()
	if err := f.backend.DeleteObject(ctx, src); err != nil {
		return err
	}
	return nil
}

// copyPrefix copies every object under src to the same relative key under
// dst. Files in one folder are copied concurrently; subfolders are handled
// after their parent's files finish.
func (f *FileSystem) copyPrefix(ctx context.Context, src, dst string, tr *tracker) error {
	listing, err := f.backend.ListOneLevel(ctx, src)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, key := range listing.Keys {
		target := dst + strings.TrimPrefix(key, src)
		g.Go(func() error {
			data, err := f.backend.ReadObject(gctx, key)
			if err != nil {
				return err
			}
			if err := f.backend.WriteObject(gctx, target, data); err != nil {
				return err
			}
			tr.mutated()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Strings(listing.Prefixes)
	for _, p := range listing.Prefixes {
		if err := f.copyPrefix(ctx, p, dst+strings.TrimPrefix(p, src), tr); err != nil {
			return err
		}
	}
	return nil
}

// deletePrefix removes every object under prefix, then the object named
// prefix itself, which some S3 tools write as a directory marker and
// listings never show. A prefix with nothing under it is already deleted.
func (f *FileSystem) deletePrefix(ctx context.Context, prefix string, tr *tracker) error {
	listing, err := f.backend.ListOneLevel(ctx, prefix)
	if err != nil {
		return err
	}

	sort.Strings(listing.Prefixes)
	for _, p := range listing.Prefixes {
		if err := f.deletePrefix(ctx, p, tr); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, key := range listing.Keys {
		g.Go(func() error {
			if err := f.backend.DeleteObject(gctx, key); err != nil {
				return err
			}
			tr.mutated()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return f.backend.DeleteObject(ctx, prefix)
}

// ─── Files ──────────────────────────────────────────────────────────────

// MoveFile moves the file at src to dst by reading, writing and deleting.
// If the delete fails the file exists at both paths and the error reports
// FailedPartial.
func (f *FileSystem) MoveFile(ctx context.Context, src, dst string) (err error) {
	start, tr := time.Now(), &tracker{}
	defer func() { err = f.finish(ctx, "move_file", src, start, tr, err) }()
	return f.moveFile(ctx, CleanFilePath(src), CleanFilePath(dst), tr)
}

// RenameFile moves src to newName within the same folder.
func (f *FileSystem) RenameFile(ctx context.Context, src, newName string) (err error) {
	start, tr := time.Now(), &tracker{}
	defer func() { err = f.finish(ctx, "rename_file", src, start, tr, err) }()

	if err := ValidateName(newName); err != nil {
		return err
	}
	src = CleanFilePath(src)
	return f.moveFile(ctx, src, JoinRelativePath(ParentFolder(src), newName, false), tr)
}

func (f *FileSystem) moveFile(ctx context.Context, src, dst string, tr *tracker) error {
	if src == RootPath || dst == RootPath {
		return ErrRootFolder
	}
	if err := ValidateName(BaseName(dst)); err != nil {
		return err
	}
	srcKey, err := f.key(src, false)
	if err != nil {
		return err
	}
	dstKey, err := f.key(dst, false)
	if err != nil {
		return err
	}
	if srcKey == dstKey {
		return nil
	}
	return f.moveObject(ctx, srcKey, dstKey, tr)
}

// DeleteFile removes a single file.
func (f *FileSystem) DeleteFile(ctx context.Context, p string) (err error) {
	start, tr := time.Now(), &tracker{}
	p = CleanFilePath(p)
	defer func() { err = f.finish(ctx, "delete_file", p, start, tr, err) }()

	if p == RootPath {
		return ErrRootFolder
	}
	key, err := f.key(p, false)
	if err != nil {
		return err
	}
	if err := f.backend.DeleteObject(ctx, key); err != nil {
		return err
	}
	tr.mutated()
	return nil
}

// Upload writes files into folder, replacing any with the same name. Names
// are validated before anything is written.
func (f *FileSystem) Upload(ctx context.Context, folder string, files []UploadFile) (err error) {
	start, tr := time.Now(), &tracker{}
	folder = EnsureFolderPath(folder)
	defer func() { err = f.finish(ctx, "upload", folder, start, tr, err) }()

	keys := make([]string, len(files))
	for i, file := range files {
		if err := ValidateName(file.Name); err != nil {
			return err
		}
		if keys[i], err = f.key(JoinRelativePath(folder, file.Name, false), false); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, file := range files {
		g.Go(func() error {
			if err := f.backend.WriteObject(gctx, keys[i], file.Data); err != nil {
				return err
			}
			tr.mutated()
			return nil
		})
	}
	return g.Wait()
}

// ReadFile returns the contents of the file at p.
func (f *FileSystem) ReadFile(ctx context.Context, p string) (data []byte, err error) {
	start, tr := time.Now(), &tracker{}
	p = CleanFilePath(p)
	defer func() { err = f.finish(ctx, "read_file", p, start, tr, err) }()

	key, err := f.key(p, false)
	if err != nil {
		return nil, err
	}
	return f.backend.ReadObject(ctx, key)
}

// DownloadURL returns a time-limited URL for the file at p. Backends that
// cannot sign URLs return storage.ErrNotSupported; callers then stream the
// bytes from ReadFile.
func (f *FileSystem) DownloadURL(ctx context.Context, p string, ttl time.Duration) (url string, err error) {
	start, tr := time.Now(), &tracker{}
	p = CleanFilePath(p)
	defer func() { err = f.finish(ctx, "download_url", p, start, tr, err) }()

	key, err := f.key(p, false)
	if err != nil {
		return "", err
	}
	return f.backend.SignedURL(ctx, key, ttl)
}

// ─── Folders ────────────────────────────────────────────────────────────

// CreateFolder makes name visible inside parent by writing its placeholder.
func (f *FileSystem) CreateFolder(ctx context.Context, parent, name string) (entry FileEntry, err error) {
	start, tr := time.Now(), &tracker{}
	parent = EnsureFolderPath(parent)
	defer func() { err = f.finish(ctx, "create_folder", parent, start, tr, err) }()

	if err := ValidateName(name); err != nil {
		return FileEntry{}, err
	}
	folder := JoinRelativePath(parent, name, true)
	prefix, err := f.key(folder, true)
	if err != nil {
		return FileEntry{}, err
	}
	if err := f.backend.WriteObject(ctx, prefix+PlaceholderName, nil); err != nil {
		return FileEntry{}, err
	}
	tr.mutated()
	return FileEntry{Name: name, FullPath: prefix, RelativePath: folder, IsFolder: true}, nil
}

// CopyFolder copies the tree at src to dst, placeholders included. A
// failure part way leaves a partial copy at dst.
func (f *FileSystem) CopyFolder(ctx context.Context, src, dst string) (err error) {
	start, tr := time.Now(), &tracker{}
	src, dst = EnsureFolderPath(src), EnsureFolderPath(dst)
	defer func() { err = f.finish(ctx, "copy_folder", src, start, tr, err) }()

	srcKey, dstKey, err := f.folderPair(src, dst)
	if err != nil {
		return err
	}
	return f.copyPrefix(ctx, srcKey, dstKey, tr)
}

// DeleteFolder removes the tree at p. Deleting a folder that is already
// gone succeeds.
func (f *FileSystem) DeleteFolder(ctx context.Context, p string) (err error) {
	start, tr := time.Now(), &tracker{}
	p = EnsureFolderPath(p)
	defer func() { err = f.finish(ctx, "delete_folder", p, start, tr, err) }()

	if p == RootPath {
		return ErrRootFolder
	}
	prefix, err := f.key(p, true)
	if err != nil {
		return err
	}
	return f.deletePrefix(ctx, prefix, tr)
}

// MoveFolder copies src to dst and then deletes src. If the delete step
// fails the tree exists in both places.
func (f *FileSystem) MoveFolder(ctx context.Context, src, dst string) (err error) {
	start, tr := time.Now(), &tracker{}
	src, dst = EnsureFolderPath(src), EnsureFolderPath(dst)
	defer func() { err = f.finish(ctx, "move_folder", src, start, tr, err) }()
	return f.moveFolder(ctx, src, dst, tr)
}

// RenameFolder moves src to a sibling folder called newName.
func (f *FileSystem) RenameFolder(ctx context.Context, src, newName string) (err error) {
	start, tr := time.Now(), &tracker{}
	src = EnsureFolderPath(src)
	defer func() { err = f.finish(ctx, "rename_folder", src, start, tr, err) }()

	if err := ValidateName(newName); err != nil {
		return err
	}
	return f.moveFolder(ctx, src, JoinRelativePath(ParentFolder(src), newName, true), tr)
}

func (f *FileSystem) moveFolder(ctx context.Context, src, dst string, tr *tracker) error {
	if src == dst && src != RootPath {
		return nil
	}
	srcKey, dstKey, err := f.folderPair(src, dst)
	if err != nil {
		return err
	}
	if err := f.copyPrefix(ctx, srcKey, dstKey, tr); err != nil {
		return err
	}
	return f.deletePrefix(ctx, srcKey, tr)
}

// folderPair resolves both folders and rejects copies into their own subtree.
func (f *FileSystem) folderPair(src, dst string) (string, string, error) {
	if src == RootPath || dst == RootPath {
		return "", "", ErrRootFolder
	}
	if IsWithin(src, dst) {
		return "", "", ErrIntoItself
	}
	srcKey, err := f.key(src, true)
	if err != nil {
		return "", "", err
	}
	dstKey, err := f.key(dst, true)
	if err != nil {
		return "", "", err
	}
	return srcKey, dstKey, nil
}
