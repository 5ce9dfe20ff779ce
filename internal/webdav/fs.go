// Package webdav exposes a user's files over WebDAV.
package webdav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/sdisaacson/desktop/internal/auth"
	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/storage"
	"github.com/sdisaacson/desktop/internal/vfs"
)

// FS implements webdav.FileSystem on the virtual filesystem of the
// authenticated user.
type FS struct {
	backend     storage.Backend
	concurrency int
}

var _ webdav.FileSystem = (*FS)(nil)

// NewFS creates a WebDAV filesystem over backend.
func NewFS(backend storage.Backend, concurrency int) *FS {
	return &FS{backend: backend, concurrency: concurrency}
}

// files returns the filesystem of the principal in ctx.
func (d *FS) files(ctx context.Context) *vfs.FileSystem {
	var uid string
	if p := auth.GetPrincipal(ctx); p != nil {
		uid = p.UID
	}
	return vfs.New(d.backend, vfs.RootFor(uid), vfs.WithConcurrency(d.concurrency))
}

// osError maps filesystem errors to the sentinels x/net/webdav checks with
// os.IsNotExist and os.IsExist.
func osError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vfs.ErrNotExist):
		return os.ErrNotExist
	case errors.Is(err, vfs.ErrRootFolder), errors.Is(err, vfs.ErrUnavailable):
		return os.ErrPermission
	}
	return err
}

// Mkdir creates a folder.
func (d *FS) Mkdir(ctx context.Context, name string, _ os.FileMode) error {
	folder := vfs.EnsureFolderPath(name)
	if folder == vfs.RootPath {
		return os.ErrExist
	}
	files := d.files(ctx)
	if _, err := files.Stat(ctx, folder); err == nil {
		return os.ErrExist
	}
	_, err := files.CreateFolder(ctx, vfs.ParentFolder(folder), vfs.BaseName(folder))
	return osError(err)
}

// OpenFile opens a file for reading or a buffered file for writing.
func (d *FS) OpenFile(ctx context.Context, name string, flag int, _ os.FileMode) (webdav.File, error) {
	files := d.files(ctx)

	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0 {
		return &file{
			ctx:      ctx,
			files:    files,
			entry:    vfs.FileEntry{Name: vfs.BaseName(name), RelativePath: vfs.CleanFilePath(name)},
			writable: true,
			buf:      &bytes.Buffer{},
		}, nil
	}

	entry, err := files.Stat(ctx, name)
	if err != nil {
		return nil, osError(err)
	}
	return &file{ctx: ctx, files: files, entry: entry}, nil
}

// RemoveAll removes a file or a folder tree.
func (d *FS) RemoveAll(ctx context.Context, name string) error {
	files := d.files(ctx)
	entry, err := files.Stat(ctx, name)
	if err != nil {
		return osError(err)
	}
	if entry.IsFolder {
		return osError(files.DeleteFolder(ctx, entry.RelativePath))
	}
	return osError(files.DeleteFile(ctx, entry.RelativePath))
}

// Rename moves a file or folder.
func (d *FS) Rename(ctx context.Context, oldName, newName string) error {
	files := d.files(ctx)
	entry, err := files.Stat(ctx, oldName)
	if err != nil {
		return osError(err)
	}
	if entry.IsFolder {
		return osError(files.MoveFolder(ctx, entry.RelativePath, vfs.EnsureFolderPath(newName)))
	}
	return osError(files.MoveFile(ctx, entry.RelativePath, vfs.CleanFilePath(newName)))
}

// Stat describes a path.
func (d *FS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	entry, err := d.files(ctx).Stat(ctx, name)
	if err != nil {
		return nil, osError(err)
	}
	return newFileInfo(entry), nil
}

// file implements webdav.File. Reads load the whole object on first use;
// writes are buffered and uploaded on Close.
type file struct {
	ctx      context.Context
	files    *vfs.FileSystem
	entry    vfs.FileEntry
	writable bool
	buf      *bytes.Buffer

	reader *bytes.Reader

	// listing is read once per open directory; dirPos is the Readdir cursor.
	listing []fs.FileInfo
	dirPos  int
}

var _ webdav.File = (*file)(nil)

func (f *file) Close() error {
	if !f.writable {
		return nil
	}
	err := f.files.Upload(f.ctx, vfs.ParentFolder(f.entry.RelativePath), []vfs.UploadFile{
		{Name: f.entry.Name, Data: f.buf.Bytes()},
	})
	if err != nil {
		return osError(err)
	}
	logging.Debug("webdav file written",
		zap.String("path", f.entry.RelativePath),
		zap.Int("size", f.buf.Len()))
	f.writable = false
	return nil
}

func (f *file) load() error {
	if f.reader != nil {
		return nil
	}
	if f.entry.IsFolder {
		return fmt.Errorf("%s is a folder", f.entry.RelativePath)
	}
	data, err := f.files.ReadFile(f.ctx, f.entry.RelativePath)
	if err != nil {
		return osError(err)
	}
	f.reader = bytes.NewReader(data)
	return nil
}

func (f *file) Read(p []byte) (int, error) {
	if f.writable {
		return 0, errors.New("file opened for writing")
	}
	if err := f.load(); err != nil {
		return 0, err
	}
	return f.reader.Read(p)
}

func (f *file) Write(p []byte) (int, error) {
	if !f.writable {
		return 0, errors.New("file not opened for writing")
	}
	return f.buf.Write(p)
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	if f.writable {
		if offset == 0 && whence == io.SeekStart && f.buf.Len() == 0 {
			return 0, nil
		}
		return 0, errors.New("seek on a file opened for writing")
	}
	if err := f.load(); err != nil {
		return 0, err
	}
	return f.reader.Seek(offset, whence)
}

// Readdir follows os.File.Readdir: with count > 0 it returns the next
// count entries and io.EOF once the folder is exhausted.
func (f *file) Readdir(count int) ([]fs.FileInfo, error) {
	if !f.entry.IsFolder {
		return nil, errors.New("not a directory")
	}
	if f.listing == nil {
		entries, err := f.files.ListEntries(f.ctx, f.entry.RelativePath)
		if err != nil {
			return nil, osError(err)
		}
		f.listing = make([]fs.FileInfo, 0, len(entries))
		for _, e := range entries {
			f.listing = append(f.listing, newFileInfo(e))
		}
	}

	rest := f.listing[f.dirPos:]
	if count <= 0 {
		f.dirPos = len(f.listing)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if len(rest) > count {
		rest = rest[:count]
	}
	f.dirPos += len(rest)
	return rest, nil
}

func (f *file) Stat() (fs.FileInfo, error) {
	if f.writable {
		return &fileInfo{name: f.entry.Name, size: int64(f.buf.Len()), modTime: time.Now()}, nil
	}
	return newFileInfo(f.entry), nil
}

// fileInfo implements os.FileInfo.
type fileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func newFileInfo(e vfs.FileEntry) *fileInfo {
	fi := &fileInfo{name: e.Name, isDir: e.IsFolder}
	if fi.name == "" {
		fi.name = "/"
	}
	if e.Size != nil {
		fi.size = *e.Size
	}
	if e.Updated != nil {
		fi.modTime = *e.Updated
	}
	return fi
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) IsDir() bool        { return fi.isDir }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) Sys() any           { return nil }

func (fi *fileInfo) Mode() os.FileMode {
	if fi.isDir {
		return os.ModeDir | 0755
	}
	return 0644
}
