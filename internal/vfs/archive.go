package vfs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdisaacson/desktop/internal/archive"
	"github.com/sdisaacson/desktop/internal/metrics"
)

// ErrNotArchive is returned when extraction targets a folder or a file
// without a recognised archive extension.
var ErrNotArchive = errors.New("not an archive file")

// archiveBuild tracks which directories and files are already in an archive
// so overlapping selections add each member once.
type archiveBuild struct {
	w     archive.Writer
	dirs  map[string]bool
	files map[string]bool
}

func (b *archiveBuild) addDir(p string) error {
	if p == "" || p == "." || b.dirs[p] {
		return nil
	}
	if err := b.addDir(parentOf(p)); err != nil {
		return err
	}
	b.dirs[p] = true
	return b.w.AddDirectory(p)
}

func (b *archiveBuild) addFile(p string, data []byte) error {
	if b.files[p] {
		return nil
	}
	if err := b.addDir(parentOf(p)); err != nil {
		return err
	}
	b.files[p] = true
	return b.w.AddFile(p, data)
}

func parentOf(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}

// archiveName is where an entry lands inside the archive: its virtual path
// without the leading slash, or its own name for the root.
func archiveName(e FileEntry) string {
	name := strings.Trim(e.RelativePath, sep)
	if name == "" {
		name = e.Name
	}
	if name == "" {
		name = "files"
	}
	return name
}

// BuildArchive packs the selected entries into a single archive. Folders
// are included recursively without their placeholders. Any read failure
// aborts the build and nothing is returned.
func (f *FileSystem) BuildArchive(ctx context.Context, selection []FileEntry, format archive.Format) (data []byte, err error) {
	start, tr := time.Now(), &tracker{}
	defer func() {
		err = f.finish(ctx, "build_archive", "", start, tr, err)
		if err != nil {
			data = nil
		}
	}()

	if !f.Available() {
		return nil, ErrUnavailable
	}
	if format == nil {
		format = archive.Zip()
	}
	b := &archiveBuild{w: format.NewWriter(), dirs: map[string]bool{}, files: map[string]bool{}}

	for _, e := range selection {
		name := archiveName(e)
		if e.IsFolder {
			prefix, err := f.key(e.RelativePath, true)
			if err != nil {
				return nil, err
			}
			if err := b.addDir(name); err != nil {
				return nil, err
			}
			if err := f.archiveFolder(ctx, b, prefix, name); err != nil {
				return nil, err
			}
			continue
		}

		key, err := f.key(e.RelativePath, false)
		if err != nil {
			return nil, err
		}
		body, err := f.backend.ReadObject(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := b.addFile(name, body); err != nil {
			return nil, err
		}
	}

	data, err = b.w.Serialize()
	if err != nil {
		return nil, err
	}
	metrics.RecordArchiveBytes("built", format.Name(), len(data))
	return data, nil
}

// archiveFolder adds the files under prefix, read concurrently and added in
// key order, then descends into subfolders.
func (f *FileSystem) archiveFolder(ctx context.Context, b *archiveBuild, prefix, name string) error {
	listing, err := f.backend.ListOneLevel(ctx, prefix)
	if err != nil {
		return err
	}
	listing.Sort()

	var keys []string
	for _, k := range listing.Keys {
		if BaseName(k) != PlaceholderName {
			keys = append(keys, k)
		}
	}

	bodies := make([][]byte, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, k := range keys {
		g.Go(func() error {
			body, err := f.backend.ReadObject(gctx, k)
			bodies[i] = body
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, k := range keys {
		if err := b.addFile(name+sep+strings.TrimPrefix(k, prefix), bodies[i]); err != nil {
			return err
		}
	}

	for _, p := range listing.Prefixes {
		child := name + sep + strings.TrimSuffix(strings.TrimPrefix(p, prefix), sep)
		if err := b.addDir(child); err != nil {
			return err
		}
		if err := f.archiveFolder(ctx, b, p, child); err != nil {
			return err
		}
	}
	return nil
}

// ExtractArchive unpacks the archive file entry into the target folder. The
// archive is parsed and every member path validated before the first write,
// so a corrupt or hostile archive changes nothing.
func (f *FileSystem) ExtractArchive(ctx context.Context, entry FileEntry, target string) (err error) {
	start, tr := time.Now(), &tracker{}
	target = EnsureFolderPath(target)
	defer func() { err = f.finish(ctx, "extract_archive", entry.RelativePath, start, tr, err) }()

	if entry.IsFolder {
		return ErrNotArchive
	}
	format, ok := archive.ForName(entry.Name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotArchive, entry.Name)
	}

	key, err := f.key(entry.RelativePath, false)
	if err != nil {
		return err
	}
	data, err := f.backend.ReadObject(ctx, key)
	if err != nil {
		return err
	}
	members, err := format.Parse(data)
	if err != nil {
		return err
	}

	type write struct {
		key  string
		data []byte
	}
	var writes []write
	for _, m := range members {
		if m.IsDirectory && archive.IsCurrentDir(m.Path) {
			continue
		}
		clean, err := archive.SafePath(m.Path)
		if err != nil {
			return err
		}
		if m.IsDirectory {
			continue
		}
		dst, err := f.key(JoinRelativePath(target, clean, false), false)
		if err != nil {
			return err
		}
		writes = append(writes, write{key: dst, data: m.Data})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, w := range writes {
		g.Go(func() error {
			if err := f.backend.WriteObject(gctx, w.key, w.data); err != nil {
				return err
			}
			tr.mutated()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	metrics.RecordArchiveBytes("extracted", format.Name(), len(data))
	return nil
}
