package vfs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrBadPattern is returned by Find for malformed glob patterns.
var ErrBadPattern = errors.New("invalid search pattern")

// Find returns every file and folder below folder whose path relative to
// folder matches pattern. Patterns use "/" separators and support "**" for
// any number of folders, e.g. "**/*.pdf" or "reports/2024-*". Results are
// ordered by path.
func (f *FileSystem) Find(ctx context.Context, folder, pattern string) (entries []FileEntry, err error) {
	start, tr := time.Now(), &tracker{}
	folder = EnsureFolderPath(folder)
	defer func() {
		err = f.finish(ctx, "find", folder, start, tr, err)
		if err != nil {
			entries = nil
		}
	}()

	pattern = strings.TrimPrefix(pattern, sep)
	if pattern == "" || !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}
	prefix, err := f.key(folder, true)
	if err != nil {
		return nil, err
	}

	var keys []string
	entries = []FileEntry{}
	var walk func(p string) error
	walk = func(p string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		listing, err := f.backend.ListOneLevel(ctx, p)
		if err != nil {
			return err
		}
		listing.Sort()
		for _, k := range listing.Keys {
			if BaseName(k) == PlaceholderName {
				continue
			}
			if ok, _ := doublestar.Match(pattern, strings.TrimPrefix(k, prefix)); ok {
				keys = append(keys, k)
			}
		}
		for _, sub := range listing.Prefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(sub, prefix), sep)
			if ok, _ := doublestar.Match(pattern, name); ok {
				if rel, ok := f.root.RelativePath(sub, true); ok {
					entries = append(entries, FileEntry{
						Name:         BaseName(rel),
						FullPath:     sub,
						RelativePath: rel,
						IsFolder:     true,
					})
				}
			}
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(prefix); err != nil {
		return nil, err
	}

	files, err := f.describe(ctx, keys)
	if err != nil {
		return nil, err
	}
	entries = append(entries, files...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelativePath < entries[j].RelativePath })
	return entries, nil
}
