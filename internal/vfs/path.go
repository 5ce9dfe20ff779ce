package vfs

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// PlaceholderName is the zero-length marker object that keeps an
	// otherwise empty folder visible. Listings and archives skip it.
	PlaceholderName = ".placeholder"

	// RootPath is the virtual path of the top-level folder.
	RootPath = "/"

	sep = "/"
)

// ErrInvalidName is returned for names that cannot be used as a single
// path segment.
var ErrInvalidName = errors.New("invalid name")

// Root is the storage prefix that owns a user's files, for example
// "users/u123/files". The zero Root is unavailable: no user is signed in.
type Root string

// RootFor derives the storage root for uid.
func RootFor(uid string) Root {
	if uid == "" || strings.Contains(uid, sep) {
		return ""
	}
	return Root("users/" + uid + "/files")
}

// Available reports whether the root can resolve paths.
func (r Root) Available() bool { return r != "" }

// segments splits p on "/" dropping empty and "." segments. ".." removes
// the previous segment and never climbs above the root.
func segments(p string) []string {
	parts := strings.Split(p, sep)
	out := parts[:0]
	for _, s := range parts {
		switch s {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	return out
}

// EnsureFolderPath normalizes p to folder form: a single leading slash,
// a single trailing slash and no empty segments. "" and "/" become "/".
func EnsureFolderPath(p string) string {
	segs := segments(p)
	if len(segs) == 0 {
		return RootPath
	}
	return sep + strings.Join(segs, sep) + sep
}

// CleanFilePath normalizes p to file form: a single leading slash and no
// trailing slash.
func CleanFilePath(p string) string {
	return sep + strings.Join(segments(p), sep)
}

// JoinRelativePath appends child to base and returns folder form when
// isFolder is set, file form otherwise.
func JoinRelativePath(base, child string, isFolder bool) string {
	joined := base + sep + child
	if isFolder {
		return EnsureFolderPath(joined)
	}
	return CleanFilePath(joined)
}

// IsFolderPath reports whether p is written in folder form.
func IsFolderPath(p string) bool {
	return strings.HasSuffix(p, sep)
}

// BaseName returns the last segment of p, or "" for the root.
func BaseName(p string) string {
	segs := segments(p)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// ParentFolder returns the folder containing p. The root is its own parent.
func ParentFolder(p string) string {
	segs := segments(p)
	if len(segs) <= 1 {
		return RootPath
	}
	return EnsureFolderPath(strings.Join(segs[:len(segs)-1], sep))
}

// IsWithin reports whether folder candidate equals folder or lies below it.
func IsWithin(folder, candidate string) bool {
	return strings.HasPrefix(EnsureFolderPath(candidate), EnsureFolderPath(folder))
}

// ValidateName checks that name is usable as a single file or folder name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.Contains(name, sep):
		return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, sep)
	case name == PlaceholderName:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}

// StoragePath maps a virtual path to its object key. Folder keys end in a
// slash. ok is false when the root is unavailable.
func (r Root) StoragePath(rel string, folder bool) (string, bool) {
	if !r.Available() {
		return "", false
	}
	segs := segments(rel)
	key := string(r)
	if len(segs) > 0 {
		key += sep + strings.Join(segs, sep)
	}
	if folder {
		key += sep
	}
	return key, true
}

// RelativePath is the inverse of StoragePath. ok is false when the root is
// unavailable or full lies outside it.
func (r Root) RelativePath(full string, isFolder bool) (string, bool) {
	if !r.Available() {
		return "", false
	}
	base := string(r)
	if full == base || full == base+sep {
		return RootPath, true
	}
	if !strings.HasPrefix(full, base+sep) {
		return "", false
	}
	rest := full[len(base):]
	if isFolder {
		return EnsureFolderPath(rest), true
	}
	return CleanFilePath(rest), true
}
