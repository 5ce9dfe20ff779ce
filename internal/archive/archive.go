// Package archive packs and unpacks in-memory archives.
//
// Formats are swappable behind Format. Paths inside an archive always use
// forward slashes and are relative; directory paths end in a slash when
// written.
package archive

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrCorrupt is returned when an archive cannot be parsed.
	ErrCorrupt = errors.New("archive is corrupt or unreadable")

	// ErrUnsafePath is returned for entry paths that are absolute or climb
	// above the extraction folder.
	ErrUnsafePath = errors.New("archive entry path is unsafe")

	// ErrUnknownFormat is returned by ByName for unregistered formats.
	ErrUnknownFormat = errors.New("unknown archive format")

	errSerialized = errors.New("archive already serialized")
)

// Entry is one parsed archive member.
type Entry struct {
	Path        string
	IsDirectory bool
	Data        []byte
}

// Writer accumulates entries and produces the archive bytes.
type Writer interface {
	AddDirectory(path string) error
	AddFile(path string, data []byte) error
	// Serialize finishes the archive. The writer cannot be used afterwards.
	Serialize() ([]byte, error)
}

// Format is an archive container.
type Format interface {
	Name() string
	Extension() string
	ContentType() string
	NewWriter() Writer
	Parse(data []byte) ([]Entry, error)
}

var formats = []Format{Zip(), TarGz(), TarZst()}

// Formats returns every registered format.
func Formats() []Format {
	out := make([]Format, len(formats))
	copy(out, formats)
	return out
}

// ByName returns the format registered as name ("zip", "tar.gz", "tar.zst").
func ByName(name string) (Format, error) {
	for _, f := range formats {
		if f.Name() == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// ForName picks the format whose extension filename ends with. Matching
// ignores case.
func ForName(filename string) (Format, bool) {
	lower := strings.ToLower(filename)
	for _, f := range formats {
		ext := f.Extension()
		if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			return f, true
		}
	}
	return nil, false
}

// SafePath cleans an entry path and rejects anything that would resolve
// outside the folder it is extracted into. The result has no leading or
// trailing slash.
func SafePath(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':') {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q leaves the extraction folder", ErrUnsafePath, p)
		}
	}
	clean := strings.Trim(path.Clean("/"+p), "/")
	if clean == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	return clean, nil
}

// IsCurrentDir reports whether a directory entry names the folder the
// archive is extracted into, like the "./" entry of "tar -C dir .".
func IsCurrentDir(p string) bool {
	p = strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg != "" && seg != "." {
			return false
		}
	}
	return true
}

func dirName(p string) string {
	return strings.TrimSuffix(p, "/") + "/"
}
