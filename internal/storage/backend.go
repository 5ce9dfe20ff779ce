// Package storage defines the flat object store the virtual filesystem is
// built on. Backends only know keys: there are no directories, renames,
// recursive copies or recursive deletes at this level.
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrNotSupported is returned by backends that cannot serve an operation,
	// such as signed URLs on the local filesystem.
	ErrNotSupported = errors.New("operation not supported by backend")
)

// Delimiter separates key segments for one-level listings.
const Delimiter = "/"

// Backend is the interface for object storage backends.
type Backend interface {
	// WriteObject stores data at key, replacing any existing object.
	WriteObject(ctx context.Context, key string, data []byte) error

	// ReadObject returns the full contents of key.
	ReadObject(ctx context.Context, key string) ([]byte, error)

	// DeleteObject removes key. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error

	// ListOneLevel returns the direct children of prefix. Prefixes end
	// with the delimiter; keys never do. Order is unspecified.
	ListOneLevel(ctx context.Context, prefix string) (*Listing, error)

	// ObjectMetadata returns size and last update time for key.
	ObjectMetadata(ctx context.Context, key string) (*ObjectMeta, error)

	// SignedURL returns a time-limited download URL for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Type returns the backend type identifier ("s3", "local", "memory").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// Listing is the result of a one-level listing.
type Listing struct {
	Prefixes []string // full child prefixes, each ending in "/"
	Keys     []string // full keys of objects directly under the prefix
}

// ObjectMeta describes a stored object.
type ObjectMeta struct {
	Key         string
	Size        int64
	Updated     time.Time
	ContentType string
}

// SplitChild classifies key relative to prefix. It returns the child prefix
// (with trailing delimiter) when key lies deeper than one level, or the key
// itself when it is a direct child. ok is false for keys outside prefix and
// for the prefix itself.
func SplitChild(prefix, key string) (child string, isPrefix, ok bool) {
	if !strings.HasPrefix(key, prefix) || key == prefix {
		return "", false, false
	}
	rest := key[len(prefix):]
	if i := strings.Index(rest, Delimiter); i >= 0 {
		return prefix + rest[:i+1], true, true
	}
	return key, false, true
}

// Sort orders both halves of a listing. Backends that build listings from
// unordered sources call it so results are deterministic.
func (l *Listing) Sort() {
	sort.Strings(l.Prefixes)
	sort.Strings(l.Keys)
}
