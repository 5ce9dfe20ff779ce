// Package vfs presents a hierarchical filesystem over a flat object store.
//
// Folders are never stored. A folder exists while at least one key lives
// under its prefix; empty folders are kept visible by a zero-length
// placeholder object. Every multi-object operation (copy, move, delete of a
// folder) is a sequence of single-object reads, writes and deletes with no
// transaction around it, so failures can leave a partial result. Callers
// learn how far an operation got from OutcomeOf.
//
// A FileSystem is bound to one user's storage Root. It does no locking
// between operations: two overlapping mutations on the same subtree may
// interleave.
package vfs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/metrics"
	"github.com/sdisaacson/desktop/internal/storage"
)

const defaultConcurrency = 8

var (
	// ErrUnavailable is returned when no user is signed in.
	ErrUnavailable = errors.New("no filesystem available")

	// ErrRootFolder is returned for operations that cannot target the root.
	ErrRootFolder = errors.New("operation not allowed on the root folder")

	// ErrIntoItself is returned when a folder would be copied or moved into
	// its own subtree.
	ErrIntoItself = errors.New("cannot place a folder inside itself")

	// ErrNotExist is returned when a path names nothing.
	ErrNotExist = storage.ErrNotFound
)

// FileSystem is the virtual filesystem for one storage root.
type FileSystem struct {
	backend     storage.Backend
	root        Root
	concurrency int
}

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithConcurrency bounds how many sibling objects are processed at once.
func WithConcurrency(n int) Option {
	return func(f *FileSystem) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// New binds backend to root.
func New(backend storage.Backend, root Root, opts ...Option) *FileSystem {
	f := &FileSystem{backend: backend, root: root, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Root returns the storage root this filesystem is bound to.
func (f *FileSystem) Root() Root { return f.root }

// Available reports whether operations can reach storage.
func (f *FileSystem) Available() bool {
	return f != nil && f.backend != nil && f.root.Available()
}

// key resolves a virtual path to an object key.
func (f *FileSystem) key(rel string, folder bool) (string, error) {
	if !f.Available() {
		return "", ErrUnavailable
	}
	k, ok := f.root.StoragePath(rel, folder)
	if !ok {
		return "", ErrUnavailable
	}
	return k, nil
}

// finish wraps err into an *OpError, records metrics and logs failures.
func (f *FileSystem) finish(ctx context.Context, op, path string, start time.Time, tr *tracker, err error) error {
	if err == nil {
		metrics.RecordFSOperation(op, Succeeded.String(), time.Since(start))
		return nil
	}

	var opErr *OpError
	if !errors.As(err, &opErr) {
		opErr = &OpError{Op: op, Path: path, Outcome: tr.failure(), Err: err}
	}
	metrics.RecordFSOperation(op, opErr.Outcome.String(), time.Since(start))
	log := logging.WithContext(ctx).Warn
	if errors.Is(err, storage.ErrNotSupported) {
		log = logging.WithContext(ctx).Debug
	}
	log("filesystem operation failed",
		zap.String("op", op),
		zap.String("path", path),
		zap.String("root", string(f.root)),
		zap.String("outcome", opErr.Outcome.String()),
		zap.Error(err),
	)
	return opErr
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
