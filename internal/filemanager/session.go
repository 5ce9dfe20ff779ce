// Package filemanager holds the per-widget browsing state on top of the
// virtual filesystem: the open folder, its listing, the selection, and the
// user-facing error string.
//
// A Session serializes access to its own fields but never to the
// filesystem. Two operations started together both run; whichever listing
// finishes last wins, unless the user navigated away in the meantime.
package filemanager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/archive"
	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/storage"
	"github.com/sdisaacson/desktop/internal/vfs"
)

// CurrentPathKey is the widget config field holding the open folder.
const CurrentPathKey = "currentPath"

var (
	// ErrNothingSelected is returned by bulk operations on an empty selection.
	ErrNothingSelected = errors.New("nothing selected")

	// ErrFolderDownload is returned when a folder is passed to Download.
	ErrFolderDownload = errors.New("cannot download a folder")

	// ErrSelectOneArchive is returned when extraction is requested without
	// exactly one archive file selected.
	ErrSelectOneArchive = errors.New("select exactly one archive file")
)

// PersistFunc merges partial into the widget's stored configuration.
type PersistFunc func(ctx context.Context, partial map[string]any) error

// Notifier is told which folder changed after a successful mutation.
type Notifier func(folder string)

// State is a snapshot of a session.
type State struct {
	CurrentPath string          `json:"currentPath"`
	Entries     []vfs.FileEntry `json:"entries"`
	Selected    []string        `json:"selected"`
	Loading     bool            `json:"loading"`
	Error       string          `json:"error,omitempty"`
}

// Download is a file or archive ready for the user. Exactly one of URL and
// Data is set.
type Download struct {
	Name        string
	ContentType string
	URL         string
	Data        []byte
}

// Session is the state of one file-manager widget.
type Session struct {
	fs       *vfs.FileSystem
	persist  PersistFunc
	notify   Notifier
	format   archive.Format
	urlTTL   time.Duration
	widgetID string

	mu          sync.Mutex
	currentPath string
	entries     []vfs.FileEntry
	selection   map[string]vfs.FileEntry
	inflight    int
	errMsg      string
}

// Option configures a Session.
type Option func(*Session)

// WithNotifier registers a change callback.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notify = n }
}

// WithArchiveFormat sets the format used by BuildArchive.
func WithArchiveFormat(f archive.Format) Option {
	return func(s *Session) {
		if f != nil {
			s.format = f
		}
	}
}

// WithSignedURLTTL sets how long download URLs stay valid.
func WithSignedURLTTL(ttl time.Duration) Option {
	return func(s *Session) {
		if ttl > 0 {
			s.urlTTL = ttl
		}
	}
}

// WithStartPath opens the session at path instead of the root.
func WithStartPath(path string) Option {
	return func(s *Session) { s.currentPath = vfs.EnsureFolderPath(path) }
}

// WithWidgetID tags log lines with the widget instance.
func WithWidgetID(id string) Option {
	return func(s *Session) { s.widgetID = id }
}

// New creates a session over fs. persist may be nil.
func New(fs *vfs.FileSystem, persist PersistFunc, opts ...Option) *Session {
	s := &Session{
		fs:          fs,
		persist:     persist,
		format:      archive.Zip(),
		urlTTL:      15 * time.Minute,
		currentPath: vfs.RootPath,
		selection:   make(map[string]vfs.FileEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		CurrentPath: s.currentPath,
		Entries:     append([]vfs.FileEntry(nil), s.entries...),
		Selected:    make([]string, 0, len(s.selection)),
		Loading:     s.inflight > 0,
		Error:       s.errMsg,
	}
	for k := range s.selection {
		st.Selected = append(st.Selected, k)
	}
	sort.Strings(st.Selected)
	return st
}

// CurrentPath returns the open folder.
func (s *Session) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPath
}

// ─── State helpers ──────────────────────────────────────────────────────

func (s *Session) begin() {
	s.mu.Lock()
	s.inflight++
	s.errMsg = ""
	s.mu.Unlock()
}

func (s *Session) end() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

func (s *Session) clearSelection() {
	s.mu.Lock()
	clear(s.selection)
	s.mu.Unlock()
}

// fail records the user-facing message for err.
func (s *Session) fail(ctx context.Context, action string, err error) {
	cause := err
	var opErr *vfs.OpError
	if errors.As(err, &opErr) {
		cause = opErr.Err
	}
	msg := fmt.Sprintf("%s failed: %v", action, cause)

	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()

	logging.WithContext(ctx).Info("file manager action failed",
		zap.String("widget", s.widgetID),
		zap.String("action", action),
		zap.String("outcome", vfs.OutcomeOf(err).String()),
		zap.Error(err),
	)
}

// reload lists the open folder and replaces entries and selection. A
// listing for a folder the user has since left is dropped.
func (s *Session) reload(ctx context.Context) error {
	folder := s.CurrentPath()
	entries, err := s.fs.ListEntries(ctx, folder)

	s.mu.Lock()
	if s.currentPath != folder {
		s.mu.Unlock()
		return nil
	}
	clear(s.selection)
	if err == nil {
		s.entries = entries
	} else {
		s.entries = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.fail(ctx, "List files", err)
	}
	return err
}

// mutate runs a storage-changing action and refreshes the listing after it
// succeeds. The selection is cleared whatever the result.
func (s *Session) mutate(ctx context.Context, action string, fn func(context.Context) error) error {
	s.begin()
	defer s.end()

	err := fn(ctx)
	s.clearSelection()
	if err != nil {
		s.fail(ctx, action, err)
		return err
	}
	if s.notify != nil {
		s.notify(s.CurrentPath())
	}
	return s.reload(ctx)
}

// ─── Navigation ─────────────────────────────────────────────────────────

// Navigate opens folder, persists it as the widget's current path and lists
// it. A persist failure is logged; the navigation still happens.
func (s *Session) Navigate(ctx context.Context, folder string) error {
	folder = vfs.EnsureFolderPath(folder)

	s.mu.Lock()
	s.currentPath = folder
	s.entries = nil
	clear(s.selection)
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist(ctx, map[string]any{CurrentPathKey: folder}); err != nil {
			logging.WithContext(ctx).Warn("persist current path failed",
				zap.String("widget", s.widgetID),
				zap.String("path", folder),
				zap.Error(err),
			)
		}
	}
	return s.Refresh(ctx)
}

// Refresh re-lists the open folder.
func (s *Session) Refresh(ctx context.Context) error {
	s.begin()
	defer s.end()
	return s.reload(ctx)
}

// ─── Single-entry actions ───────────────────────────────────────────────

// CreateFolder makes a folder called name in the open folder.
func (s *Session) CreateFolder(ctx context.Context, name string) error {
	return s.mutate(ctx, "Create folder", func(ctx context.Context) error {
		_, err := s.fs.CreateFolder(ctx, s.CurrentPath(), name)
		return err
	})
}

// Upload writes files into the open folder.
func (s *Session) Upload(ctx context.Context, files []vfs.UploadFile) error {
	return s.mutate(ctx, "Upload", func(ctx context.Context) error {
		return s.fs.Upload(ctx, s.CurrentPath(), files)
	})
}

// Rename gives entry a new name in the same folder.
func (s *Session) Rename(ctx context.Context, entry vfs.FileEntry, newName string) error {
	return s.mutate(ctx, "Rename", func(ctx context.Context) error {
		if entry.IsFolder {
			return s.fs.RenameFolder(ctx, entry.RelativePath, newName)
		}
		return s.fs.RenameFile(ctx, entry.RelativePath, newName)
	})
}

// Move places entry inside the folder dest, keeping its name.
func (s *Session) Move(ctx context.Context, entry vfs.FileEntry, dest string) error {
	return s.mutate(ctx, "Move", func(ctx context.Context) error {
		return s.moveEntry(ctx, entry, dest)
	})
}

func (s *Session) moveEntry(ctx context.Context, entry vfs.FileEntry, dest string) error {
	if entry.IsFolder {
		return s.fs.MoveFolder(ctx, entry.RelativePath, vfs.JoinRelativePath(dest, entry.Name, true))
	}
	return s.fs.MoveFile(ctx, entry.RelativePath, vfs.JoinRelativePath(dest, entry.Name, false))
}

// Delete removes entry, recursively for folders.
func (s *Session) Delete(ctx context.Context, entry vfs.FileEntry) error {
	return s.mutate(ctx, "Delete", func(ctx context.Context) error {
		return s.deleteEntry(ctx, entry)
	})
}

func (s *Session) deleteEntry(ctx context.Context, entry vfs.FileEntry) error {
	if entry.IsFolder {
		return s.fs.DeleteFolder(ctx, entry.RelativePath)
	}
	return s.fs.DeleteFile(ctx, entry.RelativePath)
}

// Download prepares entry for the user: a signed URL when the backend can
// issue one, otherwise the file bytes.
func (s *Session) Download(ctx context.Context, entry vfs.FileEntry) (*Download, error) {
	s.begin()
	defer s.end()

	if entry.IsFolder {
		err := fmt.Errorf("%w: %s", ErrFolderDownload, entry.Name)
		s.fail(ctx, "Download", err)
		return nil, err
	}

	url, err := s.fs.DownloadURL(ctx, entry.RelativePath, s.urlTTL)
	if err == nil {
		return &Download{Name: entry.Name, URL: url}, nil
	}
	if !errors.Is(err, storage.ErrNotSupported) {
		s.fail(ctx, "Download", err)
		return nil, err
	}

	data, err := s.fs.ReadFile(ctx, entry.RelativePath)
	if err != nil {
		s.fail(ctx, "Download", err)
		return nil, err
	}
	return &Download{Name: entry.Name, Data: data}, nil
}

// Search finds entries below the open folder matching a glob pattern. The
// listing and selection are left alone.
func (s *Session) Search(ctx context.Context, pattern string) ([]vfs.FileEntry, error) {
	s.begin()
	defer s.end()

	entries, err := s.fs.Find(ctx, s.CurrentPath(), pattern)
	if err != nil {
		s.fail(ctx, "Search", err)
		return nil, err
	}
	return entries, nil
}

// ─── Selection ──────────────────────────────────────────────────────────

// ToggleSelection adds entry to the selection or removes it. It reports
// whether the entry is selected afterwards.
func (s *Session) ToggleSelection(entry vfs.FileEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selection[entry.FullPath]; ok {
		delete(s.selection, entry.FullPath)
		return false
	}
	s.selection[entry.FullPath] = entry
	return true
}

// Selection returns the selected entries ordered by path.
func (s *Session) Selection() []vfs.FileEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vfs.FileEntry, 0, len(s.selection))
	for _, e := range s.selection {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullPath < out[j].FullPath })
	return out
}

// Lookup finds an entry of the current listing by virtual path.
func (s *Session) Lookup(relativePath string) (vfs.FileEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.RelativePath == relativePath {
			return e, true
		}
	}
	return vfs.FileEntry{}, false
}

// Entry returns the listed entry at relativePath, or describes it from the
// path alone when the current listing does not hold it.
func (s *Session) Entry(relativePath string, isFolder bool) vfs.FileEntry {
	if isFolder {
		relativePath = vfs.EnsureFolderPath(relativePath)
	} else {
		relativePath = vfs.CleanFilePath(relativePath)
	}
	if e, ok := s.Lookup(relativePath); ok {
		return e
	}
	full, _ := s.fs.Root().StoragePath(relativePath, isFolder)
	return vfs.FileEntry{
		Name:         vfs.BaseName(relativePath),
		FullPath:     full,
		RelativePath: relativePath,
		IsFolder:     isFolder,
	}
}

// ─── Bulk actions ───────────────────────────────────────────────────────

// MoveSelection moves every selected entry into dest. It stops at the
// first failure; entries moved before it stay moved.
func (s *Session) MoveSelection(ctx context.Context, dest string) error {
	selected := s.Selection()
	return s.mutate(ctx, "Move", func(ctx context.Context) error {
		if len(selected) == 0 {
			return ErrNothingSelected
		}
		for _, e := range selected {
			if err := s.moveEntry(ctx, e, dest); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSelection deletes every selected entry, stopping at the first
// failure.
func (s *Session) DeleteSelection(ctx context.Context) error {
	selected := s.Selection()
	return s.mutate(ctx, "Delete", func(ctx context.Context) error {
		if len(selected) == 0 {
			return ErrNothingSelected
		}
		for _, e := range selected {
			if err := s.deleteEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// BuildArchive packs the selection into one archive for download. The
// selection is cleared whether or not the build succeeds.
func (s *Session) BuildArchive(ctx context.Context) (*Download, error) {
	return s.BuildArchiveAs(ctx, s.format)
}

// BuildArchiveAs is BuildArchive with an explicit format.
func (s *Session) BuildArchiveAs(ctx context.Context, format archive.Format) (*Download, error) {
	if format == nil {
		format = s.format
	}
	selected := s.Selection()
	s.begin()
	defer s.end()
	defer s.clearSelection()

	if len(selected) == 0 {
		s.fail(ctx, "Create archive", ErrNothingSelected)
		return nil, ErrNothingSelected
	}
	data, err := s.fs.BuildArchive(ctx, selected, format)
	if err != nil {
		s.fail(ctx, "Create archive", err)
		return nil, err
	}
	return &Download{
		Name:        archiveFileName(selected, format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

func archiveFileName(selected []vfs.FileEntry, f archive.Format) string {
	base := "archive"
	if len(selected) == 1 && selected[0].Name != "" {
		base = selected[0].Name
	}
	return base + f.Extension()
}

// ExtractArchive unpacks the single selected archive into the open folder.
func (s *Session) ExtractArchive(ctx context.Context) error {
	selected := s.Selection()
	return s.mutate(ctx, "Extract archive", func(ctx context.Context) error {
		if len(selected) != 1 || selected[0].IsFolder {
			return ErrSelectOneArchive
		}
		if _, ok := archive.ForName(selected[0].Name); !ok {
			return ErrSelectOneArchive
		}
		return s.fs.ExtractArchive(ctx, selected[0], s.CurrentPath())
	})
}
