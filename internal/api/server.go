// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/archive"
	"github.com/sdisaacson/desktop/internal/auth"
	"github.com/sdisaacson/desktop/internal/docstore"
	"github.com/sdisaacson/desktop/internal/events"
	"github.com/sdisaacson/desktop/internal/filemanager"
	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/metrics"
	"github.com/sdisaacson/desktop/internal/protocol"
	"github.com/sdisaacson/desktop/internal/ratelimit"
	"github.com/sdisaacson/desktop/internal/storage"
	"github.com/sdisaacson/desktop/internal/vfs"
	"github.com/sdisaacson/desktop/internal/webdav"
)

// Config tunes the file endpoints.
type Config struct {
	MaxUploadSize int64
	Concurrency   int
	SignedURLTTL  time.Duration
	ArchiveFormat archive.Format
	RateLimiter   *ratelimit.Limiter
}

// Server is the HTTP server.
type Server struct {
	backend     storage.Backend
	auth        *auth.Auth
	sessions    *filemanager.Registry
	broadcaster *events.Broadcaster
	dav         http.Handler
	cfg         Config
}

// NewServer creates a new server.
func NewServer(
	backend storage.Backend,
	authHandler *auth.Auth,
	sessions *filemanager.Registry,
	broadcaster *events.Broadcaster,
	cfg Config,
) *Server {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 100 << 20
	}
	return &Server{
		backend:     backend,
		auth:        authHandler,
		sessions:    sessions,
		broadcaster: broadcaster,
		dav:         webdav.NewHandler(webdav.NewFS(backend, cfg.Concurrency), authHandler),
		cfg:         cfg,
	}
}

// NewSessionFactory builds widget sessions that start in the folder saved
// in store and report changes to broadcaster.
func NewSessionFactory(backend storage.Backend, store docstore.Store, broadcaster *events.Broadcaster, cfg Config) filemanager.Factory {
	return func(ctx context.Context, uid, widgetID string) (*filemanager.Session, error) {
		start, err := docstore.StringField(ctx, store, uid, widgetID, filemanager.CurrentPathKey, vfs.RootPath)
		if err != nil {
			logging.WithContext(ctx).Warn("load widget config failed",
				zap.String("widget", widgetID), zap.Error(err))
		}

		files := vfs.New(backend, vfs.RootFor(uid), vfs.WithConcurrency(cfg.Concurrency))
		opts := []filemanager.Option{
			filemanager.WithStartPath(start),
			filemanager.WithWidgetID(widgetID),
			filemanager.WithSignedURLTTL(cfg.SignedURLTTL),
			filemanager.WithArchiveFormat(cfg.ArchiveFormat),
		}
		if broadcaster != nil {
			opts = append(opts, filemanager.WithNotifier(broadcaster.Notifier(uid, widgetID)))
		}
		return filemanager.New(files, docstore.Persister(store, uid, widgetID), opts...), nil
	}
}

// Handler returns the HTTP handler with auth and metrics middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public endpoints (no auth required)
	r.Get("/health", s.handleHealth)

	// WebDAV endpoint (has its own auth middleware)
	r.Handle(webdav.Prefix, s.dav)
	r.Handle(webdav.Prefix+"/*", s.dav)

	// Protected endpoints
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		if s.cfg.RateLimiter != nil {
			r.Use(ratelimit.Middleware(s.cfg.RateLimiter))
		}

		r.Get("/api/v1/events", s.handleEvents)
		r.Get("/api/v1/events/ws", s.handleEventsWS)

		r.Route("/api/v1/widgets/{widgetID}/files", func(r chi.Router) {
			r.Get("/", s.handleState)
			r.Delete("/", s.handleCloseSession)
			r.Post("/navigate", s.handleNavigate)
			r.Post("/folders", s.handleCreateFolder)
			r.Post("/upload", s.handleUpload)
			r.Get("/download", s.handleDownload)
			r.Get("/search", s.handleSearch)
			r.Post("/rename", s.handleRename)
			r.Post("/move", s.handleMove)
			r.Post("/delete", s.handleDelete)
			r.Post("/selection", s.handleToggleSelection)
			r.Post("/selection/move", s.handleMoveSelection)
			r.Post("/selection/delete", s.handleDeleteSelection)
			r.Post("/archive", s.handleBuildArchive)
			r.Post("/extract", s.handleExtractArchive)
		})
	})

	return metrics.Middleware(logging.Middleware(r))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok", Backend: s.backend.Type()})
}

// statusFor maps a failed action to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vfs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, vfs.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, vfs.ErrInvalidName),
		errors.Is(err, vfs.ErrRootFolder),
		errors.Is(err, vfs.ErrIntoItself),
		errors.Is(err, vfs.ErrNotArchive),
		errors.Is(err, vfs.ErrBadPattern),
		errors.Is(err, filemanager.ErrNothingSelected),
		errors.Is(err, filemanager.ErrSelectOneArchive),
		errors.Is(err, filemanager.ErrFolderDownload),
		errors.Is(err, archive.ErrCorrupt),
		errors.Is(err, archive.ErrUnsafePath),
		errors.Is(err, archive.ErrUnknownFormat):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, protocol.ErrorResponse{Error: message, Code: code})
}
