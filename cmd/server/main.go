// Desktop file-manager server
//
// Features:
// - Per-user virtual filesystem over S3, local disk, SMB shares or memory
// - Widget sessions with persisted current folder
// - Archive build and extraction (zip, tar.gz, tar.zst)
// - Per-user API rate limiting
// - SSE change notifications and a WebDAV mount
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/api"
	"github.com/sdisaacson/desktop/internal/archive"
	"github.com/sdisaacson/desktop/internal/auth"
	"github.com/sdisaacson/desktop/internal/config"
	"github.com/sdisaacson/desktop/internal/docstore"
	docmemory "github.com/sdisaacson/desktop/internal/docstore/memory"
	"github.com/sdisaacson/desktop/internal/docstore/postgres"
	"github.com/sdisaacson/desktop/internal/events"
	"github.com/sdisaacson/desktop/internal/filemanager"
	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/metrics"
	"github.com/sdisaacson/desktop/internal/ratelimit"
	"github.com/sdisaacson/desktop/internal/storage/factory"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("desktop server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("storage", cfg.StorageBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := factory.Open(ctx, cfg)
	if err != nil {
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	defer backend.Close()

	store, pg := openDocStore(ctx, cfg)
	defer store.Close()

	authHandler := auth.New(cfg.JWTSecret)
	oidcProvider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
		IssuerURL: cfg.OIDCIssuerURL,
		ClientID:  cfg.OIDCClientID,
	})
	if err != nil {
		logging.Fatal("OIDC provider init failed", zap.Error(err))
	}
	authHandler.SetOIDCProvider(oidcProvider)

	broadcaster := events.NewBroadcaster()

	format, err := archive.ByName(cfg.ArchiveFormat)
	if err != nil {
		logging.Fatal("invalid archive format", zap.Error(err))
	}
	apiCfg := api.Config{
		MaxUploadSize: cfg.MaxUploadSize,
		Concurrency:   cfg.Concurrency,
		SignedURLTTL:  cfg.SignedURLTTL,
		ArchiveFormat: format,
		RateLimiter:   ratelimit.New(cfg.RateLimitRPM),
	}
	sessions := filemanager.NewRegistry(api.NewSessionFactory(backend, store, broadcaster, apiCfg))
	srv := api.NewServer(backend, authHandler, sessions, broadcaster, apiCfg)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Shutdown(shutdownCtx)
	}()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				apiCfg.RateLimiter.Cleanup(10 * time.Minute)
				if n := sessions.Cleanup(cfg.SessionIdleTimeout); n > 0 {
					logging.Debug("dropped idle widget sessions", zap.Int("count", n))
				}
			}
		}
	}()

	if pg != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					pg.UpdateConnectionMetrics()
				}
			}
		}()
	}

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}

// openDocStore connects to PostgreSQL when DATABASE_URL is set and falls
// back to memory otherwise.
func openDocStore(ctx context.Context, cfg *config.Config) (docstore.Store, *postgres.Store) {
	if cfg.DatabaseURL == "" {
		logging.Warn("DATABASE_URL not set, widget configuration will not survive restarts")
		return docmemory.New(), nil
	}

	logging.Info("connecting to PostgreSQL...")
	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	logging.Info("running migrations...")
	if err := pg.Migrate(ctx); err != nil {
		logging.Fatal("migration failed", zap.Error(err))
	}
	return pg, pg
}
