// Package postgres stores widget documents in PostgreSQL as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/metrics"
	"github.com/sdisaacson/desktop/internal/retry"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Store is a PostgreSQL-backed docstore.Store.
type Store struct {
	db *sql.DB
}

// New opens the database and waits for it to answer a ping.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg := retry.DefaultConfig()
	cfg.OnRetry = func(attempt int, wait time.Duration, err error) {
		logging.Warn("database not ready", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	}

	db, err := retry.DoWithResult(ctx, cfg, func() (*sql.DB, error) {
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, retry.Retryable(fmt.Errorf("ping database: %w", err))
		}
		return db, nil
	})
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpdateConnectionMetrics updates the connection pool gauge.
func (s *Store) UpdateConnectionMetrics() {
	metrics.SetDocstoreConnectionsOpen(s.db.Stats().OpenConnections)
}

// Migrate applies the embedded migrations in file name order. Every
// migration is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		logging.Info("running migration", zap.String("file", f))
		content, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}
	return nil
}

// Widget returns widgets.{widgetID} from the user's document.
func (s *Store) Widget(ctx context.Context, uid, widgetID string) (map[string]any, error) {
	start := time.Now()
	defer func() { metrics.RecordDocstoreQuery("widget", time.Since(start)) }()

	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc #> ARRAY['widgets', $2::text] FROM user_documents WHERE uid = $1`,
		uid, widgetID,
	).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query widget %s/%s: %w", uid, widgetID, err)
	}

	cfg := make(map[string]any)
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode widget %s/%s: %w", uid, widgetID, err)
	}
	return cfg, nil
}

// mergeWidgetSQL upserts the user document and merges the partial object
// into widgets.{id}. The widgets object is created first when missing
// because jsonb_set only creates the last path element.
const mergeWidgetSQL = `
INSERT INTO user_documents (uid, doc, updated_at)
VALUES ($1, jsonb_build_object('widgets', jsonb_build_object($2::text, $3::jsonb)), now())
ON CONFLICT (uid) DO UPDATE SET
    doc = jsonb_set(
        user_documents.doc || jsonb_build_object('widgets', COALESCE(user_documents.doc -> 'widgets', '{}'::jsonb)),
        ARRAY['widgets', $2::text],
        COALESCE(user_documents.doc #> ARRAY['widgets', $2::text], '{}'::jsonb) || $3::jsonb
    ),
    updated_at = now()`

// MergeWidget shallow-merges partial into widgets.{widgetID}.
func (s *Store) MergeWidget(ctx context.Context, uid, widgetID string, partial map[string]any) error {
	start := time.Now()
	defer func() { metrics.RecordDocstoreQuery("merge_widget", time.Since(start)) }()

	body, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encode widget config: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, mergeWidgetSQL, uid, widgetID, string(body)); err != nil {
		return fmt.Errorf("merge widget %s/%s: %w", uid, widgetID, err)
	}
	logging.Debug("widget config merged", zap.String("uid", uid), zap.String("widget", widgetID))
	return nil
}
