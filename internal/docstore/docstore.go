// Package docstore persists per-user widget configuration documents.
//
// Each user owns one document. Widget settings live under
// widgets.{widgetID} and are merged, never replaced, so concurrent writers
// touching different keys do not clobber each other.
package docstore

import (
	"context"
	"fmt"
)

// Store reads and merges widget configuration.
type Store interface {
	// Widget returns the stored configuration of one widget, or an empty
	// map when nothing was saved yet.
	Widget(ctx context.Context, uid, widgetID string) (map[string]any, error)

	// MergeWidget shallow-merges partial into the widget configuration,
	// creating the user document if needed.
	MergeWidget(ctx context.Context, uid, widgetID string, partial map[string]any) error

	Close() error
}

// Persister returns a callback that merges partial configs for one widget.
func Persister(store Store, uid, widgetID string) func(context.Context, map[string]any) error {
	return func(ctx context.Context, partial map[string]any) error {
		if err := store.MergeWidget(ctx, uid, widgetID, partial); err != nil {
			return fmt.Errorf("persist widget %s: %w", widgetID, err)
		}
		return nil
	}
}

// StringField reads a string setting, returning fallback when it is
// missing or not a string.
func StringField(ctx context.Context, store Store, uid, widgetID, key, fallback string) (string, error) {
	cfg, err := store.Widget(ctx, uid, widgetID)
	if err != nil {
		return fallback, err
	}
	if v, ok := cfg[key].(string); ok && v != "" {
		return v, nil
	}
	return fallback, nil
}
