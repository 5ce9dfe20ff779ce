package filemanager

import (
	"context"
	"sync"
	"time"

	"github.com/sdisaacson/desktop/internal/metrics"
)

// Factory builds the session for one widget of one user.
type Factory func(ctx context.Context, uid, widgetID string) (*Session, error)

type sessionKey struct {
	uid      string
	widgetID string
}

type registered struct {
	session  *Session
	lastUsed time.Time
}

// Registry keeps one live session per user and widget. Sessions idle past
// the Cleanup age are dropped and rebuilt from the stored widget
// configuration on next use.
type Registry struct {
	factory Factory
	now     func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*registered
}

// NewRegistry creates a registry that builds missing sessions with factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		now:      time.Now,
		sessions: make(map[sessionKey]*registered),
	}
}

// Get returns the session for uid and widgetID, creating it on first use.
// Creation runs outside the lock; if two callers race, the first stored
// session wins.
func (r *Registry) Get(ctx context.Context, uid, widgetID string) (*Session, error) {
	key := sessionKey{uid, widgetID}

	r.mu.Lock()
	if reg, ok := r.sessions[key]; ok {
		reg.lastUsed = r.now()
		r.mu.Unlock()
		return reg.session, nil
	}
	r.mu.Unlock()

	created, err := r.factory(ctx, uid, widgetID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.sessions[key]; ok {
		reg.lastUsed = r.now()
		return reg.session, nil
	}
	r.sessions[key] = &registered{session: created, lastUsed: r.now()}
	metrics.SetSessions(len(r.sessions))
	return created, nil
}

// Drop forgets a session, for example when its widget is removed.
func (r *Registry) Drop(uid, widgetID string) {
	r.mu.Lock()
	delete(r.sessions, sessionKey{uid, widgetID})
	metrics.SetSessions(len(r.sessions))
	r.mu.Unlock()
}

// Cleanup drops sessions not used within maxAge.
func (r *Registry) Cleanup(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	dropped := 0
	for key, reg := range r.sessions {
		if reg.lastUsed.Before(cutoff) {
			delete(r.sessions, key)
			dropped++
		}
	}
	metrics.SetSessions(len(r.sessions))
	return dropped
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
