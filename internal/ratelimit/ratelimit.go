// Package ratelimit applies per-user token bucket limits to API requests.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sdisaacson/desktop/internal/auth"
	"github.com/sdisaacson/desktop/internal/metrics"
	"github.com/sdisaacson/desktop/internal/protocol"
)

// Limiter keeps one token bucket per user. A bucket holds rpm tokens and
// refills at rpm per minute.
type Limiter struct {
	rpm int
	now func() time.Time

	mu    sync.Mutex
	users map[string]*userLimit
}

type userLimit struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing rpm requests per minute per user. rpm 0
// means unlimited.
func New(rpm int) *Limiter {
	return &Limiter{
		rpm:   rpm,
		now:   time.Now,
		users: make(map[string]*userLimit),
	}
}

func (l *Limiter) every() rate.Limit { return rate.Limit(float64(l.rpm) / 60.0) }

// Allow takes a token for uid and reports whether one was available.
func (l *Limiter) Allow(uid string) bool {
	if l.rpm <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	u, ok := l.users[uid]
	if !ok {
		u = &userLimit{lim: rate.NewLimiter(l.every(), l.rpm)}
		l.users[uid] = u
	}
	u.lastSeen = now
	return u.lim.AllowN(now, 1)
}

// RetryAfter returns the whole seconds until uid has a token again.
func (l *Limiter) RetryAfter(uid string) int {
	if l.rpm <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[uid]
	if !ok {
		return 0
	}
	tokens := u.lim.TokensAt(l.now())
	if tokens >= 1 {
		return 0
	}
	return int((1.0-tokens)/float64(l.every())) + 1
}

// Cleanup forgets users not seen for maxAge.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	for uid, u := range l.users {
		if u.lastSeen.Before(cutoff) {
			delete(l.users, uid)
		}
	}
}

// Len returns the number of tracked users.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

// Middleware rejects requests over the limit with 429. It must run after
// auth.Middleware; requests without a principal pass through.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.GetPrincipal(r.Context())
			if p == nil || l.Allow(p.UID) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordRateLimitHit()
			w.Header().Set("Retry-After", strconv.Itoa(l.RetryAfter(p.UID)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{
				Error: "rate limit exceeded",
				Code:  http.StatusTooManyRequests,
			})
		})
	}
}
