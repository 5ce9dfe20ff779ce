package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sdisaacson/desktop/internal/auth"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(rpm int) (*Limiter, *fakeClock) {
	c := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(rpm)
	l.now = c.now
	return l, c
}

func TestLimiterAllow(t *testing.T) {
	l, _ := newTestLimiter(10)

	for i := 0; i < 10; i++ {
		if !l.Allow("alice") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("alice") {
		t.Error("11th request should be denied")
	}
	if !l.Allow("bob") {
		t.Error("other users have their own bucket")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := New(0)
	for i := 0; i < 1000; i++ {
		if !l.Allow("alice") {
			t.Fatalf("request %d should be allowed (unlimited)", i+1)
		}
	}
	if l.Len() != 0 {
		t.Errorf("unlimited limiter tracked %d users", l.Len())
	}
}

func TestLimiterRefill(t *testing.T) {
	l, clock := newTestLimiter(60) // 1 token per second

	for i := 0; i < 60; i++ {
		l.Allow("alice")
	}
	if l.Allow("alice") {
		t.Fatal("should be rate limited after exhausting tokens")
	}
	if got := l.RetryAfter("alice"); got != 2 {
		t.Errorf("RetryAfter = %d, want 2", got)
	}

	clock.t = clock.t.Add(1100 * time.Millisecond)
	if !l.Allow("alice") {
		t.Error("should be allowed after refill")
	}
}

func TestLimiterCleanup(t *testing.T) {
	l, clock := newTestLimiter(5)
	l.Allow("alice")
	clock.t = clock.t.Add(time.Hour)
	l.Allow("bob")

	l.Cleanup(30 * time.Minute)
	if l.Len() != 1 {
		t.Errorf("Len = %d after cleanup, want 1", l.Len())
	}
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(1)
	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(p *auth.Principal) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if p != nil {
			req = req.WithContext(auth.WithPrincipal(req.Context(), p))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	alice := &auth.Principal{UID: "alice"}
	if rec := call(alice); rec.Code != http.StatusOK {
		t.Fatalf("first request: status %d", rec.Code)
	}
	rec := call(alice)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if rec := call(nil); rec.Code != http.StatusOK {
		t.Errorf("anonymous request: status %d", rec.Code)
	}
}
