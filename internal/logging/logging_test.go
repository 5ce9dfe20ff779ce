package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Replace(zap.New(core))
	t.Cleanup(func() { Replace(zap.NewNop()) })

	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	assert.EqualValues(t, http.StatusTeapot, completed[0].ContextMap()["status"])
	assert.Equal(t, seen, completed[0].ContextMap()["request_id"])
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	Replace(zap.NewNop())

	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "abc-123", seen)
}

func TestGetRequestIDEmpty(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestInitRejectsBadOutput(t *testing.T) {
	err := Init(Config{Level: "debug", Format: "json", OutputPath: "/nonexistent-dir/x/y.log"})
	assert.Error(t, err)
}
