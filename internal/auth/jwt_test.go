package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdisaacson/desktop/internal/protocol"
)

func TestIssueAndValidate(t *testing.T) {
	a := New("secret")
	tok, exp, err := a.IssueToken("u1", "u1@example.com", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	p, method, err := a.ValidateToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "jwt", method)
	assert.Equal(t, &Principal{UID: "u1", Email: "u1@example.com", Issuer: Issuer}, p)
}

func TestValidateRejects(t *testing.T) {
	a := New("secret")
	ctx := context.Background()

	_, _, err := a.ValidateToken(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	expired, _, err := a.IssueToken("u1", "", -time.Minute)
	require.NoError(t, err)
	_, _, err = a.ValidateToken(ctx, expired)
	assert.Error(t, err)

	other, _, err := New("other").IssueToken("u1", "", time.Hour)
	require.NoError(t, err)
	_, _, err = a.ValidateToken(ctx, other)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = a.ValidateToken(ctx, none)
	assert.Error(t, err)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, _, err = a.ValidateToken(ctx, foreign)
	assert.Error(t, err)

	_, _, err = a.IssueToken("", "", time.Hour)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a := New("secret")
	tok, _, err := a.IssueToken("u1", "", time.Hour)
	require.NoError(t, err)

	var seen *Principal
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPrincipal(r.Context())
	}))

	tests := []struct {
		name string
		req  func() *http.Request
		code int
	}{
		{"bearer", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer "+tok)
			return r
		}, http.StatusOK},
		{"query", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/?token="+tok, nil)
		}, http.StatusOK},
		{"missing", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/", nil)
		}, http.StatusUnauthorized},
		{"garbage", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer not-a-token")
			return r
		}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req())
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "u1", seen.UID)
				return
			}
			assert.Nil(t, seen)
			var body protocol.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, http.StatusUnauthorized, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestNewOIDCProviderDisabled(t *testing.T) {
	p, err := NewOIDCProvider(context.Background(), OIDCConfig{})
	require.NoError(t, err)
	assert.Nil(t, p)

	a := New("secret")
	a.SetOIDCProvider(p)
	assert.False(t, a.HasOIDC())
}
