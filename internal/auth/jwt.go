// Package auth authenticates API requests and resolves the user they act
// for. Tokens are HS256 JWTs issued by this server or, when configured, ID
// tokens from an OIDC provider.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/metrics"
	"github.com/sdisaacson/desktop/internal/protocol"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Issuer is the iss claim of locally issued tokens.
const Issuer = "desktop"

// ErrMissingToken is returned when a request carries no token.
var ErrMissingToken = errors.New("missing authentication token")

// Principal is the authenticated user.
type Principal struct {
	UID    string `json:"uid"`
	Email  string `json:"email,omitempty"`
	Issuer string `json:"issuer"`
}

// Claims holds JWT token claims. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates tokens.
type Auth struct {
	secret []byte
	oidc   *OIDCProvider
}

// New creates an Auth that signs and verifies with jwtSecret.
func New(jwtSecret string) *Auth {
	return &Auth{secret: []byte(jwtSecret)}
}

// SetOIDCProvider enables OIDC ID tokens as a fallback. p may be nil.
func (a *Auth) SetOIDCProvider(p *OIDCProvider) {
	a.oidc = p
}

// HasOIDC reports whether an OIDC provider is configured.
func (a *Auth) HasOIDC() bool {
	return a.oidc != nil
}

// IssueToken signs a token for uid that expires after ttl.
func (a *Auth) IssueToken(uid, email string, ttl time.Duration) (string, time.Time, error) {
	if uid == "" {
		return "", time.Time{}, errors.New("empty uid")
	}
	now := time.Now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, claims.ExpiresAt.Time, nil
}

// ValidateToken resolves a token to a principal, trying the local secret
// first and the OIDC provider second.
func (a *Auth) ValidateToken(ctx context.Context, tokenStr string) (*Principal, string, error) {
	if tokenStr == "" {
		return nil, "", ErrMissingToken
	}

	p, err := a.validateLocal(tokenStr)
	if err == nil {
		return p, "jwt", nil
	}
	if a.oidc == nil {
		return nil, "jwt", err
	}

	p, oidcErr := a.oidc.ValidateToken(ctx, tokenStr)
	if oidcErr != nil {
		return nil, "oidc", fmt.Errorf("invalid token: %w", oidcErr)
	}
	return p, "oidc", nil
}

func (a *Auth) validateLocal(tokenStr string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &Principal{UID: claims.Subject, Email: claims.Email, Issuer: claims.Issuer}, nil
}

// Middleware rejects requests without a valid token and stores the
// principal in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, method, err := a.ValidateToken(r.Context(), extractToken(r))
		if err != nil {
			if method != "" {
				metrics.RecordAuthAttempt(method, false)
			}
			logging.WithContext(r.Context()).Debug("authentication failed", zap.Error(err))
			sendAuthError(w, http.StatusUnauthorized, err.Error())
			return
		}
		metrics.RecordAuthAttempt(method, true)
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// GetPrincipal extracts the principal from the request context.
func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// WithPrincipal injects a principal into a context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func extractToken(r *http.Request) string {
	// Bearer token from Authorization header
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// EventSource cannot set headers
	return r.URL.Query().Get("token")
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: message, Code: code})
}
