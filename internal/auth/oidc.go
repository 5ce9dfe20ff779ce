package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/logging"
)

// OIDCConfig holds OIDC provider configuration.
type OIDCConfig struct {
	IssuerURL string // e.g. https://keycloak.example.com/realms/desktop
	ClientID  string
}

// OIDCProvider verifies ID tokens. The subject claim becomes the uid.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	config   OIDCConfig
}

// NewOIDCProvider discovers the provider at cfg.IssuerURL.
// Returns nil if IssuerURL is empty (OIDC disabled).
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	logging.Info("OIDC provider initialized",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))

	return &OIDCProvider{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		config:   cfg,
	}, nil
}

// ValidateToken verifies tokenStr as an ID token of this provider.
func (o *OIDCProvider) ValidateToken(ctx context.Context, tokenStr string) (*Principal, error) {
	idToken, err := o.verifier.Verify(ctx, tokenStr)
	if err != nil {
		return nil, err
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}
	if idToken.Subject == "" {
		return nil, fmt.Errorf("oidc token has no subject")
	}

	return &Principal{
		UID:    idToken.Subject,
		Email:  claims.Email,
		Issuer: idToken.Issuer,
	}, nil
}
