package devauth

// Package devauth provides a config-driven sign-in for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// DevCode is the authorization code the dev flow hands back to the callback.
const DevCode = "dev"

// Config controls the dev auth provider behavior. Both fields are required.
type Config struct {
	UserID string
	Email  string
}

// Provider implements ports.AuthFlow and ports.CredentialVerifier for local development.
// Begin short-circuits the redirect by pointing straight at our own callback, and Verify
// signs in the configured principal for the dev code or for its email with any password.
type Provider struct {
	principal domainauth.Principal
}

var (
	_ ports.AuthFlow           = (*Provider)(nil)
	_ ports.CredentialVerifier = (*Provider)(nil)
)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	return &Provider{
		principal: domainauth.Principal{ID: cfg.UserID, Email: domainauth.NormalizeEmail(cfg.Email)},
	}, nil
}

// Begin returns a local callback URL and random state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	// The callback handler expects GET /auth/callback?code=...&state=...
	return "/auth/callback?code=" + DevCode + "&state=" + state, state, nonce, nil
}

// Verify returns the dev principal. State and nonce are validated by the handler.
func (p *Provider) Verify(_ context.Context, creds domainauth.Credentials) (domainauth.Principal, error) {
	switch {
	case creds.Code == DevCode:
		return p.principal, nil
	case creds.Code == "" && domainauth.NormalizeEmail(creds.Email) == p.principal.Email:
		return p.principal, nil
	default:
		return domainauth.Principal{}, domainauth.ErrInvalidCredentials
	}
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
