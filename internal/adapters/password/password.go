package password

// Package password verifies email/password logins against stored bcrypt hashes.

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	apperrors "github.com/culturemaker/cmk-api/internal/errors"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// Hasher implements ports.PasswordHasher with bcrypt.
type Hasher struct {
	Cost int // bcrypt.DefaultCost when zero
}

var _ ports.PasswordHasher = Hasher{}

// Hash returns the bcrypt hash of password.
func (h Hasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

// Compare returns nil when password matches hash.
func (Hasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Verifier implements ports.CredentialVerifier over a CredentialRepository.
type Verifier struct {
	creds  ports.CredentialRepository
	hasher ports.PasswordHasher
	// dummy is compared when the email is unknown so both paths cost one bcrypt run.
	dummy string
}

var _ ports.CredentialVerifier = (*Verifier)(nil)

// NewVerifier constructs a password Verifier. A nil hasher uses bcrypt with the default cost.
func NewVerifier(creds ports.CredentialRepository, hasher ports.PasswordHasher) (*Verifier, error) {
	if creds == nil {
		return nil, errors.New("password: credential repository is required")
	}
	if hasher == nil {
		hasher = Hasher{}
	}
	dummy, err := hasher.Hash("cmk-unknown-account")
	if err != nil {
		return nil, err
	}
	return &Verifier{creds: creds, hasher: hasher, dummy: dummy}, nil
}

// Verify checks email and password. Unknown emails and wrong passwords both yield
// domainauth.ErrInvalidCredentials.
func (v *Verifier) Verify(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error) {
	email := domainauth.NormalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return domainauth.Principal{}, domainauth.ErrInvalidCredentials
	}

	cred, err := v.creds.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			_ = v.hasher.Compare(v.dummy, creds.Password)
			return domainauth.Principal{}, domainauth.ErrInvalidCredentials
		}
		return domainauth.Principal{}, fmt.Errorf("load credential: %w", err)
	}
	if err := v.hasher.Compare(cred.PasswordHash, creds.Password); err != nil {
		return domainauth.Principal{}, domainauth.ErrInvalidCredentials
	}
	return domainauth.Principal{ID: cred.PrincipalID, Email: domainauth.NormalizeEmail(cred.Email)}, nil
}
