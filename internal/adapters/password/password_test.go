package password

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	apperrors "github.com/culturemaker/cmk-api/internal/errors"
)

type credentialMap struct {
	creds map[string]domainauth.Credential
	err   error
}

func (m credentialMap) GetByEmail(_ context.Context, email string) (domainauth.Credential, error) {
	if m.err != nil {
		return domainauth.Credential{}, m.err
	}
	c, ok := m.creds[email]
	if !ok {
		return domainauth.Credential{}, apperrors.NotFound("Account not found")
	}
	return c, nil
}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	hasher := Hasher{Cost: bcrypt.MinCost}
	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)

	v, err := NewVerifier(credentialMap{creds: map[string]domainauth.Credential{
		"lead@acme.test": {PrincipalID: "s1", Email: "lead@acme.test", PasswordHash: hash},
	}}, hasher)
	require.NoError(t, err)
	return v
}

func TestHasher_HashAndCompare(t *testing.T) {
	h := Hasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.NoError(t, h.Compare(hash, "s3cret-pass"))
	assert.Error(t, h.Compare(hash, "wrong"))
}

func TestVerifier_Success(t *testing.T) {
	v := newTestVerifier(t)

	p, err := v.Verify(context.Background(), domainauth.Credentials{Email: " Lead@ACME.test", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, domainauth.Principal{ID: "s1", Email: "lead@acme.test"}, p)
}

func TestVerifier_Rejections(t *testing.T) {
	v := newTestVerifier(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		creds domainauth.Credentials
	}{
		{"wrong password", domainauth.Credentials{Email: "lead@acme.test", Password: "battery staple"}},
		{"unknown email", domainauth.Credentials{Email: "ghost@acme.test", Password: "correct horse"}},
		{"empty email", domainauth.Credentials{Password: "correct horse"}},
		{"empty password", domainauth.Credentials{Email: "lead@acme.test"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.creds)
			assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
		})
	}
}

func TestVerifier_RepositoryFailure(t *testing.T) {
	v, err := NewVerifier(credentialMap{err: errors.New("connection reset")}, Hasher{Cost: bcrypt.MinCost})
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), domainauth.Credentials{Email: "lead@acme.test", Password: "x"})
	require.ErrorContains(t, err, "load credential")
	assert.NotErrorIs(t, err, domainauth.ErrInvalidCredentials)
}

func TestNewVerifier_RequiresRepository(t *testing.T) {
	_, err := NewVerifier(nil, nil)
	assert.Error(t, err)
}
