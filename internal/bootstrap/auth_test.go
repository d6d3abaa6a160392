package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culturemaker/cmk-api/config"
	"github.com/culturemaker/cmk-api/internal/adapters/devauth"
	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	mocks "github.com/culturemaker/cmk-api/internal/mocks/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noCredentials struct{}

func (noCredentials) GetByEmail(context.Context, string) (domainauth.Credential, error) {
	return domainauth.Credential{}, domainauth.ErrRecordNotFound
}

func TestBuildAuth_Password(t *testing.T) {
	_, err := BuildAuth(AuthConfig{Auth: config.AuthConfig{Mode: config.AuthModePassword}, Logger: discardLogger()})
	require.ErrorContains(t, err, "credential repository")

	c, err := BuildAuth(AuthConfig{
		Auth:        config.AuthConfig{Mode: config.AuthModePassword, PasswordCost: 4},
		Credentials: noCredentials{},
		Logger:      discardLogger(),
	})
	require.NoError(t, err)
	assert.NotNil(t, c.Verifier)
	assert.Nil(t, c.Flow)
	assert.Equal(t, 4, c.Hasher.Cost)
}

func TestBuildAuth_Mock(t *testing.T) {
	c, err := BuildAuth(AuthConfig{
		Auth: config.AuthConfig{
			Mode:    config.AuthModeMock,
			DevAuth: config.DevAuthConfig{UserID: "dev", Email: "dev@example.com"},
		},
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, c.Flow)

	p, err := c.Verifier.Verify(context.Background(), domainauth.Credentials{Code: devauth.DevCode})
	require.NoError(t, err)
	assert.Equal(t, "dev", p.ID)
}

func TestBuildAuth_Errors(t *testing.T) {
	tests := []struct {
		name string
		auth config.AuthConfig
	}{
		{
			name: "mock without identity",
			auth: config.AuthConfig{Mode: config.AuthModeMock},
		},
		{
			name: "oauth without discovery",
			auth: config.AuthConfig{
				Mode:  config.AuthModeOAuth,
				OAuth: config.OAuthConfig{ClientID: "c", ClientSecret: "s", RedirectURL: "http://l/cb"},
			},
		},
		{
			name: "unknown mode",
			auth: config.AuthConfig{Mode: "saml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildAuth(AuthConfig{Auth: tt.auth, Logger: discardLogger()})
			assert.Error(t, err)
		})
	}
}

func TestNewGatewayFactory_MemoryOnly(t *testing.T) {
	v := mocks.NewStaticVerifier().AddAccount(domainauth.Principal{ID: "u1", Email: "u1@acme.test"}, "pw")
	factory := NewGatewayFactory(GatewayFactoryConfig{Verifier: v, Logger: discardLogger()})

	a, err := factory("client-a")
	require.NoError(t, err)
	b, err := factory("client-b")
	require.NoError(t, err)

	_, err = a.Login(context.Background(), domainauth.Credentials{Email: "u1@acme.test", Password: "pw"})
	require.NoError(t, err)
	assert.NotNil(t, a.Current())
	assert.Nil(t, b.Current())
	require.NoError(t, b.Restore(context.Background()))
	assert.Nil(t, b.Current())
}
