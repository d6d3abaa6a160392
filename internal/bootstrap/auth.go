package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/culturemaker/cmk-api/config"
	"github.com/culturemaker/cmk-api/internal/adapters/devauth"
	"github.com/culturemaker/cmk-api/internal/adapters/gateway"
	"github.com/culturemaker/cmk-api/internal/adapters/oidc"
	"github.com/culturemaker/cmk-api/internal/adapters/password"
	redisadapter "github.com/culturemaker/cmk-api/internal/adapters/redis"
	"github.com/culturemaker/cmk-api/internal/ports"
	"github.com/culturemaker/cmk-api/internal/service"
)

// AuthConfig contains configuration for the credential verifier and gateways.
type AuthConfig struct {
	Auth        config.AuthConfig
	Credentials ports.CredentialRepository // Required in password mode
	Logger      *slog.Logger
}

// AuthComponents is what the configured auth mode contributes to the runtime.
type AuthComponents struct {
	Verifier ports.CredentialVerifier
	Flow     ports.AuthFlow // nil in password mode
	Hasher   password.Hasher
	// LogoutURL is the provider end-session URL, if any.
	LogoutURL string
}

// BuildAuth creates the credential verifier for the configured auth mode.
func BuildAuth(cfg AuthConfig) (AuthComponents, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hasher := password.Hasher{Cost: cfg.Auth.PasswordCost}

	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(devauth.Config{
			UserID: cfg.Auth.DevAuth.UserID,
			Email:  cfg.Auth.DevAuth.Email,
		})
		if err != nil {
			return AuthComponents{}, fmt.Errorf("dev auth provider: %w", err)
		}
		logger.Warn("mock auth enabled; every login signs in the dev principal", "user_id", cfg.Auth.DevAuth.UserID)
		return AuthComponents{Verifier: prov, Flow: prov, Hasher: hasher}, nil

	case config.AuthModeOAuth:
		oauth := cfg.Auth.OAuth
		prov, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
			LogoutURL:    oauth.LogoutURL,
		})
		if err != nil {
			return AuthComponents{}, fmt.Errorf("oidc provider: %w", err)
		}
		return AuthComponents{Verifier: prov, Flow: prov, Hasher: hasher, LogoutURL: prov.LogoutURL()}, nil

	case config.AuthModePassword, "":
		if cfg.Credentials == nil {
			return AuthComponents{}, errors.New("password auth requires a credential repository")
		}
		v, err := password.NewVerifier(cfg.Credentials, hasher)
		if err != nil {
			return AuthComponents{}, fmt.Errorf("password verifier: %w", err)
		}
		return AuthComponents{Verifier: v, Hasher: hasher}, nil

	default:
		return AuthComponents{}, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

// GatewayFactoryConfig contains dependencies shared by every client's gateway.
type GatewayFactoryConfig struct {
	Verifier    ports.CredentialVerifier
	RedisClient redis.UniversalClient // Optional: principals are memory-only without it
	Prefix      string
	TTL         time.Duration
	Logger      *slog.Logger
}

// NewGatewayFactory builds one gateway per client, all sharing the verifier and the
// principal store.
func NewGatewayFactory(cfg GatewayFactoryConfig) service.GatewayFactory {
	var store ports.PrincipalStore
	if cfg.RedisClient != nil {
		store = redisadapter.NewPrincipalStore(cfg.RedisClient, cfg.Prefix, cfg.TTL)
	}
	return func(clientID string) (ports.AuthGateway, error) {
		return gateway.New(gateway.Options{
			Verifier: cfg.Verifier,
			Store:    store,
			ClientID: clientID,
			Logger:   cfg.Logger,
		})
	}
}
