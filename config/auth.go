package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModePassword verifies email and password against the credentials table.
	AuthModePassword AuthMode = "password"
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses a fixed development identity (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "password", "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: password, oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"culturemaker"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"culturemaker"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`
}

// DevAuthConfig controls the mock authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID string `env:"USER_ID" envDefault:"dev-admin"`
	Email  string `env:"EMAIL"   envDefault:"admin@culturemaker.local"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which credential verifier signs principals in.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"password"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// PasswordCost is the bcrypt cost used when hashing new passwords.
	PasswordCost int `env:"AUTH_PASSWORD_COST" envDefault:"12"`

	// PrincipalTTL bounds how long a signed-in principal survives without activity.
	PrincipalTTL time.Duration `env:"AUTH_PRINCIPAL_TTL" envDefault:"168h"`
}

// Sanitize applies guardrails to authentication values.
func (a *AuthConfig) Sanitize() {
	if a.Mode == "" {
		a.Mode = AuthModePassword
	}
	// bcrypt accepts 4..31; anything below 10 is only sensible in tests.
	if a.PasswordCost < 4 {
		a.PasswordCost = 4
	}
	if a.PasswordCost > 31 {
		a.PasswordCost = 31
	}
	if a.PrincipalTTL <= 0 {
		a.PrincipalTTL = 168 * time.Hour
	}
	a.DevAuth.Email = strings.ToLower(strings.TrimSpace(a.DevAuth.Email))
}

// ClientsConfig tunes the per-browser session runtime.
type ClientsConfig struct {
	// IdleTTL evicts client sessions that saw no request for this long.
	IdleTTL time.Duration `env:"IDLE_TTL" envDefault:"30m"`

	// JanitorInterval is how often idle clients are swept.
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m"`

	// SlotPrefix namespaces durable session slots in Redis.
	SlotPrefix string `env:"SLOT_PREFIX" envDefault:"cmk:session:"`

	// SlotTTL expires durable session slots; zero keeps them until logout.
	SlotTTL time.Duration `env:"SLOT_TTL" envDefault:"168h"`

	// PrincipalPrefix namespaces persisted principals in Redis.
	PrincipalPrefix string `env:"PRINCIPAL_PREFIX" envDefault:"cmk:principal:"`

	// CookieName is the cookie carrying the opaque client id.
	CookieName string `env:"COOKIE_NAME" envDefault:"cmk_client"`

	// ResolveTimeout bounds a single resolution attempt.
	ResolveTimeout time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"5s"`

	// RetryInitial and RetryMaxElapsed shape the backoff for retryable directory failures.
	RetryInitial    time.Duration `env:"RETRY_INITIAL"     envDefault:"200ms"`
	RetryMaxElapsed time.Duration `env:"RETRY_MAX_ELAPSED" envDefault:"10s"`
	RetryDisabled   bool          `env:"RETRY_DISABLED"    envDefault:"false"`

	// AwaitTimeout bounds how long a request waits for a pending resolution.
	AwaitTimeout time.Duration `env:"AWAIT_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to client runtime values.
func (c *ClientsConfig) Sanitize() {
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = time.Minute
	}
	if c.JanitorInterval > c.IdleTTL {
		c.JanitorInterval = c.IdleTTL
	}
	if c.SlotTTL < 0 {
		c.SlotTTL = 0
	}
	if strings.TrimSpace(c.CookieName) == "" {
		c.CookieName = "cmk_client"
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 5 * time.Second
	}
	if c.AwaitTimeout <= 0 {
		c.AwaitTimeout = 10 * time.Second
	}
}
