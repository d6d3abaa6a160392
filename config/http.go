package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://hr.example.com").
	// Used for absolute links in notifications and the OIDC post-login redirect.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for the client cookie.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// CookieSecure is "auto", "true" or "false". Auto marks cookies Secure unless BaseURL is plain http.
	CookieSecure string `env:"APP_COOKIE_SECURE" envDefault:"auto"`

	// ReadHeaderTimeout and ShutdownTimeout bound the server lifecycle.
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"15s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 15 * time.Second
	}
	switch v := strings.ToLower(strings.TrimSpace(h.CookieSecure)); v {
	case "true", "false":
		h.CookieSecure = v
	default:
		h.CookieSecure = "auto"
	}
}

// SecureCookies reports whether cookies carry the Secure attribute.
func (h *HTTPConfig) SecureCookies() bool {
	switch h.CookieSecure {
	case "true":
		return true
	case "false":
		return false
	default:
		return !strings.HasPrefix(h.BaseURL, "http://")
	}
}
