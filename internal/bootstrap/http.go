package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/culturemaker/cmk-api/config"
	httpx "github.com/culturemaker/cmk-api/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// NewHTTPServer builds the HTTP server; the caller starts it.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	logoutURL := cfg.Services.LogoutURL
	if logoutURL == "" {
		logoutURL = appCfg.Auth.OAuth.LogoutURL
	}

	services := httpx.RouterServices{
		Auth: cfg.Services.Auth,
		Cookies: httpx.CookieOptions{
			Domain: appCfg.HTTP.CookieDomain,
			Secure: appCfg.HTTP.SecureCookies(),
		},
		ClientCookie:       appCfg.Clients.CookieName,
		ClientCookieMaxAge: appCfg.Clients.SlotTTL,
		AwaitTimeout:       appCfg.Clients.AwaitTimeout,
		OIDCEnabled:        cfg.Services.OIDCEnabled,
		LogoutURL:          logoutURL,
		HealthChecks:       cfg.Services.HealthChecks,
		Logger:             logger,
	}
	if cfg.Services.OIDCEnabled {
		services.CallbackURL = appCfg.Auth.OAuth.RedirectURL
	}
	// A nil *AccountService must not become a non-nil interface.
	if cfg.Services.Accounts != nil {
		services.Accounts = cfg.Services.Accounts
	}

	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: services,
	})

	return newServer(handler, appCfg.HTTP)
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
}

func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	// Order: Recover -> Logging -> Router
	h := httpx.NewRouter(cfg.Services)
	h = httpx.Logging(cfg.Logger)(h)
	h = httpx.Recover(cfg.Logger)(h)
	return h
}

func newServer(handler http.Handler, cfg config.HTTPConfig) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	readHeader := cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 10 * time.Second
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeader,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Server.Shutdown(ctx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
