package httpx

import (
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
)

// Paths served outside the guarded areas.
const (
	PathAuthLogin  = "/auth/login"
	PathOIDCLogin  = "/auth/oidc/login"
	PathCallback   = "/auth/callback"
	PathAuthLogout = "/auth/logout"
	PathAuthStatus = "/auth/status"
	PathHealthz    = "/healthz"
	PathReadyz     = "/readyz"

	// DefaultClientCookie names the cookie carrying the client id when none is configured.
	DefaultClientCookie = "cmk_client"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth     AuthServiceInterface    // Required
	Accounts AccountServiceInterface // Optional: registration and approval routes

	Cookies            CookieOptions
	ClientCookie       string
	ClientCookieMaxAge time.Duration
	// AwaitTimeout bounds how long a guarded request waits for a resolution in flight.
	AwaitTimeout time.Duration

	OIDCEnabled bool
	CallbackURL string
	LogoutURL   string

	// HealthChecks back /readyz; /healthz never runs them.
	HealthChecks map[string]HealthCheck

	Logger *slog.Logger // Optional
}

// NewRouter creates and configures a new HTTP router with browser middleware.
func NewRouter(services RouterServices) http.Handler {
	if services.Auth == nil {
		panic("Auth is required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	guard := RequireArea(services.Auth, services.AwaitTimeout, logger)
	pages := &PageHandlers{Auth: services.Auth, OIDCEnabled: services.OIDCEnabled}
	authHandlers := &AuthHandlers{
		Svc:         services.Auth,
		Cookies:     services.Cookies,
		CallbackURL: services.CallbackURL,
		LogoutURL:   services.LogoutURL,
		Logger:      logger,
	}

	app := http.NewServeMux()
	registerAuthRoutes(app, authHandlers)
	registerPageRoutes(app, pages, guard)
	if services.Accounts != nil {
		registerAccountRoutes(app, &AccountHandlers{Svc: services.Accounts, Auth: services.Auth, Logger: logger}, guard)
	}
	app.HandleFunc("/", pages.Fallback)

	identity := ClientIdentity(ClientIdentityOptions{
		CookieName: services.ClientCookie,
		Cookies:    services.Cookies,
		MaxAge:     services.ClientCookieMaxAge,
	})

	// Health checks stay outside ClientIdentity so probes never receive a client id.
	root := http.NewServeMux()
	live, ready := healthHandler(nil), healthHandler(services.HealthChecks)
	root.Handle("GET "+PathHealthz, live)
	root.Handle("HEAD "+PathHealthz, live)
	root.Handle("GET "+PathReadyz, ready)
	root.Handle("HEAD "+PathReadyz, ready)
	root.Handle("/", identity(app))

	return BrowserDetection()(root)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("POST "+PathAuthLogin, h.Login)
	mux.HandleFunc("GET "+PathOIDCLogin, h.OIDCLogin)
	mux.HandleFunc("GET "+PathCallback, h.Callback)
	mux.HandleFunc("POST "+PathAuthLogout, h.Logout)
	mux.HandleFunc("GET "+PathAuthStatus, h.Status)
}

func registerPageRoutes(mux *http.ServeMux, h *PageHandlers, guard func(http.Handler) http.Handler) {
	public := guard(http.HandlerFunc(h.Public))
	for _, p := range []string{
		domainauth.PathLogin,
		domainauth.PathAdminLogin,
		domainauth.PathSubAdminLogin,
		domainauth.PathRegister,
		domainauth.PathSubAdminRegister,
	} {
		mux.Handle("GET "+p, public)
	}

	area := guard(http.HandlerFunc(h.Area))
	for _, a := range []domainauth.Area{domainauth.AreaAdmin, domainauth.AreaSubAdmin, domainauth.AreaEmployee} {
		mux.Handle("/"+string(a)+"/", area)
	}
}

func registerAccountRoutes(mux *http.ServeMux, h *AccountHandlers, guard func(http.Handler) http.Handler) {
	mux.Handle("POST "+domainauth.PathRegister, guard(http.HandlerFunc(h.RegisterEmployee)))
	mux.Handle("POST "+domainauth.PathSubAdminRegister, guard(http.HandlerFunc(h.RegisterSubAdmin)))

	mux.Handle("GET /admin/api/accounts", guard(http.HandlerFunc(h.List)))
	mux.Handle("POST /admin/api/accounts/{kind}/{id}/status", guard(http.HandlerFunc(h.SetStatus)))

	profile := guard(http.HandlerFunc(h.UpdateProfile))
	mux.Handle("POST /employee/profile", profile)
	mux.Handle("POST /sub-admin/profile", profile)
}
