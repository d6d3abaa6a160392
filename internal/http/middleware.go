package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/service"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: "internal_error",
						Err:     errors.New(http.StatusText(http.StatusInternalServerError)),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that detects browser requests vs API requests.
// Downstream handlers use it to choose between redirects and JSON responses.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if isBrowser, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return isBrowser
	}
	// Fallback to direct detection if middleware wasn't used
	return isBrowserRequest(r)
}

// isBrowserRequest determines if a request is from a browser based on:
// 1. Path - area APIs (/<area>/api/...) are never browser requests
// 2. X-Requested-With - script-initiated requests want JSON
// 3. Accept header - browsers accept text/html.
func isBrowserRequest(r *http.Request) bool {
	if domainauth.IsAPI(r.URL.Path) {
		return false
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return false
	}

	accept := r.Header.Get("Accept")
	if accept == "" {
		// No Accept header, assume browser for non-API routes
		return true
	}
	return strings.Contains(accept, "text/html")
}

// ClientIdentityOptions configures the cookie that identifies a browser client.
type ClientIdentityOptions struct {
	CookieName string
	Cookies    CookieOptions
	MaxAge     time.Duration
}

// ClientIdentity returns a middleware that reads the client id cookie, issuing a fresh
// id when it is missing or malformed, and stores the id in the request context.
func ClientIdentity(opts ClientIdentityOptions) func(http.Handler) http.Handler {
	name := opts.CookieName
	if name == "" {
		name = DefaultClientCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(name); err == nil && service.ValidClientID(c.Value) {
				id = c.Value
			} else {
				id = service.NewClientID()
				opts.Cookies.set(w, r, name, id, opts.MaxAge)
			}
			next.ServeHTTP(w, r.WithContext(SetClientIDInContext(r.Context(), id)))
		})
	}
}

// RequireArea returns a middleware that lets a request through only when the route
// guard allows the client's session to open the requested path. It waits up to
// awaitTimeout for a resolution in flight. Denied browsers are redirected to the
// guard's target; API clients get 401 without a session and 403 with one.
func RequireArea(auth AuthServiceInterface, awaitTimeout time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientID := ClientIDFromContext(ctx)

			navCtx, cancel := ctx, context.CancelFunc(func() {})
			if awaitTimeout > 0 {
				navCtx, cancel = context.WithTimeout(ctx, awaitTimeout)
			}
			d, err := auth.Navigate(navCtx, clientID, r.URL.Path)
			cancel()
			if err != nil {
				logger.WarnContext(ctx, "route guard could not decide", "path", r.URL.Path, "error", err)
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "session_loading",
					Err:     errors.New("session is still being resolved"),
				})
				return
			}

			sess, err := auth.Session(ctx, clientID)
			if err != nil {
				writeServiceError(w, r, logger, err)
				return
			}
			if !d.Allow {
				deny(w, r, sess, d.Target)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(ctx, sess)))
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, sess *domainauth.Session, target string) {
	if IsBrowserRequest(r) {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	code, errCode, msg := http.StatusForbidden, "forbidden", "session may not open this page"
	if sess == nil {
		code, errCode, msg = http.StatusUnauthorized, "authentication_required", "authentication required"
	}
	WriteJSON(w, code, map[string]string{"error": errCode, "message": msg, "redirect_to": target})
}
