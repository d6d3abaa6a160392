package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/service"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, clientID string, input service.CompleteLoginInput) (*service.LoginResult, error)
	PasswordLogin(ctx context.Context, clientID string, input service.PasswordLoginInput) (*service.LoginResult, error)
	Logout(ctx context.Context, clientID string) error
	Status(ctx context.Context, clientID string) (*service.StatusResult, error)
	Refresh(ctx context.Context, clientID string) (*domainauth.Session, error)
	Navigate(ctx context.Context, clientID, path string) (domainauth.Decision, error)
	Session(ctx context.Context, clientID string) (*domainauth.Session, error)
}

var _ AuthServiceInterface = (*service.AuthService)(nil)

const (
	cookieOAuthState         = "oauth_state"
	cookieOAuthNonce         = "oauth_nonce"
	cookiePostLoginRedirect  = "post_login_redirect"
	oauthCookieLifetime      = 10 * time.Minute
	errCodeInvalidCredential = "invalid_credentials"
)

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc     AuthServiceInterface
	Cookies CookieOptions
	// CallbackURL is the absolute OIDC redirect URL. Derived from the request when empty.
	CallbackURL string
	// LogoutURL is the identity provider's end-session URL, if any.
	LogoutURL string
	Logger    *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login signs in with email and password.
// POST /auth/login (form or JSON: email, password, area).
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	fields, ok := readFields(w, r)
	if !ok {
		return
	}
	area, err := domainauth.ParseArea(fields["area"])
	if err != nil || area == domainauth.AreaPublic {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_area",
			Err:     errors.New("area must be admin, sub-admin or employee"),
			Field:   "area",
		})
		return
	}

	result, err := h.Svc.PasswordLogin(r.Context(), ClientIDFromContext(r.Context()), service.PasswordLoginInput{
		Email:    fields["email"],
		Password: fields["password"],
		Area:     area,
	})
	if err != nil {
		h.loginFailed(w, r, area, err)
		return
	}
	h.loginSucceeded(w, r, result, result.Redirect)
}

// OIDCLogin starts the redirect login flow.
// GET /auth/oidc/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), h.callbackURL(r))
	if err != nil {
		if errors.Is(err, service.ErrRedirectLoginUnsupported) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "oidc_disabled", Err: err})
			return
		}
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_failed", Err: err})
		return
	}

	h.Cookies.set(w, r, cookieOAuthState, result.State, oauthCookieLifetime)
	h.Cookies.set(w, r, cookieOAuthNonce, result.Nonce, oauthCookieLifetime)
	h.Cookies.set(w, r, cookiePostLoginRedirect, redirectURI, oauthCookieLifetime)

	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback completes the redirect login flow.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_code",
			Err:     errors.New("authorization code is required"),
		})
		return
	}
	if state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_state",
			Err:     errors.New("state parameter is required"),
		})
		return
	}

	stateCookie, err := r.Cookie(cookieOAuthState)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie(cookieOAuthNonce)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}
	h.Cookies.clear(w, r, cookieOAuthState)
	h.Cookies.clear(w, r, cookieOAuthNonce)

	result, err := h.Svc.CompleteLogin(r.Context(), ClientIDFromContext(r.Context()), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		h.loginFailed(w, r, domainauth.AreaEmployee, err)
		return
	}
	h.loginSucceeded(w, r, result, h.postLoginRedirect(w, r, result))
}

// Logout signs the client out.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Logout(r.Context(), ClientIDFromContext(r.Context())); err != nil {
		h.logger().WarnContext(r.Context(), "logout failed", "error", err)
	}

	target := domainauth.PathLogin
	if h.LogoutURL != "" {
		target = h.LogoutURL
	}
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": target,
		})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

type statusResponse struct {
	Authenticated bool                `json:"authenticated"`
	Provisional   bool                `json:"provisional"`
	Loading       bool                `json:"loading"`
	User          *domainauth.Session `json:"user,omitempty"`
	Home          string              `json:"home"`
}

// Status returns the cached session without waiting for a pending resolution. A
// provisional session is reported for display only.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.Svc.Status(r.Context(), ClientIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}

	resp := statusResponse{
		Authenticated: st.State == service.StateVerified && st.Session != nil,
		Provisional:   st.State == service.StateProvisional,
		Loading:       st.Loading,
		User:          st.Session,
	}
	if resp.Authenticated {
		resp.Home = domainauth.Home(st.Session)
	} else {
		resp.Home = domainauth.Home(nil)
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *AuthHandlers) loginSucceeded(w http.ResponseWriter, r *http.Request, result *service.LoginResult, target string) {
	if IsBrowserRequest(r) {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user":        result.Session,
		"redirect_to": target,
	})
}

// loginFailed sends the browser back to the login page of the area it came from with
// an error indicator; API clients get the matching JSON error.
func (h *AuthHandlers) loginFailed(w http.ResponseWriter, r *http.Request, area domainauth.Area, err error) {
	code, errCode := statusForError(err)
	switch {
	case errCode == errCodeInvalidCredential, errCode == "account_not_found", errCode == "wrong_login_page":
		h.logger().InfoContext(r.Context(), "login refused", "area", area, "reason", errCode)
	case code == http.StatusBadRequest:
	case errors.Is(err, context.Canceled):
		return
	default:
		code, errCode = http.StatusServiceUnavailable, "login_unavailable"
		h.logger().ErrorContext(r.Context(), "login failed", "area", area, "error", err)
		err = errors.New("login is temporarily unavailable")
	}

	if IsBrowserRequest(r) {
		http.Redirect(w, r, withQuery(domainauth.LoginPath(area), "error", errCode), http.StatusSeeOther)
		return
	}
	WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: err})
}

// postLoginRedirect returns where to send the browser after a redirect login. The path
// remembered when the flow began wins only if the new session may open it.
func (h *AuthHandlers) postLoginRedirect(w http.ResponseWriter, r *http.Request, result *service.LoginResult) string {
	c, err := r.Cookie(cookiePostLoginRedirect)
	if err != nil {
		return result.Redirect
	}
	h.Cookies.clear(w, r, cookiePostLoginRedirect)

	candidate := safeRedirectPath(c.Value)
	if candidate == "/" || !domainauth.Navigate(&result.Session, candidate).Allow {
		return result.Redirect
	}
	return candidate
}

func (h *AuthHandlers) callbackURL(r *http.Request) string {
	if h.CallbackURL != "" {
		return h.CallbackURL
	}
	scheme := "http"
	if h.Cookies.secure(r) {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimSuffix(r.Host, "/") + PathCallback
}
