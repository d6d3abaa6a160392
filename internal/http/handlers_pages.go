package httpx

import (
	"errors"
	"net/http"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
)

// PageHandlers describes pages to the client. Rendering is left to the frontend; the
// handlers only report which page of which area the session is on.
type PageHandlers struct {
	Auth AuthServiceInterface
	// OIDCEnabled advertises the redirect login on the login surfaces.
	OIDCEnabled bool
}

type loginMethods struct {
	Password bool   `json:"password"`
	OIDC     bool   `json:"oidc"`
	OIDCURL  string `json:"oidc_url,omitempty"`
}

type pageView struct {
	Area    domainauth.Area     `json:"area"`
	Page    string              `json:"page"`
	User    *domainauth.Session `json:"user,omitempty"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Login   *loginMethods       `json:"login,omitempty"`
}

// Public describes a login or registration surface. RequireArea has already sent
// approved sessions to their dashboard.
// GET /login, /admin-login, /sub-admin-login, /register, /sub-admin-register.
func (h *PageHandlers) Public(w http.ResponseWriter, r *http.Request) {
	route := domainauth.Classify(r.URL.Path)
	view := pageView{
		Area:    domainauth.AreaPublic,
		Page:    route.Page,
		User:    GetSessionFromContext(r.Context()),
		Message: knownIndicator(r.URL.Query().Get("message"), domainauth.MessageApprovalPending, domainauth.MessageAccountRejected),
		Error: knownIndicator(r.URL.Query().Get("error"),
			errCodeInvalidCredential, "account_not_found", "login_unavailable"),
		Login: &loginMethods{Password: true},
	}
	if h.OIDCEnabled {
		view.Login.OIDC = true
		view.Login.OIDCURL = PathOIDCLogin
	}
	WriteJSON(w, http.StatusOK, view)
}

// Area describes a guarded page of an area. Area API paths without a handler of
// their own end up here and get a 404.
// GET /admin/..., /sub-admin/..., /employee/....
func (h *PageHandlers) Area(w http.ResponseWriter, r *http.Request) {
	if domainauth.IsAPI(r.URL.Path) {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("no endpoint at " + r.URL.Path),
		})
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		WriteError(w, ErrorParams{
			Code:    http.StatusMethodNotAllowed,
			ErrCode: "method_not_allowed",
			Err:     errors.New(r.Method + " is not allowed on pages"),
		})
		return
	}
	route := domainauth.Classify(r.URL.Path)
	WriteJSON(w, http.StatusOK, pageView{
		Area: route.Area,
		Page: route.Page,
		User: GetSessionFromContext(r.Context()),
	})
}

// Fallback sends requests outside every area to the session's home. Non-browser
// clients get a 404 that names the home instead.
// GET /.
func (h *PageHandlers) Fallback(w http.ResponseWriter, r *http.Request) {
	d, err := h.Auth.Navigate(r.Context(), ClientIDFromContext(r.Context()), r.URL.Path)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "session_loading",
			Err:     errors.New("session is still being resolved"),
		})
		return
	}
	target := d.Target
	if d.Allow || target == "" {
		target = domainauth.PathLogin
	}
	if IsBrowserRequest(r) {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	WriteJSON(w, http.StatusNotFound, map[string]string{
		"error":       "not_found",
		"message":     "no page at " + r.URL.Path,
		"redirect_to": target,
	})
}

// knownIndicator echoes v only if it is one of the indicators the login pages know.
func knownIndicator(v string, known ...string) string {
	for _, k := range known {
		if v == k {
			return v
		}
	}
	return ""
}
