package httpx

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/service"
)

func TestBrowserDetection(t *testing.T) {
	tests := []struct {
		name            string
		path            string
		accept          string
		requestedWith   string
		expectedBrowser bool
	}{
		{name: "area API with HTML accept", path: "/admin/api/accounts", accept: "text/html", expectedBrowser: false},
		{name: "page with HTML accept", path: "/employee/dashboard", accept: "text/html,*/*;q=0.8", expectedBrowser: true},
		{name: "page without accept", path: "/login", expectedBrowser: true},
		{name: "page with JSON accept", path: "/login", accept: "application/json", expectedBrowser: false},
		{name: "XHR", path: "/login", accept: "text/html", requestedWith: "XMLHttpRequest", expectedBrowser: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			handler := BrowserDetection()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = IsBrowserRequest(r)
			}))
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if tt.requestedWith != "" {
				req.Header.Set("X-Requested-With", tt.requestedWith)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.expectedBrowser, got)
		})
	}
}

func TestClientIdentity(t *testing.T) {
	var seen string
	handler := ClientIdentity(ClientIdentityOptions{CookieName: "cmk_client", MaxAge: time.Hour})(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = ClientIDFromContext(r.Context())
		}))

	t.Run("issues a cookie to new clients", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "cmk_client", cookies[0].Name)
		assert.True(t, service.ValidClientID(cookies[0].Value))
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, 3600, cookies[0].MaxAge)
		assert.Equal(t, cookies[0].Value, seen)
	})

	t.Run("keeps a valid cookie", func(t *testing.T) {
		id := service.NewClientID()
		req := httptest.NewRequest(http.MethodGet, "/login", nil)
		req.AddCookie(&http.Cookie{Name: "cmk_client", Value: id})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Empty(t, rec.Result().Cookies())
		assert.Equal(t, id, seen)
	})

	t.Run("replaces a malformed cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/login", nil)
		req.AddCookie(&http.Cookie{Name: "cmk_client", Value: "not-a-uuid"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Len(t, rec.Result().Cookies(), 1)
		assert.NotEqual(t, "not-a-uuid", seen)
		assert.True(t, service.ValidClientID(seen))
	})

	t.Run("secure behind a TLS proxy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/login", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Len(t, rec.Result().Cookies(), 1)
		assert.True(t, rec.Result().Cookies()[0].Secure)
	})
}

func TestRequireArea(t *testing.T) {
	reached := func(t *testing.T) (http.Handler, *bool, **domainauth.Session) {
		t.Helper()
		var ok bool
		var sess *domainauth.Session
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok = true
			sess = GetSessionFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}), &ok, &sess
	}

	t.Run("anonymous browser is redirected to the area login", func(t *testing.T) {
		next, ok, _ := reached(t)
		handler := BrowserDetection()(RequireArea(&mockAuthService{}, time.Second, nil)(next))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, browserRequest(http.MethodGet, "/admin/dashboard", nil))

		assert.False(t, *ok)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, domainauth.PathAdminLogin, rec.Header().Get("Location"))
	})

	t.Run("anonymous API call gets 401", func(t *testing.T) {
		next, _, _ := reached(t)
		handler := BrowserDetection()(RequireArea(&mockAuthService{}, time.Second, nil)(next))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/admin/api/accounts", ""))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "authentication_required", body["error"])
		assert.Equal(t, domainauth.PathAdminLogin, body["redirect_to"])
	})

	t.Run("wrong role on API gets 403", func(t *testing.T) {
		next, _, _ := reached(t)
		auth := &mockAuthService{session: employeeSession()}
		handler := BrowserDetection()(RequireArea(auth, time.Second, nil)(next))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/admin/api/accounts", ""))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, domainauth.PathEmployeeDashboard, decodeBody(t, rec)["redirect_to"])
	})

	t.Run("allowed request carries the session", func(t *testing.T) {
		next, ok, sess := reached(t)
		auth := &mockAuthService{session: adminSession()}
		handler := BrowserDetection()(RequireArea(auth, time.Second, nil)(next))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, withClient(browserRequest(http.MethodGet, "/admin/company/42", nil), "c1"))

		assert.True(t, *ok)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, *sess)
		assert.Equal(t, "a1", (*sess).PrincipalID)
	})

	t.Run("resolution still pending", func(t *testing.T) {
		next, ok, _ := reached(t)
		auth := &mockAuthService{
			navigateFunc: func(ctx context.Context, _, _ string) (domainauth.Decision, error) {
				<-ctx.Done()
				return domainauth.Decision{}, ctx.Err()
			},
		}
		handler := RequireArea(auth, 10*time.Millisecond, nil)(next)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/employee/dashboard", ""))

		assert.False(t, *ok)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "session_loading", decodeBody(t, rec)["error"])
	})
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/employee/dashboard", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeBody(t, rec)["error"])
	assert.Contains(t, buf.String(), "boom")
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/status", nil))

	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/auth/status")
}
