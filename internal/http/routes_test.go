package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	mocks "github.com/culturemaker/cmk-api/internal/mocks/auth"
	"github.com/culturemaker/cmk-api/internal/ports"
	"github.com/culturemaker/cmk-api/internal/service"
)

type routerFixture struct {
	dir     *mocks.MemoryDirectory
	handler http.Handler
}

func newRouterFixture(t *testing.T, principals ...domainauth.Principal) *routerFixture {
	t.Helper()
	dir := mocks.NewMemoryDirectory()
	clients := service.NewClientRegistry(service.ClientRegistryOptions{
		Gateways: func(string) (ports.AuthGateway, error) {
			gw := mocks.NewFakeGateway()
			for _, p := range principals {
				gw.Allow(p)
			}
			return gw, nil
		},
		Directory: dir,
		Config: service.RegistryConfig{Session: service.ClientSessionConfig{
			RetryInitial:    time.Millisecond,
			RetryMaxElapsed: time.Second,
		}},
	})
	t.Cleanup(clients.Close)

	auth := service.NewAuthService(service.AuthServiceOptions{Clients: clients})
	return &routerFixture{
		dir: dir,
		handler: NewRouter(RouterServices{
			Auth:         auth,
			Accounts:     &mockAccountService{},
			ClientCookie: "cmk_client",
			AwaitTimeout: 2 * time.Second,
		}),
	}
}

// do sends req with the client cookie, if any, and returns the recorder.
func (f *routerFixture) do(req *http.Request, client *http.Cookie) *httptest.ResponseRecorder {
	if client != nil {
		req.AddCookie(client)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func clientCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	c := findCookie(rec, "cmk_client")
	require.NotNil(t, c, "expected a client cookie")
	return c
}

func TestNewRouter_RequiresAuth(t *testing.T) {
	assert.Panics(t, func() { NewRouter(RouterServices{}) })
}

func TestRouter_HealthzHasNoClientCookie(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = f.do(httptest.NewRequest(http.MethodHead, "/healthz", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AnonymousNavigation(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(browserRequest(http.MethodGet, "/sub-admin/teams", nil), nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, domainauth.PathSubAdminLogin, rec.Header().Get("Location"))
	clientCookie(t, rec)

	rec = f.do(browserRequest(http.MethodGet, "/sub-admin-login", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sub-admin-login", decodeBody(t, rec)["page"])

	rec = f.do(browserRequest(http.MethodGet, "/nowhere", nil), nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, domainauth.PathLogin, rec.Header().Get("Location"))

	rec = f.do(apiRequest(http.MethodGet, "/employee/api/anything", ""), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_EmployeeLoginFlow(t *testing.T) {
	f := newRouterFixture(t, domainauth.Principal{ID: "e1", Email: "e1@acme.test"})
	f.dir.Put(domainauth.RoleRecord{
		Kind: domainauth.DirectoryEmployees, ID: "e1", Email: "e1@acme.test",
		FirstName: "Ada", LastName: "Lovelace", CompanyRef: "acme", Status: "approved",
	})

	first := f.do(browserRequest(http.MethodGet, domainauth.PathLogin, nil), nil)
	client := clientCookie(t, first)

	rec := f.do(apiRequest(http.MethodPost, PathAuthLogin, `{"email":"e1@acme.test","password":"pw","area":"employee"}`), client)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domainauth.PathEmployeeDashboard, decodeBody(t, rec)["redirect_to"])

	rec = f.do(apiRequest(http.MethodGet, "/employee/questionnaire", ""), client)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "questionnaire", body["page"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", user["first_name"])

	// Unknown pages of the own area land on its dashboard; other areas bounce home.
	rec = f.do(browserRequest(http.MethodGet, "/employee/settings", nil), client)
	assert.Equal(t, domainauth.PathEmployeeDashboard, rec.Header().Get("Location"))
	rec = f.do(browserRequest(http.MethodGet, "/admin/dashboard", nil), client)
	assert.Equal(t, domainauth.PathEmployeeDashboard, rec.Header().Get("Location"))
	rec = f.do(browserRequest(http.MethodGet, domainauth.PathLogin, nil), client)
	assert.Equal(t, domainauth.PathEmployeeDashboard, rec.Header().Get("Location"))

	rec = f.do(apiRequest(http.MethodGet, "/admin/api/accounts", ""), client)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(apiRequest(http.MethodGet, PathAuthStatus, ""), client)
	assert.Equal(t, true, decodeBody(t, rec)["authenticated"])

	rec = f.do(apiRequest(http.MethodPost, PathAuthLogout, ""), client)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(browserRequest(http.MethodGet, "/employee/dashboard", nil), client)
	assert.Equal(t, domainauth.PathLogin, rec.Header().Get("Location"))
}

func TestRouter_PendingEmployeeStaysOnLogin(t *testing.T) {
	f := newRouterFixture(t, domainauth.Principal{ID: "e2", Email: "e2@acme.test"})
	f.dir.Put(domainauth.RoleRecord{
		Kind: domainauth.DirectoryEmployees, ID: "e2", Email: "e2@acme.test",
		FirstName: "Bo", LastName: "Li", CompanyRef: "acme", Status: "pending",
	})
	client := clientCookie(t, f.do(browserRequest(http.MethodGet, domainauth.PathLogin, nil), nil))

	rec := f.do(apiRequest(http.MethodPost, PathAuthLogin, `{"email":"e2@acme.test","password":"pw"}`), client)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/login?message=approval_pending", decodeBody(t, rec)["redirect_to"])

	rec = f.do(browserRequest(http.MethodGet, "/login?message=approval_pending", nil), client)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approval_pending", decodeBody(t, rec)["message"])
}

func TestRouter_AdminReviewsAccounts(t *testing.T) {
	f := newRouterFixture(t, domainauth.Principal{ID: "a1", Email: "root@acme.test"})
	f.dir.Put(domainauth.RoleRecord{Kind: domainauth.DirectoryAdmins, ID: "a1", Email: "root@acme.test", FirstName: "Root"})
	client := clientCookie(t, f.do(browserRequest(http.MethodGet, domainauth.PathAdminLogin, nil), nil))

	rec := f.do(apiRequest(http.MethodPost, PathAuthLogin, `{"email":"root@acme.test","password":"pw","area":"admin"}`), client)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(apiRequest(http.MethodGet, "/admin/api/accounts", ""), client)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(apiRequest(http.MethodPost, "/admin/api/accounts/employees/e9/status", `{"status":"approved"}`), client)
	require.Equal(t, http.StatusOK, rec.Code)
	account, ok := decodeBody(t, rec)["account"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "e9", account["id"])

	rec = f.do(apiRequest(http.MethodGet, "/admin/api/nothing-here", ""), client)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RegistrationIsPublic(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(apiRequest(http.MethodPost, domainauth.PathSubAdminRegister,
		`{"email":"lead@acme.test","password":"longenough","first_name":"L","last_name":"D","company_ref":"acme"}`), nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/sub-admin-login?message=approval_pending", decodeBody(t, rec)["redirect_to"])
}
