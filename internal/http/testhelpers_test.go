package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/service"
)

// mockAuthService is a test double for service.AuthService.
type mockAuthService struct {
	beginLoginFunc    func(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	completeLoginFunc func(ctx context.Context, clientID string, in service.CompleteLoginInput) (*service.LoginResult, error)
	passwordLoginFunc func(ctx context.Context, clientID string, in service.PasswordLoginInput) (*service.LoginResult, error)
	logoutFunc        func(ctx context.Context, clientID string) error
	statusFunc        func(ctx context.Context, clientID string) (*service.StatusResult, error)
	refreshFunc       func(ctx context.Context, clientID string) (*domainauth.Session, error)
	navigateFunc      func(ctx context.Context, clientID, path string) (domainauth.Decision, error)

	// session is what Session returns, and what Navigate decides for when navigateFunc is nil.
	session *domainauth.Session
}

func (m *mockAuthService) BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error) {
	if m.beginLoginFunc != nil {
		return m.beginLoginFunc(ctx, redirectURL)
	}
	return &service.BeginLoginResult{
		AuthURL: "https://idp.example.com/auth?state=test-state",
		State:   "test-state",
		Nonce:   "test-nonce",
	}, nil
}

func (m *mockAuthService) CompleteLogin(
	ctx context.Context,
	clientID string,
	in service.CompleteLoginInput,
) (*service.LoginResult, error) {
	if m.completeLoginFunc != nil {
		return m.completeLoginFunc(ctx, clientID, in)
	}
	sess := employeeSession()
	return &service.LoginResult{Session: *sess, Redirect: domainauth.Home(sess)}, nil
}

func (m *mockAuthService) PasswordLogin(
	ctx context.Context,
	clientID string,
	in service.PasswordLoginInput,
) (*service.LoginResult, error) {
	if m.passwordLoginFunc != nil {
		return m.passwordLoginFunc(ctx, clientID, in)
	}
	sess := employeeSession()
	return &service.LoginResult{Session: *sess, Redirect: domainauth.Home(sess)}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, clientID string) error {
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx, clientID)
	}
	return nil
}

func (m *mockAuthService) Status(ctx context.Context, clientID string) (*service.StatusResult, error) {
	if m.statusFunc != nil {
		return m.statusFunc(ctx, clientID)
	}
	if m.session == nil {
		return &service.StatusResult{State: service.StateUnauthenticated}, nil
	}
	return &service.StatusResult{Session: m.session, State: service.StateVerified}, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, clientID string) (*domainauth.Session, error) {
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, clientID)
	}
	return m.session, nil
}

func (m *mockAuthService) Navigate(ctx context.Context, clientID, path string) (domainauth.Decision, error) {
	if m.navigateFunc != nil {
		return m.navigateFunc(ctx, clientID, path)
	}
	return domainauth.Navigate(m.session, path), nil
}

func (m *mockAuthService) Session(context.Context, string) (*domainauth.Session, error) {
	return m.session, nil
}

func employeeSession() *domainauth.Session {
	return &domainauth.Session{
		PrincipalID: "e1",
		Email:       "e1@acme.test",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Role:        domainauth.RoleEmployee,
		Status:      domainauth.StatusApproved,
		CompanyRef:  "acme",
	}
}

func adminSession() *domainauth.Session {
	return &domainauth.Session{
		PrincipalID: "a1",
		Email:       "root@acme.test",
		Role:        domainauth.RoleAdmin,
		Status:      domainauth.StatusApproved,
	}
}

// browserRequest builds a request the way a browser navigates.
func browserRequest(method, target string, form url.Values) *http.Request {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return req
}

// apiRequest builds a JSON request from a script.
func apiRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Accept", "application/json")
	return req
}

func withClient(req *http.Request, clientID string) *http.Request {
	return req.WithContext(SetClientIDInContext(req.Context(), clientID))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
