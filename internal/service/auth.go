package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// ErrRedirectLoginUnsupported is returned by BeginLogin when no redirect-based provider is configured.
var ErrRedirectLoginUnsupported = errors.New("redirect login is not configured")

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Clients *ClientRegistry // Required
	Flow    ports.AuthFlow  // Optional: only for redirect-based providers
	Logger  *slog.Logger    // Optional
}

// AuthService orchestrates login flows for browser clients on top of their ClientSessions.
type AuthService struct {
	clients *ClientRegistry
	flow    ports.AuthFlow
	logger  *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.Clients == nil {
		panic("Clients is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		clients: opts.Clients,
		flow:    opts.Flow,
		logger:  logger.With("component", "auth_service"),
	}
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates a redirect flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.flow == nil {
		return nil, ErrRedirectLoginUnsupported
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	authURL, state, nonce, err := s.flow.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Session  domainauth.Session
	Redirect string // where the browser should go next
}

// CompleteLoginInput groups parameters for completing a redirect login.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLogin exchanges an authorization code through the client's gateway and waits
// for the role resolution that follows.
func (s *AuthService) CompleteLogin(ctx context.Context, clientID string, input CompleteLoginInput) (*LoginResult, error) {
	if input.Code == "" {
		return nil, errors.New("authorization code is required")
	}
	if input.State == "" {
		return nil, errors.New("state parameter is required")
	}
	if input.Nonce == "" {
		return nil, errors.New("nonce parameter is required")
	}
	creds := domainauth.Credentials{Code: input.Code, State: input.State, Nonce: input.Nonce}
	return s.login(ctx, clientID, creds, domainauth.AreaPublic)
}

// PasswordLoginInput is an email/password login submitted from one of the login pages.
type PasswordLoginInput struct {
	Email    string
	Password string
	Area     domainauth.Area // area whose login page was used
}

// PasswordLogin signs in with email and password.
func (s *AuthService) PasswordLogin(ctx context.Context, clientID string, input PasswordLoginInput) (*LoginResult, error) {
	if strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return nil, domainauth.ErrInvalidCredentials
	}
	creds := domainauth.Credentials{Email: input.Email, Password: input.Password}
	return s.login(ctx, clientID, creds, input.Area)
}

func (s *AuthService) login(
	ctx context.Context,
	clientID string,
	creds domainauth.Credentials,
	area domainauth.Area,
) (*LoginResult, error) {
	cs, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client session: %w", err)
	}

	sess, err := cs.Login(ctx, creds)
	if err != nil {
		if errors.Is(err, domainauth.ErrInvalidCredentials) {
			s.logger.InfoContext(ctx, "login rejected", "client_id", clientID, "area", area)
			return nil, err
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if sess == nil {
		// The resolver already signed the orphan out.
		return nil, domainauth.ErrOrphanedCredential
	}
	if !domainauth.LoginPageAccepts(area, sess.Role) {
		s.logger.InfoContext(ctx, "login refused on another role's login page",
			"client_id", clientID, "area", area, "role", sess.Role)
		if err := cs.Logout(ctx); err != nil {
			s.logger.WarnContext(ctx, "sign out after refused login", "client_id", clientID, "error", err)
		}
		return nil, domainauth.ErrWrongLoginPage
	}
	return &LoginResult{Session: *sess, Redirect: domainauth.Home(sess)}, nil
}

// Logout signs the client out. Unknown or missing clients are already signed out.
func (s *AuthService) Logout(ctx context.Context, clientID string) error {
	if !ValidClientID(clientID) {
		return nil
	}
	cs, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return fmt.Errorf("client session: %w", err)
	}
	return cs.Logout(ctx)
}

// StatusResult describes the client's session as the UI sees it.
type StatusResult struct {
	Session *domainauth.Session
	State   SessionState
	Loading bool
}

// Status returns the cached session without waiting for a pending resolution.
func (s *AuthService) Status(ctx context.Context, clientID string) (*StatusResult, error) {
	if !ValidClientID(clientID) {
		return &StatusResult{State: StateUnauthenticated}, nil
	}
	cs, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client session: %w", err)
	}
	sess, state := cs.Current()
	return &StatusResult{Session: sess, State: state, Loading: cs.Loading()}, nil
}

// Refresh re-resolves the client's principal, e.g. after its record was edited.
func (s *AuthService) Refresh(ctx context.Context, clientID string) (*domainauth.Session, error) {
	if !ValidClientID(clientID) {
		return nil, nil
	}
	cs, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client session: %w", err)
	}
	return cs.Refresh(ctx)
}

// Navigate decides whether the client may open path. It waits for a resolution in
// flight so that a freshly restored session is verified before it is trusted.
func (s *AuthService) Navigate(ctx context.Context, clientID, path string) (domainauth.Decision, error) {
	if !ValidClientID(clientID) {
		return domainauth.Navigate(nil, path), nil
	}
	cs, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return domainauth.Decision{}, fmt.Errorf("client session: %w", err)
	}
	if err := cs.Await(ctx); err != nil && ctx.Err() != nil {
		return domainauth.Decision{}, err
	}
	return cs.Navigate(path), nil
}

// Session returns the verified session of the client, if any.
func (s *AuthService) Session(ctx context.Context, clientID string) (*domainauth.Session, error) {
	if !ValidClientID(clientID) {
		return nil, nil
	}
	cs, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client session: %w", err)
	}
	sess, state := cs.Current()
	if state != StateVerified {
		return nil, nil
	}
	return sess, nil
}
