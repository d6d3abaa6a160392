package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
)

// BeginInput carries inputs for initiating a redirect-based auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthFlow starts a redirect-based login against an IdP.
type AuthFlow interface {
	// Begin returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)
}

// CredentialVerifier checks credentials and returns the authenticated principal.
type CredentialVerifier interface {
	Verify(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error)
}

// PrincipalListener receives principal changes. A nil principal means signed out.
type PrincipalListener func(p *domainauth.Principal)

// AuthGateway is the single source of "is someone logged in".
type AuthGateway interface {
	Login(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error)
	Logout(ctx context.Context) error
	Current() *domainauth.Principal
	// Subscribe delivers the current principal immediately, then one call per change.
	// The returned function unsubscribes and is safe to call more than once.
	Subscribe(fn PrincipalListener) (unsubscribe func())
	// Restore reloads a persisted principal, if any, and notifies subscribers.
	Restore(ctx context.Context) error
}

// Directory looks up role records. Implementations return domainauth.ErrRecordNotFound
// when nothing matches and any other error when the directory could not be consulted.
type Directory interface {
	Lookup(ctx context.Context, kind domainauth.DirectoryKind, id string) (domainauth.RoleRecord, error)
	SubAdminByEmail(ctx context.Context, email string) (domainauth.RoleRecord, error)
}

// SessionStore is the durable session slot, one per client. Get returns nil when the
// slot is empty.
type SessionStore interface {
	Save(ctx context.Context, clientID string, sess domainauth.Session) error
	Get(ctx context.Context, clientID string) (*domainauth.Session, error)
	Delete(ctx context.Context, clientID string) error
}

// PrincipalStore persists the gateway's principal per client. Load returns nil when
// nothing is stored.
type PrincipalStore interface {
	Save(ctx context.Context, clientID string, p domainauth.Principal) error
	Load(ctx context.Context, clientID string) (*domainauth.Principal, error)
	Delete(ctx context.Context, clientID string) error
}

// CredentialRepository reads password credentials.
type CredentialRepository interface {
	GetByEmail(ctx context.Context, email string) (domainauth.Credential, error)
}

// ListAccountsOptions filters account listings.
type ListAccountsOptions struct {
	Kind   domainauth.DirectoryKind
	Status domainauth.Status
	Limit  int
	Offset int
}

// AccountRepository manages directory records on behalf of registration and approval.
type AccountRepository interface {
	Register(ctx context.Context, reg domainauth.Registration) (domainauth.RoleRecord, error)
	SetStatus(
		ctx context.Context,
		kind domainauth.DirectoryKind,
		id string,
		status domainauth.Status,
	) (domainauth.RoleRecord, error)
	UpdateName(
		ctx context.Context,
		kind domainauth.DirectoryKind,
		id, firstName, lastName string,
	) (domainauth.RoleRecord, error)
	List(ctx context.Context, opts ListAccountsOptions) ([]domainauth.RoleRecord, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
