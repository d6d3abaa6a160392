// Package devseed fills a development database with one account per role and status.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/culturemaker/cmk-api/internal/adapters/password"
	"github.com/culturemaker/cmk-api/internal/data"
	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	apperrors "github.com/culturemaker/cmk-api/internal/errors"
	"github.com/culturemaker/cmk-api/internal/ports"
	"github.com/culturemaker/cmk-api/internal/service"
)

// DevPassword is the password of every seeded account.
const DevPassword = "culturemaker-dev"

// AdminWriter provisions admin records.
type AdminWriter interface {
	UpsertAdmin(ctx context.Context, rec domainauth.RoleRecord, passwordHash string) error
}

// AccountWriter registers and approves self-service accounts.
type AccountWriter interface {
	Register(ctx context.Context, in service.RegisterInput) (domainauth.RoleRecord, error)
	SetStatus(
		ctx context.Context,
		kind domainauth.DirectoryKind,
		id string,
		status domainauth.Status,
	) (domainauth.RoleRecord, error)
}

// Services bundles the dependencies needed for development seeding.
type Services struct {
	Admins   AdminWriter
	Accounts AccountWriter
	Hasher   ports.PasswordHasher
}

// NewServices constructs all required services for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	repo := data.NewAccountRepo(db)
	hasher := password.Hasher{}
	return Services{
		Admins: repo,
		Accounts: service.NewAccountService(service.AccountServiceOptions{
			Repo:   repo,
			Hasher: hasher,
		}),
		Hasher: hasher,
	}
}

// AccountSeed is one seeded self-service account and the status it ends up in.
type AccountSeed struct {
	Kind       domainauth.DirectoryKind
	Email      string
	FirstName  string
	LastName   string
	CompanyRef string
	Status     domainauth.Status
}

// DefaultAdmin matches the default mock-auth identity so both login modes land on it.
func DefaultAdmin() domainauth.RoleRecord {
	return domainauth.RoleRecord{
		Kind:      domainauth.DirectoryAdmins,
		ID:        "dev-admin",
		Email:     "admin@culturemaker.local",
		FirstName: "Dev",
		LastName:  "Admin",
	}
}

// DefaultAccounts covers every role and status the route guard distinguishes.
func DefaultAccounts() []AccountSeed {
	return []AccountSeed{
		{domainauth.DirectoryEmployees, "ada@acme.test", "Ada", "Approved", "acme", domainauth.StatusApproved},
		{domainauth.DirectoryEmployees, "pat@acme.test", "Pat", "Pending", "acme", domainauth.StatusPending},
		{domainauth.DirectoryEmployees, "rex@acme.test", "Rex", "Rejected", "acme", domainauth.StatusRejected},
		{domainauth.DirectorySubAdmins, "lead@acme.test", "Lee", "Lead", "acme", domainauth.StatusApproved},
		{domainauth.DirectorySubAdmins, "new-lead@globex.test", "Nia", "Newlead", "globex", domainauth.StatusPending},
	}
}

// Run executes the development seeding workflow. Accounts that already exist are left
// untouched, so running it twice is safe.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := seedAdmin(ctx, svcs, DefaultAdmin()); err != nil {
		return err
	}
	logger.InfoContext(ctx, "seeded admin", "email", DefaultAdmin().Email)

	failures := 0
	for _, seed := range DefaultAccounts() {
		created, err := seedAccount(ctx, svcs.Accounts, seed)
		switch {
		case err != nil:
			failures++
			logger.ErrorContext(ctx, "failed to seed account", "email", seed.Email, "error", err)
		case created:
			logger.InfoContext(ctx, "seeded account", "kind", seed.Kind, "email", seed.Email, "status", seed.Status)
		default:
			logger.InfoContext(ctx, "account already exists", "email", seed.Email)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func seedAdmin(ctx context.Context, svcs Services, rec domainauth.RoleRecord) error {
	hash, err := svcs.Hasher.Hash(DevPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := svcs.Admins.UpsertAdmin(ctx, rec, hash); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

func seedAccount(ctx context.Context, accounts AccountWriter, seed AccountSeed) (bool, error) {
	rec, err := accounts.Register(ctx, service.RegisterInput{
		Kind:       seed.Kind,
		Email:      seed.Email,
		Password:   DevPassword,
		FirstName:  seed.FirstName,
		LastName:   seed.LastName,
		CompanyRef: seed.CompanyRef,
	})
	if apperrors.IsConflict(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if seed.Status == domainauth.StatusPending {
		return true, nil
	}
	if _, err := accounts.SetStatus(ctx, seed.Kind, rec.ID, seed.Status); err != nil {
		return true, fmt.Errorf("set status: %w", err)
	}
	return true, nil
}
