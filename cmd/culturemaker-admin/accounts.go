package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/culturemaker/cmk-api/internal/adapters/password"
	"github.com/culturemaker/cmk-api/internal/data"
	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/service"
)

// adminPasswordEnv supplies the create-admin password when --password is omitted.
const adminPasswordEnv = "CMK_ADMIN_PASSWORD"

type createAdminOptions struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

func parseCreateAdminFlags(args []string, getenv func(string) string) (createAdminOptions, error) {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts createAdminOptions
	fs.StringVar(&opts.ID, "id", "", "Principal id (defaults to a new UUID)")
	fs.StringVar(&opts.Email, "email", "", "Admin email address")
	fs.StringVar(&opts.FirstName, "first-name", "", "First name")
	fs.StringVar(&opts.LastName, "last-name", "", "Last name")
	fs.StringVar(&opts.Password, "password", "", "Password; falls back to $"+adminPasswordEnv)

	if err := fs.Parse(args); err != nil {
		return createAdminOptions{}, err
	}

	opts.Email = domainauth.NormalizeEmail(opts.Email)
	if opts.Email == "" {
		return createAdminOptions{}, errors.New("--email is required")
	}
	if opts.Password == "" {
		opts.Password = getenv(adminPasswordEnv)
	}
	if opts.Password != "" && len(opts.Password) < service.MinPasswordLength {
		return createAdminOptions{}, fmt.Errorf("password must be at least %d characters", service.MinPasswordLength)
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	return opts, nil
}

func runCreateAdmin(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateAdminFlags(args, os.Getenv)
	if err != nil {
		return err
	}

	var hash string
	if opts.Password != "" {
		hash, err = password.Hasher{Cost: cmdCtx.Config.Auth.PasswordCost}.Hash(opts.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		rec := domainauth.RoleRecord{
			Kind:      domainauth.DirectoryAdmins,
			ID:        opts.ID,
			Email:     opts.Email,
			FirstName: opts.FirstName,
			LastName:  opts.LastName,
		}
		if upsertErr := data.NewAccountRepo(db).UpsertAdmin(ctx, rec, hash); upsertErr != nil {
			return fmt.Errorf("upsert admin: %w", upsertErr)
		}
		cmdCtx.Logger.Info("admin saved", "id", opts.ID, "email", opts.Email, "password_set", hash != "")
		return writef(cmdCtx.Out, "%s\n", opts.ID)
	})
}

type listAccountsOptions struct {
	Kind   domainauth.DirectoryKind
	Status domainauth.Status
	Limit  int
	Offset int
}

func parseListAccountsFlags(args []string) (listAccountsOptions, error) {
	fs := flag.NewFlagSet("list-accounts", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var kind, status string
	opts := listAccountsOptions{}
	fs.StringVar(&kind, "kind", "", "employees or sub_admins (default both)")
	fs.StringVar(&status, "status", string(domainauth.StatusPending), "pending, approved or rejected")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum rows per directory")
	fs.IntVar(&opts.Offset, "offset", 0, "Rows to skip per directory")

	if err := fs.Parse(args); err != nil {
		return listAccountsOptions{}, err
	}

	if kind != "" {
		k, err := domainauth.ParseDirectoryKind(kind)
		if err != nil {
			return listAccountsOptions{}, err
		}
		if k == domainauth.DirectoryAdmins {
			return listAccountsOptions{}, errors.New("admins have no approval status to list")
		}
		opts.Kind = k
	}
	s, err := domainauth.ParseStatus(status)
	if err != nil {
		return listAccountsOptions{}, err
	}
	opts.Status = s
	return opts, nil
}

func runListAccounts(cmdCtx *commandContext, args []string) error {
	opts, err := parseListAccountsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		recs, listErr := newAccountService(cmdCtx, db).ListByStatus(ctx, opts.Kind, opts.Status, opts.Limit, opts.Offset)
		if listErr != nil {
			return listErr
		}
		return printAccounts(cmdCtx.Out, recs)
	})
}

func printAccounts(w io.Writer, recs []domainauth.RoleRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "KIND\tID\tEMAIL\tNAME\tCOMPANY\tSTATUS\tCREATED\n"); err != nil {
		return err
	}
	for _, r := range recs {
		name := strings.TrimSpace(r.FirstName + " " + r.LastName)
		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Kind, r.ID, r.Email, name, r.CompanyRef, r.Status, created); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush account table: %w", err)
	}
	return writef(w, "\n%d accounts\n", len(recs))
}

type setStatusOptions struct {
	Kind   domainauth.DirectoryKind
	ID     string
	Status domainauth.Status
}

func parseSetStatusFlags(args []string) (setStatusOptions, error) {
	fs := flag.NewFlagSet("set-status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var kind, status string
	var opts setStatusOptions
	fs.StringVar(&kind, "kind", "", "employees or sub_admins")
	fs.StringVar(&opts.ID, "id", "", "Record id")
	fs.StringVar(&status, "status", "", "approved, rejected or pending")

	if err := fs.Parse(args); err != nil {
		return setStatusOptions{}, err
	}

	k, err := domainauth.ParseDirectoryKind(kind)
	if err != nil {
		return setStatusOptions{}, fmt.Errorf("--kind: %w", err)
	}
	s, err := domainauth.ParseStatus(status)
	if err != nil {
		return setStatusOptions{}, fmt.Errorf("--status: %w", err)
	}
	if strings.TrimSpace(opts.ID) == "" {
		return setStatusOptions{}, errors.New("--id is required")
	}
	opts.Kind, opts.Status = k, s
	return opts, nil
}

func runSetStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseSetStatusFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		rec, setErr := newAccountService(cmdCtx, db).SetStatus(ctx, opts.Kind, opts.ID, opts.Status)
		if setErr != nil {
			return setErr
		}
		return printAccounts(cmdCtx.Out, []domainauth.RoleRecord{rec})
	})
}

func newAccountService(cmdCtx *commandContext, db *sql.DB) *service.AccountService {
	return service.NewAccountService(service.AccountServiceOptions{
		Repo:      data.NewAccountRepo(db),
		Hasher:    password.Hasher{Cost: cmdCtx.Config.Auth.PasswordCost},
		Logger:    cmdCtx.Logger,
		Directory: data.NewDirectoryRepo(db),
	})
}
