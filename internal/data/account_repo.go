package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/culturemaker/cmk-api/internal/data/pgxutil"
	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	apperrors "github.com/culturemaker/cmk-api/internal/errors"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// AccountRepo writes directory records and their password credentials.
type AccountRepo struct {
	DB *sql.DB
}

var (
	_ ports.AccountRepository    = (*AccountRepo)(nil)
	_ ports.CredentialRepository = (*AccountRepo)(nil)
)

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db}
}

// Register inserts a pending record and its credential in one transaction.
func (r *AccountRepo) Register(ctx context.Context, reg domainauth.Registration) (domainauth.RoleRecord, error) {
	name, columns, err := table(reg.Kind)
	if err != nil || reg.Kind == domainauth.DirectoryAdmins {
		return domainauth.RoleRecord{}, apperrors.ValidationField("kind", "accounts can only be registered as employee or sub-admin")
	}

	var row roleRow
	err = pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		rows, qerr := tx.Query(ctx, `
			INSERT INTO `+name+` (email, first_name, last_name, company_ref, status)
			VALUES ($1, $2, $3, $4, 'pending')
			RETURNING `+columns,
			domainauth.NormalizeEmail(reg.Email), reg.FirstName, reg.LastName, reg.CompanyRef,
		)
		if qerr != nil {
			return qerr
		}
		row, qerr = pgx.CollectOneRow(rows, pgx.RowToStructByName[roleRow])
		if qerr != nil {
			return qerr
		}
		_, qerr = tx.Exec(ctx,
			`INSERT INTO credentials (principal_id, email, password_hash) VALUES ($1, $2, $3)`,
			row.ID, row.Email, reg.PasswordHash,
		)
		return qerr
	}})
	if err != nil {
		return domainauth.RoleRecord{}, apperrors.MapDBError(err)
	}
	return row.record(reg.Kind), nil
}

// SetStatus changes the approval status; approving stamps approved_at.
func (r *AccountRepo) SetStatus(
	ctx context.Context,
	kind domainauth.DirectoryKind,
	id string,
	status domainauth.Status,
) (domainauth.RoleRecord, error) {
	name, columns, err := table(kind)
	if err != nil || kind == domainauth.DirectoryAdmins {
		return domainauth.RoleRecord{}, apperrors.ValidationField("kind", "only employee and sub-admin accounts have a status")
	}
	query := `
		UPDATE ` + name + `
		SET status = $2::text,
		    approved_at = CASE WHEN $2::text = 'approved' THEN now() ELSE NULL END
		WHERE id = $1
		RETURNING ` + columns
	return r.write(ctx, kind, query, id, string(status))
}

// UpdateName changes first and last name in any directory.
func (r *AccountRepo) UpdateName(
	ctx context.Context,
	kind domainauth.DirectoryKind,
	id, firstName, lastName string,
) (domainauth.RoleRecord, error) {
	name, columns, err := table(kind)
	if err != nil {
		return domainauth.RoleRecord{}, apperrors.ValidationField("kind", err.Error())
	}
	query := `UPDATE ` + name + ` SET first_name = $2, last_name = $3 WHERE id = $1 RETURNING ` + columns
	return r.write(ctx, kind, query, id, firstName, lastName)
}

func (r *AccountRepo) write(ctx context.Context, kind domainauth.DirectoryKind, query string, args ...any) (domainauth.RoleRecord, error) {
	var row roleRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[roleRow])
		return err
	})
	if err != nil {
		return domainauth.RoleRecord{}, apperrors.MapDBError(err)
	}
	return row.record(kind), nil
}

// List returns records of one kind filtered by status, oldest first.
func (r *AccountRepo) List(ctx context.Context, opts ports.ListAccountsOptions) ([]domainauth.RoleRecord, error) {
	name, columns, err := table(opts.Kind)
	if err != nil || opts.Kind == domainauth.DirectoryAdmins {
		return nil, apperrors.ValidationField("kind", "only employee and sub-admin accounts can be listed by status")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(opts.Offset, 0)

	var rows []roleRow
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, qerr := conn.Query(ctx,
			`SELECT `+columns+` FROM `+name+` WHERE status = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`,
			string(opts.Status), limit, offset,
		)
		if qerr != nil {
			return qerr
		}
		rows, qerr = pgx.CollectRows(res, pgx.RowToStructByName[roleRow])
		return qerr
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	out := make([]domainauth.RoleRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record(opts.Kind))
	}
	return out, nil
}

// GetByEmail returns the password credential for a normalised email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (domainauth.Credential, error) {
	var cred domainauth.Credential
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT principal_id, email, password_hash FROM credentials WHERE email = $1`,
			domainauth.NormalizeEmail(email),
		).Scan(&cred.PrincipalID, &cred.Email, &cred.PasswordHash)
	})
	if err != nil {
		return domainauth.Credential{}, apperrors.MapDBError(err)
	}
	return cred, nil
}

// UpsertAdmin creates or updates an admin record and, when passwordHash is set, its
// credential. Admins are provisioned by operators, never through registration.
func (r *AccountRepo) UpsertAdmin(ctx context.Context, rec domainauth.RoleRecord, passwordHash string) error {
	if rec.ID == "" {
		return apperrors.ValidationField("id", "admin id is required")
	}
	email := domainauth.NormalizeEmail(rec.Email)
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO admins (id, email, first_name, last_name) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email,
				first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name`,
			rec.ID, email, rec.FirstName, rec.LastName,
		); err != nil {
			return fmt.Errorf("upsert admin: %w", err)
		}
		if passwordHash == "" {
			return nil
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO credentials (principal_id, email, password_hash) VALUES ($1, $2, $3)
			ON CONFLICT (principal_id) DO UPDATE SET email = EXCLUDED.email,
				password_hash = EXCLUDED.password_hash, updated_at = now()`,
			rec.ID, email, passwordHash,
		)
		return err
	}})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}
