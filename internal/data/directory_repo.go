package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/culturemaker/cmk-api/internal/data/pgxutil"
	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// roleRow is the common projection of all three directory tables.
type roleRow struct {
	ID         string     `db:"id"`
	Email      string     `db:"email"`
	FirstName  string     `db:"first_name"`
	LastName   string     `db:"last_name"`
	CompanyRef string     `db:"company_ref"`
	Status     string     `db:"status"`
	CreatedAt  time.Time  `db:"created_at"`
	ApprovedAt *time.Time `db:"approved_at"`
}

func (r roleRow) record(kind domainauth.DirectoryKind) domainauth.RoleRecord {
	return domainauth.RoleRecord{
		Kind:       kind,
		ID:         r.ID,
		Email:      r.Email,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		CompanyRef: r.CompanyRef,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		ApprovedAt: r.ApprovedAt,
	}
}

const (
	adminColumns  = `id, email, first_name, last_name, '' AS company_ref, 'approved' AS status, created_at, NULL::timestamptz AS approved_at`
	memberColumns = `id, email, first_name, last_name, company_ref, status, created_at, approved_at`
)

// table returns the table and projection for kind. Table names never come from input.
func table(kind domainauth.DirectoryKind) (name, columns string, err error) {
	switch kind {
	case domainauth.DirectoryAdmins:
		return "admins", adminColumns, nil
	case domainauth.DirectorySubAdmins:
		return "sub_admins", memberColumns, nil
	case domainauth.DirectoryEmployees:
		return "employees", memberColumns, nil
	default:
		return "", "", fmt.Errorf("unknown directory %q", kind)
	}
}

// DirectoryRepo reads role records from Postgres.
type DirectoryRepo struct {
	DB *sql.DB
}

var _ ports.Directory = (*DirectoryRepo)(nil)

// NewDirectoryRepo creates a new DirectoryRepo.
func NewDirectoryRepo(db *sql.DB) *DirectoryRepo {
	return &DirectoryRepo{DB: db}
}

// Lookup returns the record with id in kind, or domainauth.ErrRecordNotFound.
func (r *DirectoryRepo) Lookup(ctx context.Context, kind domainauth.DirectoryKind, id string) (domainauth.RoleRecord, error) {
	name, columns, err := table(kind)
	if err != nil {
		return domainauth.RoleRecord{}, err
	}
	query := `SELECT ` + columns + ` FROM ` + name + ` WHERE id = $1`
	return r.one(ctx, kind, query, id)
}

// SubAdminByEmail returns the sub-admin whose normalised email matches.
func (r *DirectoryRepo) SubAdminByEmail(ctx context.Context, email string) (domainauth.RoleRecord, error) {
	query := `SELECT ` + memberColumns + ` FROM sub_admins WHERE email = $1`
	return r.one(ctx, domainauth.DirectorySubAdmins, query, domainauth.NormalizeEmail(email))
}

func (r *DirectoryRepo) one(ctx context.Context, kind domainauth.DirectoryKind, query string, arg string) (domainauth.RoleRecord, error) {
	var row roleRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[roleRow])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainauth.RoleRecord{}, domainauth.ErrRecordNotFound
		}
		return domainauth.RoleRecord{}, fmt.Errorf("query %s: %w", kind, err)
	}
	return row.record(kind), nil
}
