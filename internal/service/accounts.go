package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	apperrors "github.com/culturemaker/cmk-api/internal/errors"
	"github.com/culturemaker/cmk-api/internal/observability/notify"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// AccountServiceOptions groups dependencies for AccountService.
type AccountServiceOptions struct {
	Repo      ports.AccountRepository // Required
	Hasher    ports.PasswordHasher    // Required
	Logger    *slog.Logger            // Optional
	Notifier  notify.Publisher        // Optional: announces registrations awaiting approval
	Directory ports.Directory         // Optional: finds sub-admins keyed by a different id
}

// AccountService handles registration, approval and profile updates of directory records.
type AccountService struct {
	repo      ports.AccountRepository
	hasher    ports.PasswordHasher
	logger    *slog.Logger
	notifier  notify.Publisher
	directory ports.Directory
}

// NewAccountService constructs an AccountService.
func NewAccountService(opts AccountServiceOptions) *AccountService {
	if opts.Repo == nil {
		panic("Repo is required")
	}
	if opts.Hasher == nil {
		panic("Hasher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		repo:      opts.Repo,
		hasher:    opts.Hasher,
		logger:    logger.With("component", "accounts"),
		notifier:  opts.Notifier,
		directory: opts.Directory,
	}
}

// RegisterInput is a self-service registration request.
type RegisterInput struct {
	Kind       domainauth.DirectoryKind
	Email      string
	Password   string
	FirstName  string
	LastName   string
	CompanyRef string
}

// Register creates a pending employee or sub-admin account with a password credential.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (domainauth.RoleRecord, error) {
	if err := validateRegistration(&in); err != nil {
		return domainauth.RoleRecord{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domainauth.RoleRecord{}, fmt.Errorf("hash password: %w", err)
	}

	rec, err := s.repo.Register(ctx, domainauth.Registration{
		Kind:         in.Kind,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CompanyRef:   in.CompanyRef,
	})
	if err != nil {
		return domainauth.RoleRecord{}, fmt.Errorf("register %s: %w", in.Kind, err)
	}
	s.logger.InfoContext(ctx, "account registered", "kind", rec.Kind, "id", rec.ID)
	if s.notifier != nil {
		s.notifier.Publish(ctx, notify.AccountEvent{
			Kind:        notify.EventRegistrationPending,
			PrincipalID: rec.ID,
			Email:       rec.Email,
			Directory:   string(rec.Kind),
			Name:        strings.TrimSpace(rec.FirstName + " " + rec.LastName),
			CompanyRef:  rec.CompanyRef,
		})
	}
	return rec, nil
}

func validateRegistration(in *RegisterInput) error {
	switch in.Kind {
	case domainauth.DirectoryEmployees, domainauth.DirectorySubAdmins:
	default:
		return apperrors.ValidationField("kind", "only employee and sub-admin accounts can self-register")
	}

	in.Email = domainauth.NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(in.Email); err != nil || !strings.Contains(in.Email, "@") {
		return apperrors.ValidationField("email", "a valid email address is required")
	}
	if len(in.Password) < MinPasswordLength {
		return apperrors.ValidationField("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.FirstName == "" {
		return apperrors.ValidationField("first_name", "first name is required")
	}
	if in.LastName == "" {
		return apperrors.ValidationField("last_name", "last name is required")
	}
	in.CompanyRef = strings.TrimSpace(in.CompanyRef)
	if in.Kind == domainauth.DirectorySubAdmins && in.CompanyRef == "" {
		return apperrors.ValidationField("company_ref", "company is required for sub-admins")
	}
	return nil
}

// SetStatus approves or rejects an employee or sub-admin account.
func (s *AccountService) SetStatus(
	ctx context.Context,
	kind domainauth.DirectoryKind,
	id string,
	status domainauth.Status,
) (domainauth.RoleRecord, error) {
	if kind == domainauth.DirectoryAdmins {
		return domainauth.RoleRecord{}, apperrors.ValidationField("kind", "admin accounts have no approval status")
	}
	if _, err := domainauth.ParseStatus(string(status)); err != nil {
		return domainauth.RoleRecord{}, apperrors.ValidationField("status", err.Error())
	}
	if strings.TrimSpace(id) == "" {
		return domainauth.RoleRecord{}, apperrors.ValidationField("id", "id is required")
	}

	rec, err := s.repo.SetStatus(ctx, kind, id, status)
	if err != nil {
		return domainauth.RoleRecord{}, fmt.Errorf("set %s status: %w", kind, err)
	}
	s.logger.InfoContext(ctx, "account status changed", "kind", kind, "id", id, "status", status)
	return rec, nil
}

// UpdateName changes the first and last name on a record.
func (s *AccountService) UpdateName(
	ctx context.Context,
	kind domainauth.DirectoryKind,
	id, firstName, lastName string,
) (domainauth.RoleRecord, error) {
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return domainauth.RoleRecord{}, apperrors.Validation("first and last name are required")
	}
	rec, err := s.repo.UpdateName(ctx, kind, id, firstName, lastName)
	if err != nil {
		return domainauth.RoleRecord{}, fmt.Errorf("update %s name: %w", kind, err)
	}
	return rec, nil
}

// UpdateProfile renames the record behind a signed-in session. A sub-admin signed in
// through the email probe has a record id that differs from its principal id.
func (s *AccountService) UpdateProfile(
	ctx context.Context,
	sess domainauth.Session,
	firstName, lastName string,
) (domainauth.RoleRecord, error) {
	var kind domainauth.DirectoryKind
	switch sess.Role {
	case domainauth.RoleAdmin:
		kind = domainauth.DirectoryAdmins
	case domainauth.RoleSubAdmin:
		kind = domainauth.DirectorySubAdmins
	case domainauth.RoleEmployee:
		kind = domainauth.DirectoryEmployees
	default:
		return domainauth.RoleRecord{}, apperrors.ValidationField("role", "session has no directory record")
	}

	rec, err := s.UpdateName(ctx, kind, sess.PrincipalID, firstName, lastName)
	if err == nil || kind != domainauth.DirectorySubAdmins || s.directory == nil || sess.Email == "" ||
		!apperrors.IsNotFound(err) {
		return rec, err
	}
	byEmail, lookupErr := s.directory.SubAdminByEmail(ctx, sess.Email)
	if lookupErr != nil {
		return domainauth.RoleRecord{}, err
	}
	return s.UpdateName(ctx, kind, byEmail.ID, firstName, lastName)
}

// ListByStatus lists employee and sub-admin accounts with the given status. An empty
// kind lists both directories.
func (s *AccountService) ListByStatus(
	ctx context.Context,
	kind domainauth.DirectoryKind,
	status domainauth.Status,
	limit, offset int,
) ([]domainauth.RoleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	if kind != "" {
		recs, err := s.repo.List(ctx, ports.ListAccountsOptions{Kind: kind, Status: status, Limit: limit, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		return recs, nil
	}

	// Both directories: take the first limit+offset rows of each, merge by
	// (created_at, id) and page the merged list.
	var merged []domainauth.RoleRecord
	for _, k := range []domainauth.DirectoryKind{domainauth.DirectorySubAdmins, domainauth.DirectoryEmployees} {
		recs, err := s.repo.List(ctx, ports.ListAccountsOptions{Kind: k, Status: status, Limit: limit + offset})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", k, err)
		}
		merged = append(merged, recs...)
	}
	slices.SortStableFunc(merged, func(a, b domainauth.RoleRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if offset >= len(merged) {
		return []domainauth.RoleRecord{}, nil
	}
	return merged[offset:min(offset+limit, len(merged))], nil
}
