package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/service"
)

// AccountServiceInterface defines the account operations used by the HTTP layer.
type AccountServiceInterface interface {
	Register(ctx context.Context, in service.RegisterInput) (domainauth.RoleRecord, error)
	SetStatus(
		ctx context.Context,
		kind domainauth.DirectoryKind,
		id string,
		status domainauth.Status,
	) (domainauth.RoleRecord, error)
	UpdateProfile(ctx context.Context, sess domainauth.Session, firstName, lastName string) (domainauth.RoleRecord, error)
	ListByStatus(
		ctx context.Context,
		kind domainauth.DirectoryKind,
		status domainauth.Status,
		limit, offset int,
	) ([]domainauth.RoleRecord, error)
}

var _ AccountServiceInterface = (*service.AccountService)(nil)

// AccountHandlers serves registration, approval and profile edits.
type AccountHandlers struct {
	Svc    AccountServiceInterface
	Auth   AuthServiceInterface
	Logger *slog.Logger
}

func (h *AccountHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type accountView struct {
	Kind       domainauth.DirectoryKind `json:"kind"`
	ID         string                   `json:"id"`
	Email      string                   `json:"email"`
	FirstName  string                   `json:"first_name"`
	LastName   string                   `json:"last_name"`
	CompanyRef string                   `json:"company_ref,omitempty"`
	Status     string                   `json:"status,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
	ApprovedAt *time.Time               `json:"approved_at,omitempty"`
}

func newAccountView(rec domainauth.RoleRecord) accountView {
	return accountView{
		Kind:       rec.Kind,
		ID:         rec.ID,
		Email:      rec.Email,
		FirstName:  rec.FirstName,
		LastName:   rec.LastName,
		CompanyRef: rec.CompanyRef,
		Status:     rec.Status,
		CreatedAt:  rec.CreatedAt,
		ApprovedAt: rec.ApprovedAt,
	}
}

// RegisterEmployee creates a pending employee account.
// POST /register.
func (h *AccountHandlers) RegisterEmployee(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, domainauth.DirectoryEmployees)
}

// RegisterSubAdmin creates a pending sub-admin account.
// POST /sub-admin-register.
func (h *AccountHandlers) RegisterSubAdmin(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, domainauth.DirectorySubAdmins)
}

func (h *AccountHandlers) register(w http.ResponseWriter, r *http.Request, kind domainauth.DirectoryKind) {
	fields, ok := readFields(w, r)
	if !ok {
		return
	}
	rec, err := h.Svc.Register(r.Context(), service.RegisterInput{
		Kind:       kind,
		Email:      fields["email"],
		Password:   fields["password"],
		FirstName:  fields["first_name"],
		LastName:   fields["last_name"],
		CompanyRef: fields["company_ref"],
	})
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}

	next := withQuery(domainauth.LoginPath(kind.Role().Area()), "message", domainauth.MessageApprovalPending)
	if IsBrowserRequest(r) {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{
		"account":     newAccountView(rec),
		"message":     domainauth.MessageApprovalPending,
		"redirect_to": next,
	})
}

// List returns employee and sub-admin accounts by status, pending by default.
// GET /admin/api/accounts?status=&kind=&limit=&offset=.
func (h *AccountHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := domainauth.StatusPending
	if v := q.Get("status"); v != "" {
		parsed, err := domainauth.ParseStatus(v)
		if err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_error", Err: err, Field: "status"})
			return
		}
		status = parsed
	}
	var kind domainauth.DirectoryKind
	if v := q.Get("kind"); v != "" {
		parsed, err := domainauth.ParseDirectoryKind(v)
		if err != nil || parsed == domainauth.DirectoryAdmins {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "validation_error",
				Err:     errors.New("kind must be employees or sub_admins"),
				Field:   "kind",
			})
			return
		}
		kind = parsed
	}
	limit, offset := ParseLimitOffset(r, defaultListLimit, maxListLimit)

	recs, err := h.Svc.ListByStatus(r.Context(), kind, status, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}
	views := make([]accountView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, newAccountView(rec))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"accounts": views,
		"limit":    limit,
		"offset":   offset,
	})
}

// SetStatus approves or rejects an account.
// POST /admin/api/accounts/{kind}/{id}/status (form or JSON: status).
func (h *AccountHandlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	kind, err := domainauth.ParseDirectoryKind(r.PathValue("kind"))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_error", Err: err, Field: "kind"})
		return
	}
	fields, ok := readFields(w, r)
	if !ok {
		return
	}

	rec, err := h.Svc.SetStatus(r.Context(), kind, r.PathValue("id"), domainauth.Status(fields["status"]))
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"account": newAccountView(rec)})
}

// UpdateProfile renames the signed-in user and re-resolves the session so the new
// name shows up immediately.
// POST /employee/profile, /sub-admin/profile (form or JSON: first_name, last_name).
func (h *AccountHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	if sess == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}
	fields, ok := readFields(w, r)
	if !ok {
		return
	}

	if _, err := h.Svc.UpdateProfile(r.Context(), *sess, fields["first_name"], fields["last_name"]); err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}

	updated := sess
	if h.Auth != nil {
		refreshed, err := h.Auth.Refresh(r.Context(), ClientIDFromContext(r.Context()))
		if err != nil {
			h.logger().WarnContext(r.Context(), "session refresh after profile update failed", "error", err)
		} else if refreshed != nil {
			updated = refreshed
		}
	}

	if IsBrowserRequest(r) {
		http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"user": updated})
}
