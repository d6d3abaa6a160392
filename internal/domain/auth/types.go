package auth

// Package auth contains domain-level types for authentication, role resolution and routing.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Role represents the kind of account a session belongs to.
// Keep string form for easy persistence and JSON.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "sub-admin"
	RoleEmployee Role = "employee"
)

// ParseRole maps a stored role value to a Role, rejecting unknown values.
func ParseRole(v string) (Role, error) {
	switch r := Role(strings.TrimSpace(v)); r {
	case RoleAdmin, RoleSubAdmin, RoleEmployee:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", v)
	}
}

// Area returns the routing area owned by the role.
func (r Role) Area() Area {
	switch r {
	case RoleAdmin:
		return AreaAdmin
	case RoleSubAdmin:
		return AreaSubAdmin
	case RoleEmployee:
		return AreaEmployee
	default:
		return AreaPublic
	}
}

// Status is the approval state of a role record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus maps a stored status value to a Status, rejecting unknown values.
func ParseStatus(v string) (Status, error) {
	switch s := Status(strings.TrimSpace(v)); s {
	case StatusPending, StatusApproved, StatusRejected:
		return s, nil
	default:
		return "", fmt.Errorf("unknown status %q", v)
	}
}

// Area is a top-level section of the application guarded by the route guard.
type Area string

const (
	AreaAdmin    Area = "admin"
	AreaSubAdmin Area = "sub-admin"
	AreaEmployee Area = "employee"
	AreaPublic   Area = "public"
)

// ParseArea maps a request value to an Area. Empty input means the employee area,
// which is what the generic login page serves.
func ParseArea(v string) (Area, error) {
	switch a := Area(strings.ToLower(strings.TrimSpace(v))); a {
	case "":
		return AreaEmployee, nil
	case AreaAdmin, AreaSubAdmin, AreaEmployee, AreaPublic:
		return a, nil
	default:
		return "", fmt.Errorf("unknown area %q", v)
	}
}

// Principal is the authenticated identity handed to us by the authentication provider.
// It is received by reference only; the application does not own it.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// DirectoryKind names one of the disjoint role directories.
type DirectoryKind string

const (
	DirectoryAdmins    DirectoryKind = "admins"
	DirectorySubAdmins DirectoryKind = "sub_admins"
	DirectoryEmployees DirectoryKind = "employees"
)

// Role returns the role granted by a record in this directory.
func (k DirectoryKind) Role() Role {
	switch k {
	case DirectoryAdmins:
		return RoleAdmin
	case DirectorySubAdmins:
		return RoleSubAdmin
	default:
		return RoleEmployee
	}
}

// ParseDirectoryKind accepts either the directory name or the role it grants.
func ParseDirectoryKind(v string) (DirectoryKind, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case string(DirectoryAdmins), string(RoleAdmin):
		return DirectoryAdmins, nil
	case string(DirectorySubAdmins), string(RoleSubAdmin), "sub-admins":
		return DirectorySubAdmins, nil
	case string(DirectoryEmployees), string(RoleEmployee):
		return DirectoryEmployees, nil
	default:
		return "", fmt.Errorf("unknown directory %q", v)
	}
}

// RoleRecord is a directory entry as stored. Status is kept raw so the resolver can
// reject values it does not recognise.
type RoleRecord struct {
	Kind       DirectoryKind
	ID         string
	Email      string
	FirstName  string
	LastName   string
	CompanyRef string // empty for admins
	Status     string
	CreatedAt  time.Time
	ApprovedAt *time.Time
}

// Session is the resolved view of who is logged in and as what. It is derived only
// from the principal and its record, so resolving unchanged data yields equal values.
type Session struct {
	PrincipalID string `json:"principal_id"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        Role   `json:"role"`
	Status      Status `json:"status"`
	CompanyRef  string `json:"company_ref,omitempty"`
}

// IsApproved reports whether the session may enter its own area.
func (s Session) IsApproved() bool { return s.Status == StatusApproved }

// DisplayName joins first and last names.
func (s Session) DisplayName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Credentials carries whatever the configured verifier needs: email/password for the
// password flow, or code/state/nonce for an OIDC callback.
type Credentials struct {
	Email    string
	Password string
	Code     string
	State    string
	Nonce    string
}
