package auth

import "net/url"

// Well-known paths of the application surfaces.
const (
	PathLogin             = "/login"
	PathAdminLogin        = "/admin-login"
	PathSubAdminLogin     = "/sub-admin-login"
	PathRegister          = "/register"
	PathSubAdminRegister  = "/sub-admin-register"
	PathAdminDashboard    = "/admin/dashboard"
	PathSubAdminDashboard = "/sub-admin/dashboard"
	PathEmployeeDashboard = "/employee/dashboard"
)

// Login surface indicators carried in the "message" query parameter.
const (
	MessageApprovalPending = "approval_pending"
	MessageAccountRejected = "account_rejected"
)

// Decision is the outcome of a guard evaluation: either allow, or redirect to Target.
type Decision struct {
	Allow  bool   `json:"allow"`
	Target string `json:"target,omitempty"`
}

// Allow returns an allowing decision.
func Allow() Decision { return Decision{Allow: true} }

// Redirect returns a decision redirecting to target.
func Redirect(target string) Decision { return Decision{Target: target} }

// LoginPath returns the login surface for an area.
func LoginPath(area Area) string {
	switch area {
	case AreaAdmin:
		return PathAdminLogin
	case AreaSubAdmin:
		return PathSubAdminLogin
	default:
		return PathLogin
	}
}

// LoginPageAccepts reports whether a principal with role may sign in through the login
// page of area. The admin and sub-admin pages take only their own role and the general
// login page takes admins and employees. Any other area accepts every role.
func LoginPageAccepts(area Area, role Role) bool {
	switch area {
	case AreaAdmin:
		return role == RoleAdmin
	case AreaSubAdmin:
		return role == RoleSubAdmin
	case AreaEmployee:
		return role == RoleAdmin || role == RoleEmployee
	default:
		return true
	}
}

// DashboardPath returns the default page of an area.
func DashboardPath(area Area) string {
	switch area {
	case AreaAdmin:
		return PathAdminDashboard
	case AreaSubAdmin:
		return PathSubAdminDashboard
	case AreaEmployee:
		return PathEmployeeDashboard
	default:
		return PathLogin
	}
}

func loginWithMessage(message string) string {
	q := url.Values{}
	q.Set("message", message)
	return PathLogin + "?" + q.Encode()
}

// Authorize decides whether session may reach area. A nil session is unauthenticated.
// The function is pure and total: every combination yields a Decision.
func Authorize(s *Session, area Area) Decision {
	switch area {
	case AreaPublic:
		return authorizePublic(s)
	case AreaAdmin, AreaSubAdmin, AreaEmployee:
	default:
		return Redirect(Home(s))
	}

	if s == nil {
		return Redirect(LoginPath(area))
	}

	switch s.Role {
	case RoleAdmin:
		if area == AreaAdmin {
			return Allow()
		}
		return Redirect(PathLogin)
	case RoleSubAdmin:
		if area != AreaSubAdmin {
			return Redirect(PathSubAdminDashboard)
		}
		if s.Status == StatusApproved {
			return Allow()
		}
		return Redirect(PathSubAdminLogin)
	case RoleEmployee:
		if area != AreaEmployee {
			return Redirect(PathEmployeeDashboard)
		}
		switch s.Status {
		case StatusApproved:
			return Allow()
		case StatusRejected:
			return Redirect(loginWithMessage(MessageAccountRejected))
		default:
			return Redirect(loginWithMessage(MessageApprovalPending))
		}
	default:
		return Redirect(PathLogin)
	}
}

// authorizePublic keeps logged-in users off the login forms, except when their own
// area would bounce them back here (pending or rejected accounts).
func authorizePublic(s *Session) Decision {
	if s == nil {
		return Allow()
	}
	own := s.Role.Area()
	if own == AreaPublic {
		return Allow()
	}
	if Authorize(s, own).Allow {
		return Redirect(DashboardPath(own))
	}
	return Allow()
}

// Home returns where a session lands when it asks for no particular page.
func Home(s *Session) string {
	if s == nil {
		return PathLogin
	}
	own := s.Role.Area()
	if own == AreaPublic {
		return PathLogin
	}
	d := Authorize(s, own)
	if d.Allow {
		return DashboardPath(own)
	}
	return d.Target
}
