package domain

// Roles with elevated privilege.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Member ties a user to a company and, optionally, one of its branches.
type Member struct {
	UserID   int64
	TenantID int64
	BranchID *int64
	Role     string
}

// Privileged reports whether the member's role grants administrative rights.
func (m Member) Privileged() bool {
	return m.Role == RoleAdmin || m.Role == RoleSuperAdmin
}

// Identity is an authorized caller.
type Identity struct {
	UserID     int64
	TenantID   int64
	BranchID   *int64
	Privileged bool
}

// Scope returns the company/branch scope the caller acts within.
func (i Identity) Scope() Scope {
	return Scope{TenantID: i.TenantID, BranchID: i.BranchID}
}
