package domain

import "time"

// Membership binds a user to a base with either a built-in role name or a
// custom role reference. Exactly one membership per (base, user).
type Membership struct {
	ID        string
	BaseID    string
	UserID    string
	RoleName  string  // built-in name, or "" when RoleID is set
	RoleID    *string // custom role reference
	CreatedAt time.Time
}

// Bypass reports whether the membership's role skips fine-grained checks.
func (m *Membership) Bypass() bool {
	return m.RoleName == RoleOwner || m.RoleName == RoleManager
}

// CreateMembershipRequest holds parameters for adding a user to a base.
type CreateMembershipRequest struct {
	BaseID   string
	UserID   string
	RoleName string
	RoleID   *string
}

// Validate checks that the request is well-formed.
func (r *CreateMembershipRequest) Validate() error {
	if r.BaseID == "" {
		return ErrValidation("base_id is required")
	}
	if r.UserID == "" {
		return ErrValidation("user_id is required")
	}
	if r.RoleID == nil {
		if r.RoleName == "" {
			return ErrValidation("role_name or role_id is required")
		}
		if !BuiltinRole(r.RoleName) {
			return ErrValidation("unknown built-in role %q", r.RoleName)
		}
	} else if r.RoleName != "" {
		return ErrValidation("role_name and role_id are mutually exclusive")
	}
	return nil
}
