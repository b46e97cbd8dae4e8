package domain

import "time"

// Grant target types, ordered by specificity.
const (
	TargetAllMembers   = "all_members"
	TargetSpecificRole = "specific_role"
	TargetSpecificUser = "specific_user"
)

// TargetRank returns the priority of a target type: specific_user (3) >
// specific_role (2) > all_members (1). Unknown types rank 0 and lose to
// everything.
func TargetRank(targetType string) int {
	switch targetType {
	case TargetSpecificUser:
		return 3
	case TargetSpecificRole:
		return 2
	case TargetAllMembers:
		return 1
	}
	return 0
}

// Grant is an explicit permission statement scoped to a table, a
// (table, column), or a (record, column) cell. Permission fields are
// tri-state: nil means unset, and unset fields of the winning grant fall
// through to the open defaults.
type Grant struct {
	ID         string
	TableID    string
	ColumnName string // "" for table-scoped grants
	RecordID   string // "" unless cell-scoped

	TargetType string
	TargetRef  string // role id or user id; "" for all_members

	CanView          *bool
	CanEdit          *bool
	CanEditStructure *bool
	IsHidden         *bool

	CreatedAt time.Time
}

// Addresses reports whether the grant targets the given actor identity.
func (g *Grant) Addresses(userID string, roleID string, roleName string) bool {
	switch g.TargetType {
	case TargetAllMembers:
		return true
	case TargetSpecificUser:
		return g.TargetRef == userID
	case TargetSpecificRole:
		return g.TargetRef != "" && (g.TargetRef == roleID || g.TargetRef == roleName)
	}
	return false
}

// EffectiveGrant is the resolved permission for one scope after priority
// resolution. Fields are concrete: defaults have already been applied.
type EffectiveGrant struct {
	CanView          bool
	CanEdit          bool
	CanEditStructure bool
	IsHidden         bool
}

// OpenGrant is the effective grant when no grant addresses the scope:
// the system is open by default when un-configured.
func OpenGrant() EffectiveGrant {
	return EffectiveGrant{CanView: true, CanEdit: true, CanEditStructure: true}
}

// FullAccess is the effective grant for owner/manager bypass.
func FullAccess() EffectiveGrant {
	return EffectiveGrant{CanView: true, CanEdit: true, CanEditStructure: true}
}

// DeniedGrant is the effective grant for anonymous actors.
func DeniedGrant() EffectiveGrant {
	return EffectiveGrant{}
}

// CreateGrantRequest holds parameters for creating a scoped grant.
type CreateGrantRequest struct {
	TableID    string
	ColumnName string
	RecordID   string
	TargetType string
	TargetRef  string

	CanView          *bool
	CanEdit          *bool
	CanEditStructure *bool
	IsHidden         *bool
}

// Validate checks that the request is well-formed.
func (r *CreateGrantRequest) Validate() error {
	if r.TableID == "" {
		return ErrValidation("table_id is required")
	}
	switch r.TargetType {
	case TargetAllMembers:
		if r.TargetRef != "" {
			return ErrValidation("target_ref must be empty for all_members")
		}
	case TargetSpecificRole, TargetSpecificUser:
		if r.TargetRef == "" {
			return ErrValidation("target_ref is required for %s", r.TargetType)
		}
	default:
		return ErrValidation("unknown target_type %q", r.TargetType)
	}
	if r.RecordID != "" && r.ColumnName == "" {
		return ErrValidation("cell-scoped grants require a column_name")
	}
	if r.CanView == nil && r.CanEdit == nil && r.CanEditStructure == nil && r.IsHidden == nil {
		return ErrValidation("at least one permission field must be set")
	}
	return nil
}
