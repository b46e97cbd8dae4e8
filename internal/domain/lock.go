package domain

import "time"

// ManualLock is an explicit, human-authored override pinned to one
// (record, column) cell. It takes precedence over conditional cell rules
// and column grants. Optional target scoping restricts which actors the
// lock applies to; unscoped locks apply to every non-bypass actor.
type ManualLock struct {
	ID         string
	TableID    string
	RecordID   string
	ColumnName string
	Mode       string // "hidden" or "read_only"

	TargetType string // "", "all_members", "specific_role", "specific_user"
	TargetRef  string

	CreatedAt time.Time
}

// AppliesToActor reports whether the lock covers the given actor identity.
func (l *ManualLock) AppliesToActor(userID, roleID, roleName string) bool {
	switch l.TargetType {
	case "", TargetAllMembers:
		return true
	case TargetSpecificUser:
		return l.TargetRef == userID
	case TargetSpecificRole:
		return l.TargetRef != "" && (l.TargetRef == roleID || l.TargetRef == roleName)
	}
	return false
}

// CreateManualLockRequest holds parameters for pinning a manual cell lock.
type CreateManualLockRequest struct {
	TableID    string
	RecordID   string
	ColumnName string
	Mode       string
	TargetType string
	TargetRef  string
}

// Validate checks that the request is well-formed.
func (r *CreateManualLockRequest) Validate() error {
	if r.TableID == "" {
		return ErrValidation("table_id is required")
	}
	if r.RecordID == "" {
		return ErrValidation("record_id is required")
	}
	if r.ColumnName == "" {
		return ErrValidation("column_name is required")
	}
	if r.Mode != LockModeHidden && r.Mode != LockModeReadOnly {
		return ErrValidation("mode must be 'hidden' or 'read_only'")
	}
	switch r.TargetType {
	case "", TargetAllMembers:
	case TargetSpecificRole, TargetSpecificUser:
		if r.TargetRef == "" {
			return ErrValidation("target_ref is required for %s", r.TargetType)
		}
	default:
		return ErrValidation("unknown target_type %q", r.TargetType)
	}
	return nil
}
