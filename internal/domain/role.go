package domain

import "time"

// Built-in role names. Owner and manager bypass fine-grained checks
// entirely; member and viewer are subject to grant resolution.
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleMember  = "member"
	RoleViewer  = "viewer"
)

// BuiltinRole reports whether name is one of the built-in role names.
func BuiltinRole(name string) bool {
	switch name {
	case RoleOwner, RoleManager, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Column visibility values for ColumnPerm.
const (
	VisibilityVisible = "visible"
	VisibilityHidden  = "hidden"
)

// Column edit modes for ColumnPerm.
const (
	EditModeNone      = "none"
	EditModeReadOnly  = "read_only"
	EditModeReadWrite = "read_write"
)

// Lock modes shared by conditional cell rules and manual cell locks.
const (
	LockModeReadOnly = "read_only"
	LockModeHidden   = "hidden"
)

// Role is a named bundle of grants scoped to one base. Its table perms,
// column perms, row policies, and cell rules live in their own stores,
// keyed by role id; at most one table perm per (role, table) and one
// column perm per (role, table, column), enforced by schema uniqueness.
type Role struct {
	ID        string
	BaseID    string
	Name      string
	CreatedAt time.Time
}

// TablePerm is a role's per-table create/read/update/delete switches.
type TablePerm struct {
	ID        string
	RoleID    string
	TableID   string
	CanCreate bool
	CanRead   bool
	CanUpdate bool
	CanDelete bool
}

// ColumnPerm is a role's per-column visibility and edit mode.
type ColumnPerm struct {
	ID         string
	RoleID     string
	TableID    string
	ColumnName string
	Visibility string // "visible" or "hidden"
	EditMode   string // "none", "read_only", "read_write"
	Deletable  bool
}

// RuleCondition is a simple field comparison evaluated against a record's
// current field values.
type RuleCondition struct {
	Field string `json:"field"`
	Op    string `json:"op"` // "equals" or "not_equals"
	Value any    `json:"value"`
}

// Matches evaluates the condition against a record's fields.
func (c RuleCondition) Matches(fields map[string]any) bool {
	got, ok := fields[c.Field]
	switch c.Op {
	case "equals":
		return ok && looseEqual(got, c.Value)
	case "not_equals":
		return !ok || !looseEqual(got, c.Value)
	}
	return false
}

// looseEqual compares field values the way JSON round-tripping leaves them:
// numbers as float64, everything else by interface equality.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// CellRule is a conditional, data-dependent lock: when the condition
// matches a record, the listed columns take the rule's lock mode for that
// record. A nil RoleID applies the rule to every non-bypass actor.
type CellRule struct {
	ID        string
	TableID   string
	RoleID    *string
	Condition RuleCondition
	Columns   []string
	Mode      string // "read_only" or "hidden"
	CreatedAt time.Time
}

// AppliesTo reports whether the rule covers the given column name.
func (r *CellRule) AppliesTo(columnName string) bool {
	for _, c := range r.Columns {
		if c == columnName {
			return true
		}
	}
	return false
}

// CreateRoleRequest holds parameters for creating a custom role.
type CreateRoleRequest struct {
	BaseID string
	Name   string
}

// Validate checks that the request is well-formed.
func (r *CreateRoleRequest) Validate() error {
	if r.BaseID == "" {
		return ErrValidation("base_id is required")
	}
	if r.Name == "" {
		return ErrValidation("name is required")
	}
	if BuiltinRole(r.Name) {
		return ErrValidation("%q is a built-in role name", r.Name)
	}
	return nil
}

// CreateCellRuleRequest holds parameters for creating a conditional rule.
type CreateCellRuleRequest struct {
	TableID   string
	RoleID    *string
	Condition RuleCondition
	Columns   []string
	Mode      string
}

// Validate checks that the request is well-formed.
func (r *CreateCellRuleRequest) Validate() error {
	if r.TableID == "" {
		return ErrValidation("table_id is required")
	}
	if r.Condition.Field == "" {
		return ErrValidation("condition field is required")
	}
	if r.Condition.Op != "equals" && r.Condition.Op != "not_equals" {
		return ErrValidation("condition op must be 'equals' or 'not_equals'")
	}
	if len(r.Columns) == 0 {
		return ErrValidation("at least one affected column is required")
	}
	if r.Mode != LockModeReadOnly && r.Mode != LockModeHidden {
		return ErrValidation("mode must be 'read_only' or 'hidden'")
	}
	return nil
}
