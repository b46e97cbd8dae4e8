package security

import (
	"context"

	"gridbase/internal/domain"
)

// RoleService administers custom roles and the permission artifacts hanging
// off them: table perms, column perms, row policies, and conditional cell
// rules.
type RoleService struct {
	gate     adminGate
	roles    domain.RoleRepository
	policies domain.RowPolicyRepository
	rules    domain.CellRuleRepository
	audit    domain.AuditRepository
}

// NewRoleService creates a new RoleService.
func NewRoleService(
	tables domain.TableRepository,
	memberships domain.MembershipRepository,
	roles domain.RoleRepository,
	policies domain.RowPolicyRepository,
	rules domain.CellRuleRepository,
	audit domain.AuditRepository,
) *RoleService {
	return &RoleService{
		gate:     adminGate{tables: tables, memberships: memberships},
		roles:    roles,
		policies: policies,
		rules:    rules,
		audit:    audit,
	}
}

// CreateRole creates a custom role on a base.
func (s *RoleService) CreateRole(ctx context.Context, req domain.CreateRoleRequest) (*domain.Role, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	userID, err := s.gate.requireBaseAdmin(ctx, req.BaseID)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.Create(ctx, &domain.Role{BaseID: req.BaseID, Name: req.Name})
	if err != nil {
		return nil, err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "CREATE_ROLE", Status: domain.AuditAllowed, Detail: req.Name,
	})
	return role, nil
}

// ListRoles returns the custom roles of a base.
func (s *RoleService) ListRoles(ctx context.Context, baseID string) ([]domain.Role, error) {
	if _, err := s.gate.requireBaseAdmin(ctx, baseID); err != nil {
		return nil, err
	}
	return s.roles.ListForBase(ctx, baseID)
}

// DeleteRole removes a custom role and, via schema cascade, its perms,
// policies, and rules.
func (s *RoleService) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	userID, err := s.gate.requireBaseAdmin(ctx, role.BaseID)
	if err != nil {
		return err
	}
	if err := s.roles.Delete(ctx, roleID); err != nil {
		return err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "DELETE_ROLE", Status: domain.AuditAllowed, Detail: role.Name,
	})
	return nil
}

// SetTablePerm upserts a role's table-level CRUD switches.
func (s *RoleService) SetTablePerm(ctx context.Context, perm domain.TablePerm) error {
	if perm.RoleID == "" || perm.TableID == "" {
		return domain.ErrValidation("role_id and table_id are required")
	}
	userID, err := s.gate.requireTableAdmin(ctx, perm.TableID)
	if err != nil {
		return err
	}
	if _, err := s.roles.GetByID(ctx, perm.RoleID); err != nil {
		return err
	}
	if err := s.roles.UpsertTablePerm(ctx, &perm); err != nil {
		return err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "SET_TABLE_PERM", TableID: perm.TableID, Status: domain.AuditAllowed,
	})
	return nil
}

// SetColumnPerm upserts a role's per-column visibility and edit mode.
func (s *RoleService) SetColumnPerm(ctx context.Context, perm domain.ColumnPerm) error {
	if perm.RoleID == "" || perm.TableID == "" || perm.ColumnName == "" {
		return domain.ErrValidation("role_id, table_id, and column_name are required")
	}
	switch perm.Visibility {
	case domain.VisibilityVisible, domain.VisibilityHidden:
	default:
		return domain.ErrValidation("visibility must be 'visible' or 'hidden'")
	}
	switch perm.EditMode {
	case domain.EditModeNone, domain.EditModeReadOnly, domain.EditModeReadWrite:
	default:
		return domain.ErrValidation("edit_mode must be 'none', 'read_only', or 'read_write'")
	}
	userID, err := s.gate.requireTableAdmin(ctx, perm.TableID)
	if err != nil {
		return err
	}
	if err := s.roles.UpsertColumnPerm(ctx, &perm); err != nil {
		return err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "SET_COLUMN_PERM", TableID: perm.TableID, Status: domain.AuditAllowed,
	})
	return nil
}

// AttachRowPolicy appends a row-policy template to a role/table pair.
func (s *RoleService) AttachRowPolicy(ctx context.Context, req domain.CreateRowPolicyRequest) (*domain.RowPolicy, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	userID, err := s.gate.requireTableAdmin(ctx, req.TableID)
	if err != nil {
		return nil, err
	}
	if _, err := s.roles.GetByID(ctx, req.RoleID); err != nil {
		return nil, err
	}
	p, err := s.policies.Create(ctx, &domain.RowPolicy{
		RoleID:   req.RoleID,
		TableID:  req.TableID,
		Template: req.Template,
	})
	if err != nil {
		return nil, err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "ATTACH_ROW_POLICY", TableID: req.TableID, Status: domain.AuditAllowed,
	})
	return p, nil
}

// DetachRowPolicy removes a row policy from a table.
func (s *RoleService) DetachRowPolicy(ctx context.Context, tableID, policyID string) error {
	userID, err := s.gate.requireTableAdmin(ctx, tableID)
	if err != nil {
		return err
	}
	if err := s.policies.Delete(ctx, policyID); err != nil {
		return err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "DETACH_ROW_POLICY", TableID: tableID, Status: domain.AuditAllowed,
	})
	return nil
}

// CreateCellRule attaches a conditional cell rule to a table.
func (s *RoleService) CreateCellRule(ctx context.Context, req domain.CreateCellRuleRequest) (*domain.CellRule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	userID, err := s.gate.requireTableAdmin(ctx, req.TableID)
	if err != nil {
		return nil, err
	}
	r, err := s.rules.Create(ctx, &domain.CellRule{
		TableID:   req.TableID,
		RoleID:    req.RoleID,
		Condition: req.Condition,
		Columns:   req.Columns,
		Mode:      req.Mode,
	})
	if err != nil {
		return nil, err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "CREATE_CELL_RULE", TableID: req.TableID, Status: domain.AuditAllowed,
	})
	return r, nil
}

// DeleteCellRule removes a conditional cell rule.
func (s *RoleService) DeleteCellRule(ctx context.Context, tableID, ruleID string) error {
	userID, err := s.gate.requireTableAdmin(ctx, tableID)
	if err != nil {
		return err
	}
	if err := s.rules.Delete(ctx, ruleID); err != nil {
		return err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "DELETE_CELL_RULE", TableID: tableID, Status: domain.AuditAllowed,
	})
	return nil
}
