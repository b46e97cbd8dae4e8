package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gridbase/internal/domain"
)

// grantService defines the grant and lock operations used by the API handler.
type grantService interface {
	CreateGrant(ctx context.Context, req domain.CreateGrantRequest) (*domain.Grant, error)
	ListGrants(ctx context.Context, tableID string) ([]domain.Grant, error)
	DeleteGrant(ctx context.Context, grantID string) error
	CreateManualLock(ctx context.Context, req domain.CreateManualLockRequest) (*domain.ManualLock, error)
	ListManualLocks(ctx context.Context, tableID string) ([]domain.ManualLock, error)
	DeleteManualLock(ctx context.Context, tableID, lockID string) error
}

// roleService defines the role administration operations used by the API
// handler.
type roleService interface {
	CreateRole(ctx context.Context, req domain.CreateRoleRequest) (*domain.Role, error)
	ListRoles(ctx context.Context, baseID string) ([]domain.Role, error)
	DeleteRole(ctx context.Context, roleID string) error
	SetTablePerm(ctx context.Context, perm domain.TablePerm) error
	SetColumnPerm(ctx context.Context, perm domain.ColumnPerm) error
	AttachRowPolicy(ctx context.Context, req domain.CreateRowPolicyRequest) (*domain.RowPolicy, error)
	DetachRowPolicy(ctx context.Context, tableID, policyID string) error
	CreateCellRule(ctx context.Context, req domain.CreateCellRuleRequest) (*domain.CellRule, error)
	DeleteCellRule(ctx context.Context, tableID, ruleID string) error
}

// membershipService defines the roster operations used by the API handler.
type membershipService interface {
	AddMember(ctx context.Context, req domain.CreateMembershipRequest) (*domain.Membership, error)
	ListMembers(ctx context.Context, baseID string, page domain.PageRequest) ([]domain.Membership, int64, error)
	RemoveMember(ctx context.Context, baseID, membershipID string) error
}

// === Grants ===

type createGrantRequest struct {
	ColumnName       string `json:"columnName,omitempty"`
	RecordID         string `json:"recordId,omitempty"`
	TargetType       string `json:"targetType"`
	TargetRef        string `json:"targetRef,omitempty"`
	CanView          *bool  `json:"canView,omitempty"`
	CanEdit          *bool  `json:"canEdit,omitempty"`
	CanEditStructure *bool  `json:"canEditStructure,omitempty"`
	IsHidden         *bool  `json:"isHidden,omitempty"`
}

type grantResponse struct {
	ID               string `json:"id"`
	TableID          string `json:"tableId"`
	ColumnName       string `json:"columnName,omitempty"`
	RecordID         string `json:"recordId,omitempty"`
	TargetType       string `json:"targetType"`
	TargetRef        string `json:"targetRef,omitempty"`
	CanView          *bool  `json:"canView,omitempty"`
	CanEdit          *bool  `json:"canEdit,omitempty"`
	CanEditStructure *bool  `json:"canEditStructure,omitempty"`
	IsHidden         *bool  `json:"isHidden,omitempty"`
}

func grantToAPI(g *domain.Grant) grantResponse {
	return grantResponse{
		ID:               g.ID,
		TableID:          g.TableID,
		ColumnName:       g.ColumnName,
		RecordID:         g.RecordID,
		TargetType:       g.TargetType,
		TargetRef:        g.TargetRef,
		CanView:          g.CanView,
		CanEdit:          g.CanEdit,
		CanEditStructure: g.CanEditStructure,
		IsHidden:         g.IsHidden,
	}
}

func (h *APIHandler) createGrant(w http.ResponseWriter, r *http.Request) {
	var req createGrantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	g, err := h.grants.CreateGrant(r.Context(), domain.CreateGrantRequest{
		TableID:          chi.URLParam(r, "tableID"),
		ColumnName:       req.ColumnName,
		RecordID:         req.RecordID,
		TargetType:       req.TargetType,
		TargetRef:        req.TargetRef,
		CanView:          req.CanView,
		CanEdit:          req.CanEdit,
		CanEditStructure: req.CanEditStructure,
		IsHidden:         req.IsHidden,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grantToAPI(g))
}

func (h *APIHandler) listGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.grants.ListGrants(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]grantResponse, len(grants))
	for i := range grants {
		out[i] = grantToAPI(&grants[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) deleteGrant(w http.ResponseWriter, r *http.Request) {
	if err := h.grants.DeleteGrant(r.Context(), chi.URLParam(r, "grantID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Manual locks ===

type createLockRequest struct {
	RecordID   string `json:"recordId"`
	ColumnName string `json:"columnName"`
	Mode       string `json:"mode"`
	TargetType string `json:"targetType,omitempty"`
	TargetRef  string `json:"targetRef,omitempty"`
}

func (h *APIHandler) createLock(w http.ResponseWriter, r *http.Request) {
	var req createLockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	l, err := h.grants.CreateManualLock(r.Context(), domain.CreateManualLockRequest{
		TableID:    chi.URLParam(r, "tableID"),
		RecordID:   req.RecordID,
		ColumnName: req.ColumnName,
		Mode:       req.Mode,
		TargetType: req.TargetType,
		TargetRef:  req.TargetRef,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *APIHandler) listLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := h.grants.ListManualLocks(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locks)
}

func (h *APIHandler) deleteLock(w http.ResponseWriter, r *http.Request) {
	err := h.grants.DeleteManualLock(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "lockID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Roles, perms, policies, rules ===

type createRoleRequest struct {
	Name string `json:"name"`
}

func (h *APIHandler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	role, err := h.roles.CreateRole(r.Context(), domain.CreateRoleRequest{
		BaseID: chi.URLParam(r, "baseID"),
		Name:   req.Name,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (h *APIHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context(), chi.URLParam(r, "baseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (h *APIHandler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.DeleteRole(r.Context(), chi.URLParam(r, "roleID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setTablePermRequest struct {
	RoleID    string `json:"roleId"`
	CanCreate bool   `json:"canCreate"`
	CanRead   bool   `json:"canRead"`
	CanUpdate bool   `json:"canUpdate"`
	CanDelete bool   `json:"canDelete"`
}

func (h *APIHandler) setTablePerm(w http.ResponseWriter, r *http.Request) {
	var req setTablePermRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := h.roles.SetTablePerm(r.Context(), domain.TablePerm{
		RoleID:    req.RoleID,
		TableID:   chi.URLParam(r, "tableID"),
		CanCreate: req.CanCreate,
		CanRead:   req.CanRead,
		CanUpdate: req.CanUpdate,
		CanDelete: req.CanDelete,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setColumnPermRequest struct {
	RoleID     string `json:"roleId"`
	ColumnName string `json:"columnName"`
	Visibility string `json:"visibility"`
	EditMode   string `json:"editMode"`
	Deletable  bool   `json:"deletable"`
}

func (h *APIHandler) setColumnPerm(w http.ResponseWriter, r *http.Request) {
	var req setColumnPermRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := h.roles.SetColumnPerm(r.Context(), domain.ColumnPerm{
		RoleID:     req.RoleID,
		TableID:    chi.URLParam(r, "tableID"),
		ColumnName: req.ColumnName,
		Visibility: req.Visibility,
		EditMode:   req.EditMode,
		Deletable:  req.Deletable,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type attachPolicyRequest struct {
	RoleID   string              `json:"roleId"`
	Template domain.TemplateNode `json:"template"`
}

func (h *APIHandler) attachPolicy(w http.ResponseWriter, r *http.Request) {
	var req attachPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.roles.AttachRowPolicy(r.Context(), domain.CreateRowPolicyRequest{
		RoleID:   req.RoleID,
		TableID:  chi.URLParam(r, "tableID"),
		Template: req.Template,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *APIHandler) detachPolicy(w http.ResponseWriter, r *http.Request) {
	err := h.roles.DetachRowPolicy(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "policyID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createRuleRequest struct {
	RoleID    *string              `json:"roleId,omitempty"`
	Condition domain.RuleCondition `json:"condition"`
	Columns   []string             `json:"columns"`
	Mode      string               `json:"mode"`
}

func (h *APIHandler) createRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rule, err := h.roles.CreateCellRule(r.Context(), domain.CreateCellRuleRequest{
		TableID:   chi.URLParam(r, "tableID"),
		RoleID:    req.RoleID,
		Condition: req.Condition,
		Columns:   req.Columns,
		Mode:      req.Mode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *APIHandler) deleteRule(w http.ResponseWriter, r *http.Request) {
	err := h.roles.DeleteCellRule(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Memberships ===

type addMemberRequest struct {
	UserID   string  `json:"userId"`
	RoleName string  `json:"roleName,omitempty"`
	RoleID   *string `json:"roleId,omitempty"`
}

func (h *APIHandler) addMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.memberships.AddMember(r.Context(), domain.CreateMembershipRequest{
		BaseID:   chi.URLParam(r, "baseID"),
		UserID:   req.UserID,
		RoleName: req.RoleName,
		RoleID:   req.RoleID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *APIHandler) listMembers(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	members, total, err := h.memberships.ListMembers(r.Context(), chi.URLParam(r, "baseID"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"members":       members,
		"total":         total,
		"nextPageToken": domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

func (h *APIHandler) removeMember(w http.ResponseWriter, r *http.Request) {
	err := h.memberships.RemoveMember(r.Context(), chi.URLParam(r, "baseID"), chi.URLParam(r, "membershipID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
