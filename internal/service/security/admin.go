package security

import (
	"context"
	"errors"

	"gridbase/internal/domain"
)

// adminGate authorizes administrative mutations: only owner/manager
// memberships on the affected base may change permission configuration.
type adminGate struct {
	tables      domain.TableRepository
	memberships domain.MembershipRepository
}

// requireBaseAdmin returns the acting user id, or AccessDeniedError when
// the actor is not an owner/manager of the base.
func (g adminGate) requireBaseAdmin(ctx context.Context, baseID string) (string, error) {
	actor := domain.ActorFromContext(ctx)
	if actor.Anonymous() {
		return "", domain.ErrAccessDenied("authentication required")
	}
	m, err := g.memberships.GetForUser(ctx, baseID, actor.UserID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return "", domain.ErrAccessDenied("user %s is not a member of base %s", actor.UserID, baseID)
		}
		return "", err
	}
	if !m.Bypass() {
		return "", domain.ErrAccessDenied("role %q may not administer base %s", m.RoleName, baseID)
	}
	return actor.UserID, nil
}

// requireTableAdmin resolves the table's base and gates on it.
func (g adminGate) requireTableAdmin(ctx context.Context, tableID string) (string, error) {
	table, err := g.tables.GetByID(ctx, tableID)
	if err != nil {
		return "", err
	}
	return g.requireBaseAdmin(ctx, table.BaseID)
}

// GrantService provides scoped-grant and manual-lock administration.
type GrantService struct {
	gate  adminGate
	repo  domain.GrantRepository
	locks domain.ManualLockRepository
	audit domain.AuditRepository
}

// NewGrantService creates a new GrantService.
func NewGrantService(
	tables domain.TableRepository,
	memberships domain.MembershipRepository,
	repo domain.GrantRepository,
	locks domain.ManualLockRepository,
	audit domain.AuditRepository,
) *GrantService {
	return &GrantService{
		gate:  adminGate{tables: tables, memberships: memberships},
		repo:  repo,
		locks: locks,
		audit: audit,
	}
}

// CreateGrant creates a new scoped grant.
func (s *GrantService) CreateGrant(ctx context.Context, req domain.CreateGrantRequest) (*domain.Grant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	userID, err := s.gate.requireTableAdmin(ctx, req.TableID)
	if err != nil {
		return nil, err
	}
	g, err := s.repo.Create(ctx, &domain.Grant{
		TableID:          req.TableID,
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
		return nil, err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "CREATE_GRANT", TableID: req.TableID, Status: domain.AuditAllowed,
	})
	return g, nil
}

// ListGrants returns every grant on a table.
func (s *GrantService) ListGrants(ctx context.Context, tableID string) ([]domain.Grant, error) {
	if _, err := s.gate.requireTableAdmin(ctx, tableID); err != nil {
		return nil, err
	}
	return s.repo.ListForTable(ctx, tableID)
}

// DeleteGrant removes a grant.
func (s *GrantService) DeleteGrant(ctx context.Context, grantID string) error {
	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return err
	}
	userID, err := s.gate.requireTableAdmin(ctx, g.TableID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, grantID); err != nil {
		return err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "DELETE_GRANT", TableID: g.TableID, Status: domain.AuditAllowed,
	})
	return nil
}

// CreateManualLock pins a manual cell lock.
func (s *GrantService) CreateManualLock(ctx context.Context, req domain.CreateManualLockRequest) (*domain.ManualLock, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	userID, err := s.gate.requireTableAdmin(ctx, req.TableID)
	if err != nil {
		return nil, err
	}
	l, err := s.locks.Create(ctx, &domain.ManualLock{
		TableID:    req.TableID,
		RecordID:   req.RecordID,
		ColumnName: req.ColumnName,
		Mode:       req.Mode,
		TargetType: req.TargetType,
		TargetRef:  req.TargetRef,
	})
	if err != nil {
		return nil, err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "CREATE_MANUAL_LOCK", TableID: req.TableID, Status: domain.AuditAllowed,
	})
	return l, nil
}

// ListManualLocks returns every manual lock on a table.
func (s *GrantService) ListManualLocks(ctx context.Context, tableID string) ([]domain.ManualLock, error) {
	if _, err := s.gate.requireTableAdmin(ctx, tableID); err != nil {
		return nil, err
	}
	return s.locks.ListForTable(ctx, tableID)
}

// DeleteManualLock removes a manual lock.
func (s *GrantService) DeleteManualLock(ctx context.Context, tableID, lockID string) error {
	userID, err := s.gate.requireTableAdmin(ctx, tableID)
	if err != nil {
		return err
	}
	if err := s.locks.Delete(ctx, lockID); err != nil {
		return err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID, Action: "DELETE_MANUAL_LOCK", TableID: tableID, Status: domain.AuditAllowed,
	})
	return nil
}
