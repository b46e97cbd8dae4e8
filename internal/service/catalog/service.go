package catalog

import (
	"context"
	"errors"
	"log/slog"

	"gridbase/internal/domain"
	"gridbase/internal/service/security"
)

// Service manages bases, tables, and columns. Schema changes below the
// base level are gated on structure access for the affected table.
type Service struct {
	bases       domain.BaseRepository
	tables      domain.TableRepository
	columns     domain.ColumnRepository
	memberships domain.MembershipRepository
	auth        *security.AuthorizationService
	audit       domain.AuditRepository
	logger      *slog.Logger
}

// NewService creates a catalog Service.
func NewService(
	bases domain.BaseRepository,
	tables domain.TableRepository,
	columns domain.ColumnRepository,
	memberships domain.MembershipRepository,
	auth *security.AuthorizationService,
	audit domain.AuditRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		bases:       bases,
		tables:      tables,
		columns:     columns,
		memberships: memberships,
		auth:        auth,
		audit:       audit,
		logger:      logger,
	}
}

// CreateBase creates a base and seeds its roster with the creator as owner.
func (s *Service) CreateBase(ctx context.Context, req domain.CreateBaseRequest) (*domain.Base, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	actor := domain.ActorFromContext(ctx)
	if actor.Anonymous() {
		return nil, domain.ErrAccessDenied("authentication required")
	}

	base, err := s.bases.Create(ctx, &domain.Base{Name: req.Name, CreatedBy: actor.UserID})
	if err != nil {
		return nil, err
	}
	if _, err := s.memberships.Create(ctx, &domain.Membership{
		BaseID:   base.ID,
		UserID:   actor.UserID,
		RoleName: domain.RoleOwner,
	}); err != nil {
		return nil, err
	}
	s.auditBase(ctx, actor.UserID, "CREATE_BASE", base.ID)
	return base, nil
}

// GetBase returns a base the actor is a member of.
func (s *Service) GetBase(ctx context.Context, baseID string) (*domain.Base, error) {
	if _, err := s.requireMember(ctx, baseID); err != nil {
		return nil, err
	}
	return s.bases.GetByID(ctx, baseID)
}

// DeleteBase removes a base and everything under it. Owners only.
func (s *Service) DeleteBase(ctx context.Context, baseID string) error {
	m, err := s.requireMember(ctx, baseID)
	if err != nil {
		return err
	}
	if m.RoleName != domain.RoleOwner {
		return domain.ErrAccessDenied("only owners may delete base %s", baseID)
	}
	if err := s.bases.Delete(ctx, baseID); err != nil {
		return err
	}
	s.auditBase(ctx, m.UserID, "DELETE_BASE", baseID)
	return nil
}

// CreateTable creates a table on a base. Owners and managers only.
func (s *Service) CreateTable(ctx context.Context, req domain.CreateTableRequest) (*domain.Table, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	m, err := s.requireMember(ctx, req.BaseID)
	if err != nil {
		return nil, err
	}
	if !m.Bypass() {
		return nil, domain.ErrAccessDenied("role %q may not create tables on base %s", m.RoleName, req.BaseID)
	}
	table, err := s.tables.Create(ctx, &domain.Table{BaseID: req.BaseID, Name: req.Name})
	if err != nil {
		return nil, err
	}
	s.auditBase(ctx, m.UserID, "CREATE_TABLE", table.ID)
	return table, nil
}

// ListTables returns the tables of a base the actor is a member of.
func (s *Service) ListTables(ctx context.Context, baseID string) ([]domain.Table, error) {
	if _, err := s.requireMember(ctx, baseID); err != nil {
		return nil, err
	}
	return s.tables.ListForBase(ctx, baseID)
}

// DeleteTable removes a table and its records. Owners and managers only.
func (s *Service) DeleteTable(ctx context.Context, tableID string) error {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return err
	}
	m, err := s.requireMember(ctx, table.BaseID)
	if err != nil {
		return err
	}
	if !m.Bypass() {
		return domain.ErrAccessDenied("role %q may not delete table %s", m.RoleName, tableID)
	}
	if err := s.tables.Delete(ctx, tableID); err != nil {
		return err
	}
	s.auditBase(ctx, m.UserID, "DELETE_TABLE", tableID)
	return nil
}

// CreateColumn adds a typed column to a table. Requires structure access.
func (s *Service) CreateColumn(ctx context.Context, req domain.CreateColumnRequest) (*domain.Column, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	snap, err := s.requireStructure(ctx, req.TableID)
	if err != nil {
		return nil, err
	}
	if err := ValidateOptions(snap.Columns, req.DataType, req.Options); err != nil {
		return nil, err
	}
	col, err := s.columns.Create(ctx, &domain.Column{
		TableID:  req.TableID,
		Name:     req.Name,
		DataType: req.DataType,
		Options:  req.Options,
	})
	if err != nil {
		return nil, err
	}
	s.auditBase(ctx, snap.Identity.UserID, "CREATE_COLUMN", req.TableID)
	return col, nil
}

// ListColumns returns a table's columns for any member who can read it.
func (s *Service) ListColumns(ctx context.Context, tableID string) ([]domain.Column, error) {
	snap, err := s.auth.Snapshot(ctx, domain.ActorFromContext(ctx), tableID)
	if err != nil {
		return nil, err
	}
	if !s.auth.CanReadTable(snap) {
		return nil, domain.ErrAccessDenied("no read access to table %s", tableID)
	}
	return snap.Columns, nil
}

// RenameColumn renames a column. The column's type and options stay fixed;
// records keep their values under the old key until rewritten.
func (s *Service) RenameColumn(ctx context.Context, tableID, columnID, name string) (*domain.Column, error) {
	if name == "" {
		return nil, domain.ErrValidation("name is required")
	}
	snap, err := s.requireStructure(ctx, tableID)
	if err != nil {
		return nil, err
	}
	col, err := s.columns.GetByID(ctx, columnID)
	if err != nil {
		return nil, err
	}
	if col.TableID != tableID {
		return nil, domain.ErrNotFound("column %s not found on table %s", columnID, tableID)
	}
	updated, err := s.columns.Update(ctx, col.WithName(name))
	if err != nil {
		return nil, err
	}
	s.auditBase(ctx, snap.Identity.UserID, "RENAME_COLUMN", tableID)
	return updated, nil
}

// UpdateColumnOptions replaces a column's type-specific options after
// re-validating them against the current siblings.
func (s *Service) UpdateColumnOptions(ctx context.Context, tableID, columnID string, opts domain.ColumnOptions) (*domain.Column, error) {
	snap, err := s.requireStructure(ctx, tableID)
	if err != nil {
		return nil, err
	}
	col, err := s.columns.GetByID(ctx, columnID)
	if err != nil {
		return nil, err
	}
	if col.TableID != tableID {
		return nil, domain.ErrNotFound("column %s not found on table %s", columnID, tableID)
	}
	if err := ValidateOptions(snap.Columns, col.DataType, opts); err != nil {
		return nil, err
	}
	updated, err := s.columns.Update(ctx, col.WithOptions(opts))
	if err != nil {
		return nil, err
	}
	s.auditBase(ctx, snap.Identity.UserID, "UPDATE_COLUMN", tableID)
	return updated, nil
}

// DeleteColumn removes a column. Cell values persist in record documents
// but become invisible once the column is gone.
func (s *Service) DeleteColumn(ctx context.Context, tableID, columnID string) error {
	snap, err := s.requireStructure(ctx, tableID)
	if err != nil {
		return err
	}
	col, err := s.columns.GetByID(ctx, columnID)
	if err != nil {
		return err
	}
	if col.TableID != tableID {
		return domain.ErrNotFound("column %s not found on table %s", columnID, tableID)
	}
	if err := s.columns.Delete(ctx, columnID); err != nil {
		return err
	}
	s.auditBase(ctx, snap.Identity.UserID, "DELETE_COLUMN", tableID)
	return nil
}

func (s *Service) requireMember(ctx context.Context, baseID string) (*domain.Membership, error) {
	actor := domain.ActorFromContext(ctx)
	if actor.Anonymous() {
		return nil, domain.ErrAccessDenied("authentication required")
	}
	m, err := s.memberships.GetForUser(ctx, baseID, actor.UserID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, domain.ErrAccessDenied("user %s is not a member of base %s", actor.UserID, baseID)
		}
		return nil, err
	}
	return m, nil
}

func (s *Service) requireStructure(ctx context.Context, tableID string) (*security.AccessSnapshot, error) {
	snap, err := s.auth.Snapshot(ctx, domain.ActorFromContext(ctx), tableID)
	if err != nil {
		return nil, err
	}
	if !s.auth.CanEditStructure(snap) {
		return nil, domain.ErrAccessDenied("no structure access to table %s", tableID)
	}
	return snap, nil
}

func (s *Service) auditBase(ctx context.Context, userID, action, detail string) {
	err := s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: userID,
		Action: action,
		Status: domain.AuditAllowed,
		Detail: detail,
	})
	if err != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}
