// Package records implements the record retrieval and mutation pipeline:
// authorize table access, build the row-policy filter, fetch rows, derive
// computed values, mask cells, and return views.
package records

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"gridbase/internal/domain"
	"gridbase/internal/service/derive"
	"gridbase/internal/service/security"
)

const maskConcurrency = 8

// Service runs the retrieval pipeline and the gated record mutations.
type Service struct {
	auth       *security.AuthorizationService
	policyEval *security.RowPolicyEvaluator
	cellEval   *security.CellOverrideEvaluator
	engine     *derive.Engine
	records    domain.RecordRepository
	audit      domain.AuditRepository
	logger     *slog.Logger
}

// NewService wires the retrieval pipeline.
func NewService(
	auth *security.AuthorizationService,
	policyEval *security.RowPolicyEvaluator,
	cellEval *security.CellOverrideEvaluator,
	engine *derive.Engine,
	records domain.RecordRepository,
	audit domain.AuditRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		auth:       auth,
		policyEval: policyEval,
		cellEval:   cellEval,
		engine:     engine,
		records:    records,
		audit:      audit,
		logger:     logger,
	}
}

// Retrieve returns the page of records the acting user may see, with
// computed columns derived and every cell masked per that user's access.
func (s *Service) Retrieve(ctx context.Context, tableID string, opts domain.QueryOptions) (*domain.RecordPage, error) {
	actor := domain.ActorFromContext(ctx)
	snap, err := s.auth.Snapshot(ctx, actor, tableID)
	if err != nil {
		return nil, err
	}
	if !s.auth.CanReadTable(snap) {
		s.auditEntry(ctx, snap, "RETRIEVE_RECORDS", domain.AuditDenied, "")
		return nil, domain.ErrAccessDenied("no read access to table %s", tableID)
	}

	filter, err := s.rowFilter(ctx, snap, opts.Filter)
	if err != nil {
		return nil, err
	}

	rows, total, err := s.records.FindRows(ctx, tableID, filter, opts.Sort, opts.Page)
	if err != nil {
		return nil, err
	}

	views, err := s.assembleViews(ctx, snap, rows)
	if err != nil {
		return nil, err
	}

	s.auditEntry(ctx, snap, "RETRIEVE_RECORDS", domain.AuditAllowed, "")
	return &domain.RecordPage{Rows: views, Total: total}, nil
}

// Get returns a single record view, or NotFoundError when the record does
// not exist or the actor's row policies exclude it. The two cases are
// indistinguishable to the caller.
func (s *Service) Get(ctx context.Context, tableID, recordID string) (*domain.RecordView, error) {
	actor := domain.ActorFromContext(ctx)
	snap, err := s.auth.Snapshot(ctx, actor, tableID)
	if err != nil {
		return nil, err
	}
	if !s.auth.CanReadTable(snap) {
		s.auditEntry(ctx, snap, "GET_RECORD", domain.AuditDenied, recordID)
		return nil, domain.ErrAccessDenied("no read access to table %s", tableID)
	}

	rec, err := s.visibleRecord(ctx, snap, recordID)
	if err != nil {
		return nil, err
	}

	views, err := s.assembleViews(ctx, snap, []domain.Record{*rec})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// rowFilter combines the caller's filter with the actor's row-policy
// filter. A malformed policy template aborts the request; it never widens.
func (s *Service) rowFilter(ctx context.Context, snap *security.AccessSnapshot, callerFilter *domain.Predicate) (*domain.Predicate, error) {
	policyFilter, err := s.policyEval.BuildFilter(snap.Policies, snap.PolicyCtx)
	if err != nil {
		s.auditEntry(ctx, snap, "RETRIEVE_RECORDS", domain.AuditDenied, "malformed row policy")
		return nil, err
	}
	return domain.And(callerFilter, policyFilter), nil
}

// visibleRecord fetches one record through the row-policy filter.
func (s *Service) visibleRecord(ctx context.Context, snap *security.AccessSnapshot, recordID string) (*domain.Record, error) {
	filter, err := s.rowFilter(ctx, snap, domain.FieldEQ("id", recordID))
	if err != nil {
		return nil, err
	}
	rows, _, err := s.records.FindRows(ctx, snap.Table.ID, filter, nil, domain.PageRequest{MaxResults: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound("record %s not found", recordID)
	}
	return &rows[0], nil
}

// assembleViews derives computed columns for the batch, then masks every
// cell per record. Views preserve fetch order.
func (s *Service) assembleViews(ctx context.Context, snap *security.AccessSnapshot, rows []domain.Record) ([]domain.RecordView, error) {
	derived, err := s.engine.Derive(ctx, snap.Columns, rows)
	if err != nil {
		return nil, err
	}

	// Column grants resolve once per column; only the per-cell tiers are
	// re-evaluated per record.
	columnGrants := make(map[string]domain.EffectiveGrant, len(snap.Columns))
	for _, col := range snap.Columns {
		columnGrants[col.Name] = s.auth.ColumnGrant(snap, col.Name)
	}

	views := make([]domain.RecordView, len(rows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maskConcurrency)
	for i := range rows {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			views[i] = s.maskRecord(snap, &rows[i], derived[i], columnGrants)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// maskRecord builds one view: hidden cells appear in neither Fields nor
// Permissions; visible cells carry their editability flag. Computed cells
// are never editable.
func (s *Service) maskRecord(snap *security.AccessSnapshot, rec *domain.Record, derived map[string]any, columnGrants map[string]domain.EffectiveGrant) domain.RecordView {
	view := domain.RecordView{
		ID:          rec.ID,
		Fields:      make(map[string]any, len(snap.Columns)),
		Permissions: make(map[string]bool, len(snap.Columns)),
		CreatedBy:   rec.CreatedBy,
		CreatedAt:   rec.CreatedAt,
	}
	for _, col := range snap.Columns {
		access := s.cellEval.MaskCell(snap, rec, col.Name, columnGrants[col.Name])
		if !access.Visible {
			continue
		}
		if col.DataType.Computed() {
			view.Fields[col.Name] = derived[col.Name]
			view.Permissions[col.Name] = false
			continue
		}
		view.Fields[col.Name] = rec.Fields[col.Name]
		view.Permissions[col.Name] = access.Editable
	}
	return view
}

func (s *Service) auditEntry(ctx context.Context, snap *security.AccessSnapshot, action, status, detail string) {
	err := s.audit.Insert(ctx, &domain.AuditEntry{
		UserID:  snap.Identity.UserID,
		Action:  action,
		TableID: snap.Table.ID,
		Status:  status,
		Detail:  detail,
	})
	if err != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}
