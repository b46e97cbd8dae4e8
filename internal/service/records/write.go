package records

import (
	"context"

	"gridbase/internal/domain"
	"gridbase/internal/service/catalog"
)

// Create inserts a record after validating every field against the table's
// column types. Computed columns reject writes outright.
func (s *Service) Create(ctx context.Context, req domain.CreateRecordRequest) (*domain.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	actor := domain.ActorFromContext(ctx)
	snap, err := s.auth.Snapshot(ctx, actor, req.TableID)
	if err != nil {
		return nil, err
	}
	if !s.auth.CanCreateRecords(snap) {
		s.auditEntry(ctx, snap, "CREATE_RECORD", domain.AuditDenied, "")
		return nil, domain.ErrAccessDenied("no create access to table %s", req.TableID)
	}
	if err := s.validateFields(snap.Columns, req.Fields); err != nil {
		return nil, err
	}

	rec, err := s.records.Create(ctx, &domain.Record{
		TableID:   req.TableID,
		Fields:    req.Fields,
		CreatedBy: actor.UserID,
	})
	if err != nil {
		return nil, err
	}
	s.auditEntry(ctx, snap, "CREATE_RECORD", domain.AuditAllowed, rec.ID)
	return rec, nil
}

// Update applies a partial field update. Each touched column must be
// editable for this actor on this record; a single locked cell rejects the
// whole update.
func (s *Service) Update(ctx context.Context, req domain.UpdateRecordRequest) (*domain.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	actor := domain.ActorFromContext(ctx)
	snap, err := s.auth.Snapshot(ctx, actor, req.TableID)
	if err != nil {
		return nil, err
	}
	if !s.auth.CanUpdateRecords(snap) {
		s.auditEntry(ctx, snap, "UPDATE_RECORD", domain.AuditDenied, req.RecordID)
		return nil, domain.ErrAccessDenied("no update access to table %s", req.TableID)
	}
	if err := s.validateFields(snap.Columns, req.Fields); err != nil {
		return nil, err
	}

	existing, err := s.visibleRecord(ctx, snap, req.RecordID)
	if err != nil {
		return nil, err
	}
	if !snap.Identity.Bypass {
		for name := range req.Fields {
			grant := s.auth.ColumnGrant(snap, name)
			if access := s.cellEval.MaskCell(snap, existing, name, grant); !access.Editable {
				s.auditEntry(ctx, snap, "UPDATE_RECORD", domain.AuditDenied, req.RecordID)
				return nil, domain.ErrAccessDenied("cell %s is not editable on record %s", name, req.RecordID)
			}
		}
	}

	rec, err := s.records.Update(ctx, req.TableID, req.RecordID, req.Fields)
	if err != nil {
		return nil, err
	}
	s.auditEntry(ctx, snap, "UPDATE_RECORD", domain.AuditAllowed, rec.ID)
	return rec, nil
}

// Delete removes a record the actor can see and delete.
func (s *Service) Delete(ctx context.Context, tableID, recordID string) error {
	actor := domain.ActorFromContext(ctx)
	snap, err := s.auth.Snapshot(ctx, actor, tableID)
	if err != nil {
		return err
	}
	if !s.auth.CanDeleteRecords(snap) {
		s.auditEntry(ctx, snap, "DELETE_RECORD", domain.AuditDenied, recordID)
		return domain.ErrAccessDenied("no delete access to table %s", tableID)
	}
	if _, err := s.visibleRecord(ctx, snap, recordID); err != nil {
		return err
	}
	if err := s.records.Delete(ctx, tableID, recordID); err != nil {
		return err
	}
	s.auditEntry(ctx, snap, "DELETE_RECORD", domain.AuditAllowed, recordID)
	return nil
}

// validateFields checks every written field against the table's columns:
// unknown columns and computed columns reject, values must fit the
// column's data type.
func (s *Service) validateFields(columns []domain.Column, fields map[string]any) error {
	byName := make(map[string]*domain.Column, len(columns))
	for i := range columns {
		byName[columns[i].Name] = &columns[i]
	}
	for name, value := range fields {
		col, ok := byName[name]
		if !ok {
			return domain.ErrValidation("unknown column %q", name)
		}
		if col.DataType.Computed() {
			return domain.ErrValidation("column %q is computed and cannot be written", name)
		}
		if err := catalog.ValidateValue(col, value); err != nil {
			return err
		}
	}
	return nil
}
