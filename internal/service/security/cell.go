package security

import "gridbase/internal/domain"

// CellAccess is the outcome of masking one cell.
type CellAccess struct {
	Visible  bool
	Editable bool
}

// CellOverrideEvaluator applies manual and conditional cell-level overrides
// on top of column-level permission. Tier precedence, highest first:
//
//  1. manual lock pinned to this exact (record, column)
//  2. conditional cell rule whose match-condition holds for this record
//  3. column-level grant (cell-scoped grants, when present, stand in for
//     the column grant at this tier)
//  4. open default
//
// Because tier 2 depends on the record's current field values, the
// evaluation runs per record: the same column can be read-only on one row
// and read-write on the next.
type CellOverrideEvaluator struct {
	resolver *PermissionResolver
}

// NewCellOverrideEvaluator creates a CellOverrideEvaluator.
func NewCellOverrideEvaluator(resolver *PermissionResolver) *CellOverrideEvaluator {
	return &CellOverrideEvaluator{resolver: resolver}
}

// MaskCell computes the visibility and editability of one cell for the
// snapshot's identity. columnGrant is the already-resolved tier-3 grant for
// the column (the caller resolves it once per column, not once per cell).
func (e *CellOverrideEvaluator) MaskCell(snap *AccessSnapshot, rec *domain.Record, columnName string, columnGrant domain.EffectiveGrant) CellAccess {
	if snap.Identity.Bypass {
		return CellAccess{Visible: true, Editable: true}
	}

	// Tier 3/4: column grant, or cell-scoped grants when present.
	base := columnGrant
	if cellGrants := snap.CellGrantsFor(rec.ID, columnName); len(cellGrants) > 0 {
		base = e.resolver.Resolve(cellGrants, snap.Identity)
	}
	access := CellAccess{
		Visible:  base.CanView && !base.IsHidden,
		Editable: base.CanView && !base.IsHidden && base.CanEdit,
	}

	// Tier 2: conditional rules, re-evaluated against this record's fields.
	for i := range snap.CellRules {
		rule := &snap.CellRules[i]
		if rule.RoleID != nil && *rule.RoleID != snap.Identity.RoleID {
			continue
		}
		if !rule.AppliesTo(columnName) || !rule.Condition.Matches(rec.Fields) {
			continue
		}
		access = applyLockMode(access, rule.Mode)
	}

	// Tier 1: manual locks pinned to this exact cell.
	for i := range snap.ManualLocks {
		lock := &snap.ManualLocks[i]
		if lock.RecordID != rec.ID || lock.ColumnName != columnName {
			continue
		}
		if !lock.AppliesToActor(snap.Identity.UserID, snap.Identity.RoleID, snap.Identity.RoleName) {
			continue
		}
		access = applyLockMode(access, lock.Mode)
	}

	return access
}

// applyLockMode restricts access by a lock mode: hidden removes the cell
// entirely, read-only strips editability while leaving visibility to the
// tier below.
func applyLockMode(access CellAccess, mode string) CellAccess {
	switch mode {
	case domain.LockModeHidden:
		access.Visible = false
		access.Editable = false
	case domain.LockModeReadOnly:
		access.Editable = false
	}
	return access
}
