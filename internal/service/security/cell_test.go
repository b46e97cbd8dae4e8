package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gridbase/internal/domain"
)

func snapshotForCells(id Identity) *AccessSnapshot {
	return &AccessSnapshot{
		Identity:   id,
		cellGrants: map[cellKey][]domain.Grant{},
	}
}

func TestMaskCellOpenDefault(t *testing.T) {
	e := NewCellOverrideEvaluator(NewPermissionResolver())
	snap := snapshotForCells(memberIdentity("u1"))
	rec := &domain.Record{ID: "r1", Fields: map[string]any{}}

	access := e.MaskCell(snap, rec, "amount", domain.OpenGrant())

	assert.True(t, access.Visible)
	assert.True(t, access.Editable)
}

func TestMaskCellHiddenColumnGrant(t *testing.T) {
	e := NewCellOverrideEvaluator(NewPermissionResolver())
	snap := snapshotForCells(memberIdentity("u1"))
	rec := &domain.Record{ID: "r1", Fields: map[string]any{}}

	grant := domain.OpenGrant()
	grant.IsHidden = true

	access := e.MaskCell(snap, rec, "salary", grant)

	assert.False(t, access.Visible)
	assert.False(t, access.Editable)
}

func TestMaskCellConditionalRulePerRecord(t *testing.T) {
	e := NewCellOverrideEvaluator(NewPermissionResolver())
	snap := snapshotForCells(memberIdentity("u1"))
	snap.CellRules = []domain.CellRule{{
		ID:        "cr1",
		Condition: domain.RuleCondition{Field: "status", Op: "equals", Value: "approved"},
		Columns:   []string{"amount"},
		Mode:      domain.LockModeReadOnly,
	}}

	approved := &domain.Record{ID: "r1", Fields: map[string]any{"status": "approved"}}
	pending := &domain.Record{ID: "r2", Fields: map[string]any{"status": "pending"}}

	a := e.MaskCell(snap, approved, "amount", domain.OpenGrant())
	p := e.MaskCell(snap, pending, "amount", domain.OpenGrant())

	assert.True(t, a.Visible)
	assert.False(t, a.Editable, "approved rows lock the amount cell")
	assert.True(t, p.Editable, "unmatched rows stay writable")
}

func TestMaskCellRoleScopedRule(t *testing.T) {
	e := NewCellOverrideEvaluator(NewPermissionResolver())
	roleID := "role-a"
	rule := domain.CellRule{
		ID:        "cr1",
		RoleID:    &roleID,
		Condition: domain.RuleCondition{Field: "status", Op: "equals", Value: "done"},
		Columns:   []string{"notes"},
		Mode:      domain.LockModeHidden,
	}
	rec := &domain.Record{ID: "r1", Fields: map[string]any{"status": "done"}}

	inRole := snapshotForCells(Identity{UserID: "u1", RoleID: "role-a", RoleName: "analyst"})
	inRole.CellRules = []domain.CellRule{rule}
	outRole := snapshotForCells(Identity{UserID: "u2", RoleID: "role-b", RoleName: "intern"})
	outRole.CellRules = []domain.CellRule{rule}

	assert.False(t, e.MaskCell(inRole, rec, "notes", domain.OpenGrant()).Visible)
	assert.True(t, e.MaskCell(outRole, rec, "notes", domain.OpenGrant()).Visible)
}

func TestMaskCellManualLockOutranksEverything(t *testing.T) {
	e := NewCellOverrideEvaluator(NewPermissionResolver())
	snap := snapshotForCells(memberIdentity("u1"))
	snap.ManualLocks = []domain.ManualLock{{
		ID:         "ml1",
		RecordID:   "r1",
		ColumnName: "amount",
		Mode:       domain.LockModeReadOnly,
	}}

	locked := &domain.Record{ID: "r1", Fields: map[string]any{}}
	free := &domain.Record{ID: "r2", Fields: map[string]any{}}

	assert.False(t, e.MaskCell(snap, locked, "amount", domain.OpenGrant()).Editable)
	assert.True(t, e.MaskCell(snap, free, "amount", domain.OpenGrant()).Editable,
		"the lock pins exactly one cell, not the column")
	assert.True(t, e.MaskCell(snap, locked, "status", domain.OpenGrant()).Editable)
}

func TestMaskCellHiddenLockRemovesCell(t *testing.T) {
	e := NewCellOverrideEvaluator(NewPermissionResolver())
	snap := snapshotForCells(memberIdentity("u1"))
	snap.ManualLocks = []domain.ManualLock{{
		ID:         "ml1",
		RecordID:   "r1",
		ColumnName: "salary",
		Mode:       domain.LockModeHidden,
	}}
	rec := &domain.Record{ID: "r1", Fields: map[string]any{}}

	access := e.MaskCell(snap, rec, "salary", domain.OpenGrant())

	assert.False(t, access.Visible)
	assert.False(t, access.Editable)
}

func TestMaskCellTargetedLockSkipsOtherActors(t *testing.T) {
	e := NewCellOverrideEvaluator(NewPermissionResolver())
	lock := domain.ManualLock{
		ID:         "ml1",
		RecordID:   "r1",
		ColumnName: "amount",
		Mode:       domain.LockModeReadOnly,
		TargetType: domain.TargetSpecificUser,
		TargetRef:  "u1",
	}
	rec := &domain.Record{ID: "r1", Fields: map[string]any{}}

	target := snapshotForCells(memberIdentity("u1"))
	target.ManualLocks = []domain.ManualLock{lock}
	other := snapshotForCells(memberIdentity("u2"))
	other.ManualLocks = []domain.ManualLock{lock}

	assert.False(t, e.MaskCell(target, rec, "amount", domain.OpenGrant()).Editable)
	assert.True(t, e.MaskCell(other, rec, "amount", domain.OpenGrant()).Editable)
}

func TestMaskCellCellGrantStandsInForColumnGrant(t *testing.T) {
	e := NewCellOverrideEvaluator(NewPermissionResolver())
	snap := snapshotForCells(memberIdentity("u1"))
	snap.cellGrants[cellKey{"r1", "amount"}] = []domain.Grant{{
		TargetType: domain.TargetAllMembers,
		CanEdit:    boolPtr(false),
	}}

	denied := domain.DeniedGrant()
	cellScoped := &domain.Record{ID: "r1", Fields: map[string]any{}}
	plain := &domain.Record{ID: "r2", Fields: map[string]any{}}

	a := e.MaskCell(snap, cellScoped, "amount", denied)
	b := e.MaskCell(snap, plain, "amount", denied)

	assert.True(t, a.Visible, "cell grant replaces the column-level outcome")
	assert.False(t, a.Editable)
	assert.False(t, b.Visible, "without a cell grant the column grant stands")
}

func TestMaskCellBypassIgnoresLocks(t *testing.T) {
	e := NewCellOverrideEvaluator(NewPermissionResolver())
	snap := snapshotForCells(Identity{UserID: "boss", RoleName: domain.RoleOwner, Bypass: true})
	snap.ManualLocks = []domain.ManualLock{{
		ID: "ml1", RecordID: "r1", ColumnName: "amount", Mode: domain.LockModeHidden,
	}}
	rec := &domain.Record{ID: "r1", Fields: map[string]any{}}

	access := e.MaskCell(snap, rec, "amount", domain.DeniedGrant())

	assert.True(t, access.Visible)
	assert.True(t, access.Editable)
}
