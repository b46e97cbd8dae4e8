package domain

import "context"

// BaseRepository persists bases.
type BaseRepository interface {
	Create(ctx context.Context, b *Base) (*Base, error)
	GetByID(ctx context.Context, id string) (*Base, error)
	List(ctx context.Context, page PageRequest) ([]Base, int64, error)
	Delete(ctx context.Context, id string) error
}

// TableRepository persists tables.
type TableRepository interface {
	Create(ctx context.Context, t *Table) (*Table, error)
	GetByID(ctx context.Context, id string) (*Table, error)
	ListForBase(ctx context.Context, baseID string) ([]Table, error)
	Delete(ctx context.Context, id string) error
}

// ColumnRepository persists columns. Update replaces the whole column
// value: columns are immutable in the domain, so every change arrives as a
// freshly-constructed Column.
type ColumnRepository interface {
	Create(ctx context.Context, c *Column) (*Column, error)
	GetByID(ctx context.Context, id string) (*Column, error)
	ListForTable(ctx context.Context, tableID string) ([]Column, error)
	Update(ctx context.Context, c Column) (*Column, error)
	Delete(ctx context.Context, id string) error
}

// RecordRepository is the single authoritative record store per table.
// FindRows renders the predicate into the store's native query form;
// it must support field-equals, field-in-set, scalar comparison, and
// and/or composition.
type RecordRepository interface {
	Create(ctx context.Context, r *Record) (*Record, error)
	Update(ctx context.Context, tableID, recordID string, fields map[string]any) (*Record, error)
	Delete(ctx context.Context, tableID, recordID string) error
	FindOne(ctx context.Context, tableID, recordID string) (*Record, error)
	FindMany(ctx context.Context, tableID string, recordIDs []string) ([]Record, error)
	FindRows(ctx context.Context, tableID string, filter *Predicate, sort *Sort, page PageRequest) ([]Record, int64, error)
}

// RoleRepository persists custom roles and their per-table/per-column perms.
type RoleRepository interface {
	Create(ctx context.Context, r *Role) (*Role, error)
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, baseID, name string) (*Role, error)
	ListForBase(ctx context.Context, baseID string) ([]Role, error)
	Delete(ctx context.Context, id string) error

	UpsertTablePerm(ctx context.Context, p *TablePerm) error
	GetTablePerm(ctx context.Context, roleID, tableID string) (*TablePerm, error)
	UpsertColumnPerm(ctx context.Context, p *ColumnPerm) error
	ListColumnPerms(ctx context.Context, roleID, tableID string) ([]ColumnPerm, error)
}

// MembershipRepository persists base memberships.
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) (*Membership, error)
	GetForUser(ctx context.Context, baseID, userID string) (*Membership, error)
	ListForBase(ctx context.Context, baseID string, page PageRequest) ([]Membership, int64, error)
	Delete(ctx context.Context, id string) error
}

// GrantRepository persists scoped grants. ListForTable returns every grant
// whose scope is the table, one of its columns, or one of its cells, in
// creation order.
type GrantRepository interface {
	Create(ctx context.Context, g *Grant) (*Grant, error)
	GetByID(ctx context.Context, id string) (*Grant, error)
	ListForTable(ctx context.Context, tableID string) ([]Grant, error)
	Delete(ctx context.Context, id string) error
}

// RowPolicyRepository persists ordered row-policy templates.
type RowPolicyRepository interface {
	Create(ctx context.Context, p *RowPolicy) (*RowPolicy, error)
	ListForRoleTable(ctx context.Context, roleID, tableID string) ([]RowPolicy, error)
	Delete(ctx context.Context, id string) error
}

// CellRuleRepository persists conditional cell rules.
type CellRuleRepository interface {
	Create(ctx context.Context, r *CellRule) (*CellRule, error)
	ListForTable(ctx context.Context, tableID string) ([]CellRule, error)
	Delete(ctx context.Context, id string) error
}

// ManualLockRepository persists manual cell locks.
type ManualLockRepository interface {
	Create(ctx context.Context, l *ManualLock) (*ManualLock, error)
	ListForTable(ctx context.Context, tableID string) ([]ManualLock, error)
	Delete(ctx context.Context, id string) error
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Insert(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, page PageRequest) ([]AuditEntry, int64, error)
}
