package repository

import (
	"context"
	"database/sql"
	"time"

	"gridbase/internal/domain"
)

var _ domain.GrantRepository = (*GrantRepo)(nil)

// GrantRepo implements domain.GrantRepository using SQLite.
type GrantRepo struct {
	db *sql.DB
}

// NewGrantRepo creates a new GrantRepo.
func NewGrantRepo(db *sql.DB) *GrantRepo {
	return &GrantRepo{db: db}
}

// Create inserts a new scoped grant.
func (r *GrantRepo) Create(ctx context.Context, g *domain.Grant) (*domain.Grant, error) {
	created := *g
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	created.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO grants (id, table_id, column_name, record_id, target_type, target_ref,
		                     can_view, can_edit, can_edit_structure, is_hidden, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.TableID, created.ColumnName, created.RecordID,
		created.TargetType, created.TargetRef,
		nullBool(created.CanView), nullBool(created.CanEdit),
		nullBool(created.CanEditStructure), nullBool(created.IsHidden),
		created.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &created, nil
}

// GetByID returns a grant by id.
func (r *GrantRepo) GetByID(ctx context.Context, id string) (*domain.Grant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, table_id, column_name, record_id, target_type, target_ref,
		        can_view, can_edit, can_edit_structure, is_hidden, created_at
		 FROM grants WHERE id = ?`, id)
	return scanGrant(row)
}

// ListForTable returns every grant scoped to the table, one of its columns,
// or one of its cells, in creation order. Creation order is the resolver's
// deterministic tie-break within a priority bucket.
func (r *GrantRepo) ListForTable(ctx context.Context, tableID string) ([]domain.Grant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, table_id, column_name, record_id, target_type, target_ref,
		        can_view, can_edit, can_edit_structure, is_hidden, created_at
		 FROM grants WHERE table_id = ? ORDER BY created_at, id`, tableID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// Delete removes a grant.
func (r *GrantRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grants WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("grant %s not found", id)
	}
	return nil
}

func scanGrant(row rowScanner) (*domain.Grant, error) {
	var g domain.Grant
	var canView, canEdit, canEditStructure, isHidden sql.NullInt64
	err := row.Scan(&g.ID, &g.TableID, &g.ColumnName, &g.RecordID,
		&g.TargetType, &g.TargetRef,
		&canView, &canEdit, &canEditStructure, &isHidden, &g.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	g.CanView = boolPtr(canView)
	g.CanEdit = boolPtr(canEdit)
	g.CanEditStructure = boolPtr(canEditStructure)
	g.IsHidden = boolPtr(isHidden)
	return &g, nil
}
