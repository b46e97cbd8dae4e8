package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gridbase/internal/domain"
)

var _ domain.TableRepository = (*TableRepo)(nil)

// TableRepo implements domain.TableRepository using SQLite.
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo creates a new TableRepo.
func NewTableRepo(db *sql.DB) *TableRepo {
	return &TableRepo{db: db}
}

// Create inserts a new table at the end of the base's table order.
func (r *TableRepo) Create(ctx context.Context, t *domain.Table) (*domain.Table, error) {
	created := *t
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	created.CreatedAt = time.Now().UTC()

	var maxPos sql.NullInt64
	if err := r.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM tables WHERE base_id = ?`, created.BaseID).Scan(&maxPos); err != nil {
		return nil, mapDBError(err)
	}
	created.Position = int(maxPos.Int64) + 1

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tables (id, base_id, name, position, created_at) VALUES (?, ?, ?, ?, ?)`,
		created.ID, created.BaseID, created.Name, created.Position, created.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &created, nil
}

// GetByID returns a table by id.
func (r *TableRepo) GetByID(ctx context.Context, id string) (*domain.Table, error) {
	var t domain.Table
	err := r.db.QueryRowContext(ctx,
		`SELECT id, base_id, name, position, created_at FROM tables WHERE id = ?`, id).
		Scan(&t.ID, &t.BaseID, &t.Name, &t.Position, &t.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &t, nil
}

// ListForBase returns all tables of a base in position order.
func (r *TableRepo) ListForBase(ctx context.Context, baseID string) ([]domain.Table, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, base_id, name, position, created_at FROM tables WHERE base_id = ? ORDER BY position`,
		baseID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Table
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.ID, &t.BaseID, &t.Name, &t.Position, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Delete removes a table; its columns, records, grants, policies, rules,
// and locks cascade.
func (r *TableRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tables WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("table %s not found", id)
	}
	return nil
}

var _ domain.ColumnRepository = (*ColumnRepo)(nil)

// ColumnRepo implements domain.ColumnRepository using SQLite. Column options
// are stored as a JSON document.
type ColumnRepo struct {
	db *sql.DB
}

// NewColumnRepo creates a new ColumnRepo.
func NewColumnRepo(db *sql.DB) *ColumnRepo {
	return &ColumnRepo{db: db}
}

// Create inserts a new column at the end of the table's column order.
func (r *ColumnRepo) Create(ctx context.Context, c *domain.Column) (*domain.Column, error) {
	created := *c
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	created.CreatedAt = time.Now().UTC()

	var maxPos sql.NullInt64
	if err := r.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM columns WHERE table_id = ?`, created.TableID).Scan(&maxPos); err != nil {
		return nil, mapDBError(err)
	}
	created.Position = int(maxPos.Int64) + 1

	opts, err := json.Marshal(created.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal column options: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO columns (id, table_id, name, data_type, position, options, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.TableID, created.Name, string(created.DataType),
		created.Position, string(opts), created.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &created, nil
}

// GetByID returns a column by id.
func (r *ColumnRepo) GetByID(ctx context.Context, id string) (*domain.Column, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, table_id, name, data_type, position, options, created_at FROM columns WHERE id = ?`, id)
	return scanColumn(row)
}

// ListForTable returns all columns of a table in position order.
func (r *ColumnRepo) ListForTable(ctx context.Context, tableID string) ([]domain.Column, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, table_id, name, data_type, position, options, created_at
		 FROM columns WHERE table_id = ? ORDER BY position`, tableID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Column
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Update replaces a stored column with a freshly-constructed value.
func (r *ColumnRepo) Update(ctx context.Context, c domain.Column) (*domain.Column, error) {
	opts, err := json.Marshal(c.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal column options: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE columns SET name = ?, data_type = ?, position = ?, options = ? WHERE id = ?`,
		c.Name, string(c.DataType), c.Position, string(opts), c.ID)
	if err != nil {
		return nil, mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrNotFound("column %s not found", c.ID)
	}
	return &c, nil
}

// Delete removes a column.
func (r *ColumnRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM columns WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("column %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanColumn(row rowScanner) (*domain.Column, error) {
	var c domain.Column
	var dataType, opts string
	if err := row.Scan(&c.ID, &c.TableID, &c.Name, &dataType, &c.Position, &opts, &c.CreatedAt); err != nil {
		return nil, mapDBError(err)
	}
	c.DataType = domain.DataType(dataType)
	if err := json.Unmarshal([]byte(opts), &c.Options); err != nil {
		return nil, fmt.Errorf("unmarshal options for column %s: %w", c.ID, err)
	}
	return &c, nil
}
