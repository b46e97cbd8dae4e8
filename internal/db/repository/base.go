package repository

import (
	"context"
	"database/sql"
	"time"

	"gridbase/internal/domain"
)

var _ domain.BaseRepository = (*BaseRepo)(nil)

// BaseRepo implements domain.BaseRepository using SQLite.
type BaseRepo struct {
	db *sql.DB
}

// NewBaseRepo creates a new BaseRepo.
func NewBaseRepo(db *sql.DB) *BaseRepo {
	return &BaseRepo{db: db}
}

// Create inserts a new base.
func (r *BaseRepo) Create(ctx context.Context, b *domain.Base) (*domain.Base, error) {
	created := *b
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	created.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bases (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		created.ID, created.Name, created.CreatedBy, created.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &created, nil
}

// GetByID returns a base by id.
func (r *BaseRepo) GetByID(ctx context.Context, id string) (*domain.Base, error) {
	var b domain.Base
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM bases WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.CreatedBy, &b.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &b, nil
}

// List returns a page of bases and the total count.
func (r *BaseRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.Base, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bases`).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_by, created_at FROM bases ORDER BY created_at LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Base
	for rows.Next() {
		var b domain.Base
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedBy, &b.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// Delete removes a base; tables, records, and permission artifacts cascade.
func (r *BaseRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bases WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("base %s not found", id)
	}
	return nil
}
