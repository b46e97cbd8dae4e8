package repository

import (
	"context"
	"database/sql"
	"time"

	"gridbase/internal/domain"
)

var _ domain.ManualLockRepository = (*ManualLockRepo)(nil)

// ManualLockRepo implements domain.ManualLockRepository using SQLite.
type ManualLockRepo struct {
	db *sql.DB
}

// NewManualLockRepo creates a new ManualLockRepo.
func NewManualLockRepo(db *sql.DB) *ManualLockRepo {
	return &ManualLockRepo{db: db}
}

// Create pins a manual cell lock.
func (r *ManualLockRepo) Create(ctx context.Context, l *domain.ManualLock) (*domain.ManualLock, error) {
	created := *l
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	created.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO manual_locks (id, table_id, record_id, column_name, mode, target_type, target_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.TableID, created.RecordID, created.ColumnName,
		created.Mode, created.TargetType, created.TargetRef, created.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &created, nil
}

// ListForTable returns all manual locks on a table.
func (r *ManualLockRepo) ListForTable(ctx context.Context, tableID string) ([]domain.ManualLock, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, table_id, record_id, column_name, mode, target_type, target_ref, created_at
		 FROM manual_locks WHERE table_id = ? ORDER BY created_at, id`, tableID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.ManualLock
	for rows.Next() {
		var l domain.ManualLock
		if err := rows.Scan(&l.ID, &l.TableID, &l.RecordID, &l.ColumnName,
			&l.Mode, &l.TargetType, &l.TargetRef, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Delete removes a manual lock.
func (r *ManualLockRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM manual_locks WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("manual lock %s not found", id)
	}
	return nil
}
