package repository

import (
	"context"
	"database/sql"
	"time"

	"gridbase/internal/domain"
)

var _ domain.MembershipRepository = (*MembershipRepo)(nil)

// MembershipRepo implements domain.MembershipRepository using SQLite.
type MembershipRepo struct {
	db *sql.DB
}

// NewMembershipRepo creates a new MembershipRepo.
func NewMembershipRepo(db *sql.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

// Create inserts a membership. The (base, user) uniqueness constraint
// surfaces as a ConflictError.
func (r *MembershipRepo) Create(ctx context.Context, m *domain.Membership) (*domain.Membership, error) {
	created := *m
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	created.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (id, base_id, user_id, role_name, role_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		created.ID, created.BaseID, created.UserID, created.RoleName, nullStr(created.RoleID), created.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &created, nil
}

// GetForUser returns the membership binding a user to a base.
func (r *MembershipRepo) GetForUser(ctx context.Context, baseID, userID string) (*domain.Membership, error) {
	var m domain.Membership
	var roleID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, base_id, user_id, role_name, role_id, created_at
		 FROM memberships WHERE base_id = ? AND user_id = ?`, baseID, userID).
		Scan(&m.ID, &m.BaseID, &m.UserID, &m.RoleName, &roleID, &m.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	m.RoleID = strPtr(roleID)
	return &m, nil
}

// ListForBase returns a page of memberships for a base.
func (r *MembershipRepo) ListForBase(ctx context.Context, baseID string, page domain.PageRequest) ([]domain.Membership, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships WHERE base_id = ?`, baseID).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, base_id, user_id, role_name, role_id, created_at
		 FROM memberships WHERE base_id = ? ORDER BY created_at LIMIT ? OFFSET ?`,
		baseID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Membership
	for rows.Next() {
		var m domain.Membership
		var roleID sql.NullString
		if err := rows.Scan(&m.ID, &m.BaseID, &m.UserID, &m.RoleName, &roleID, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		m.RoleID = strPtr(roleID)
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// Delete removes a membership.
func (r *MembershipRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memberships WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("membership %s not found", id)
	}
	return nil
}
