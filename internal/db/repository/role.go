package repository

import (
	"context"
	"database/sql"
	"time"

	"gridbase/internal/domain"
)

var _ domain.RoleRepository = (*RoleRepo)(nil)

// RoleRepo implements domain.RoleRepository using SQLite.
type RoleRepo struct {
	db *sql.DB
}

// NewRoleRepo creates a new RoleRepo.
func NewRoleRepo(db *sql.DB) *RoleRepo {
	return &RoleRepo{db: db}
}

// Create inserts a new custom role.
func (r *RoleRepo) Create(ctx context.Context, role *domain.Role) (*domain.Role, error) {
	created := *role
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	created.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, base_id, name, created_at) VALUES (?, ?, ?, ?)`,
		created.ID, created.BaseID, created.Name, created.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &created, nil
}

// GetByID returns a role by id.
func (r *RoleRepo) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.QueryRowContext(ctx,
		`SELECT id, base_id, name, created_at FROM roles WHERE id = ?`, id).
		Scan(&role.ID, &role.BaseID, &role.Name, &role.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &role, nil
}

// GetByName returns a role by (base, name).
func (r *RoleRepo) GetByName(ctx context.Context, baseID, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.QueryRowContext(ctx,
		`SELECT id, base_id, name, created_at FROM roles WHERE base_id = ? AND name = ?`,
		baseID, name).
		Scan(&role.ID, &role.BaseID, &role.Name, &role.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &role, nil
}

// ListForBase returns all custom roles of a base.
func (r *RoleRepo) ListForBase(ctx context.Context, baseID string) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, base_id, name, created_at FROM roles WHERE base_id = ? ORDER BY created_at`,
		baseID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.BaseID, &role.Name, &role.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// Delete removes a role; its perms, policies, and memberships cascade.
func (r *RoleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("role %s not found", id)
	}
	return nil
}

// UpsertTablePerm writes a role's table permission, replacing any existing
// perm for the same (role, table).
func (r *RoleRepo) UpsertTablePerm(ctx context.Context, p *domain.TablePerm) error {
	if p.ID == "" {
		p.ID = domain.NewID()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_table_perms (id, role_id, table_id, can_create, can_read, can_update, can_delete)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (role_id, table_id) DO UPDATE SET
		   can_create = excluded.can_create,
		   can_read   = excluded.can_read,
		   can_update = excluded.can_update,
		   can_delete = excluded.can_delete`,
		p.ID, p.RoleID, p.TableID,
		boolToInt(p.CanCreate), boolToInt(p.CanRead), boolToInt(p.CanUpdate), boolToInt(p.CanDelete))
	return mapDBError(err)
}

// GetTablePerm returns a role's table permission, or NotFoundError when the
// role has none for the table.
func (r *RoleRepo) GetTablePerm(ctx context.Context, roleID, tableID string) (*domain.TablePerm, error) {
	var p domain.TablePerm
	var canCreate, canRead, canUpdate, canDelete int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, role_id, table_id, can_create, can_read, can_update, can_delete
		 FROM role_table_perms WHERE role_id = ? AND table_id = ?`, roleID, tableID).
		Scan(&p.ID, &p.RoleID, &p.TableID, &canCreate, &canRead, &canUpdate, &canDelete)
	if err != nil {
		return nil, mapDBError(err)
	}
	p.CanCreate = canCreate != 0
	p.CanRead = canRead != 0
	p.CanUpdate = canUpdate != 0
	p.CanDelete = canDelete != 0
	return &p, nil
}

// UpsertColumnPerm writes a role's column permission, replacing any existing
// perm for the same (role, table, column).
func (r *RoleRepo) UpsertColumnPerm(ctx context.Context, p *domain.ColumnPerm) error {
	if p.ID == "" {
		p.ID = domain.NewID()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_column_perms (id, role_id, table_id, column_name, visibility, edit_mode, deletable)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (role_id, table_id, column_name) DO UPDATE SET
		   visibility = excluded.visibility,
		   edit_mode  = excluded.edit_mode,
		   deletable  = excluded.deletable`,
		p.ID, p.RoleID, p.TableID, p.ColumnName, p.Visibility, p.EditMode, boolToInt(p.Deletable))
	return mapDBError(err)
}

// ListColumnPerms returns a role's column permissions for one table.
func (r *RoleRepo) ListColumnPerms(ctx context.Context, roleID, tableID string) ([]domain.ColumnPerm, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, role_id, table_id, column_name, visibility, edit_mode, deletable
		 FROM role_column_perms WHERE role_id = ? AND table_id = ?`, roleID, tableID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.ColumnPerm
	for rows.Next() {
		var p domain.ColumnPerm
		var deletable int64
		if err := rows.Scan(&p.ID, &p.RoleID, &p.TableID, &p.ColumnName, &p.Visibility, &p.EditMode, &deletable); err != nil {
			return nil, err
		}
		p.Deletable = deletable != 0
		out = append(out, p)
	}
	return out, rows.Err()
}
