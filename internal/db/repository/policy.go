package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gridbase/internal/domain"
)

var _ domain.RowPolicyRepository = (*RowPolicyRepo)(nil)

// RowPolicyRepo implements domain.RowPolicyRepository using SQLite.
// Templates are stored as JSON documents.
type RowPolicyRepo struct {
	db *sql.DB
}

// NewRowPolicyRepo creates a new RowPolicyRepo.
func NewRowPolicyRepo(db *sql.DB) *RowPolicyRepo {
	return &RowPolicyRepo{db: db}
}

// Create appends a row policy to the role's ordered list for a table.
func (r *RowPolicyRepo) Create(ctx context.Context, p *domain.RowPolicy) (*domain.RowPolicy, error) {
	created := *p
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	created.CreatedAt = time.Now().UTC()

	var maxPos sql.NullInt64
	if err := r.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM row_policies WHERE role_id = ? AND table_id = ?`,
		created.RoleID, created.TableID).Scan(&maxPos); err != nil {
		return nil, mapDBError(err)
	}
	created.Position = int(maxPos.Int64) + 1

	tmpl, err := json.Marshal(created.Template)
	if err != nil {
		return nil, fmt.Errorf("marshal policy template: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO row_policies (id, role_id, table_id, position, template, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		created.ID, created.RoleID, created.TableID, created.Position, string(tmpl), created.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &created, nil
}

// ListForRoleTable returns a role's policies for a table in position order.
func (r *RowPolicyRepo) ListForRoleTable(ctx context.Context, roleID, tableID string) ([]domain.RowPolicy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, role_id, table_id, position, template, created_at
		 FROM row_policies WHERE role_id = ? AND table_id = ? ORDER BY position`,
		roleID, tableID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.RowPolicy
	for rows.Next() {
		var p domain.RowPolicy
		var tmpl string
		if err := rows.Scan(&p.ID, &p.RoleID, &p.TableID, &p.Position, &tmpl, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tmpl), &p.Template); err != nil {
			return nil, fmt.Errorf("unmarshal template for policy %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a row policy.
func (r *RowPolicyRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM row_policies WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("row policy %s not found", id)
	}
	return nil
}

var _ domain.CellRuleRepository = (*CellRuleRepo)(nil)

// CellRuleRepo implements domain.CellRuleRepository using SQLite.
type CellRuleRepo struct {
	db *sql.DB
}

// NewCellRuleRepo creates a new CellRuleRepo.
func NewCellRuleRepo(db *sql.DB) *CellRuleRepo {
	return &CellRuleRepo{db: db}
}

// Create inserts a conditional cell rule.
func (r *CellRuleRepo) Create(ctx context.Context, rule *domain.CellRule) (*domain.CellRule, error) {
	created := *rule
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	created.CreatedAt = time.Now().UTC()

	cond, err := json.Marshal(created.Condition)
	if err != nil {
		return nil, fmt.Errorf("marshal rule condition: %w", err)
	}
	cols, err := json.Marshal(created.Columns)
	if err != nil {
		return nil, fmt.Errorf("marshal rule columns: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO cell_rules (id, table_id, role_id, condition, columns, mode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.TableID, nullStr(created.RoleID),
		string(cond), string(cols), created.Mode, created.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &created, nil
}

// ListForTable returns all conditional rules on a table.
func (r *CellRuleRepo) ListForTable(ctx context.Context, tableID string) ([]domain.CellRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, table_id, role_id, condition, columns, mode, created_at
		 FROM cell_rules WHERE table_id = ? ORDER BY created_at, id`, tableID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.CellRule
	for rows.Next() {
		var rule domain.CellRule
		var roleID sql.NullString
		var cond, cols string
		if err := rows.Scan(&rule.ID, &rule.TableID, &roleID, &cond, &cols, &rule.Mode, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rule.RoleID = strPtr(roleID)
		if err := json.Unmarshal([]byte(cond), &rule.Condition); err != nil {
			return nil, fmt.Errorf("unmarshal condition for rule %s: %w", rule.ID, err)
		}
		if err := json.Unmarshal([]byte(cols), &rule.Columns); err != nil {
			return nil, fmt.Errorf("unmarshal columns for rule %s: %w", rule.ID, err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// Delete removes a conditional cell rule.
func (r *CellRuleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cell_rules WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("cell rule %s not found", id)
	}
	return nil
}
