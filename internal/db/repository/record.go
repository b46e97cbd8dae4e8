package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gridbase/internal/domain"
)

var _ domain.RecordRepository = (*RecordRepo)(nil)

// RecordRepo implements domain.RecordRepository using SQLite. Record fields
// are stored as one JSON document per row; predicates are rendered to
// parameterized SQL over json_extract, so no user-supplied value ever
// becomes query syntax.
type RecordRepo struct {
	db *sql.DB
}

// NewRecordRepo creates a new RecordRepo.
func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// Create inserts a new record.
func (r *RecordRepo) Create(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	created := *rec
	if created.ID == "" {
		created.ID = domain.NewID()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	if created.Fields == nil {
		created.Fields = map[string]any{}
	}

	data, err := json.Marshal(created.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal record fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO records (id, table_id, data, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		created.ID, created.TableID, string(data), created.CreatedBy, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &created, nil
}

// Update merges the given fields into a record's document.
func (r *RecordRepo) Update(ctx context.Context, tableID, recordID string, fields map[string]any) (*domain.Record, error) {
	existing, err := r.FindOne(ctx, tableID, recordID)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		if v == nil {
			delete(existing.Fields, k)
			continue
		}
		existing.Fields[k] = v
	}
	existing.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(existing.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal record fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = ? WHERE id = ? AND table_id = ?`,
		string(data), existing.UpdatedAt, recordID, tableID)
	if err != nil {
		return nil, mapDBError(err)
	}
	return existing, nil
}

// Delete removes a record.
func (r *RecordRepo) Delete(ctx context.Context, tableID, recordID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE id = ? AND table_id = ?`, recordID, tableID)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("record %s not found", recordID)
	}
	return nil
}

// FindOne returns a single record by id.
func (r *RecordRepo) FindOne(ctx context.Context, tableID, recordID string) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, table_id, data, created_by, created_at, updated_at
		 FROM records WHERE id = ? AND table_id = ?`, recordID, tableID)
	return scanRecord(row)
}

// FindMany returns the records with the given ids, in no particular order.
// Missing ids are silently absent from the result; partially-linked data is
// an expected state, not an error.
func (r *RecordRepo) FindMany(ctx context.Context, tableID string, recordIDs []string) ([]domain.Record, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(recordIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(recordIDs)+1)
	args = append(args, tableID)
	for _, id := range recordIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, table_id, data, created_by, created_at, updated_at
		 FROM records WHERE table_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// FindRows returns a filtered, sorted page of records plus the total count
// matching the filter.
func (r *RecordRepo) FindRows(ctx context.Context, tableID string, filter *domain.Predicate, sort *domain.Sort, page domain.PageRequest) ([]domain.Record, int64, error) {
	where := "table_id = ?"
	args := []any{tableID}

	if filter != nil {
		clause, clauseArgs, err := renderPredicate(filter)
		if err != nil {
			return nil, 0, err
		}
		where += " AND " + clause
		args = append(args, clauseArgs...)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	orderBy, err := renderSort(sort)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT id, table_id, data, created_by, created_at, updated_at
		 FROM records WHERE ` + where + ` ORDER BY ` + orderBy + ` LIMIT ? OFFSET ?`
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rec)
	}
	return out, total, rows.Err()
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var data string
	if err := row.Scan(&rec.ID, &rec.TableID, &data, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, mapDBError(err)
	}
	if err := json.Unmarshal([]byte(data), &rec.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields for record %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// fieldNamePattern limits filterable/sortable field names to characters that
// are safe inside a quoted JSON path.
var fieldNamePattern = regexp.MustCompile(`^[^"\\\x00-\x1f]+$`)

// fieldExpr maps a domain field name onto a SQL expression. The reserved
// names id and createdBy address real columns; everything else reads from
// the JSON document.
func fieldExpr(field string) (string, error) {
	switch field {
	case "id":
		return "id", nil
	case "createdBy":
		return "created_by", nil
	case "createdAt":
		return "created_at", nil
	}
	if !fieldNamePattern.MatchString(field) {
		return "", domain.ErrValidation("invalid field name %q", field)
	}
	return `json_extract(data, '$."` + field + `"')`, nil
}

func renderSort(sort *domain.Sort) (string, error) {
	if sort == nil || sort.Field == "" {
		return "created_at, id", nil
	}
	expr, err := fieldExpr(sort.Field)
	if err != nil {
		return "", err
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	// Secondary sort on id keeps pages stable across requests.
	return expr + " " + dir + ", id", nil
}

// renderPredicate turns a predicate tree into a parameterized SQL clause.
func renderPredicate(p *domain.Predicate) (string, []any, error) {
	switch p.Op {
	case domain.OpAnd, domain.OpOr:
		if len(p.Children) == 0 {
			return "", nil, domain.ErrValidation("empty %s predicate", p.Op)
		}
		join := " AND "
		if p.Op == domain.OpOr {
			join = " OR "
		}
		parts := make([]string, 0, len(p.Children))
		var args []any
		for _, child := range p.Children {
			clause, childArgs, err := renderPredicate(child)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, clause)
			args = append(args, childArgs...)
		}
		return "(" + strings.Join(parts, join) + ")", args, nil

	case domain.OpEQ, domain.OpNE, domain.OpGT, domain.OpGTE, domain.OpLT, domain.OpLTE:
		expr, err := fieldExpr(p.Field)
		if err != nil {
			return "", nil, err
		}
		op := map[string]string{
			domain.OpEQ:  "=",
			domain.OpNE:  "<>",
			domain.OpGT:  ">",
			domain.OpGTE: ">=",
			domain.OpLT:  "<",
			domain.OpLTE: "<=",
		}[p.Op]
		if p.Op == domain.OpNE {
			// NULL fields should satisfy "not equals".
			return "(" + expr + " IS NULL OR " + expr + " <> ?)", []any{p.Value}, nil
		}
		return expr + " " + op + " ?", []any{p.Value}, nil

	case domain.OpIn, domain.OpNotIn:
		expr, err := fieldExpr(p.Field)
		if err != nil {
			return "", nil, err
		}
		if len(p.Values) == 0 {
			if p.Op == domain.OpIn {
				return "0 = 1", nil, nil
			}
			return "1 = 1", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(p.Values)), ",")
		if p.Op == domain.OpNotIn {
			return "(" + expr + " IS NULL OR " + expr + " NOT IN (" + placeholders + "))", p.Values, nil
		}
		return expr + " IN (" + placeholders + ")", p.Values, nil

	default:
		return "", nil, domain.ErrValidation("unknown predicate op %q", p.Op)
	}
}
