package derive

import (
	"context"
	"log/slog"

	"gridbase/internal/domain"
)

// LookupResolver projects values out of linked records. A lookup column
// names a sibling linked_table column; the resolver gathers every link id
// in the batch, fetches the linked records in one query per lookup column,
// and projects the target column into LookupValue cells.
//
// Missing configuration, dangling link ids, and absent target fields all
// degrade to nil. Lookups never fail a retrieval.
type LookupResolver struct {
	records domain.RecordRepository
	logger  *slog.Logger
}

// NewLookupResolver creates a LookupResolver.
func NewLookupResolver(records domain.RecordRepository, logger *slog.Logger) *LookupResolver {
	return &LookupResolver{records: records, logger: logger}
}

// ResolveBatch computes the lookup column's value for every record in the
// batch. The returned slice is indexed like records; unresolvable cells
// are nil.
func (r *LookupResolver) ResolveBatch(ctx context.Context, columns []domain.Column, col *domain.Column, records []domain.Record) []any {
	out := make([]any, len(records))

	link := findLinkColumn(columns, col.Options.LinkColumn)
	if link == nil {
		r.logger.Warn("lookup references missing link column",
			"column", col.Name, "link_column", col.Options.LinkColumn)
		return out
	}
	targetTable := link.Options.LinkedTableID
	if targetTable == "" || col.Options.TargetColumn == "" {
		r.logger.Warn("lookup column is misconfigured", "column", col.Name)
		return out
	}

	ids := collectLinkIDs(link.Name, records)
	if len(ids) == 0 {
		return out
	}

	linked, err := r.records.FindMany(ctx, targetTable, ids)
	if err != nil {
		r.logger.Warn("lookup fetch failed",
			"column", col.Name, "table", targetTable, "error", err)
		return out
	}
	byID := make(map[string]domain.Record, len(linked))
	for _, rec := range linked {
		byID[rec.ID] = rec
	}

	for i := range records {
		out[i] = projectLinks(records[i].Fields[link.Name], byID, col.Options.TargetColumn)
	}
	return out
}

func findLinkColumn(columns []domain.Column, name string) *domain.Column {
	for i := range columns {
		if columns[i].Name == name && columns[i].DataType == domain.TypeLinkedTable {
			return &columns[i]
		}
	}
	return nil
}

// collectLinkIDs deduplicates every link id appearing in the batch. Link
// cells hold a single record id or a list of them.
func collectLinkIDs(linkField string, records []domain.Record) []string {
	seen := map[string]bool{}
	ids := make([]string, 0)
	add := func(v any) {
		if s, ok := v.(string); ok && s != "" && !seen[s] {
			seen[s] = true
			ids = append(ids, s)
		}
	}
	for i := range records {
		switch v := records[i].Fields[linkField].(type) {
		case string:
			add(v)
		case []any:
			for _, item := range v {
				add(item)
			}
		}
	}
	return ids
}

// projectLinks maps one record's link cell onto lookup values. A single
// link yields one LookupValue; a list yields a list, skipping dangling ids.
func projectLinks(linkValue any, byID map[string]domain.Record, targetColumn string) any {
	switch v := linkValue.(type) {
	case string:
		rec, ok := byID[v]
		if !ok {
			return nil
		}
		return domain.LookupValue{Value: rec.Fields[targetColumn], RecordID: rec.ID}
	case []any:
		values := make([]domain.LookupValue, 0, len(v))
		for _, item := range v {
			id, ok := item.(string)
			if !ok {
				continue
			}
			rec, ok := byID[id]
			if !ok {
				continue
			}
			values = append(values, domain.LookupValue{Value: rec.Fields[targetColumn], RecordID: rec.ID})
		}
		if len(values) == 0 {
			return nil
		}
		return values
	}
	return nil
}
