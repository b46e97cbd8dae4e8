package derive

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"gridbase/internal/domain"
)

// formulaConcurrency bounds the number of records evaluated in parallel
// for formula columns.
const formulaConcurrency = 8

// Engine orchestrates derivation for one fetched batch: lookups run as
// batched fetches first, then formulas evaluate per record in parallel.
// The output preserves input order and never mutates the input records.
type Engine struct {
	formulas *FormulaResolver
	lookups  *LookupResolver
	logger   *slog.Logger
}

// NewEngine creates a derivation Engine.
func NewEngine(records domain.RecordRepository, logger *slog.Logger) *Engine {
	return &Engine{
		formulas: NewFormulaResolver(logger),
		lookups:  NewLookupResolver(records, logger),
		logger:   logger,
	}
}

// Derive computes every computed column of the table for the batch. The
// result is indexed like records; each entry maps computed column names to
// their derived values (possibly nil).
func (e *Engine) Derive(ctx context.Context, columns []domain.Column, records []domain.Record) ([]map[string]any, error) {
	derived := make([]map[string]any, len(records))
	for i := range derived {
		derived[i] = map[string]any{}
	}
	if len(records) == 0 {
		return derived, nil
	}

	var formulaCols []domain.Column
	for _, col := range columns {
		switch col.DataType {
		case domain.TypeLookup:
			values := e.lookups.ResolveBatch(ctx, columns, &col, records)
			for i, v := range values {
				derived[i][col.Name] = v
			}
		case domain.TypeFormula:
			formulaCols = append(formulaCols, col)
		}
	}
	if len(formulaCols) == 0 {
		return derived, nil
	}

	// Formula inputs may include lookup results from the same pass, so the
	// record fields are overlaid with what has been derived so far.
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(formulaConcurrency)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fields := overlay(records[i].Fields, derived[i])
			rec := records[i]
			rec.Fields = fields
			for _, col := range formulaCols {
				derived[i][col.Name] = e.formulas.Resolve(&col, &rec)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return derived, nil
}

// overlay merges derived values over raw fields without mutating either.
func overlay(fields, derived map[string]any) map[string]any {
	merged := make(map[string]any, len(fields)+len(derived))
	for k, v := range fields {
		merged[k] = v
	}
	for k, v := range derived {
		merged[k] = jsonShape(v)
	}
	return merged
}

// jsonShape flattens LookupValue wrappers into plain values so formulas
// see the projected value, not the wrapper struct.
func jsonShape(v any) any {
	switch val := v.(type) {
	case domain.LookupValue:
		return val.Value
	case []domain.LookupValue:
		out := make([]any, 0, len(val))
		for _, lv := range val {
			out = append(out, lv.Value)
		}
		return out
	}
	return v
}
