package derive

import (
	"log/slog"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"gridbase/internal/domain"
)

const (
	defaultMaxSteps    = uint64(50_000)
	defaultEvalTimeout = 500 * time.Millisecond
)

// FormulaResolver evaluates formula-column expressions per record. The
// expression is a single Starlark expression; record fields are exposed
// both as identifier bindings (identifier-safe names only) and through a
// "fields" dict for names Starlark cannot spell.
//
// A cell whose evaluation fails becomes nil and the failure is logged;
// one bad row never aborts the batch.
type FormulaResolver struct {
	maxSteps    uint64
	evalTimeout time.Duration
	logger      *slog.Logger
}

// NewFormulaResolver creates a FormulaResolver with sandbox limits.
func NewFormulaResolver(logger *slog.Logger) *FormulaResolver {
	return &FormulaResolver{
		maxSteps:    defaultMaxSteps,
		evalTimeout: defaultEvalTimeout,
		logger:      logger,
	}
}

// CheckExpression parses an expression without evaluating it. The catalog
// uses this to reject malformed formulas at column-definition time.
func CheckExpression(expr string) error {
	if expr == "" {
		return domain.ErrValidation("formula expression cannot be empty")
	}
	if _, err := (&syntax.FileOptions{}).ParseExpr("<formula>", expr, 0); err != nil {
		return domain.ErrValidation("invalid formula expression: %v", err)
	}
	return nil
}

// Resolve evaluates one formula column over a record and returns the
// coerced result, or nil when evaluation fails.
func (r *FormulaResolver) Resolve(col *domain.Column, rec *domain.Record) any {
	value, err := r.eval(col.Options.Expression, rec.Fields)
	if err != nil {
		r.logger.Warn("formula evaluation failed",
			"column", col.Name, "record", rec.ID, "error", err)
		return nil
	}
	return coerceResult(value, col.Options.ResultType)
}

func (r *FormulaResolver) eval(expr string, fields map[string]any) (any, error) {
	env := starlark.StringDict{}
	fieldsDict := starlark.NewDict(len(fields))
	for name, v := range fields {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, err
		}
		if isValidIdent(name) {
			env[name] = sv
		}
		if err := fieldsDict.SetKey(starlark.String(name), sv); err != nil {
			return nil, err
		}
	}
	env["fields"] = fieldsDict

	thread := &starlark.Thread{Name: "formula-eval"}
	thread.SetMaxExecutionSteps(r.maxSteps)

	var result starlark.Value
	if err := runWithTimeout(thread, r.evalTimeout, func() error {
		v, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "<formula>", expr, env)
		if err != nil {
			return err
		}
		result = v
		return nil
	}); err != nil {
		return nil, err
	}
	return fromStarlark(result)
}

// coerceResult clamps an evaluation result to the column's declared result
// type; a mismatch degrades to nil rather than leaking a wrongly-typed cell.
func coerceResult(v any, resultType domain.DataType) any {
	if v == nil {
		return nil
	}
	switch resultType {
	case "", domain.TypeText, domain.TypeLongText:
		if s, ok := v.(string); ok {
			return s
		}
		if resultType == "" {
			return v
		}
		return nil
	case domain.TypeNumber, domain.TypeCurrency, domain.TypePercent:
		if n, ok := v.(float64); ok {
			return n
		}
		return nil
	case domain.TypeCheckbox:
		if b, ok := v.(bool); ok {
			return b
		}
		return nil
	case domain.TypeDate:
		if s, ok := v.(string); ok {
			return s
		}
		return nil
	}
	return v
}

// runWithTimeout evaluates fn, cancelling the thread when the deadline
// passes. The goroutine always finishes: Cancel stops execution at the
// next step check.
func runWithTimeout(thread *starlark.Thread, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("formula evaluation timed out")
		<-done
		return domain.ErrValidation("formula evaluation timed out after %s", timeout)
	}
}
