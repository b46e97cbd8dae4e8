package derive

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbase/internal/domain"
)

func testResolver() *FormulaResolver {
	return NewFormulaResolver(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func formulaColumn(expr string, resultType domain.DataType) *domain.Column {
	return &domain.Column{
		Name:     "derived",
		DataType: domain.TypeFormula,
		Options:  domain.ColumnOptions{Expression: expr, ResultType: resultType},
	}
}

func TestFormulaArithmetic(t *testing.T) {
	r := testResolver()
	rec := &domain.Record{ID: "r1", Fields: map[string]any{"price": 10.0, "qty": 3.0}}

	got := r.Resolve(formulaColumn("price * qty", domain.TypeNumber), rec)

	assert.Equal(t, 30.0, got)
}

func TestFormulaStringConcat(t *testing.T) {
	r := testResolver()
	rec := &domain.Record{ID: "r1", Fields: map[string]any{"first": "Ada", "last": "Lovelace"}}

	got := r.Resolve(formulaColumn(`first + " " + last`, domain.TypeText), rec)

	assert.Equal(t, "Ada Lovelace", got)
}

func TestFormulaConditional(t *testing.T) {
	r := testResolver()
	col := formulaColumn(`"big" if amount > 100 else "small"`, domain.TypeText)

	big := r.Resolve(col, &domain.Record{ID: "r1", Fields: map[string]any{"amount": 250.0}})
	small := r.Resolve(col, &domain.Record{ID: "r2", Fields: map[string]any{"amount": 5.0}})

	assert.Equal(t, "big", big)
	assert.Equal(t, "small", small)
}

func TestFormulaFieldsDictForAwkwardNames(t *testing.T) {
	r := testResolver()
	rec := &domain.Record{ID: "r1", Fields: map[string]any{"Unit Price": 4.0}}

	got := r.Resolve(formulaColumn(`fields["Unit Price"] * 2`, domain.TypeNumber), rec)

	assert.Equal(t, 8.0, got)
}

func TestFormulaFailureDegradesToNil(t *testing.T) {
	r := testResolver()
	rec := &domain.Record{ID: "r1", Fields: map[string]any{"price": 10.0}}

	// missing_field is unbound; the cell degrades instead of erroring.
	got := r.Resolve(formulaColumn("price * missing_field", domain.TypeNumber), rec)

	assert.Nil(t, got)
}

func TestFormulaDivisionByZeroDegradesToNil(t *testing.T) {
	r := testResolver()
	rec := &domain.Record{ID: "r1", Fields: map[string]any{"total": 10.0, "count": 0.0}}

	got := r.Resolve(formulaColumn("total / count", domain.TypeNumber), rec)

	assert.Nil(t, got)
}

func TestFormulaResultTypeMismatchDegradesToNil(t *testing.T) {
	r := testResolver()
	rec := &domain.Record{ID: "r1", Fields: map[string]any{"price": 10.0}}

	got := r.Resolve(formulaColumn(`"not a number"`, domain.TypeNumber), rec)

	assert.Nil(t, got)
}

func TestFormulaCheckboxResult(t *testing.T) {
	r := testResolver()
	rec := &domain.Record{ID: "r1", Fields: map[string]any{"amount": 500.0}}

	got := r.Resolve(formulaColumn("amount > 100", domain.TypeCheckbox), rec)

	assert.Equal(t, true, got)
}

func TestFormulaRunawayEvaluationIsBounded(t *testing.T) {
	r := testResolver()
	rec := &domain.Record{ID: "r1", Fields: map[string]any{}}

	// A comprehension large enough to exhaust the step budget.
	got := r.Resolve(formulaColumn("len([x for x in range(10000000)])", domain.TypeNumber), rec)

	assert.Nil(t, got)
}

func TestCheckExpression(t *testing.T) {
	require.NoError(t, CheckExpression("price * qty"))
	require.Error(t, CheckExpression(""))
	require.Error(t, CheckExpression("price *"))
	require.Error(t, CheckExpression("def f(): pass"))
}
