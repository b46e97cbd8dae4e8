package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbase/internal/domain"
)

func textColumn(name string) *domain.Column {
	return &domain.Column{Name: name, DataType: domain.TypeText}
}

func TestValidateValueScalars(t *testing.T) {
	assert.NoError(t, ValidateValue(textColumn("title"), "hello"))
	assert.Error(t, ValidateValue(textColumn("title"), 42.0))

	number := &domain.Column{Name: "amount", DataType: domain.TypeNumber}
	assert.NoError(t, ValidateValue(number, 12.5))
	assert.Error(t, ValidateValue(number, "12.5"))

	checkbox := &domain.Column{Name: "done", DataType: domain.TypeCheckbox}
	assert.NoError(t, ValidateValue(checkbox, true))
	assert.Error(t, ValidateValue(checkbox, "yes"))

	date := &domain.Column{Name: "due", DataType: domain.TypeDate}
	assert.NoError(t, ValidateValue(date, "2025-06-01T00:00:00Z"))
	assert.Error(t, ValidateValue(date, "tomorrow"))
}

func TestValidateValueNilClearsAnyColumn(t *testing.T) {
	assert.NoError(t, ValidateValue(textColumn("title"), nil))
	assert.NoError(t, ValidateValue(&domain.Column{Name: "due", DataType: domain.TypeDate}, nil))
}

func TestValidateValueSelectChoices(t *testing.T) {
	single := &domain.Column{Name: "status", DataType: domain.TypeSingleSelect,
		Options: domain.ColumnOptions{Choices: []string{"open", "closed"}}}
	assert.NoError(t, ValidateValue(single, "open"))
	assert.Error(t, ValidateValue(single, "pending"))

	multi := &domain.Column{Name: "tags", DataType: domain.TypeMultiSelect,
		Options: domain.ColumnOptions{Choices: []string{"red", "blue"}}}
	assert.NoError(t, ValidateValue(multi, []any{"red", "blue"}))
	assert.Error(t, ValidateValue(multi, []any{"red", "green"}))
	assert.Error(t, ValidateValue(multi, "red"))
}

func TestValidateValueLinks(t *testing.T) {
	link := &domain.Column{Name: "product", DataType: domain.TypeLinkedTable,
		Options: domain.ColumnOptions{LinkedTableID: "tbl1"}}
	assert.NoError(t, ValidateValue(link, "rec1"))
	assert.NoError(t, ValidateValue(link, []any{"rec1", "rec2"}))
	assert.Error(t, ValidateValue(link, ""))
	assert.Error(t, ValidateValue(link, 7.0))
}

func TestValidateOptionsSelectRequiresChoices(t *testing.T) {
	err := ValidateOptions(nil, domain.TypeSingleSelect, domain.ColumnOptions{})
	require.Error(t, err)

	err = ValidateOptions(nil, domain.TypeSingleSelect, domain.ColumnOptions{Choices: []string{"a", "a"}})
	require.Error(t, err)

	err = ValidateOptions(nil, domain.TypeSingleSelect, domain.ColumnOptions{Choices: []string{"a", "b"}})
	require.NoError(t, err)
}

func TestValidateOptionsFormula(t *testing.T) {
	good := domain.ColumnOptions{Expression: "price * qty", ResultType: domain.TypeNumber}
	require.NoError(t, ValidateOptions(nil, domain.TypeFormula, good))

	bad := domain.ColumnOptions{Expression: "price *"}
	require.Error(t, ValidateOptions(nil, domain.TypeFormula, bad))

	nested := domain.ColumnOptions{Expression: "x", ResultType: domain.TypeFormula}
	require.Error(t, ValidateOptions(nil, domain.TypeFormula, nested))
}

func TestValidateOptionsLookupNeedsSiblingLink(t *testing.T) {
	siblings := []domain.Column{
		{Name: "product", DataType: domain.TypeLinkedTable,
			Options: domain.ColumnOptions{LinkedTableID: "tbl1"}},
		{Name: "title", DataType: domain.TypeText},
	}

	good := domain.ColumnOptions{LinkColumn: "product", TargetColumn: "name"}
	require.NoError(t, ValidateOptions(siblings, domain.TypeLookup, good))

	missing := domain.ColumnOptions{LinkColumn: "supplier", TargetColumn: "name"}
	require.Error(t, ValidateOptions(siblings, domain.TypeLookup, missing))

	notLink := domain.ColumnOptions{LinkColumn: "title", TargetColumn: "name"}
	require.Error(t, ValidateOptions(siblings, domain.TypeLookup, notLink))
}

func TestValidateOptionsUnknownType(t *testing.T) {
	err := ValidateOptions(nil, domain.DataType("hologram"), domain.ColumnOptions{})
	require.Error(t, err)
	assert.False(t, KnownType(domain.DataType("hologram")))
	assert.True(t, KnownType(domain.TypeText))
}
