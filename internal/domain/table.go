package domain

import "time"

// DataType tags the closed set of column types. Validation, input coercion,
// and derivation dispatch on this tag through the catalog registry.
type DataType string

// Column data types.
const (
	TypeText        DataType = "text"
	TypeLongText    DataType = "long_text"
	TypeNumber      DataType = "number"
	TypeCurrency    DataType = "currency"
	TypePercent     DataType = "percent"
	TypeDate        DataType = "date"
	TypeCheckbox    DataType = "checkbox"
	TypeSingleSelect DataType = "single_select"
	TypeMultiSelect DataType = "multi_select"
	TypeLinkedTable DataType = "linked_table"
	TypeFormula     DataType = "formula"
	TypeLookup      DataType = "lookup"
)

// Computed reports whether values of this type are derived at read time
// rather than written by clients.
func (t DataType) Computed() bool {
	return t == TypeFormula || t == TypeLookup
}

// Table belongs to one base and carries an ordered set of typed columns.
type Table struct {
	ID        string
	BaseID    string
	Name      string
	Position  int
	CreatedAt time.Time
}

// ColumnOptions is the type-specific configuration of a column. Only the
// fields relevant to the column's DataType are set; the catalog registry
// validates the combination.
type ColumnOptions struct {
	// single_select / multi_select
	Choices []string `json:"choices,omitempty"`

	// currency / percent / number
	CurrencySymbol string `json:"currencySymbol,omitempty"`
	Precision      *int   `json:"precision,omitempty"`

	// date
	DateFormat string `json:"dateFormat,omitempty"`

	// formula
	Expression string   `json:"expression,omitempty"`
	ResultType DataType `json:"resultType,omitempty"`

	// linked_table
	LinkedTableID string `json:"linkedTableId,omitempty"`

	// lookup: LinkColumn names a sibling linked_table column in the same
	// table; TargetColumn names the column to project from the linked table.
	LinkColumn   string `json:"linkColumn,omitempty"`
	TargetColumn string `json:"targetColumn,omitempty"`
}

// Column belongs to one table. Columns are immutable values: every mutation
// constructs a new Column rather than editing nested options in place.
type Column struct {
	ID        string
	TableID   string
	Name      string
	DataType  DataType
	Position  int
	Options   ColumnOptions
	CreatedAt time.Time
}

// WithName returns a copy of the column under a new name.
func (c Column) WithName(name string) Column {
	c.Name = name
	return c
}

// WithOptions returns a copy of the column with replaced options.
func (c Column) WithOptions(opts ColumnOptions) Column {
	opts.Choices = append([]string(nil), opts.Choices...)
	c.Options = opts
	return c
}

// WithPosition returns a copy of the column at a new position.
func (c Column) WithPosition(pos int) Column {
	c.Position = pos
	return c
}

// CreateTableRequest holds parameters for creating a table.
type CreateTableRequest struct {
	BaseID string
	Name   string
}

// Validate checks that the request is well-formed.
func (r *CreateTableRequest) Validate() error {
	if r.BaseID == "" {
		return ErrValidation("base_id is required")
	}
	if r.Name == "" {
		return ErrValidation("name is required")
	}
	return nil
}

// CreateColumnRequest holds parameters for creating a column.
type CreateColumnRequest struct {
	TableID  string
	Name     string
	DataType DataType
	Options  ColumnOptions
}

// Validate checks that the request is well-formed. Type-specific option
// validation happens in the catalog registry.
func (r *CreateColumnRequest) Validate() error {
	if r.TableID == "" {
		return ErrValidation("table_id is required")
	}
	if r.Name == "" {
		return ErrValidation("name is required")
	}
	if r.DataType == "" {
		return ErrValidation("data_type is required")
	}
	return nil
}
