// Package catalog manages the schema surface: bases, tables, and typed
// columns. The data-type registry is the single source of truth for which
// column types exist, how their options validate, and which ones are
// computed at read time.
package catalog

import (
	"time"

	"gridbase/internal/domain"
	"gridbase/internal/service/derive"
)

type typeSpec struct {
	validateOptions func(siblings []domain.Column, opts domain.ColumnOptions) error
	validateValue   func(opts domain.ColumnOptions, v any) error
}

// registry is the closed set of supported column types. Adding a type
// means adding an entry here; nothing else dispatches on type names.
// Populated in init to avoid an initialization cycle through
// formulaOptions -> KnownType -> registry.
var registry map[domain.DataType]typeSpec

func init() {
	registry = map[domain.DataType]typeSpec{
		domain.TypeText:     {validateValue: stringValue},
		domain.TypeLongText: {validateValue: stringValue},
		domain.TypeNumber:   {validateValue: numberValue},
		domain.TypeCurrency: {validateValue: numberValue},
		domain.TypePercent:  {validateValue: numberValue},
		domain.TypeDate:     {validateValue: dateValue},
		domain.TypeCheckbox: {validateValue: boolValue},
		domain.TypeSingleSelect: {
			validateOptions: requireChoices,
			validateValue:   singleChoiceValue,
		},
		domain.TypeMultiSelect: {
			validateOptions: requireChoices,
			validateValue:   multiChoiceValue,
		},
		domain.TypeLinkedTable: {
			validateOptions: linkedTableOptions,
			validateValue:   linkValue,
		},
		domain.TypeFormula: {
			validateOptions: formulaOptions,
		},
		domain.TypeLookup: {
			validateOptions: lookupOptions,
		},
	}
}

// KnownType reports whether the data type is registered.
func KnownType(t domain.DataType) bool {
	_, ok := registry[t]
	return ok
}

// ValidateOptions checks a column definition's type-specific options
// against the registry, given the column's (current or prospective)
// siblings.
func ValidateOptions(siblings []domain.Column, dataType domain.DataType, opts domain.ColumnOptions) error {
	spec, ok := registry[dataType]
	if !ok {
		return domain.ErrValidation("unknown data type %q", dataType)
	}
	if spec.validateOptions == nil {
		return nil
	}
	return spec.validateOptions(siblings, opts)
}

// ValidateValue checks one written cell value against its column's type.
// Nil clears the cell and is always accepted.
func ValidateValue(col *domain.Column, v any) error {
	if v == nil {
		return nil
	}
	spec, ok := registry[col.DataType]
	if !ok {
		return domain.ErrValidation("unknown data type %q", col.DataType)
	}
	if spec.validateValue == nil {
		return domain.ErrValidation("column %q does not accept written values", col.Name)
	}
	if err := spec.validateValue(col.Options, v); err != nil {
		return domain.ErrValidation("column %q: %s", col.Name, err.Error())
	}
	return nil
}

func stringValue(_ domain.ColumnOptions, v any) error {
	if _, ok := v.(string); !ok {
		return domain.ErrValidation("expected a string, got %T", v)
	}
	return nil
}

func numberValue(_ domain.ColumnOptions, v any) error {
	switch v.(type) {
	case float64, int, int64:
		return nil
	}
	return domain.ErrValidation("expected a number, got %T", v)
}

func boolValue(_ domain.ColumnOptions, v any) error {
	if _, ok := v.(bool); !ok {
		return domain.ErrValidation("expected a boolean, got %T", v)
	}
	return nil
}

func dateValue(_ domain.ColumnOptions, v any) error {
	s, ok := v.(string)
	if !ok {
		return domain.ErrValidation("expected an RFC 3339 string, got %T", v)
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return domain.ErrValidation("invalid date %q", s)
	}
	return nil
}

func requireChoices(_ []domain.Column, opts domain.ColumnOptions) error {
	if len(opts.Choices) == 0 {
		return domain.ErrValidation("select columns require at least one choice")
	}
	seen := map[string]bool{}
	for _, c := range opts.Choices {
		if c == "" {
			return domain.ErrValidation("choices cannot be empty strings")
		}
		if seen[c] {
			return domain.ErrValidation("duplicate choice %q", c)
		}
		seen[c] = true
	}
	return nil
}

func singleChoiceValue(opts domain.ColumnOptions, v any) error {
	s, ok := v.(string)
	if !ok {
		return domain.ErrValidation("expected a choice string, got %T", v)
	}
	return mustBeChoice(opts, s)
}

func multiChoiceValue(opts domain.ColumnOptions, v any) error {
	list, ok := v.([]any)
	if !ok {
		return domain.ErrValidation("expected a list of choices, got %T", v)
	}
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return domain.ErrValidation("expected a choice string, got %T", item)
		}
		if err := mustBeChoice(opts, s); err != nil {
			return err
		}
	}
	return nil
}

func mustBeChoice(opts domain.ColumnOptions, s string) error {
	for _, c := range opts.Choices {
		if c == s {
			return nil
		}
	}
	return domain.ErrValidation("%q is not a configured choice", s)
}

func linkedTableOptions(_ []domain.Column, opts domain.ColumnOptions) error {
	if opts.LinkedTableID == "" {
		return domain.ErrValidation("linked_table columns require a linked table id")
	}
	return nil
}

func linkValue(_ domain.ColumnOptions, v any) error {
	switch val := v.(type) {
	case string:
		if val == "" {
			return domain.ErrValidation("link ids cannot be empty")
		}
		return nil
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok || s == "" {
				return domain.ErrValidation("link ids must be non-empty strings")
			}
		}
		return nil
	}
	return domain.ErrValidation("expected a record id or list of ids, got %T", v)
}

func formulaOptions(_ []domain.Column, opts domain.ColumnOptions) error {
	if err := derive.CheckExpression(opts.Expression); err != nil {
		return err
	}
	if opts.ResultType != "" {
		switch opts.ResultType {
		case domain.TypeFormula, domain.TypeLookup, domain.TypeLinkedTable:
			return domain.ErrValidation("formula result type cannot be %q", opts.ResultType)
		default:
			if !KnownType(opts.ResultType) {
				return domain.ErrValidation("unknown formula result type %q", opts.ResultType)
			}
		}
	}
	return nil
}

// lookupOptions requires the link column to exist as a sibling
// linked_table column at definition time.
func lookupOptions(siblings []domain.Column, opts domain.ColumnOptions) error {
	if opts.LinkColumn == "" || opts.TargetColumn == "" {
		return domain.ErrValidation("lookup columns require a link column and a target column")
	}
	for _, sib := range siblings {
		if sib.Name == opts.LinkColumn {
			if sib.DataType != domain.TypeLinkedTable {
				return domain.ErrValidation("link column %q is not a linked_table column", opts.LinkColumn)
			}
			return nil
		}
	}
	return domain.ErrValidation("link column %q does not exist", opts.LinkColumn)
}
