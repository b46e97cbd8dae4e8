package domain

import "time"

// Record belongs to one table and holds a mapping from column name to value.
// Values are untyped at the storage layer and typed by the owning column's
// DataType at read/validate time.
type Record struct {
	ID        string
	TableID   string
	Fields    map[string]any
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LookupValue is the display value of a lookup cell: the projected value
// plus a pointer back to the record it was resolved from, for clickthrough.
type LookupValue struct {
	Value    any    `json:"value"`
	RecordID string `json:"recordId"`
}

// Sort orders a record listing by a single field.
type Sort struct {
	Field string
	Desc  bool
}

// QueryOptions narrows a retrieval: an optional caller filter (AND-combined
// with the actor's row-policy filter), a sort, and pagination.
type QueryOptions struct {
	Filter *Predicate
	Sort   *Sort
	Page   PageRequest
}

// RecordView is one authorized, masked, derived row as returned to callers.
// Permissions carries per-column editability so downstream UI and export
// logic never re-derive permission. Hidden columns appear in neither map.
type RecordView struct {
	ID          string          `json:"id"`
	Fields      map[string]any  `json:"fields"`
	Permissions map[string]bool `json:"_permissions"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// RecordPage is a page of retrieved records plus the unpaged total.
type RecordPage struct {
	Rows  []RecordView `json:"rows"`
	Total int64        `json:"total"`
}

// CreateRecordRequest holds parameters for creating a record.
type CreateRecordRequest struct {
	TableID string
	Fields  map[string]any
}

// Validate checks that the request is well-formed.
func (r *CreateRecordRequest) Validate() error {
	if r.TableID == "" {
		return ErrValidation("table_id is required")
	}
	return nil
}

// UpdateRecordRequest holds parameters for a partial record update.
type UpdateRecordRequest struct {
	TableID  string
	RecordID string
	Fields   map[string]any
}

// Validate checks that the request is well-formed.
func (r *UpdateRecordRequest) Validate() error {
	if r.TableID == "" {
		return ErrValidation("table_id is required")
	}
	if r.RecordID == "" {
		return ErrValidation("record_id is required")
	}
	if len(r.Fields) == 0 {
		return ErrValidation("fields are required")
	}
	return nil
}
