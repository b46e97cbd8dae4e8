package domain

import "time"

// Row-policy template operators. These are the caller-facing spellings
// stored in templates; the policy evaluator maps them onto Predicate ops.
const (
	TemplateOpEquals    = "equals"
	TemplateOpNotEquals = "not_equals"
	TemplateOpIn        = "in"
	TemplateOpNotIn     = "not_in"
	TemplateOpGT        = "greater_than"
	TemplateOpGTE       = "greater_than_or_equal"
	TemplateOpLT        = "less_than"
	TemplateOpLTE       = "less_than_or_equal"
)

// Context placeholders accepted in template values. Substitution happens
// before the predicate is handed to the record store.
const (
	PlaceholderUserID   = "$ctx.userId"
	PlaceholderRoleName = "$ctx.roleName"
	PlaceholderNow      = "$ctx.now"
)

// TemplateNode is one node of a row-policy predicate template: either a
// combinator ("and"/"or" with children) or a comparison leaf whose value
// may be a literal or a context placeholder.
type TemplateNode struct {
	Combinator string         `json:"combinator,omitempty"`
	Children   []TemplateNode `json:"children,omitempty"`

	Field string `json:"field,omitempty"`
	Op    string `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`
}

// IsCombinator reports whether the node combines children rather than
// comparing a field.
func (n TemplateNode) IsCombinator() bool { return n.Combinator != "" }

// RowPolicy is one ordered predicate template attached to a role and table.
// All of a role's policies for a table must pass (conjunctive semantics).
type RowPolicy struct {
	ID        string
	RoleID    string
	TableID   string
	Position  int
	Template  TemplateNode
	CreatedAt time.Time
}

// CreateRowPolicyRequest holds parameters for attaching a row policy.
type CreateRowPolicyRequest struct {
	RoleID   string
	TableID  string
	Template TemplateNode
}

// Validate checks that the request is well-formed.
func (r *CreateRowPolicyRequest) Validate() error {
	if r.RoleID == "" {
		return ErrValidation("role_id is required")
	}
	if r.TableID == "" {
		return ErrValidation("table_id is required")
	}
	if !r.Template.IsCombinator() && r.Template.Field == "" {
		return ErrValidation("template must have a field or a combinator")
	}
	return nil
}
