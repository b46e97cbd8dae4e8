package security

import (
	"strings"
	"time"

	"gridbase/internal/domain"
)

// RowPolicyEvaluator turns templated row policies into concrete predicates
// bound to a request context. It interprets a closed set of operators over
// typed literals; it never executes user-supplied code, and a malformed
// template surfaces as a PolicyError rather than widening visibility.
type RowPolicyEvaluator struct{}

// NewRowPolicyEvaluator creates a RowPolicyEvaluator.
func NewRowPolicyEvaluator() *RowPolicyEvaluator {
	return &RowPolicyEvaluator{}
}

// BuildFilter substitutes context placeholders into every policy template
// and combines the results conjunctively: a row is visible iff every policy
// passes. A role with zero policies yields a nil predicate (all rows,
// subject to the table-level read grant).
func (e *RowPolicyEvaluator) BuildFilter(policies []domain.RowPolicy, pctx domain.PolicyContext) (*domain.Predicate, error) {
	preds := make([]*domain.Predicate, 0, len(policies))
	for _, p := range policies {
		pred, err := e.bind(p.Template, pctx)
		if err != nil {
			return nil, domain.ErrPolicy("policy %s: %s", p.ID, err.Error())
		}
		preds = append(preds, pred)
	}
	return domain.And(preds...), nil
}

var templateOps = map[string]string{
	domain.TemplateOpEquals:    domain.OpEQ,
	domain.TemplateOpNotEquals: domain.OpNE,
	domain.TemplateOpIn:        domain.OpIn,
	domain.TemplateOpNotIn:     domain.OpNotIn,
	domain.TemplateOpGT:        domain.OpGT,
	domain.TemplateOpGTE:       domain.OpGTE,
	domain.TemplateOpLT:        domain.OpLT,
	domain.TemplateOpLTE:       domain.OpLTE,
}

func (e *RowPolicyEvaluator) bind(n domain.TemplateNode, pctx domain.PolicyContext) (*domain.Predicate, error) {
	if n.IsCombinator() {
		if len(n.Children) == 0 {
			return nil, domain.ErrPolicy("combinator %q has no children", n.Combinator)
		}
		children := make([]*domain.Predicate, 0, len(n.Children))
		for _, c := range n.Children {
			child, err := e.bind(c, pctx)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		switch n.Combinator {
		case "and":
			return domain.And(children...), nil
		case "or":
			return domain.Or(children...), nil
		}
		return nil, domain.ErrPolicy("unknown combinator %q", n.Combinator)
	}

	if n.Field == "" {
		return nil, domain.ErrPolicy("comparison is missing a field")
	}
	op, ok := templateOps[n.Op]
	if !ok {
		return nil, domain.ErrPolicy("unknown operator %q", n.Op)
	}

	if op == domain.OpIn || op == domain.OpNotIn {
		values, err := e.bindList(n.Value, pctx)
		if err != nil {
			return nil, err
		}
		return &domain.Predicate{Op: op, Field: n.Field, Values: values}, nil
	}

	value, err := e.bindValue(n.Value, pctx)
	if err != nil {
		return nil, err
	}
	return &domain.Predicate{Op: op, Field: n.Field, Value: value}, nil
}

func (e *RowPolicyEvaluator) bindList(v any, pctx domain.PolicyContext) ([]any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, domain.ErrPolicy("operator requires a list value")
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		bound, err := e.bindValue(item, pctx)
		if err != nil {
			return nil, err
		}
		out = append(out, bound)
	}
	return out, nil
}

func (e *RowPolicyEvaluator) bindValue(v any, pctx domain.PolicyContext) (any, error) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "$ctx.") {
		return v, nil
	}
	switch s {
	case domain.PlaceholderUserID:
		return pctx.UserID, nil
	case domain.PlaceholderRoleName:
		return pctx.RoleName, nil
	case domain.PlaceholderNow:
		return pctx.Now.UTC().Format(time.RFC3339), nil
	}
	return nil, domain.ErrPolicy("unresolvable placeholder %q", s)
}
