package domain

// Predicate operators. The set is closed: the record store renders exactly
// these to parameterized SQL, so no user-supplied text ever reaches the
// query layer as syntax.
const (
	OpAnd   = "and"
	OpOr    = "or"
	OpEQ    = "eq"
	OpNE    = "ne"
	OpIn    = "in"
	OpNotIn = "not_in"
	OpGT    = "gt"
	OpGTE   = "gte"
	OpLT    = "lt"
	OpLTE   = "lte"
)

// Predicate is a bound, fully-literal filter tree handed to the record
// store. Leaf nodes compare a field against a scalar or a value set;
// interior nodes combine children with and/or.
type Predicate struct {
	Op       string
	Field    string
	Value    any
	Values   []any
	Children []*Predicate
}

// Leaf reports whether the node is a comparison rather than a combinator.
func (p *Predicate) Leaf() bool {
	return p.Op != OpAnd && p.Op != OpOr
}

// And combines predicates conjunctively. Nil children are dropped;
// it returns nil when nothing remains, and the sole child unwrapped when
// only one remains.
func And(ps ...*Predicate) *Predicate {
	return combine(OpAnd, ps)
}

// Or combines predicates disjunctively, with the same nil handling as And.
func Or(ps ...*Predicate) *Predicate {
	return combine(OpOr, ps)
}

func combine(op string, ps []*Predicate) *Predicate {
	kept := make([]*Predicate, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Predicate{Op: op, Children: kept}
}

// FieldEQ matches records whose field equals v.
func FieldEQ(field string, v any) *Predicate {
	return &Predicate{Op: OpEQ, Field: field, Value: v}
}

// FieldNE matches records whose field does not equal v.
func FieldNE(field string, v any) *Predicate {
	return &Predicate{Op: OpNE, Field: field, Value: v}
}

// FieldIn matches records whose field is one of vs.
func FieldIn(field string, vs ...any) *Predicate {
	return &Predicate{Op: OpIn, Field: field, Values: vs}
}

// FieldNotIn matches records whose field is none of vs.
func FieldNotIn(field string, vs ...any) *Predicate {
	return &Predicate{Op: OpNotIn, Field: field, Values: vs}
}

// FieldGT matches records whose field is greater than v.
func FieldGT(field string, v any) *Predicate {
	return &Predicate{Op: OpGT, Field: field, Value: v}
}

// FieldGTE matches records whose field is greater than or equal to v.
func FieldGTE(field string, v any) *Predicate {
	return &Predicate{Op: OpGTE, Field: field, Value: v}
}

// FieldLT matches records whose field is less than v.
func FieldLT(field string, v any) *Predicate {
	return &Predicate{Op: OpLT, Field: field, Value: v}
}

// FieldLTE matches records whose field is less than or equal to v.
func FieldLTE(field string, v any) *Predicate {
	return &Predicate{Op: OpLTE, Field: field, Value: v}
}
