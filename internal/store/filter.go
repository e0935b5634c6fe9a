package store

import "strings"

// Op is a comparison operator understood by every backend.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpIn  Op = "in"
	OpNin Op = "nin"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// Cond is one predicate on a top-level field.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Filter is a conjunction of conditions. An empty filter matches everything.
type Filter []Cond

// Where builds a Filter.
func Where(conds ...Cond) Filter { return Filter(conds) }

func Eq(field string, v any) Cond  { return Cond{Field: field, Op: OpEq, Value: Normalize(v)} }
func Ne(field string, v any) Cond  { return Cond{Field: field, Op: OpNe, Value: Normalize(v)} }
func Lt(field string, v any) Cond  { return Cond{Field: field, Op: OpLt, Value: Normalize(v)} }
func Lte(field string, v any) Cond { return Cond{Field: field, Op: OpLte, Value: Normalize(v)} }

// In matches documents whose field equals one of vs.
func In[T any](field string, vs ...T) Cond {
	return Cond{Field: field, Op: OpIn, Value: normalizeAll(vs)}
}

// Nin matches documents whose field is absent or equals none of vs.
func Nin[T any](field string, vs ...T) Cond {
	return Cond{Field: field, Op: OpNin, Value: normalizeAll(vs)}
}

func normalizeAll[T any](vs []T) []any {
	out := make([]any, 0, len(vs))
	for _, v := range vs {
		out = append(out, Normalize(v))
	}
	return out
}

// Values returns the operand list of an In/Nin condition.
func (c Cond) Values() []any {
	if vs, ok := c.Value.([]any); ok {
		return vs
	}
	return []any{c.Value}
}

// Match evaluates the filter against d in memory.
func (f Filter) Match(d Doc) bool {
	for _, c := range f {
		if !c.match(d) {
			return false
		}
	}
	return true
}

func (c Cond) match(d Doc) bool {
	v, ok := d[c.Field]
	if !ok {
		v = nil
	}
	switch c.Op {
	case OpEq:
		return v != nil && Compare(v, c.Value) == 0
	case OpNe:
		return v == nil || Compare(v, c.Value) != 0
	case OpIn:
		return v != nil && containsValue(c.Values(), v)
	case OpNin:
		return v == nil || !containsValue(c.Values(), v)
	case OpLt:
		return v != nil && Compare(v, c.Value) < 0
	case OpLte:
		return v != nil && Compare(v, c.Value) <= 0
	default:
		return false
	}
}

func containsValue(vs []any, v any) bool {
	for _, x := range vs {
		if Compare(x, v) == 0 {
			return true
		}
	}
	return false
}

// String renders the filter for logs.
func (f Filter) String() string {
	parts := make([]string, 0, len(f))
	for _, c := range f {
		parts = append(parts, c.Field+" "+string(c.Op))
	}
	return strings.Join(parts, " and ")
}

// Mutation sets and removes top-level fields.
type Mutation struct {
	Set   Doc
	Unset []string
}

// Set builds a Mutation assigning fields.
func Set(fields Doc) Mutation {
	set := make(Doc, len(fields))
	for k, v := range fields {
		set[k] = Normalize(v)
	}
	return Mutation{Set: set}
}

// AndUnset adds fields to remove.
func (m Mutation) AndUnset(fields ...string) Mutation {
	m.Unset = append(append([]string(nil), m.Unset...), fields...)
	return m
}

// Apply returns a copy of d with the mutation applied.
func (m Mutation) Apply(d Doc) Doc {
	out := d.Clone()
	if out == nil {
		out = Doc{}
	}
	for k, v := range m.Set {
		out[k] = cloneValue(v)
	}
	for _, k := range m.Unset {
		delete(out, k)
	}
	return out
}

// SortKey orders results by one field.
type SortKey struct {
	Field string
	Desc  bool
}

func Asc(field string) SortKey  { return SortKey{Field: field} }
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }

// FindOptions tunes FindMany. A zero Limit means unlimited.
type FindOptions struct {
	Sort  []SortKey
	Limit int
}

// Less reports whether a sorts before b under keys.
func Less(keys []SortKey, a, b Doc) bool {
	for _, k := range keys {
		c := Compare(a[k.Field], b[k.Field])
		if c == 0 {
			continue
		}
		if k.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}
