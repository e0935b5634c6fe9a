package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/store"
)

// query accumulates positional arguments while filters and sort keys are
// translated to SQL over the documents table.
type query struct {
	args []any
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// where renders the predicate selecting filter within collection.
func (q *query) where(collection string, filter store.Filter) (string, error) {
	parts := []string{"collection = " + q.arg(collection)}
	for _, c := range filter {
		p, err := q.cond(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " AND "), nil
}

func (q *query) cond(c store.Cond) (string, error) {
	name := q.arg(c.Field) + "::text"
	field := "doc -> " + name
	absent := fmt.Sprintf("(%[1]s) IS NULL OR (%[1]s) = 'null'::jsonb", field)

	switch c.Op {
	case store.OpEq:
		v, err := jsonValue(c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s) = %s::jsonb", field, q.arg(v)), nil
	case store.OpNe:
		v, err := jsonValue(c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s OR (%s) <> %s::jsonb)", absent, field, q.arg(v)), nil
	case store.OpIn, store.OpNin:
		vs := c.Values()
		texts := make([]string, 0, len(vs))
		for _, v := range vs {
			t, err := jsonValue(v)
			if err != nil {
				return "", err
			}
			texts = append(texts, t)
		}
		set := fmt.Sprintf("(SELECT v::jsonb FROM unnest(%s::text[]) AS v)", q.arg(texts))
		if c.Op == store.OpIn {
			return fmt.Sprintf("(%s) IN %s", field, set), nil
		}
		return fmt.Sprintf("(%s OR (%s) NOT IN %s)", absent, field, set), nil
	case store.OpLt, store.OpLte:
		op := "<"
		if c.Op == store.OpLte {
			op = "<="
		}
		switch v := c.Value.(type) {
		case int64, float64:
			return fmt.Sprintf("(%s) %s %s::numeric", numericOf(field, name), op, q.arg(v)), nil
		case time.Time:
			return fmt.Sprintf("(%s) %s %s::text", textOf(field, name), op, q.arg(store.FormatTime(v))), nil
		case string:
			return fmt.Sprintf("(%s) %s %s::text", textOf(field, name), op, q.arg(v)), nil
		}
		return "", fmt.Errorf("range on %s with %T: %w", c.Field, c.Value, apperr.ErrInvalid)
	}
	return "", fmt.Errorf("operator %q: %w", c.Op, apperr.ErrInvalid)
}

func numericOf(field, name string) string {
	return fmt.Sprintf("CASE WHEN jsonb_typeof(%s) = 'number' THEN (doc ->> %s)::numeric END", field, name)
}

func textOf(field, name string) string {
	return fmt.Sprintf(`CASE WHEN jsonb_typeof(%s) IN ('string', 'boolean') THEN (doc ->> %s) END COLLATE "C"`, field, name)
}

// orderBy sorts like store.Less: missing values first, then numbers, then
// text. The natural key breaks ties.
func (q *query) orderBy(keys []store.SortKey) string {
	parts := make([]string, 0, 3*len(keys)+1)
	for _, k := range keys {
		name := q.arg(k.Field) + "::text"
		field := "doc -> " + name
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts,
			fmt.Sprintf("CASE jsonb_typeof(%s) WHEN 'number' THEN 1 WHEN 'string' THEN 2 WHEN 'boolean' THEN 4 ELSE 0 END %s", field, dir),
			numericOf(field, name)+" "+dir,
			textOf(field, name)+" "+dir,
		)
	}
	parts = append(parts, `key COLLATE "C" ASC`)
	return strings.Join(parts, ", ")
}

// selectDocs renders the FindMany statement.
func selectDocs(collection string, filter store.Filter, opts store.FindOptions) (string, []any, error) {
	q := &query{}
	where, err := q.where(collection, filter)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT doc FROM documents WHERE " + where + " ORDER BY " + q.orderBy(opts.Sort)
	if opts.Limit > 0 {
		sql += " LIMIT " + q.arg(opts.Limit)
	}
	return sql, q.args, nil
}

// lockDocs renders the UpdateOneIf candidate lookup. Two rows are enough
// to tell a unique match from an ambiguous one.
func lockDocs(collection string, filter store.Filter) (string, []any, error) {
	q := &query{}
	where, err := q.where(collection, filter)
	if err != nil {
		return "", nil, err
	}
	return "SELECT key, doc FROM documents WHERE " + where + " LIMIT 2 FOR UPDATE", q.args, nil
}
