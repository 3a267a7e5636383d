// Package query translates list-endpoint query parameters into a
// retrieval directive: filter clauses, sort order, field projection and
// a pagination window. Repositories render the directive into SQL
// against a per-resource column allow-list.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/iudanet/tourbook/internal/server/apperr"
)

// Reserved control keys; every other parameter is a filter clause.
const (
	keyPage   = "page"
	keySort   = "sort"
	keyLimit  = "limit"
	keyFields = "fields"
)

const (
	DefaultPage  = 1
	DefaultLimit = 100
)

// operators maps filter suffixes to SQL comparison operators.
var operators = map[string]string{
	"gte": ">=",
	"gt":  ">",
	"lte": "<=",
	"lt":  "<",
}

// Clause is a single filter predicate on one field.
type Clause struct {
	Field string
	Op    string // SQL operator: =, >=, >, <=, <
	Value string
}

// SortKey is one entry of the sort order, applied in listed priority.
type SortKey struct {
	Field string
	Desc  bool
}

// Directive is the request-scoped retrieval specification for one list
// request. It is rebuilt per request and never persisted.
type Directive struct {
	Filter []Clause
	Sort   []SortKey
	Fields []string
	Page   int
	Limit  int
}

// Offset returns the pagination offset for the window.
func (d *Directive) Offset() int {
	return (d.Page - 1) * d.Limit
}

// Parse builds a Directive from raw query parameters.
// Unknown filter operators are rejected, not silently dropped.
// Non-numeric or non-positive page/limit fall back to the defaults.
func Parse(values url.Values) (*Directive, error) {
	d := &Directive{
		Page:  positiveIntOr(values.Get(keyPage), DefaultPage),
		Limit: positiveIntOr(values.Get(keyLimit), DefaultLimit),
	}

	if sort := values.Get(keySort); sort != "" {
		for _, field := range strings.Split(sort, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			key := SortKey{Field: field}
			if strings.HasPrefix(field, "-") {
				key = SortKey{Field: field[1:], Desc: true}
			}
			d.Sort = append(d.Sort, key)
		}
	}

	if fields := values.Get(keyFields); fields != "" {
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				d.Fields = append(d.Fields, f)
			}
		}
	}

	for key, vals := range values {
		switch key {
		case keyPage, keySort, keyLimit, keyFields:
			continue
		}
		field, op, err := parseFilterKey(key)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			d.Filter = append(d.Filter, Clause{Field: field, Op: op, Value: v})
		}
	}

	return d, nil
}

// parseFilterKey splits "price[gte]" into field and SQL operator.
// A bare key is an equality clause.
func parseFilterKey(key string) (field, op string, err error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, "=", nil
	}
	if !strings.HasSuffix(key, "]") {
		return "", "", apperr.Newf(400, "Malformed filter parameter '%s'.", key)
	}
	field = key[:open]
	suffix := key[open+1 : len(key)-1]
	sqlOp, ok := operators[suffix]
	if !ok {
		return "", "", apperr.Newf(400, "Unknown filter operator '%s'.", suffix)
	}
	return field, sqlOp, nil
}

func positiveIntOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// Where renders the filter clauses into a SQL fragment and bind args.
// cols maps exposed field names to column names; filtering on a field
// outside the allow-list is rejected. Numeric-looking values are bound
// as numbers so sqlite comparisons keep numeric affinity.
func (d *Directive) Where(cols map[string]string) (string, []any, error) {
	if len(d.Filter) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(d.Filter))
	args := make([]any, 0, len(d.Filter))
	for _, c := range d.Filter {
		col, ok := cols[c.Field]
		if !ok {
			return "", nil, apperr.Newf(400, "Cannot filter on unknown field '%s'.", c.Field)
		}
		conds = append(conds, col+" "+c.Op+" ?")
		if f, err := strconv.ParseFloat(c.Value, 64); err == nil {
			args = append(args, f)
		} else {
			args = append(args, c.Value)
		}
	}
	return strings.Join(conds, " AND "), args, nil
}

// OrderBy renders the sort keys into a SQL ORDER BY body. An empty sort
// falls back to newest-first creation order.
func (d *Directive) OrderBy(cols map[string]string) (string, error) {
	if len(d.Sort) == 0 {
		return "created_at DESC", nil
	}
	parts := make([]string, 0, len(d.Sort))
	for _, key := range d.Sort {
		col, ok := cols[key.Field]
		if !ok {
			return "", apperr.Newf(400, "Cannot sort on unknown field '%s'.", key.Field)
		}
		if key.Desc {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	return strings.Join(parts, ", "), nil
}
