package repository

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// List URL builder.
// Filters are encoded the way the API reads them: equality as field=value,
// every other operator as field[op]=value. Field names are not escaped
// beyond URL encoding, so they must come from code, not from user input.

// Operator represents a filter comparison
type Operator string

const (
	Equal              Operator = "eq"
	NotEqual           Operator = "ne"
	GreaterThan        Operator = "gt"
	GreaterThanOrEqual Operator = "gte"
	LessThan           Operator = "lt"
	LessThanOrEqual    Operator = "lte"
	Like               Operator = "like"
	In                 Operator = "in"
	NotIn              Operator = "nin"
	IsNull             Operator = "null"
	IsNotNull          Operator = "notnull"
	Between            Operator = "between"
)

// Condition represents one filter
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// Query builds list URLs
type Query struct {
	path    string
	where   []Condition
	orderBy []string
	include []string
	limit   int
	offset  int
}

// NewQuery creates a query for path, which may already carry parameters
func NewQuery(path string) *Query {
	return &Query{path: path}
}

// Where adds a filter
func (q *Query) Where(field string, operator Operator, value any) *Query {
	q.where = append(q.where, Condition{Field: field, Operator: operator, Value: value})
	return q
}

// In adds a field[in]=a,b,c filter
func (q *Query) In(field string, values ...any) *Query {
	return q.Where(field, In, values)
}

// OrderBy adds a sort key; descending keys are prefixed with "-"
func (q *Query) OrderBy(field string, desc bool) *Query {
	if desc {
		field = "-" + field
	}
	q.orderBy = append(q.orderBy, field)
	return q
}

// Include asks the API to embed relations in the response
func (q *Query) Include(relations ...string) *Query {
	q.include = append(q.include, relations...)
	return q
}

// Limit sets the page size
// Negative values are normalized to 0
func (q *Query) Limit(limit int) *Query {
	if limit < 0 {
		limit = 0
	}
	q.limit = limit
	return q
}

// Offset sets the page offset
// Negative values are normalized to 0
func (q *Query) Offset(offset int) *Query {
	if offset < 0 {
		offset = 0
	}
	q.offset = offset
	return q
}

// Build returns the URL. Parameters are sorted by name so equal queries
// produce equal URLs and share one request-cache entry.
func (q *Query) Build() string {
	path, raw, _ := strings.Cut(q.path, "?")
	params, err := url.ParseQuery(raw)
	if err != nil {
		params = url.Values{}
	}

	for _, cond := range q.where {
		key, value, ok := buildCondition(cond)
		if ok {
			params.Add(key, value)
		}
	}
	if len(q.orderBy) > 0 {
		params.Set("sort", strings.Join(q.orderBy, ","))
	}
	if len(q.include) > 0 {
		params.Set("include", strings.Join(q.include, ","))
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		params.Set("offset", strconv.Itoa(q.offset))
	}

	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

func (q *Query) String() string {
	return q.Build()
}

// buildCondition encodes a single filter; ok is false for filters that
// cannot be expressed (BETWEEN without exactly two values)
func buildCondition(cond Condition) (key, value string, ok bool) {
	switch cond.Operator {
	case Equal, "":
		return cond.Field, formatValue(cond.Value), true
	case IsNull, IsNotNull:
		return opKey(cond), "true", true
	case In, NotIn:
		return opKey(cond), strings.Join(formatList(cond.Value), ","), true
	case Between:
		values := formatList(cond.Value)
		if len(values) != 2 {
			return "", "", false
		}
		return opKey(cond), strings.Join(values, ","), true
	default:
		return opKey(cond), formatValue(cond.Value), true
	}
}

func opKey(cond Condition) string {
	return cond.Field + "[" + string(cond.Operator) + "]"
}

// formatList expands slices and arrays; a single value becomes a one-element list
func formatList(v any) []string {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []string{formatValue(v)}
	}
	out := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = formatValue(rv.Index(i).Interface())
	}
	return out
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
