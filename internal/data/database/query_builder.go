// Package database builds parameterized list queries for the discovery
// repositories. Identifiers are sanitized through pgx so filter fields coming
// from admin tooling or API query strings can never splice SQL.
package database

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Op is a comparison operator usable in a Condition.
type Op string

const (
	Equal              Op = "="
	NotEqual           Op = "!="
	GreaterThan        Op = ">"
	GreaterThanOrEqual Op = ">="
	LessThan           Op = "<"
	LessThanOrEqual    Op = "<="
	ILike              Op = "ILIKE"
	In                 Op = "IN"
)

// unset marks Limit/Offset as "not requested" so zero values stay usable.
const unset = -1

// Condition is one WHERE predicate. Build with WhereCond.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// WhereCond builds a sanitized field/operator/value predicate.
func WhereCond(field string, op Op, value any) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// ListQueryOptions accumulates the parts of a list query.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	Conditions []Condition
	OrderBy    string
	OrderDir   string
	Limit      int
	Offset     int
	CountOnly  bool
}

// ListQueryOption mutates ListQueryOptions.
type ListQueryOption func(*ListQueryOptions)

// NewListQueryOptions starts a query against table and applies opts in order.
func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	o := &ListQueryOptions{
		Table:  table,
		Limit:  unset,
		Offset: unset,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithColumns selects specific columns instead of *.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

// WithCondition appends one predicate.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithConditions replaces the predicate list.
func WithConditions(conds ...Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = conds }
}

// WithOrderBy sets the ordering column and direction ("ASC"/"DESC";
// anything else is dropped and Postgres default ordering applies).
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = column
		o.OrderDir = direction
	}
}

// WithLimit sets LIMIT. Zero is a valid (empty-page) limit.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets OFFSET. Zero is valid.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly switches the query to SELECT COUNT(*), ignoring columns,
// ordering and pagination.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) { o.CountOnly = true }
}

// BuildListQuery renders options into a SQL string plus positional args.
//
//	query, args := BuildListQuery(NewListQueryOptions("stores",
//		WithColumns("id", "name", "domain"),
//		WithCondition(WhereCond("is_active", Equal, true)),
//		WithOrderBy("created_at", "ASC"),
//		WithLimit(50),
//	))
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var query strings.Builder
	query.WriteString(selectClause(options))
	query.WriteString("FROM ")
	query.WriteString(sanitizeIdentifier(options.Table))

	whereClause, args, next := buildWhereClause(options.Conditions, 1)
	if whereClause != "" {
		query.WriteString(" ")
		query.WriteString(whereClause)
	}

	if options.CountOnly {
		return query.String(), args
	}

	if options.OrderBy != "" {
		query.WriteString(" ORDER BY ")
		query.WriteString(sanitizeQualifiedIdentifier(options.OrderBy))
		if dir := strings.ToUpper(options.OrderDir); dir == "ASC" || dir == "DESC" {
			query.WriteString(" ")
			query.WriteString(dir)
		}
	}
	if options.Limit != unset {
		fmt.Fprintf(&query, " LIMIT $%d", next)
		args = append(args, options.Limit)
		next++
	}
	if options.Offset != unset {
		fmt.Fprintf(&query, " OFFSET $%d", next)
		args = append(args, options.Offset)
	}

	return query.String(), args
}

func selectClause(options *ListQueryOptions) string {
	if options.CountOnly {
		return "SELECT COUNT(*) "
	}
	if len(options.Columns) == 0 {
		return "SELECT * "
	}
	cols := make([]string, len(options.Columns))
	for i, col := range options.Columns {
		cols[i] = sanitizeQualifiedIdentifier(col)
	}
	return fmt.Sprintf("SELECT %s ", strings.Join(cols, ", "))
}

// buildWhereClause renders conditions into "WHERE a AND b ..." starting at
// placeholder $startParamIndex. It returns the clause, the collected args and
// the next free placeholder index. Conditions with an empty field, an unknown
// operator, or an empty IN slice are skipped rather than rendered invalid.
func buildWhereClause(inputConditions []Condition, startParamIndex int) (string, []any, int) {
	rendered := make([]string, 0, len(inputConditions))
	args := []any{}
	param := startParamIndex

	for _, cond := range inputConditions {
		if cond.Field == "" {
			continue
		}
		field := sanitizeIdentifier(cond.Field)

		switch cond.Op {
		case In:
			clause, inArgs, next := renderIn(field, cond.Value, param)
			if clause == "" {
				continue
			}
			rendered = append(rendered, clause)
			args = append(args, inArgs...)
			param = next
		case Equal, NotEqual, GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual, ILike:
			rendered = append(rendered, fmt.Sprintf("%s %s $%d", field, cond.Op, param))
			args = append(args, cond.Value)
			param++
		default:
			continue
		}
	}

	if len(rendered) == 0 {
		return "", args, param
	}
	return "WHERE " + strings.Join(rendered, " AND "), args, param
}

// renderIn expands any non-empty slice value into "field IN ($n, ...)".
func renderIn(field string, value any, param int) (string, []any, int) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return "", nil, param
	}
	placeholders := make([]string, rv.Len())
	args := make([]any, rv.Len())
	for i := range rv.Len() {
		placeholders[i] = fmt.Sprintf("$%d", param)
		args[i] = rv.Index(i).Interface()
		param++
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", ")), args, param
}

func sanitizeIdentifier(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

// sanitizeQualifiedIdentifier quotes dotted identifiers like "stores.domain"
// part by part.
func sanitizeQualifiedIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}
