// Package rowstore describes the read-only contract shared by the hosted
// database clients: select columns from a table, optionally inner-joined to a
// child table, filtered and limited.
package rowstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	apperrors "lca-assistant/internal/common/errors"
)

// Row is one result row keyed by column name. Joined columns are flattened
// into the same map.
type Row map[string]interface{}

type FilterOp string

const (
	OpEq    FilterOp = "eq"
	OpILike FilterOp = "ilike"
	OpGte   FilterOp = "gte"
	OpLte   FilterOp = "lte"
)

// JoinSpec is an inner join on a column present in both tables.
type JoinSpec struct {
	Table   string
	Alias   string
	On      string
	Columns []string
}

// Filter restricts rows on Table.Column. An empty Table means the base table.
type Filter struct {
	Table  string
	Column string
	Op     FilterOp
	Value  interface{}
}

type Query struct {
	Table   string
	Alias   string
	Columns []string
	Join    *JoinSpec
	Filters []Filter
	Limit   int
}

// Store is implemented by the Supabase REST client and the direct Postgres client.
type Store interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	// Raw passes a read statement through unchanged. The database role is
	// the only guard against writes.
	Raw(ctx context.Context, statement string) ([]Row, error)
	Close() error
}

// Validate rejects a query before any network call is made.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Table) == "" {
		return apperrors.NewValidationError("table", "table is required")
	}
	if len(q.Columns) == 0 {
		return apperrors.NewValidationError("columns", "at least one column is required")
	}
	if q.Limit <= 0 {
		return apperrors.NewValidationError("limit", fmt.Sprintf("limit must be a positive integer, got %d", q.Limit))
	}
	if q.Join != nil {
		if q.Join.Table == "" || q.Join.On == "" {
			return apperrors.NewValidationError("join", "join requires a table and an ON column")
		}
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEq, OpILike, OpGte, OpLte:
		default:
			return apperrors.NewValidationError("filter", fmt.Sprintf("unsupported filter operator %q", f.Op))
		}
		if f.Column == "" {
			return apperrors.NewValidationError("filter", "filter column is required")
		}
	}
	return nil
}

// IsJoinFilter reports whether f targets the joined table.
func (q Query) IsJoinFilter(f Filter) bool {
	if q.Join == nil || f.Table == "" {
		return false
	}
	return f.Table == q.Join.Table || (q.Join.Alias != "" && f.Table == q.Join.Alias)
}

// String returns the value of column as a string, or "" when absent or null.
func (r Row) String(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// Float returns a numeric column as float64. Numeric strings are parsed.
func (r Row) Float(column string) (float64, bool) {
	switch t := r[column].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case []byte:
		return parseFloat(string(t))
	case string:
		return parseFloat(t)
	default:
		return 0, false
	}
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
