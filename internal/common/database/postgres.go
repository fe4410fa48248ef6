// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	_ "github.com/lib/pq"

	"lca-assistant/internal/common/config"
	apperrors "lca-assistant/internal/common/errors"
	"lca-assistant/internal/common/metrics"
	"lca-assistant/internal/common/rowstore"
)

// PostgresClient implements rowstore.Store over a direct database connection.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres creates a new PostgreSQL client
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, apperrors.NewConfigurationError("postgres dsn is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("failed to open postgres: %v", err))
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// NewPostgresFromDB wraps an already opened handle.
func NewPostgresFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{DB: db}
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Select renders q as a PostgreSQL SELECT with positional arguments.
func (c *PostgresClient) Select(ctx context.Context, q rowstore.Query) ([]rowstore.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	query, args := BuildSelect(q)

	start := time.Now()
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.StoreQueryDuration.WithLabelValues("select").Observe(time.Since(start).Seconds())
		return nil, apperrors.NewRemoteError("select", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	metrics.StoreQueryDuration.WithLabelValues("select").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, apperrors.NewRemoteError("select", err)
	}
	return result, nil
}

// Raw runs statement inside a read-only transaction that is always rolled
// back, so writes are refused by the server.
func (c *PostgresClient) Raw(ctx context.Context, statement string) ([]rowstore.Row, error) {
	start := time.Now()
	defer func() {
		metrics.StoreQueryDuration.WithLabelValues("raw").Observe(time.Since(start).Seconds())
	}()

	tx, err := c.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, apperrors.NewRemoteError("raw", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, statement)
	if err != nil {
		return nil, apperrors.NewRemoteError("raw", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, apperrors.NewRemoteError("raw", err)
	}
	return result, nil
}

// BuildSelect renders q with go-sqlbuilder's PostgreSQL flavor.
func BuildSelect(q rowstore.Query) (string, []interface{}) {
	base := q.Alias
	if base == "" {
		base = q.Table
	}

	cols := make([]string, 0, len(q.Columns))
	for _, col := range q.Columns {
		cols = append(cols, qualify(base, col))
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	from := q.Table
	if q.Alias != "" {
		from = q.Table + " " + q.Alias
	}

	if q.Join != nil {
		joined := q.Join.Alias
		if joined == "" {
			joined = q.Join.Table
		}
		for _, col := range q.Join.Columns {
			cols = append(cols, qualify(joined, col))
		}
		target := q.Join.Table
		if q.Join.Alias != "" {
			target = q.Join.Table + " " + q.Join.Alias
		}
		sb.Select(cols...)
		sb.From(from)
		sb.Join(target, fmt.Sprintf("%s = %s", qualify(base, q.Join.On), qualify(joined, q.Join.On)))
	} else {
		sb.Select(cols...)
		sb.From(from)
	}

	if len(q.Filters) > 0 {
		conds := make([]string, 0, len(q.Filters))
		for _, f := range q.Filters {
			owner := base
			if f.Table != "" {
				owner = f.Table
			}
			column := qualify(owner, f.Column)
			switch f.Op {
			case rowstore.OpEq:
				conds = append(conds, sb.Equal(column, f.Value))
			case rowstore.OpILike:
				conds = append(conds, sb.ILike(column, "%"+strings.Trim(fmt.Sprint(f.Value), "%*")+"%"))
			case rowstore.OpGte:
				conds = append(conds, sb.GreaterEqualThan(column, f.Value))
			case rowstore.OpLte:
				conds = append(conds, sb.LessEqualThan(column, f.Value))
			}
		}
		sb.Where(conds...)
	}

	sb.Limit(q.Limit)
	return sb.Build()
}

func qualify(owner, column string) string {
	if strings.Contains(column, ".") {
		return column
	}
	return owner + "." + column
}

func scanRows(rows *sql.Rows) ([]rowstore.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]rowstore.Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(rowstore.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
