// internal/common/database/sql.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"shopping-agent/internal/common/config"
)

// Dialect selects the SQL flavour spoken by a SQLClient.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLClient wraps a database/sql connection together with its dialect.
// Queries are written with '?' placeholders and rebound for Postgres.
type SQLClient struct {
	DB      *sql.DB
	Dialect Dialect
}

// Open connects to the driver named in cfg.Driver.
func Open(cfg config.DatabaseConfig) (*SQLClient, error) {
	switch Dialect(cfg.Driver) {
	case DialectSQLite, "":
		return NewSQLite(cfg.SQLite)
	case DialectPostgres:
		return NewPostgres(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLClient wraps an already opened *sql.DB, typically a sqlmock connection in tests.
func NewSQLClient(db *sql.DB, dialect Dialect) *SQLClient {
	return &SQLClient{DB: db, Dialect: dialect}
}

// Rebind rewrites '?' placeholders to '$n' for Postgres and leaves SQLite queries untouched.
func (c *SQLClient) Rebind(query string) string {
	if c.Dialect != DialectPostgres {
		return query
	}
	return RebindPostgres(query)
}

// RebindPostgres converts '?' placeholders to '$1', '$2', ... outside of quoted literals.
func RebindPostgres(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// Ping tests the database connection
func (c *SQLClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *SQLClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Query executes a query that returns rows
func (c *SQLClient) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.DB.QueryContext(ctx, c.Rebind(query), args...)
}

// QueryRow executes a query that returns at most one row
func (c *SQLClient) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.DB.QueryRowContext(ctx, c.Rebind(query), args...)
}

// Exec executes a query that doesn't return rows
func (c *SQLClient) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.DB.ExecContext(ctx, c.Rebind(query), args...)
}

// GetDB returns the underlying *sql.DB
func (c *SQLClient) GetDB() *sql.DB {
	return c.DB
}
