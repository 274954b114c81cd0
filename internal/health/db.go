// Package health provides health check implementations for the storage
// backends the game server can run on.
package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoDatabase is returned when a DBChecker has no handle to ping.
var ErrNoDatabase = errors.New("database not configured")

// DBChecker implements health checking for SQL databases.
type DBChecker struct {
	db   *sql.DB
	name string
}

// NewDBChecker creates a new database health checker. name labels the
// backend in errors, e.g. "sqlite" or "postgres".
func NewDBChecker(db *sql.DB, name string) *DBChecker {
	return &DBChecker{
		db:   db,
		name: name,
	}
}

// Name returns the backend label.
func (d *DBChecker) Name() string {
	return d.name
}

// HealthCheck pings the database and runs a trivial query so that a
// connection pool holding only dead connections is noticed.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if d.db == nil {
		return ErrNoDatabase
	}
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s ping: %w", d.name, err)
	}
	var one int
	if err := d.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%s query: %w", d.name, err)
	}
	return nil
}
