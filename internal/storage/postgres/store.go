// Package postgres provides the PostgreSQL scene and bug gateway.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/bughunt/internal/storage/migrate"
	"github.com/onnwee/bughunt/internal/storage/sqlstore"
	"github.com/onnwee/bughunt/migrations"
)

// foreignKeyViolation is the SQLSTATE for foreign_key_violation.
const foreignKeyViolation pq.ErrorCode = "23503"

// Store persists scenes and bugs in PostgreSQL.
type Store struct {
	*sqlstore.Gateway
	sqlDB *sql.DB
}

// Open connects to databaseURL, verifies the connection and applies
// embedded migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres db: %w", err)
	}
	if err := migrate.Apply(ctx, sqlDB, migrations.FS, "", migrate.Postgres); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{Gateway: sqlstore.New(sqlDB, migrate.Postgres, IsForeignKeyViolation), sqlDB: sqlDB}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign key
// violation.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}
