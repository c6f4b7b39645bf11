// Package pg implements every component store interface against PostgreSQL.
// All durable state lives here; the services above hold none.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"seguridad.dev/internal/audit"
	"seguridad.dev/internal/credential"
	"seguridad.dev/internal/grant"
	"seguridad.dev/internal/membership"
	"seguridad.dev/internal/session"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrUndefinedTable      = "42P01"
)

// Store is the single handle shared by all components. Construct it once at
// startup and inject it; there is no package-level connection.
type Store struct {
	db *sql.DB
}

var (
	_ credential.Store = (*Store)(nil)
	_ grant.Store      = (*Store)(nil)
	_ membership.Store = (*Store)(nil)
	_ session.Store    = (*Store)(nil)
	_ audit.Store      = (*Store)(nil)
)

// Open connects to PostgreSQL and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle. Used by tests with sqlmock.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for readiness probes and migrations.
func (s *Store) DB() *sql.DB { return s.db }

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func fromNullString(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}

func fromNullTime(v sql.NullTime) *time.Time {
	if v.Valid {
		t := v.Time
		return &t
	}
	return nil
}
