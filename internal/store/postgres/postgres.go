// Package postgres implements store.Store on PostgreSQL.
//
// Statements are built with goqu's postgres dialect and executed through
// sqlx. Every call opens a span; WithinTx runs at serializable isolation.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/store"
)

const (
	tableBooks   = "books"
	tableBorrows = "borrow_records"

	pqUniqueViolation = "23505"
)

var dialect = goqu.Dialect("postgres")

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	queries
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn, configures the pool and pings the server.
func Open(ctx context.Context, dsn string) (*Store, error) {
	const defaultMaxOpenConnections = 50
	const defaultMaxIdleConnections = 10
	const defaultMaxConnLifetime = time.Hour
	const defaultMaxConnIdleTime = time.Minute * 5

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConnections)
	db.SetMaxIdleConns(defaultMaxIdleConnections)
	db.SetConnMaxLifetime(defaultMaxConnLifetime)
	db.SetConnMaxIdleTime(defaultMaxConnIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{
		queries: queries{db: db, tracer: otel.Tracer("libradesk/store/postgres")},
		db:      db,
	}
}

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// WithinTx implements store.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(q store.Queries) error) error {
	ctx, span := s.tracer.Start(ctx, "store.tx")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fail(span, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(queries{db: tx, tracer: s.tracer}); err != nil {
		span.SetAttributes(attribute.Bool("tx.rolled_back", true))
		return err
	}
	if err := tx.Commit(); err != nil {
		return fail(span, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Migrate creates the schema if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(200) NOT NULL,
			author VARCHAR(100) NOT NULL,
			isbn CHAR(13) NOT NULL UNIQUE,
			total_copies INT NOT NULL CHECK (total_copies > 0),
			available_copies INT NOT NULL CHECK (available_copies BETWEEN 0 AND total_copies)
		)`,
		`CREATE TABLE IF NOT EXISTS borrow_records (
			id BIGSERIAL PRIMARY KEY,
			patron_id CHAR(6) NOT NULL,
			book_id BIGINT NOT NULL REFERENCES books(id),
			borrow_date TIMESTAMPTZ NOT NULL,
			due_date TIMESTAMPTZ NOT NULL,
			return_date TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_borrow_records_patron_open
			ON borrow_records (patron_id, book_id) WHERE return_date IS NULL`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
