package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore is the PostgreSQL-backed event store. It implements the
// Store interface.
type PostgresStore struct {
	sqlStore
}

// OpenPostgres opens an existing PostgreSQL event store.
func OpenPostgres(connStr string) (*PostgresStore, error) {
	d := &PostgresDialect{}

	conn, err := sql.Open(d.DriverName(), d.DSN(connStr))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &PostgresStore{sqlStore{
		path:     connStr,
		conn:     conn,
		dialect:  d,
		classify: classifyPostgresErr,
	}}, nil
}

// CreatePostgres creates the event store schema on a PostgreSQL database.
// The database itself must already exist.
func CreatePostgres(connStr string) (*PostgresStore, error) {
	d := &PostgresDialect{}

	conn, err := sql.Open(d.DriverName(), d.DSN(connStr))
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	s := &PostgresStore{sqlStore{
		path:     connStr,
		conn:     conn,
		dialect:  d,
		classify: classifyPostgresErr,
	}}
	if err := s.createSchema(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// classifyPostgresErr maps PostgreSQL errors into the store error taxonomy
// using SQLSTATE codes: 42501 (insufficient_privilege) is an access
// failure; connection (08xxx), resource (53xxx) and shutdown (57P03)
// classes are retryable.
func classifyPostgresErr(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501":
			return &AccessError{Err: err}
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			pgErr.Code == "57P03":
			return &TransientStoreError{Err: err}
		}
		return err
	}

	// Errors without a SQLSTATE are typically broken connections.
	if errors.Is(err, sql.ErrConnDone) {
		return &TransientStoreError{Err: err}
	}
	return err
}
