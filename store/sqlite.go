package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed event store. It implements the Store
// interface.
type SQLiteStore struct {
	sqlStore
}

// OpenSQLite opens an existing SQLite event store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	d := &SQLiteDialect{}

	conn, err := sql.Open(d.DriverName(), d.DSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &SQLiteStore{sqlStore{
		path:     path,
		conn:     conn,
		dialect:  d,
		classify: classifySQLiteErr,
	}}, nil
}

// CreateSQLite creates a new SQLite event store with the full schema.
func CreateSQLite(path string) (*SQLiteStore, error) {
	d := &SQLiteDialect{}

	conn, err := sql.Open(d.DriverName(), d.DSN(path))
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	s := &SQLiteStore{sqlStore{
		path:     path,
		conn:     conn,
		dialect:  d,
		classify: classifySQLiteErr,
	}}
	if err := s.createSchema(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// classifySQLiteErr maps SQLite driver errors into the store error
// taxonomy. Lock contention is the only retryable condition the driver
// surfaces.
func classifySQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") {
		return &TransientStoreError{Err: err}
	}
	return err
}
