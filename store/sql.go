package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evidentia/timeline/model"
	"github.com/evidentia/timeline/query"
)

// progressInterval is how often AddEvents reports progress to its callback.
const progressInterval = 10000

// sqlStore holds the backend-independent store logic. SQLiteStore and
// PostgresStore embed it and contribute their dialect and error
// classification.
type sqlStore struct {
	path     string
	conn     *sql.DB
	dialect  Dialect
	classify func(error) error
}

// Path returns the path or connection string the store was opened with.
func (s *sqlStore) Path() string { return s.path }

// Conn returns the underlying *sql.DB for advanced usage.
func (s *sqlStore) Conn() *sql.DB { return s.conn }

// Close closes the database connection.
func (s *sqlStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// createSchema builds all tables and indexes for a new store.
func (s *sqlStore) createSchema(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ddl := range []string{
		s.dialect.CreateContainerTableSQL(),
		s.dialect.CreateEventTableSQL(),
		s.dialect.CreateEventIndexSQL(),
		s.dialect.CreateSavedQueryTableSQL(),
	} {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	return tx.Commit()
}

// CreateContainer registers a container path. Registering an existing path
// is a no-op.
func (s *sqlStore) CreateContainer(ctx context.Context, container string) error {
	_, err := s.conn.ExecContext(ctx, s.dialect.InsertContainerSQL(),
		container, time.Now().UnixMicro())
	if err != nil {
		return s.classify(fmt.Errorf("creating container: %w", err))
	}
	return nil
}

// Containers returns all registered container paths.
func (s *sqlStore) Containers(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT path FROM containers ORDER BY path")
	if err != nil {
		return nil, s.classify(fmt.Errorf("listing containers: %w", err))
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// containerID resolves a container path to its row id.
func (s *sqlStore) containerID(ctx context.Context, container string) (int64, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT id FROM containers WHERE path = "+s.dialect.Placeholder(1),
		container,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &NotFoundError{Container: container}
	}
	if err != nil {
		return 0, s.classify(fmt.Errorf("resolving container: %w", err))
	}
	return id, nil
}

// AddEvents appends a batch of events to a container inside a single
// transaction, assigning sequence ids after the container's current
// maximum. Each event's ID field is set to its assigned sequence id.
func (s *sqlStore) AddEvents(ctx context.Context, container string, events []*model.Event, onProgress func(int)) (int, error) {
	cid, err := s.containerID(ctx, container)
	if err != nil {
		return 0, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq) + 1, 0) FROM events WHERE container_id = "+s.dialect.Placeholder(1),
		cid,
	).Scan(&next)
	if err != nil {
		return 0, s.classify(fmt.Errorf("finding next sequence id: %w", err))
	}

	stmt, err := tx.PrepareContext(ctx, s.dialect.InsertEventSQL())
	if err != nil {
		return 0, s.classify(fmt.Errorf("preparing insert statement: %w", err))
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		e.ID = next
		if _, err := stmt.ExecContext(ctx, cid, e.ID, e.Micros(), e.Subject, e.Type); err != nil {
			return inserted, s.classify(fmt.Errorf("inserting event %d: %w", inserted+1, err))
		}
		next++
		inserted++
		if onProgress != nil && inserted%progressInterval == 0 {
			onProgress(inserted)
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, s.classify(fmt.Errorf("committing transaction: %w", err))
	}
	return inserted, nil
}

// compileFilter parses a filter expression and compiles it to a WHERE
// fragment. argIdx is the 1-based index of the next SQL placeholder.
func (s *sqlStore) compileFilter(filter string, argIdx *int) (string, []interface{}, error) {
	expr, err := query.Parse(filter)
	if err != nil {
		return "", nil, &InvalidQueryError{Query: filter, Err: err}
	}
	where, args := expr.WhereClause(s.dialect, argIdx)
	return where, args, nil
}

// Query returns an iterator over the container's events matching the
// filter, in ascending sequence order.
func (s *sqlStore) Query(ctx context.Context, container, filter string) (Iterator, error) {
	cid, err := s.containerID(ctx, container)
	if err != nil {
		return nil, err
	}

	argIdx := 2
	where, args, err := s.compileFilter(filter, &argIdx)
	if err != nil {
		return nil, err
	}

	q := `SELECT seq, ts, subject, ` + s.dialect.QuoteColumn("type") +
		` FROM events WHERE container_id = ` + s.dialect.Placeholder(1)
	if where != "" {
		q += " AND " + where
	}
	q += " ORDER BY seq"

	rows, err := s.conn.QueryContext(ctx, q, append([]interface{}{cid}, args...)...)
	if err != nil {
		return nil, s.classify(fmt.Errorf("querying events: %w", err))
	}
	return &rowIterator{rows: rows, classify: s.classify}, nil
}

// CountEvents returns the number of events matching the filter.
func (s *sqlStore) CountEvents(ctx context.Context, container, filter string) (int64, error) {
	cid, err := s.containerID(ctx, container)
	if err != nil {
		return 0, err
	}

	argIdx := 2
	where, args, err := s.compileFilter(filter, &argIdx)
	if err != nil {
		return 0, err
	}

	q := "SELECT COUNT(seq) FROM events WHERE container_id = " + s.dialect.Placeholder(1)
	if where != "" {
		q += " AND " + where
	}

	var count int64
	if err := s.conn.QueryRowContext(ctx, q, append([]interface{}{cid}, args...)...).Scan(&count); err != nil {
		return 0, s.classify(fmt.Errorf("counting events: %w", err))
	}
	return count, nil
}

// MinMaxTimestamp returns the earliest and latest event timestamps in a
// container. Both are zero for an empty container.
func (s *sqlStore) MinMaxTimestamp(ctx context.Context, container string) (time.Time, time.Time, error) {
	cid, err := s.containerID(ctx, container)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	var minUS, maxUS sql.NullInt64
	err = s.conn.QueryRowContext(ctx,
		"SELECT MIN(ts), MAX(ts) FROM events WHERE container_id = "+s.dialect.Placeholder(1),
		cid,
	).Scan(&minUS, &maxUS)
	if err != nil {
		return time.Time{}, time.Time{}, s.classify(fmt.Errorf("querying timestamp range: %w", err))
	}
	if !minUS.Valid || !maxUS.Valid {
		return time.Time{}, time.Time{}, nil
	}
	return model.FromMicros(minUS.Int64), model.FromMicros(maxUS.Int64), nil
}

// SavedQueries returns all saved queries.
func (s *sqlStore) SavedQueries(ctx context.Context) ([]SavedQuery, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT name, query FROM saved_query ORDER BY name")
	if err != nil {
		return nil, s.classify(fmt.Errorf("listing saved queries: %w", err))
	}
	defer rows.Close()

	var queries []SavedQuery
	for rows.Next() {
		var q SavedQuery
		if err := rows.Scan(&q.Name, &q.Query); err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// SaveQuery stores a named filter expression, replacing any previous one
// with the same name. The expression must parse.
func (s *sqlStore) SaveQuery(ctx context.Context, name, queryStr string) error {
	if _, err := query.Parse(queryStr); err != nil {
		return &InvalidQueryError{Query: queryStr, Err: err}
	}
	_, err := s.conn.ExecContext(ctx, s.dialect.UpsertSavedQuerySQL(), name, queryStr)
	if err != nil {
		return s.classify(fmt.Errorf("saving query: %w", err))
	}
	return nil
}

// DeleteQuery removes a saved query by name.
func (s *sqlStore) DeleteQuery(ctx context.Context, name string) error {
	_, err := s.conn.ExecContext(ctx,
		"DELETE FROM saved_query WHERE name = "+s.dialect.Placeholder(1), name)
	if err != nil {
		return s.classify(fmt.Errorf("deleting query: %w", err))
	}
	return nil
}

// rowIterator adapts sql.Rows into an Iterator, converting each row into
// a model.Event.
type rowIterator struct {
	rows     *sql.Rows
	classify func(error) error
	cur      *model.Event
	err      error
	closed   bool
}

func (it *rowIterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			it.err = it.classify(fmt.Errorf("iterating events: %w", err))
		}
		return false
	}

	e := &model.Event{}
	var us int64
	if err := it.rows.Scan(&e.ID, &us, &e.Subject, &e.Type); err != nil {
		it.err = it.classify(fmt.Errorf("scanning event row: %w", err))
		return false
	}
	e.Timestamp = model.FromMicros(us)
	it.cur = e
	return true
}

func (it *rowIterator) Event() *model.Event { return it.cur }

func (it *rowIterator) Err() error { return it.err }

func (it *rowIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.rows.Close()
}
