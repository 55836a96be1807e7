package store

import "fmt"

// PostgresDialect implements the Dialect interface for PostgreSQL.
// It also satisfies query.Dialect through structural typing.
type PostgresDialect struct{}

func (d *PostgresDialect) DriverName() string              { return "pgx" }
func (d *PostgresDialect) DSN(pathOrConnStr string) string { return pathOrConnStr }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) QuoteColumn(name string) string {
	// "type" is reserved-adjacent in PostgreSQL; quote defensively like
	// any other column.
	return `"` + name + `"`
}

func (d *PostgresDialect) CreateContainerTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS containers (
		id BIGSERIAL PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		created_at BIGINT NOT NULL
	)`
}

func (d *PostgresDialect) CreateEventTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS events (
		container_id BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		ts BIGINT NOT NULL,
		subject TEXT NOT NULL,
		"type" TEXT NOT NULL,
		PRIMARY KEY (container_id, seq)
	)`
}

func (d *PostgresDialect) CreateEventIndexSQL() string {
	return "CREATE INDEX IF NOT EXISTS events_ts_idx ON events (container_id, ts)"
}

func (d *PostgresDialect) CreateSavedQueryTableSQL() string {
	return "CREATE TABLE IF NOT EXISTS saved_query (name TEXT PRIMARY KEY, query TEXT NOT NULL)"
}

func (d *PostgresDialect) InsertContainerSQL() string {
	return "INSERT INTO containers (path, created_at) VALUES ($1, $2) ON CONFLICT (path) DO NOTHING"
}

func (d *PostgresDialect) InsertEventSQL() string {
	return `INSERT INTO events (container_id, seq, ts, subject, "type") VALUES ($1, $2, $3, $4, $5)`
}

func (d *PostgresDialect) UpsertSavedQuerySQL() string {
	return "INSERT INTO saved_query (name, query) VALUES ($1, $2) ON CONFLICT (name) DO UPDATE SET query = EXCLUDED.query"
}
