package store

// Dialect abstracts all database-specific SQL generation. Each backend
// (SQLite, PostgreSQL) implements this interface. The Placeholder and
// QuoteColumn methods match query.Dialect through structural typing, so a
// store Dialect also serves the filter compiler.
type Dialect interface {
	// DriverName returns the database/sql driver name.
	DriverName() string

	// DSN returns the data source name for opening a connection. For
	// SQLite this is the file path; for PostgreSQL a connection string.
	DSN(pathOrConnStr string) string

	// Placeholder returns the parameter placeholder for the given 1-based
	// index. SQLite: "?" (ignoring the index), PostgreSQL: "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteColumn returns the column name quoted appropriately for the
	// dialect.
	QuoteColumn(name string) string

	// CreateContainerTableSQL returns DDL for the containers table.
	CreateContainerTableSQL() string

	// CreateEventTableSQL returns DDL for the events table. The primary
	// key (container_id, seq) carries the ordering guarantee.
	CreateEventTableSQL() string

	// CreateEventIndexSQL returns DDL for the timestamp index on events.
	CreateEventIndexSQL() string

	// CreateSavedQueryTableSQL returns DDL for the saved_query table.
	CreateSavedQueryTableSQL() string

	// InsertContainerSQL returns the parameterized, conflict-ignoring
	// INSERT for registering a container (path, created_at).
	InsertContainerSQL() string

	// InsertEventSQL returns the parameterized INSERT for a single event
	// (container_id, seq, ts, subject, type).
	InsertEventSQL() string

	// UpsertSavedQuerySQL returns the parameterized INSERT-or-replace for
	// a saved query (name, query).
	UpsertSavedQuerySQL() string
}
