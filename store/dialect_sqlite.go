package store

// SQLiteDialect implements the Dialect interface for SQLite databases.
// It also satisfies query.Dialect through structural typing.
type SQLiteDialect struct{}

func (d *SQLiteDialect) DriverName() string              { return "sqlite" }
func (d *SQLiteDialect) DSN(pathOrConnStr string) string { return pathOrConnStr }
func (d *SQLiteDialect) Placeholder(index int) string    { return "?" }
func (d *SQLiteDialect) QuoteColumn(name string) string  { return name }

func (d *SQLiteDialect) CreateContainerTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS containers (
		id INTEGER PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	)`
}

func (d *SQLiteDialect) CreateEventTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS events (
		container_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		ts INTEGER NOT NULL,
		subject TEXT NOT NULL,
		type TEXT NOT NULL,
		PRIMARY KEY (container_id, seq)
	)`
}

func (d *SQLiteDialect) CreateEventIndexSQL() string {
	return "CREATE INDEX IF NOT EXISTS events_ts_idx ON events (container_id, ts)"
}

func (d *SQLiteDialect) CreateSavedQueryTableSQL() string {
	return "CREATE TABLE IF NOT EXISTS saved_query (name TEXT PRIMARY KEY, query TEXT NOT NULL)"
}

func (d *SQLiteDialect) InsertContainerSQL() string {
	return "INSERT OR IGNORE INTO containers (path, created_at) VALUES (?, ?)"
}

func (d *SQLiteDialect) InsertEventSQL() string {
	return "INSERT INTO events (container_id, seq, ts, subject, type) VALUES (?, ?, ?, ?, ?)"
}

func (d *SQLiteDialect) UpsertSavedQuerySQL() string {
	return "INSERT OR REPLACE INTO saved_query (name, query) VALUES (?, ?)"
}
