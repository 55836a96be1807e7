package query

// Dialect abstracts the SQL syntax differences the filter compiler needs.
// Each store backend provides an implementation; store dialects satisfy
// this interface through structural typing.
type Dialect interface {
	// Placeholder returns the parameter placeholder for the given 1-based
	// index. SQLite returns "?" (ignoring the index), PostgreSQL returns
	// "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteColumn returns the column name quoted appropriately for the
	// dialect. SQLite returns the name unchanged; PostgreSQL wraps
	// reserved words in double quotes.
	QuoteColumn(name string) string
}

// sqliteDialect is the default dialect, producing SQLite-compatible SQL.
type sqliteDialect struct{}

func (sqliteDialect) Placeholder(index int) string { return "?" }
func (sqliteDialect) QuoteColumn(name string) string { return name }

// DefaultDialect is the dialect used when none is explicitly set.
var DefaultDialect Dialect = sqliteDialect{}
