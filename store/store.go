// Package store provides the SQL-backed event store for investigation
// containers. A container is an append-only, ordered stream of filesystem
// timestamp events; queries return resumable iterators over the stream in
// ascending sequence order.
package store

import (
	"context"
	"time"

	"github.com/evidentia/timeline/model"
)

// Iterator is a lazy, finite cursor over an ordered event sequence. It
// follows the sql.Rows consumption pattern: call Next until it returns
// false, then check Err. Iterators are not restartable; resuming a
// sequence from an arbitrary position requires re-issuing the query.
// An Iterator is owned by a single goroutine at a time.
type Iterator interface {
	// Next advances to the next event, returning false when the sequence
	// is exhausted or an error occurred.
	Next() bool

	// Event returns the current event. Only valid after Next returned true.
	Event() *model.Event

	// Err returns the error that terminated iteration, if any.
	Err() error

	// Close releases the resources held by the iterator. Safe to call
	// more than once.
	Close() error
}

// SavedQuery is a named filter expression stored alongside the events.
type SavedQuery struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

// Store defines the operations of an event store backend. Every method
// the reader and the hosting console need is captured here so callers
// depend on the interface, not on a concrete backend.
type Store interface {
	// CreateContainer registers a container path. Creating an existing
	// container is a no-op.
	CreateContainer(ctx context.Context, container string) error

	// Containers returns all registered container paths.
	Containers(ctx context.Context) ([]string, error)

	// AddEvents appends a batch of events to a container in one
	// transaction, assigning each event its sequence id. The onProgress
	// callback, if non-nil, is called every 10,000 events.
	AddEvents(ctx context.Context, container string, events []*model.Event, onProgress func(int)) (int, error)

	// Query returns an iterator over the container's events matching the
	// filter expression, in ascending sequence order. An empty filter
	// matches everything.
	Query(ctx context.Context, container, filter string) (Iterator, error)

	// CountEvents returns the number of events matching the filter.
	CountEvents(ctx context.Context, container, filter string) (int64, error)

	// MinMaxTimestamp returns the earliest and latest event timestamps
	// in a container. Both are zero if the container is empty.
	MinMaxTimestamp(ctx context.Context, container string) (time.Time, time.Time, error)

	// Saved queries.
	SavedQueries(ctx context.Context) ([]SavedQuery, error)
	SaveQuery(ctx context.Context, name, queryStr string) error
	DeleteQuery(ctx context.Context, name string) error

	// Close releases the underlying connection.
	Close() error
}
