package timeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/evidentia/timeline/cache"
	"github.com/evidentia/timeline/model"
	"github.com/evidentia/timeline/store"
)

// EventSource is the slice of the store the reader consumes: a query
// yielding the container's matching events in ascending sequence order.
type EventSource interface {
	Query(ctx context.Context, container, query string) (store.Iterator, error)
}

// Reader materializes row windows of a container's filtered event stream,
// checkpointing suspended iterators between sequential window requests.
// A Reader is safe for concurrent use.
type Reader struct {
	src         EventSource
	checkpoints *cache.Checkpoints
	metrics     *Metrics
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMetrics attaches Prometheus metrics to the reader.
func WithMetrics(m *Metrics) ReaderOption {
	return func(r *Reader) { r.metrics = m }
}

// NewReader creates a reader over src. The checkpoint cache may be shared
// between readers; pass nil to give the reader a private cache with
// default TTL.
func NewReader(src EventSource, checkpoints *cache.Checkpoints, opts ...ReaderOption) *Reader {
	if checkpoints == nil {
		checkpoints = cache.New(0, 0)
	}
	r := &Reader{src: src, checkpoints: checkpoints}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchWindow returns rows [startRow, endRow) of the virtual table for
// (container, query), and whether more rows exist beyond endRow.
//
// A checkpoint hit resumes the suspended iterator at startRow; a miss
// issues a fresh query and skips forward from sequence zero. When more
// events remain past endRow, the iterator is checkpointed under
// (container, query, endRow) for the next window request. Transient store
// failures are retried once through the fresh-query path; all other
// errors surface unretried.
func (r *Reader) FetchWindow(ctx context.Context, container, query string, startRow, endRow int) ([]Row, bool, error) {
	if startRow < 0 || endRow <= startRow {
		return nil, false, fmt.Errorf("invalid window [%d, %d)", startRow, endRow)
	}

	start := time.Now()
	defer func() { r.metrics.observeFetch(time.Since(start)) }()

	it, pos, resumed := r.resume(container, query, startRow)

	for attempt := 0; ; attempt++ {
		if it == nil {
			fresh, err := r.src.Query(ctx, container, query)
			if err != nil {
				if store.IsTransient(err) && attempt == 0 {
					r.metrics.retried()
					continue
				}
				return nil, false, err
			}
			r.metrics.freshQuery()
			it, pos = fresh, 0
		}

		rows, hasMore, err := r.scan(it, pos, startRow, endRow, container, query)
		if err != nil {
			// A failed resume or a transient scan failure falls back to
			// the fresh-query path once; the checkpoint entry is already
			// consumed, so nothing is left in a bad state.
			it = nil
			if (resumed || store.IsTransient(err)) && attempt == 0 {
				resumed = false
				r.metrics.retried()
				continue
			}
			return nil, false, err
		}
		return rows, hasMore, nil
	}
}

// resume takes the checkpoint for (container, query, startRow) if one
// exists. The returned position is the row the iterator will yield next.
func (r *Reader) resume(container, query string, startRow int) (store.Iterator, int, bool) {
	it, ok := r.checkpoints.Take(cache.Key{Container: container, Query: query, Row: startRow})
	if !ok {
		r.metrics.checkpointMiss()
		return nil, 0, false
	}
	r.metrics.checkpointHit()
	return it, startRow, true
}

// scan consumes the iterator from position pos, collecting rows
// [startRow, endRow). On success the iterator is either checkpointed at
// endRow (hasMore) or closed (exhausted); on error it is closed.
func (r *Reader) scan(it store.Iterator, pos, startRow, endRow int, container, query string) ([]Row, bool, error) {
	rows := make([]Row, 0, endRow-startRow)

	for pos < endRow && it.Next() {
		if pos < startRow {
			pos++
			r.metrics.rowSkipped()
			continue
		}
		rows = append(rows, adaptRow(pos, it.Event()))
		pos++
	}
	if err := it.Err(); err != nil {
		it.Close()
		return nil, false, err
	}

	// Filled the window: peek one event to learn whether the sequence
	// continues. The peeked event is pushed back onto the checkpointed
	// iterator so the next window starts with it.
	if pos == endRow && it.Next() {
		r.checkpoints.Put(
			cache.Key{Container: container, Query: query, Row: endRow},
			&resumedIterator{pending: it.Event(), tail: it},
		)
		return rows, true, nil
	}
	if err := it.Err(); err != nil {
		it.Close()
		return nil, false, err
	}

	it.Close()
	return rows, false, nil
}

// ResolveEventDetail finds the event with the given sequence id in a
// container by scanning the unfiltered sequence. A "null", empty or
// non-numeric id, or an id that matches nothing, returns (nil, nil) — an
// absent selection is not an error.
func (r *Reader) ResolveEventDetail(ctx context.Context, container, eventID string) (*model.Event, error) {
	if eventID == "" || eventID == "null" {
		return nil, nil
	}
	id, err := strconv.ParseInt(eventID, 10, 64)
	if err != nil {
		return nil, nil
	}

	it, err := r.src.Query(ctx, container, "")
	if err != nil {
		if !store.IsTransient(err) {
			return nil, err
		}
		r.metrics.retried()
		if it, err = r.src.Query(ctx, container, ""); err != nil {
			return nil, err
		}
	}
	defer it.Close()

	for it.Next() {
		if e := it.Event(); e.ID == id {
			return e, nil
		}
	}
	return nil, it.Err()
}

// resumedIterator replays one pushed-back event before delegating to the
// underlying iterator. It is what the checkpoint cache actually stores
// after the hasMore peek.
type resumedIterator struct {
	pending *model.Event
	cur     *model.Event
	tail    store.Iterator
}

func (it *resumedIterator) Next() bool {
	if it.pending != nil {
		it.cur, it.pending = it.pending, nil
		return true
	}
	if it.tail.Next() {
		it.cur = it.tail.Event()
		return true
	}
	return false
}

func (it *resumedIterator) Event() *model.Event { return it.cur }
func (it *resumedIterator) Err() error          { return it.tail.Err() }
func (it *resumedIterator) Close() error        { return it.tail.Close() }
