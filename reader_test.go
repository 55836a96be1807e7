package timeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evidentia/timeline/cache"
	"github.com/evidentia/timeline/model"
	"github.com/evidentia/timeline/store"
)

// fakeSource serves canned events per container and counts queries. The
// only filter shape it understands is "type = <value>", which is all the
// reader tests need.
type fakeSource struct {
	mu       sync.Mutex
	events   map[string][]*model.Event
	queries  int
	failures []error // returned from Query in order before serving, nil entries skipped
}

func (f *fakeSource) Query(ctx context.Context, container, query string) (store.Iterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return nil, err
		}
	}

	events, ok := f.events[container]
	if !ok {
		return nil, &store.NotFoundError{Container: container}
	}

	var matched []*model.Event
	for _, e := range events {
		if query == "" || query == "type = "+e.Type {
			matched = append(matched, e)
		}
	}
	return &sliceIterator{events: matched}, nil
}

func (f *fakeSource) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

// sliceIterator yields a fixed slice, optionally failing on the nth Next
// call (1-based).
type sliceIterator struct {
	events []*model.Event
	cur    *model.Event
	failAt int
	calls  int
	err    error
}

func (it *sliceIterator) Next() bool {
	it.calls++
	if it.failAt > 0 && it.calls >= it.failAt {
		it.err = &store.TransientStoreError{Err: errors.New("connection reset")}
		return false
	}
	if len(it.events) == 0 {
		return false
	}
	it.cur, it.events = it.events[0], it.events[1:]
	return true
}

func (it *sliceIterator) Event() *model.Event { return it.cur }
func (it *sliceIterator) Err() error          { return it.err }
func (it *sliceIterator) Close() error        { return nil }

// makeEvents builds n events with alternating types, one minute apart.
func makeEvents(n int) []*model.Event {
	types := []string{model.TypeModify, model.TypeAccess, model.TypeMetadataChange}
	base := time.Date(2011, 5, 1, 10, 0, 0, 0, time.UTC)

	events := make([]*model.Event, n)
	for i := range events {
		events[i] = &model.Event{
			ID:        int64(i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Subject:   fmt.Sprintf("/home/user/file%03d.txt", i),
			Type:      types[i%len(types)],
		}
	}
	return events
}

func newTestReader(t *testing.T, n int) (*Reader, *fakeSource) {
	t.Helper()

	src := &fakeSource{events: map[string][]*model.Event{
		"C.1/fs": makeEvents(n),
	}}
	cp := cache.New(time.Minute, time.Hour)
	t.Cleanup(func() { cp.Close() })
	return NewReader(src, cp), src
}

func TestFetchWindowBasic(t *testing.T) {
	r, _ := newTestReader(t, 30)

	rows, hasMore, err := r.FetchWindow(context.Background(), "C.1/fs", "", 0, 10)
	if err != nil {
		t.Fatalf("FetchWindow failed: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(rows))
	}
	if !hasMore {
		t.Error("expected hasMore with 20 events remaining")
	}
	for i, row := range rows {
		if row.Index != i || row.EventID != int64(i) {
			t.Errorf("row %d: index %d, event id %d", i, row.Index, row.EventID)
		}
	}
	if rows[0].Message != "File modified" || rows[1].Message != "File access" {
		t.Errorf("unexpected messages: %q, %q", rows[0].Message, rows[1].Message)
	}
}

func TestFetchWindowInvalidRange(t *testing.T) {
	r, src := newTestReader(t, 10)

	for _, w := range [][2]int{{-1, 10}, {10, 10}, {10, 5}} {
		if _, _, err := r.FetchWindow(context.Background(), "C.1/fs", "", w[0], w[1]); err == nil {
			t.Errorf("window [%d, %d) should be rejected", w[0], w[1])
		}
	}
	if src.queryCount() != 0 {
		t.Errorf("invalid windows should not reach the store, got %d queries", src.queryCount())
	}
}

// Chained sequential windows see exactly the rows of one big window.
func TestWindowChainingEqualsSingleWindow(t *testing.T) {
	r, _ := newTestReader(t, 30)
	ctx := context.Background()

	var chained []Row
	for start := 0; start < 30; start += 10 {
		rows, _, err := r.FetchWindow(ctx, "C.1/fs", "", start, start+10)
		if err != nil {
			t.Fatalf("FetchWindow [%d, %d) failed: %v", start, start+10, err)
		}
		chained = append(chained, rows...)
	}

	r2, _ := newTestReader(t, 30)
	whole, _, err := r2.FetchWindow(ctx, "C.1/fs", "", 0, 30)
	if err != nil {
		t.Fatalf("FetchWindow [0, 30) failed: %v", err)
	}

	if len(chained) != len(whole) {
		t.Fatalf("chained windows yielded %d rows, single window %d", len(chained), len(whole))
	}
	for i := range whole {
		if chained[i] != whole[i] {
			t.Errorf("row %d differs: %+v vs %+v", i, chained[i], whole[i])
		}
	}
}

// A warm window (resumed from a checkpoint) returns the same rows as the
// identical cold window.
func TestColdWarmEquivalence(t *testing.T) {
	ctx := context.Background()

	warmReader, _ := newTestReader(t, 30)
	if _, _, err := warmReader.FetchWindow(ctx, "C.1/fs", "", 0, 10); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}
	warm, warmMore, err := warmReader.FetchWindow(ctx, "C.1/fs", "", 10, 20)
	if err != nil {
		t.Fatalf("warm FetchWindow failed: %v", err)
	}

	coldReader, _ := newTestReader(t, 30)
	cold, coldMore, err := coldReader.FetchWindow(ctx, "C.1/fs", "", 10, 20)
	if err != nil {
		t.Fatalf("cold FetchWindow failed: %v", err)
	}

	if warmMore != coldMore {
		t.Errorf("hasMore differs: warm %v, cold %v", warmMore, coldMore)
	}
	if len(warm) != len(cold) {
		t.Fatalf("row counts differ: warm %d, cold %d", len(warm), len(cold))
	}
	for i := range warm {
		if warm[i] != cold[i] {
			t.Errorf("row %d differs: %+v vs %+v", i, warm[i], cold[i])
		}
	}
}

// The second of two sequential windows resumes the checkpoint instead of
// issuing a second store query.
func TestSequentialWindowsReuseCheckpoint(t *testing.T) {
	r, src := newTestReader(t, 30)
	ctx := context.Background()

	if _, _, err := r.FetchWindow(ctx, "C.1/fs", "", 0, 10); err != nil {
		t.Fatalf("first window failed: %v", err)
	}
	if _, _, err := r.FetchWindow(ctx, "C.1/fs", "", 10, 20); err != nil {
		t.Fatalf("second window failed: %v", err)
	}

	if n := src.queryCount(); n != 1 {
		t.Errorf("expected 1 store query across chained windows, got %d", n)
	}
}

// A checkpoint left at one (container, query) must not serve a window for
// a different query.
func TestCheckpointKeyedByQuery(t *testing.T) {
	r, src := newTestReader(t, 30)
	ctx := context.Background()

	if _, _, err := r.FetchWindow(ctx, "C.1/fs", "", 0, 10); err != nil {
		t.Fatalf("unfiltered window failed: %v", err)
	}

	rows, _, err := r.FetchWindow(ctx, "C.1/fs", "type = "+model.TypeModify, 0, 5)
	if err != nil {
		t.Fatalf("filtered window failed: %v", err)
	}
	for _, row := range rows {
		if row.Type != model.TypeModify {
			t.Errorf("filtered window leaked type %q", row.Type)
		}
	}
	if n := src.queryCount(); n != 2 {
		t.Errorf("expected a fresh query for the new filter, got %d total", n)
	}
}

func TestHasMoreAtExactBoundary(t *testing.T) {
	r, _ := newTestReader(t, 15)
	ctx := context.Background()

	rows, hasMore, err := r.FetchWindow(ctx, "C.1/fs", "", 0, 10)
	if err != nil {
		t.Fatalf("FetchWindow failed: %v", err)
	}
	if len(rows) != 10 || !hasMore {
		t.Errorf("first window: %d rows, hasMore %v; want 10, true", len(rows), hasMore)
	}

	rows, hasMore, err = r.FetchWindow(ctx, "C.1/fs", "", 10, 20)
	if err != nil {
		t.Fatalf("FetchWindow failed: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("expected 5 rows in the short final window, got %d", len(rows))
	}
	if hasMore {
		t.Error("hasMore must be false once the sequence is exhausted")
	}
}

// A sequence ending exactly at the window edge reports no further rows.
func TestHasMoreFalseAtExactEnd(t *testing.T) {
	r, _ := newTestReader(t, 10)

	rows, hasMore, err := r.FetchWindow(context.Background(), "C.1/fs", "", 0, 10)
	if err != nil {
		t.Fatalf("FetchWindow failed: %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("expected 10 rows, got %d", len(rows))
	}
	if hasMore {
		t.Error("hasMore must be false when the last event fills the window edge")
	}
}

func TestFetchWindowPastEnd(t *testing.T) {
	r, _ := newTestReader(t, 5)

	rows, hasMore, err := r.FetchWindow(context.Background(), "C.1/fs", "", 100, 110)
	if err != nil {
		t.Fatalf("FetchWindow failed: %v", err)
	}
	if len(rows) != 0 || hasMore {
		t.Errorf("window past the end: %d rows, hasMore %v", len(rows), hasMore)
	}
}

func TestFetchWindowTransientRetry(t *testing.T) {
	r, src := newTestReader(t, 10)
	src.failures = []error{&store.TransientStoreError{Err: errors.New("connection refused")}}

	rows, _, err := r.FetchWindow(context.Background(), "C.1/fs", "", 0, 5)
	if err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("expected 5 rows after retry, got %d", len(rows))
	}
	if n := src.queryCount(); n != 2 {
		t.Errorf("expected 2 queries (failure + retry), got %d", n)
	}
}

func TestFetchWindowTransientGivesUpAfterOneRetry(t *testing.T) {
	r, src := newTestReader(t, 10)
	src.failures = []error{
		&store.TransientStoreError{Err: errors.New("connection refused")},
		&store.TransientStoreError{Err: errors.New("connection refused")},
	}

	_, _, err := r.FetchWindow(context.Background(), "C.1/fs", "", 0, 5)
	if !store.IsTransient(err) {
		t.Errorf("expected the transient error to surface, got %v", err)
	}
	if n := src.queryCount(); n != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", n)
	}
}

func TestFetchWindowNotFoundNotRetried(t *testing.T) {
	r, src := newTestReader(t, 10)

	_, _, err := r.FetchWindow(context.Background(), "C.missing/fs", "", 0, 5)
	if !store.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if n := src.queryCount(); n != 1 {
		t.Errorf("NotFound must not be retried, got %d queries", n)
	}
}

// A checkpointed iterator that fails mid-scan falls back to a fresh query
// and the window still succeeds.
func TestBrokenCheckpointFallsBackToFreshQuery(t *testing.T) {
	src := &fakeSource{events: map[string][]*model.Event{
		"C.1/fs": makeEvents(30),
	}}
	cp := cache.New(time.Minute, time.Hour)
	defer cp.Close()
	r := NewReader(src, cp)

	cp.Put(
		cache.Key{Container: "C.1/fs", Query: "", Row: 10},
		&sliceIterator{events: makeEvents(30)[10:], failAt: 3},
	)

	rows, hasMore, err := r.FetchWindow(context.Background(), "C.1/fs", "", 10, 20)
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if len(rows) != 10 || !hasMore {
		t.Errorf("fallback window: %d rows, hasMore %v; want 10, true", len(rows), hasMore)
	}
	if rows[0].EventID != 10 {
		t.Errorf("fallback window starts at event %d, want 10", rows[0].EventID)
	}
	if n := src.queryCount(); n != 1 {
		t.Errorf("expected 1 fresh query after the broken resume, got %d", n)
	}
}

func TestConcurrentFetchWindow(t *testing.T) {
	r, _ := newTestReader(t, 30)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, _, err := r.FetchWindow(ctx, "C.1/fs", "", 0, 10)
			if err != nil {
				errs <- err
				return
			}
			if len(rows) != 10 {
				errs <- fmt.Errorf("got %d rows, want 10", len(rows))
				return
			}
			for j, row := range rows {
				if row.EventID != int64(j) {
					errs <- fmt.Errorf("row %d has event id %d", j, row.EventID)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestResolveEventDetail(t *testing.T) {
	r, _ := newTestReader(t, 10)
	ctx := context.Background()

	e, err := r.ResolveEventDetail(ctx, "C.1/fs", "7")
	if err != nil {
		t.Fatalf("ResolveEventDetail failed: %v", err)
	}
	if e == nil || e.ID != 7 {
		t.Fatalf("expected event 7, got %+v", e)
	}
	if e.Subject != "/home/user/file007.txt" {
		t.Errorf("unexpected subject %q", e.Subject)
	}
}

func TestResolveEventDetailAbsentSelections(t *testing.T) {
	r, src := newTestReader(t, 10)
	ctx := context.Background()

	// Sentinel and malformed ids resolve to no selection without touching
	// the store.
	for _, id := range []string{"", "null", "abc", "7.5"} {
		e, err := r.ResolveEventDetail(ctx, "C.1/fs", id)
		if err != nil {
			t.Errorf("ResolveEventDetail(%q) failed: %v", id, err)
		}
		if e != nil {
			t.Errorf("ResolveEventDetail(%q) = %+v, want nil", id, e)
		}
	}
	if n := src.queryCount(); n != 0 {
		t.Errorf("sentinel ids should not reach the store, got %d queries", n)
	}

	// An id beyond the sequence is also not an error.
	e, err := r.ResolveEventDetail(ctx, "C.1/fs", "9999")
	if err != nil {
		t.Errorf("ResolveEventDetail miss failed: %v", err)
	}
	if e != nil {
		t.Errorf("expected no event for id 9999, got %+v", e)
	}
}

func TestResolveEventDetailTransientRetry(t *testing.T) {
	r, src := newTestReader(t, 10)
	src.failures = []error{&store.TransientStoreError{Err: errors.New("connection refused")}}

	e, err := r.ResolveEventDetail(context.Background(), "C.1/fs", "3")
	if err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if e == nil || e.ID != 3 {
		t.Errorf("expected event 3, got %+v", e)
	}
}

func TestRenderMessageTotal(t *testing.T) {
	cases := []struct {
		eventType string
		want      string
	}{
		{model.TypeModify, "File modified"},
		{model.TypeAccess, "File access"},
		{model.TypeMetadataChange, "File metadata changed"},
		{"registry.key", "Event of type registry.key"},
		{"", "Event of type "},
	}

	for _, tc := range cases {
		if got := RenderMessage(tc.eventType); got != tc.want {
			t.Errorf("RenderMessage(%q) = %q, want %q", tc.eventType, got, tc.want)
		}
	}
}

func TestTypeIndicator(t *testing.T) {
	cases := []struct {
		eventType string
		want      string
	}{
		{model.TypeModify, "M--"},
		{model.TypeAccess, "-A-"},
		{model.TypeMetadataChange, "--C"},
		{"registry.key", "---"},
	}

	for _, tc := range cases {
		if got := TypeIndicator(tc.eventType); got != tc.want {
			t.Errorf("TypeIndicator(%q) = %q, want %q", tc.eventType, got, tc.want)
		}
	}
}

func TestExportCSV(t *testing.T) {
	r, _ := newTestReader(t, 2)

	var buf bytes.Buffer
	n, err := r.ExportCSV(context.Background(), &buf, "C.1/fs", "")
	if err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows written, got %d", n)
	}

	want := strings.Join([]string{
		"id,timestamp,subject,type,message",
		"0,2011-05-01 10:00:00,/home/user/file000.txt,file.mtime,File modified",
		"1,2011-05-01 10:01:00,/home/user/file001.txt,file.atime,File access",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("unexpected CSV output:\n%s\nwant:\n%s", got, want)
	}
}

func TestExportCSVUnknownContainer(t *testing.T) {
	r, _ := newTestReader(t, 2)

	var buf bytes.Buffer
	if _, err := r.ExportCSV(context.Background(), &buf, "C.missing/fs", ""); !store.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("failed export wrote %d bytes", buf.Len())
	}
}
