package timeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/evidentia/timeline/store"
)

// exportHeader is the column order of CSV exports.
var exportHeader = []string{"id", "timestamp", "subject", "type", "message"}

// exportTimeLayout is the timestamp format used in CSV exports.
const exportTimeLayout = "2006-01-02 15:04:05"

// ExportCSV streams the full filtered event sequence of a container to w
// as CSV and returns the number of event rows written. The export bypasses
// the checkpoint cache: it is a single pass over a fresh query.
func (r *Reader) ExportCSV(ctx context.Context, w io.Writer, container, query string) (int, error) {
	it, err := r.src.Query(ctx, container, query)
	if err != nil {
		if !store.IsTransient(err) {
			return 0, err
		}
		r.metrics.retried()
		if it, err = r.src.Query(ctx, container, query); err != nil {
			return 0, err
		}
	}
	defer it.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("writing CSV header: %w", err)
	}

	written := 0
	for it.Next() {
		e := it.Event()
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.UTC().Format(exportTimeLayout),
			e.Subject,
			e.Type,
			RenderMessage(e.Type),
		}
		if err := cw.Write(record); err != nil {
			return written, fmt.Errorf("writing CSV row: %w", err)
		}
		written++
	}
	if err := it.Err(); err != nil {
		return written, err
	}

	cw.Flush()
	return written, cw.Error()
}
