package model

import (
	"fmt"
	"time"
)

// Fields is the list of event field names that may appear in filter
// expressions. Used for validation in the query package.
var Fields = []string{"id", "timestamp", "subject", "type"}

// Event type tags as recorded by the collection agents. Anything outside
// this set is carried through unchanged and rendered as an unknown type.
const (
	TypeModify         = "file.mtime"
	TypeAccess         = "file.atime"
	TypeMetadataChange = "file.ctime"
)

// Event is a single timestamped filesystem occurrence inside a container.
// ID is the 0-based position of the event in the container's stream and is
// assigned by the store at insert time; it never changes afterwards.
type Event struct {
	ID        int64     `json:"id" db:"seq"`
	Timestamp time.Time `json:"timestamp" db:"ts"`
	Subject   string    `json:"subject" db:"subject"`
	Type      string    `json:"type" db:"type"`
}

// timestampLayouts are the accepted textual timestamp formats, tried in order.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// ParseTimestamp parses a textual timestamp in one of the accepted layouts.
// Times without an explicit zone are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Micros returns the event timestamp as microseconds since the Unix epoch,
// the representation used by the store.
func (e *Event) Micros() int64 {
	return e.Timestamp.UnixMicro()
}

// FromMicros converts a store timestamp back into a UTC time.Time.
func FromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
