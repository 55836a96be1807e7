package timeline

import (
	"fmt"
	"time"

	"github.com/evidentia/timeline/model"
)

// Row is the display adaptation of an event: its absolute row index in the
// filtered virtual table, the event fields, and the type-specific message.
type Row struct {
	Index     int       `json:"index"`
	EventID   int64     `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Type      string    `json:"type"`
	Indicator string    `json:"indicator"`
	Message   string    `json:"message"`
}

// messages maps known event types to their human-readable description.
var messages = map[string]string{
	model.TypeModify:         "File modified",
	model.TypeAccess:         "File access",
	model.TypeMetadataChange: "File metadata changed",
}

// indicators maps known event types to their MACB-style marker.
var indicators = map[string]string{
	model.TypeModify:         "M--",
	model.TypeAccess:         "-A-",
	model.TypeMetadataChange: "--C",
}

// RenderMessage returns the human-readable message for an event type.
// It is total: unrecognized types fall back to naming the raw type.
func RenderMessage(eventType string) string {
	if m, ok := messages[eventType]; ok {
		return m
	}
	return fmt.Sprintf("Event of type %s", eventType)
}

// TypeIndicator returns the MACB-style marker for an event type, or "---"
// for types without one.
func TypeIndicator(eventType string) string {
	if ind, ok := indicators[eventType]; ok {
		return ind
	}
	return "---"
}

// adaptRow converts an event at the given absolute row index into a Row.
func adaptRow(index int, e *model.Event) Row {
	return Row{
		Index:     index,
		EventID:   e.ID,
		Timestamp: e.Timestamp,
		Subject:   e.Subject,
		Type:      e.Type,
		Indicator: TypeIndicator(e.Type),
		Message:   RenderMessage(e.Type),
	}
}
