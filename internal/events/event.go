package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dreamware/zboard/internal/widget"
)

// Type names the kind of change an Event reports
type Type string

const (
	Created Type = "created"
	Updated Type = "updated"
	Deleted Type = "deleted"
)

// Event describes one committed change to the board
type Event struct {
	Type    Type            `json:"type"`
	Widget  widget.Widget   `json:"widget"`            // The written or removed widget
	Shifted []widget.Widget `json:"shifted,omitempty"` // Widgets moved up by the write, at their new z-index
	At      time.Time       `json:"at"`
}

// Publisher delivers events to whoever listens
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Encode renders an event as its JSON wire form
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses the JSON wire form of an event
func Decode(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}
