// Package sink delivers rendered template output to its destinations.
package sink

import "time"

// Kind names a sink so templates can suppress it individually.
type Kind string

const (
	KindFile    Kind = "file"
	KindBus     Kind = "bus"
	KindArchive Kind = "archive"
)

// Output is one rendered template, keyed by its resolved path and topic.
type Output struct {
	Generation string    `json:"generation"`
	Event      string    `json:"event"`
	Template   string    `json:"template"`
	Path       string    `json:"path"`
	Topic      string    `json:"topic,omitempty"`
	Body       string    `json:"body"`
	Time       time.Time `json:"time"`
}

// Sink accepts generated output.
type Sink interface {
	Kind() Kind
	Emit(out Output) error
}
