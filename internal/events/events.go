// Package events defines the pipeline's notification surface: consent and
// connection lifecycle events that operators can subscribe to via webhook,
// shell script, or structured stdio output.
//
// Adapted from the teacher's internal/rtmp/server/hooks package (event
// types, hook execution pool) generalized from RTMP connection/stream
// events to this domain's consent and worker lifecycle events.
package events

import "time"

// EventType identifies the kind of pipeline occurrence.
type EventType string

const (
	// EventConsentAdded fires when the consent manager inserts a new
	// ConsentRecord (startup load or a file added to the consent directory).
	EventConsentAdded EventType = "consent_added"
	// EventConsentRevoked fires when the last ConsentRecord for a name is
	// removed.
	EventConsentRevoked EventType = "consent_revoked"
	// EventConsentLoadFailed fires when a consent capture file could not be
	// processed (bad image, no face, feature extraction failure).
	EventConsentLoadFailed EventType = "consent_load_failed"
	// EventInputConnected names an input session being established. No
	// component in this module triggers it.
	EventInputConnected EventType = "input_connected"
	// EventInputDisconnected names an input session ending (EOF, error, or
	// shutdown). No component in this module triggers it.
	EventInputDisconnected EventType = "input_disconnected"
	// EventWorkerError names a worker's state transitioning to ERROR. No
	// component in this module triggers it.
	EventWorkerError EventType = "worker_error"
)

// Event represents a single pipeline occurrence that can trigger hooks.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	Worker    string                 `json:"worker,omitempty"`
	Consent   string                 `json:"consent,omitempty"` // consent record name, if applicable
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New creates a new event with the current timestamp.
func New(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]interface{}),
	}
}

// WithWorker sets the worker name that raised the event.
func (e *Event) WithWorker(name string) *Event {
	e.Worker = name
	return e
}

// WithConsent sets the consent record name the event concerns.
func (e *Event) WithConsent(name string) *Event {
	e.Consent = name
	return e
}

// WithData adds a data field to the event.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String returns a human-readable representation of the event.
func (e *Event) String() string {
	if e.Consent != "" {
		return string(e.Type) + ":" + e.Consent
	}
	if e.Worker != "" {
		return string(e.Type) + ":" + e.Worker
	}
	return string(e.Type)
}
