// Package audit provides an append-only event log for provider
// selection, generation, validation, and budget alerts. Events are
// write-once; stores never mutate or delete records on behalf of this
// layer, retention is a store-level concern.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the auditable event categories.
type EventType string

const (
	EventSelection  EventType = "selection"
	EventGeneration EventType = "generation"
	EventValidation EventType = "validation"
	EventAlert      EventType = "alert"
)

// Event is one append-only audit record.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	OperationID string         `json:"operation_id,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Store is the append-only persistence contract for audit events.
type Store interface {
	// Append writes one event. Implementations must never modify an
	// event after it is written.
	Append(ctx context.Context, ev Event) error

	// Recent returns up to limit of the most recently appended events,
	// newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	Close() error
}

// Logger stamps and appends audit events. It is the only writer the
// rest of the system uses; construction of IDs and timestamps lives
// here so stores stay dumb.
type Logger struct {
	store Store
	now   func() time.Time
}

// NewLogger returns a Logger writing to store.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// Record stamps ev with an ID and timestamp and appends it.
func (l *Logger) Record(ctx context.Context, ev Event) error {
	ev.ID = uuid.NewString()
	ev.Timestamp = l.now().UTC()
	return l.store.Append(ctx, ev)
}

// Selection records a provider-selection decision.
func (l *Logger) Selection(ctx context.Context, opID, provider string, payload map[string]any) error {
	return l.Record(ctx, Event{Type: EventSelection, OperationID: opID, Provider: provider, Payload: payload})
}

// Generation records the terminal outcome of a generate call.
func (l *Logger) Generation(ctx context.Context, opID, provider string, payload map[string]any) error {
	return l.Record(ctx, Event{Type: EventGeneration, OperationID: opID, Provider: provider, Payload: payload})
}

// Validation records a validation outcome.
func (l *Logger) Validation(ctx context.Context, opID string, payload map[string]any) error {
	return l.Record(ctx, Event{Type: EventValidation, OperationID: opID, Payload: payload})
}

// Alert records a budget alert.
func (l *Logger) Alert(ctx context.Context, provider string, payload map[string]any) error {
	return l.Record(ctx, Event{Type: EventAlert, Provider: provider, Payload: payload})
}

// Recent proxies to the underlying store.
func (l *Logger) Recent(ctx context.Context, limit int) ([]Event, error) {
	return l.store.Recent(ctx, limit)
}

// Close flushes and closes the underlying store.
func (l *Logger) Close() error {
	return l.store.Close()
}
