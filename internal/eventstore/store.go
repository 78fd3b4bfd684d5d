package eventstore

import (
	"context"
	"time"

	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
)

// Store defines the interface for persisting and retrieving run events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error

	// GetByRunID retrieves all events for a specific run, oldest first.
	GetByRunID(ctx context.Context, runID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// RecentRunIDs lists the most recently active runs, newest first.
	RecentRunIDs(ctx context.Context, limit int) ([]string, error)

	// Close closes the store and releases resources.
	Close() error
}

// Emit appends a typed event to the store.
func Emit(ctx context.Context, store Store, event Event) error {
	if err := store.Append(ctx, event.RunID(), event.Type(), event.Payload(), event.Metadata()); err != nil {
		return wrap(err, ErrEventAppendFailed).WithContext("event_type", event.Type()).Build()
	}
	return nil
}
