// Package eventstore records sync and build runs in an append-only SQLite
// history and folds them back into per-run summaries.
package eventstore

import (
	"context"
	"encoding/json"
	"time"
)

// Run status values.
const (
	StatusSynced    = "synced"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunSummary is a read model of one run reconstructed from its events.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Sync        *SyncStats    `json:"sync,omitempty"`
	Build       *BuildStats   `json:"build,omitempty"`
	Failure     *BuildFailure `json:"failure,omitempty"`
	EventsCount int           `json:"events"`
}

// Duration is the wall time between the first and last event of the run.
func (r *RunSummary) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summarize folds the events of a single run into a summary.
// Events with undecodable payloads still count but contribute no stats.
func Summarize(runID string, events []Event) *RunSummary {
	summary := &RunSummary{RunID: runID}
	for _, event := range events {
		summary.apply(event)
	}
	return summary
}

func (r *RunSummary) apply(event Event) {
	ts := event.Timestamp()
	if r.EventsCount == 0 || ts.Before(r.StartedAt) {
		r.StartedAt = ts
	}
	if ts.After(r.FinishedAt) {
		r.FinishedAt = ts
	}
	r.EventsCount++

	switch event.Type() {
	case TypeSyncCompleted:
		var stats SyncStats
		if err := json.Unmarshal(event.Payload(), &stats); err == nil {
			r.Sync = &stats
		}
		if r.Status == "" {
			r.Status = StatusSynced
		}
	case TypeBuildCompleted:
		var stats BuildStats
		if err := json.Unmarshal(event.Payload(), &stats); err == nil {
			r.Build = &stats
		}
		if r.Status != StatusFailed {
			r.Status = StatusCompleted
		}
	case TypeBuildFailed:
		var failure BuildFailure
		if err := json.Unmarshal(event.Payload(), &failure); err == nil {
			r.Failure = &failure
		}
		r.Status = StatusFailed
	}
}

// RecentRuns returns summaries for up to limit runs, newest first.
func RecentRuns(ctx context.Context, store Store, limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := store.RecentRunIDs(ctx, limit)
	if err != nil {
		return nil, err
	}

	runs := make([]*RunSummary, 0, len(ids))
	for _, id := range ids {
		events, err := store.GetByRunID(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, Summarize(id, events))
	}
	return runs, nil
}
