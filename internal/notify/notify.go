// Package notify announces finished builds to interested consumers.
package notify

import (
	"context"
	"time"
)

// Summary describes one published build.
type Summary struct {
	RunID      string    `json:"run_id"`
	Output     string    `json:"output"`
	Mode       string    `json:"mode"`
	Generated  int       `json:"generated"`
	Bytes      int64     `json:"bytes"`
	Fetched    int       `json:"fetched"`
	DurationMS int64     `json:"duration_ms"`
	Files      []string  `json:"files,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier publishes build summaries.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
	Close() error
}

// Noop discards every summary.
type Noop struct{}

func (Noop) Notify(context.Context, Summary) error { return nil }
func (Noop) Close() error                          { return nil }
