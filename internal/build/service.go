package build

import (
	"context"
	"time"

	"git.home.luguber.info/inful/stylesync/internal/compile"
	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/download"
)

// Service executes sync and build runs.
type Service interface {
	// Run synchronizes remote sources and compiles the stylesheet tree.
	Run(ctx context.Context, req Request) (*Result, error)
}

// Request contains all inputs of one run.
type Request struct {
	// Config is the loaded configuration for this run.
	Config *config.Config

	// OutputDir overrides the configured output directory when set.
	OutputDir string

	// DevMode overrides the configured dev_mode when set.
	DevMode *bool

	// SkipSync compiles without touching the download directory.
	SkipSync bool

	// SyncOnly stops after the sync stage.
	SyncOnly bool
}

// Result contains the outcome of a run.
type Result struct {
	RunID  string
	Status Status

	// Sync is nil when the sync stage was skipped or failed.
	Sync *download.SyncResult

	// Build is nil when the compile stage did not run. It is set (with
	// per-file errors) when compilation failed.
	Build *compile.Result

	OutputPath string
	Mode       string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

// Status represents the outcome of a run.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsSuccess returns true if the run completed successfully.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}
