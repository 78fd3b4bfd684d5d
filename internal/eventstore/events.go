package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
)

// Event type names.
const (
	TypeSyncCompleted  = "SyncCompleted"
	TypeBuildCompleted = "BuildCompleted"
	TypeBuildFailed    = "BuildFailed"
)

// SyncStats is the payload of a SyncCompleted event.
type SyncStats struct {
	Fetched      int   `json:"fetched"`
	UpToDate     int   `json:"up_to_date"`
	FilesWritten int   `json:"files_written"`
	StaleDeleted int   `json:"stale_deleted"`
	Bytes        int64 `json:"bytes"`
	DurationMS   int64 `json:"duration_ms"`
}

// SyncCompleted is emitted when a download round finished successfully.
type SyncCompleted struct {
	BaseEvent
	Stats SyncStats
}

// NewSyncCompleted creates a SyncCompleted event.
func NewSyncCompleted(runID string, stats SyncStats) (*SyncCompleted, error) {
	payload, err := marshalPayload(runID, TypeSyncCompleted, stats)
	if err != nil {
		return nil, err
	}
	return &SyncCompleted{
		BaseEvent: newBase(runID, TypeSyncCompleted, payload),
		Stats:     stats,
	}, nil
}

// BuildStats is the payload of a BuildCompleted event.
type BuildStats struct {
	Output     string `json:"output"`
	Mode       string `json:"mode"`
	Generated  int    `json:"generated"`
	Bytes      int64  `json:"bytes"`
	DurationMS int64  `json:"duration_ms"`
}

// BuildCompleted is emitted after a build was published.
type BuildCompleted struct {
	BaseEvent
	Stats BuildStats
}

// NewBuildCompleted creates a BuildCompleted event.
func NewBuildCompleted(runID string, stats BuildStats) (*BuildCompleted, error) {
	payload, err := marshalPayload(runID, TypeBuildCompleted, stats)
	if err != nil {
		return nil, err
	}
	return &BuildCompleted{
		BaseEvent: newBase(runID, TypeBuildCompleted, payload),
		Stats:     stats,
	}, nil
}

// BuildFailure is the payload of a BuildFailed event.
type BuildFailure struct {
	Stage  string `json:"stage"`
	Error  string `json:"error"`
	Errors int    `json:"errors,omitempty"`
}

// BuildFailed is emitted when either stage of a run failed.
type BuildFailed struct {
	BaseEvent
	Failure BuildFailure
}

// NewBuildFailed creates a BuildFailed event.
func NewBuildFailed(runID, stage string, cause error, errorCount int) (*BuildFailed, error) {
	failure := BuildFailure{Stage: stage, Errors: errorCount}
	if cause != nil {
		failure.Error = cause.Error()
	}
	payload, err := marshalPayload(runID, TypeBuildFailed, failure)
	if err != nil {
		return nil, err
	}
	return &BuildFailed{
		BaseEvent: newBase(runID, TypeBuildFailed, payload),
		Failure:   failure,
	}, nil
}

func newBase(runID, eventType string, payload []byte) BaseEvent {
	return BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}
}

func marshalPayload(runID, eventType string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal event payload").
			WithCause(err).
			WithContext("run_id", runID).
			WithContext("event_type", eventType).
			Build()
	}
	return payload, nil
}
