package eventstore

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestEventConstructors(t *testing.T) {
	sync, err := NewSyncCompleted("run", SyncStats{Fetched: 2, FilesWritten: 5, DurationMS: 12})
	require.NoError(t, err)
	assert.Equal(t, TypeSyncCompleted, sync.Type())
	assert.Equal(t, "run", sync.RunID())
	assert.JSONEq(t, `{"fetched":2,"up_to_date":0,"files_written":5,"stale_deleted":0,"bytes":0,"duration_ms":12}`, string(sync.Payload()))

	built, err := NewBuildCompleted("run", BuildStats{Output: "/out", Mode: "prod", Generated: 3})
	require.NoError(t, err)
	assert.Equal(t, TypeBuildCompleted, built.Type())
	assert.Equal(t, 3, built.Stats.Generated)

	failed, err := NewBuildFailed("run", "compile", errors.New("boom"), 2)
	require.NoError(t, err)
	assert.Equal(t, TypeBuildFailed, failed.Type())
	assert.Equal(t, "boom", failed.Failure.Error)
	assert.JSONEq(t, `{"stage":"compile","error":"boom","errors":2}`, string(failed.Payload()))
}

func TestEmitAndRecentRuns(t *testing.T) {
	store := newMemoryStore(t)
	ctx := t.Context()

	first := NewRunID()
	sync, err := NewSyncCompleted(first, SyncStats{Fetched: 1})
	require.NoError(t, err)
	require.NoError(t, Emit(ctx, store, sync))
	built, err := NewBuildCompleted(first, BuildStats{Generated: 4, Mode: "dev"})
	require.NoError(t, err)
	require.NoError(t, Emit(ctx, store, built))

	second := NewRunID()
	failed, err := NewBuildFailed(second, "sync", errors.New("status 404"), 0)
	require.NoError(t, err)
	require.NoError(t, Emit(ctx, store, failed))

	runs, err := RecentRuns(ctx, store, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second, runs[0].RunID)
	assert.Equal(t, StatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Failure)
	assert.Equal(t, "sync", runs[0].Failure.Stage)

	assert.Equal(t, first, runs[1].RunID)
	assert.Equal(t, StatusCompleted, runs[1].Status)
	require.NotNil(t, runs[1].Sync)
	require.NotNil(t, runs[1].Build)
	assert.Equal(t, 1, runs[1].Sync.Fetched)
	assert.Equal(t, 4, runs[1].Build.Generated)
	assert.Equal(t, 2, runs[1].EventsCount)
}

func TestSummarizeOrdersTimestamps(t *testing.T) {
	now := time.Now()
	events := []Event{
		&BaseEvent{EventType: TypeSyncCompleted, EventTimestamp: now.Add(time.Second), EventPayload: []byte(`{}`)},
		&BaseEvent{EventType: TypeBuildFailed, EventTimestamp: now, EventPayload: []byte(`not json`)},
	}
	summary := Summarize("run", events)
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Nil(t, summary.Failure)
	assert.Equal(t, now, summary.StartedAt)
	assert.Equal(t, time.Second, summary.Duration())
}
