package metrics

import "time"

// Stage names used as metric labels.
const (
	StageSync    = "sync"
	StageCompile = "compile"
	StagePublish = "publish"
)

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// BuildOutcomeLabel is the final status of a run.
type BuildOutcomeLabel string

const (
	BuildOutcomeSuccess  BuildOutcomeLabel = "success"
	BuildOutcomeFailed   BuildOutcomeLabel = "failed"
	BuildOutcomeCanceled BuildOutcomeLabel = "canceled"
)

// DownloadResult classifies one source in a sync round.
type DownloadResult string

const (
	DownloadFetched  DownloadResult = "fetched"
	DownloadUpToDate DownloadResult = "up_to_date"
	DownloadFailed   DownloadResult = "failed"
)

// Recorder defines observability hooks for sync and build metrics.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome BuildOutcomeLabel)
	ObserveDownloadDuration(d time.Duration, success bool)
	IncDownloadResult(result DownloadResult)
	AddDownloadBytes(n int)
	IncStaleDeleted(n int)
	IncRetry(stage string)
	IncCompileResult(success bool)
	AddOutputBytes(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)  {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)          {}
func (NoopRecorder) IncStageResult(string, ResultLabel)          {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)           {}
func (NoopRecorder) ObserveDownloadDuration(time.Duration, bool) {}
func (NoopRecorder) IncDownloadResult(DownloadResult)            {}
func (NoopRecorder) AddDownloadBytes(int)                        {}
func (NoopRecorder) IncStaleDeleted(int)                         {}
func (NoopRecorder) IncRetry(string)                             {}
func (NoopRecorder) IncCompileResult(bool)                       {}
func (NoopRecorder) AddOutputBytes(int)                          {}
