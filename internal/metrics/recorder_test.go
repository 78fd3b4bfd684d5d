package metrics

import (
	"sync"
	"time"
)

// testRecorder counts calls; shared by tests in this package to check the
// interface stays implementable outside Prometheus.
type testRecorder struct {
	NoopRecorder
	mu             sync.Mutex
	stageDurations map[string]int
	buildOutcomes  map[BuildOutcomeLabel]int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{stageDurations: map[string]int{}, buildOutcomes: map[BuildOutcomeLabel]int{}}
}

func (t *testRecorder) ObserveStageDuration(stage string, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stageDurations[stage]++
}

func (t *testRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buildOutcomes[outcome]++
}

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = newTestRecorder()
)
