package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "stylesync"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	stageDuration    *prom.HistogramVec
	buildDuration    prom.Histogram
	stageResults     *prom.CounterVec
	buildOutcome     *prom.CounterVec
	downloadDuration *prom.HistogramVec
	downloadResults  *prom.CounterVec
	downloadBytes    prom.Counter
	staleDeleted     prom.Counter
	retries          *prom.CounterVec
	compileResults   *prom.CounterVec
	outputBytes      prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of sync, compile and publish stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"})
		pr.downloadDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of individual source fetches",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.downloadResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "download_results_total",
			Help:      "Sources per sync round by result",
		}, []string{"result"})
		pr.downloadBytes = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes received from remote sources",
		})
		pr.staleDeleted = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stale_files_deleted_total",
			Help:      "Files reclaimed from the download directory",
		})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries after transient failures",
		}, []string{"stage"})
		pr.compileResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "compile_results_total",
			Help:      "Compiled stylesheets by success/failure",
		}, []string{"result"})
		pr.outputBytes = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "output_bytes_total",
			Help:      "Bytes of CSS written to the output directory",
		})
		reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
			pr.downloadDuration, pr.downloadResults, pr.downloadBytes, pr.staleDeleted,
			pr.retries, pr.compileResults, pr.outputBytes)
	})
	return pr
}

func successLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveDownloadDuration(d time.Duration, success bool) {
	if p == nil || p.downloadDuration == nil {
		return
	}
	p.downloadDuration.WithLabelValues(successLabel(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDownloadResult(result DownloadResult) {
	if p == nil || p.downloadResults == nil {
		return
	}
	p.downloadResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) AddDownloadBytes(n int) {
	if p == nil || p.downloadBytes == nil || n <= 0 {
		return
	}
	p.downloadBytes.Add(float64(n))
}

func (p *PrometheusRecorder) IncStaleDeleted(n int) {
	if p == nil || p.staleDeleted == nil || n <= 0 {
		return
	}
	p.staleDeleted.Add(float64(n))
}

func (p *PrometheusRecorder) IncRetry(stage string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncCompileResult(success bool) {
	if p == nil || p.compileResults == nil {
		return
	}
	p.compileResults.WithLabelValues(successLabel(success)).Inc()
}

func (p *PrometheusRecorder) AddOutputBytes(n int) {
	if p == nil || p.outputBytes == nil || n <= 0 {
		return
	}
	p.outputBytes.Add(float64(n))
}
