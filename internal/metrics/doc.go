// Package metrics provides observability hooks for sync and build runs.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	mgr := download.NewManager(opts) // uses metrics.NoopRecorder{}
//
// In watch mode with --metrics-addr a PrometheusRecorder is injected instead
// and HTTPHandler serves the registry on /metrics.
package metrics
