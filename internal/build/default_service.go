package build

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/stylesync/internal/compile"
	"git.home.luguber.info/inful/stylesync/internal/compiler"
	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/download"
	"git.home.luguber.info/inful/stylesync/internal/eventstore"
	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
	"git.home.luguber.info/inful/stylesync/internal/metrics"
	"git.home.luguber.info/inful/stylesync/internal/notify"
	"git.home.luguber.info/inful/stylesync/internal/observability"
	"git.home.luguber.info/inful/stylesync/internal/version"
)

// DefaultService is the standard implementation of Service.
type DefaultService struct {
	engine    compiler.Engine
	logger    *slog.Logger
	recorder  metrics.Recorder
	history   eventstore.Store
	notifier  notify.Notifier
	client    *http.Client
	userAgent string
}

// Option configures a DefaultService.
type Option func(*DefaultService)

// WithLogger sets the base logger; run fields are added per run.
func WithLogger(l *slog.Logger) Option {
	return func(s *DefaultService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *DefaultService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithHistory enables run history.
func WithHistory(store eventstore.Store) Option {
	return func(s *DefaultService) { s.history = store }
}

// WithNotifier sets the notifier informed after every published build.
func WithNotifier(n notify.Notifier) Option {
	return func(s *DefaultService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithHTTPClient overrides the client used for downloads (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(s *DefaultService) { s.client = c }
}

// NewService creates a DefaultService compiling with engine.
func NewService(engine compiler.Engine, opts ...Option) *DefaultService {
	s := &DefaultService{
		engine:    engine,
		logger:    slog.Default(),
		recorder:  metrics.NoopRecorder{},
		notifier:  notify.Noop{},
		userAgent: version.UserAgent(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the sync stage (unless skipped) and the compile stage.
func (s *DefaultService) Run(ctx context.Context, req Request) (*Result, error) {
	startTime := time.Now()
	result := &Result{
		RunID:     eventstore.NewRunID(),
		StartTime: startTime,
	}
	ctx = observability.WithRunID(ctx, result.RunID)

	if req.Config == nil {
		return s.fail(ctx, result, "config", errors.ConfigError("config required").Build())
	}
	cfg, err := applyOverrides(req)
	if err != nil {
		return s.fail(ctx, result, "config", err)
	}
	result.OutputPath = cfg.OutputDir
	result.Mode = "prod"
	if cfg.IsDevMode() {
		result.Mode = "dev"
	}
	ctx = observability.WithMode(ctx, result.Mode)

	// Stage 1: synchronize remote sources
	if !req.SkipSync {
		syncCtx := observability.WithStage(ctx, metrics.StageSync)
		stageStart := time.Now()
		opts := download.OptionsFromConfig(cfg)
		opts.Client = s.client
		opts.UserAgent = s.userAgent
		opts.Logger = observability.Logger(syncCtx, s.logger)
		opts.Recorder = s.recorder

		syncRes, err := download.NewManager(opts).Sync(syncCtx, cfg.Sources())
		s.recorder.ObserveStageDuration(metrics.StageSync, time.Since(stageStart))
		if err != nil {
			s.recorder.IncStageResult(metrics.StageSync, stageResult(ctx, err))
			return s.fail(syncCtx, result, metrics.StageSync, fmt.Errorf("%w: %w", ErrSync, err))
		}
		s.recorder.IncStageResult(metrics.StageSync, metrics.ResultSuccess)
		result.Sync = syncRes
		s.emit(ctx, func() (eventstore.Event, error) {
			return eventstore.NewSyncCompleted(result.RunID, eventstore.SyncStats{
				Fetched:      len(syncRes.Fetched),
				UpToDate:     syncRes.UpToDate,
				FilesWritten: len(syncRes.FilesWritten),
				StaleDeleted: len(syncRes.StaleDeleted),
				Bytes:        int64(syncRes.Bytes),
				DurationMS:   syncRes.Duration.Milliseconds(),
			})
		})
	}

	if req.SyncOnly {
		return s.succeed(ctx, result), nil
	}

	// Stage 2: compile and publish
	compileCtx := observability.WithStage(ctx, metrics.StageCompile)
	pipeline := compile.NewPipeline(s.engine,
		compile.WithLogger(observability.Logger(compileCtx, s.logger)),
		compile.WithRecorder(s.recorder))
	buildRes, err := pipeline.Build(compileCtx, compile.OptionsFromConfig(cfg))
	result.Build = buildRes
	if err != nil {
		return s.fail(compileCtx, result, metrics.StageCompile, fmt.Errorf("%w: %w", ErrCompile, err))
	}

	s.emit(ctx, func() (eventstore.Event, error) {
		return eventstore.NewBuildCompleted(result.RunID, eventstore.BuildStats{
			Output:     cfg.OutputDir,
			Mode:       result.Mode,
			Generated:  buildRes.Generated,
			Bytes:      int64(buildRes.Bytes),
			DurationMS: buildRes.Duration.Milliseconds(),
		})
	})
	s.succeed(ctx, result)
	s.announce(ctx, result)
	return result, nil
}

// applyOverrides returns a copy of the request config with the CLI overrides
// applied. The caller's config is never mutated.
func applyOverrides(req Request) (*config.Config, error) {
	cfg := *req.Config
	if req.OutputDir != "" {
		abs, err := filepath.Abs(req.OutputDir)
		if err != nil {
			return nil, errors.ConfigError("invalid output directory").WithCause(err).Build()
		}
		cfg.OutputDir = abs
	}
	if req.DevMode != nil {
		dev := *req.DevMode
		cfg.DevMode = &dev
	}
	if filepath.Clean(cfg.OutputDir) == filepath.Clean(cfg.BuildDir) {
		return nil, errors.ValidationError("output_dir must differ from build_dir").
			WithContext("output_dir", cfg.OutputDir).Build()
	}
	return &cfg, nil
}

func (s *DefaultService) succeed(ctx context.Context, result *Result) *Result {
	result.Status = StatusSuccess
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	s.recorder.IncBuildOutcome(metrics.BuildOutcomeSuccess)
	s.recorder.ObserveBuildDuration(result.Duration)
	observability.DebugContext(ctx, "Run finished",
		logfields.DurationMS(float64(result.Duration.Milliseconds())))
	return result
}

func (s *DefaultService) fail(ctx context.Context, result *Result, stage string, err error) (*Result, error) {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if ctx.Err() != nil && stdErrors.Is(err, ctx.Err()) {
		result.Status = StatusCancelled
		s.recorder.IncBuildOutcome(metrics.BuildOutcomeCanceled)
		observability.WarnContext(ctx, "Run canceled")
	} else {
		result.Status = StatusFailed
		s.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
	}

	errorCount := 0
	if result.Build != nil {
		errorCount = result.Build.Errors
	}
	s.emit(ctx, func() (eventstore.Event, error) {
		return eventstore.NewBuildFailed(result.RunID, stage, err, errorCount)
	})
	return result, err
}

// emit appends a history event. History failures never fail a run.
func (s *DefaultService) emit(ctx context.Context, newEvent func() (eventstore.Event, error)) {
	if s.history == nil {
		return
	}
	event, err := newEvent()
	if err == nil {
		// Record even when the run itself was canceled.
		err = eventstore.Emit(context.WithoutCancel(ctx), s.history, event)
	}
	if err != nil {
		observability.WarnContext(ctx, "Failed to record run history", logfields.Error(err))
	}
}

func (s *DefaultService) announce(ctx context.Context, result *Result) {
	summary := notify.Summary{
		RunID:      result.RunID,
		Output:     result.OutputPath,
		Mode:       result.Mode,
		DurationMS: result.Duration.Milliseconds(),
		Timestamp:  result.EndTime,
	}
	if result.Sync != nil {
		summary.Fetched = len(result.Sync.Fetched)
	}
	if result.Build != nil {
		summary.Generated = result.Build.Generated
		summary.Bytes = int64(result.Build.Bytes)
		for _, f := range result.Build.Files {
			if rel, err := filepath.Rel(result.OutputPath, f.Output); err == nil {
				summary.Files = append(summary.Files, filepath.ToSlash(rel))
			}
		}
	}
	if err := s.notifier.Notify(ctx, summary); err != nil {
		observability.WarnContext(ctx, "Failed to send build notification", logfields.Error(err))
	}
}

func stageResult(ctx context.Context, err error) metrics.ResultLabel {
	if ctx.Err() != nil && stdErrors.Is(err, ctx.Err()) {
		return metrics.ResultCanceled
	}
	return metrics.ResultFatal
}
