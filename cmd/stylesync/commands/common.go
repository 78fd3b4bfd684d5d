package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/alecthomas/kong"
	"gopkg.in/natefinch/lumberjack.v2"

	"git.home.luguber.info/inful/stylesync/internal/build"
	"git.home.luguber.info/inful/stylesync/internal/compiler"
	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/eventstore"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
	"git.home.luguber.info/inful/stylesync/internal/metrics"
	"git.home.luguber.info/inful/stylesync/internal/notify"
)

// Global is shared state handed to every subcommand.
type Global struct {
	Logger *slog.Logger

	logFile io.Closer
}

// Close releases the rotating log file, if any.
func (g *Global) Close() error {
	if g.logFile == nil {
		return nil
	}
	return g.logFile.Close()
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file, or a directory containing stylesync.yml" default:"."`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	LogFile string           `name:"log-file" help:"Also write logs to this file (rotated by size)"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Download remote sources and compile stylesheets once"`
	Sync    SyncCmd    `cmd:"" help:"Download remote sources without compiling"`
	Watch   WatchCmd   `cmd:"" help:"Build, then rebuild whenever sources or the config change"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	History HistoryCmd `cmd:"" help:"List recent runs from the history database"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply(g *Global) error {
	var out io.Writer = os.Stderr
	if c.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		g.logFile = rotating
		out = io.MultiWriter(os.Stderr, rotating)
	}
	g.Logger = newLogger(out, c.Verbose)
	slog.SetDefault(g.Logger)
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ModeFlags select the build mode, overriding dev_mode from the config.
type ModeFlags struct {
	Dev  bool `help:"Development build: expanded CSS with source maps" xor:"mode"`
	Prod bool `help:"Production build: compressed CSS with cache-busting tags" xor:"mode"`
}

// Override returns nil when neither flag is set.
func (m ModeFlags) Override() *bool {
	switch {
	case m.Dev:
		v := true
		return &v
	case m.Prod:
		v := false
		return &v
	default:
		return nil
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// serviceDeps holds everything a build service owns and must release.
type serviceDeps struct {
	engine   *compiler.DartSass
	history  eventstore.Store
	notifier notify.Notifier
	logger   *slog.Logger
}

func (d *serviceDeps) Close() {
	if d.notifier != nil {
		if err := d.notifier.Close(); err != nil {
			d.logger.Warn("Failed to close notifier", logfields.Error(err))
		}
	}
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			d.logger.Warn("Failed to close history database", logfields.Error(err))
		}
	}
	if d.engine != nil {
		if err := d.engine.Close(); err != nil {
			d.logger.Warn("Failed to stop sass compiler", logfields.Error(err))
		}
	}
}

// newService assembles the build service for cfg. History and notifications
// are optional; failing to open either is logged and the run continues
// without it.
func newService(cfg *config.Config, logger *slog.Logger, recorder metrics.Recorder) (*build.DefaultService, *serviceDeps) {
	deps := &serviceDeps{
		engine: compiler.NewDartSass(compiler.DartSassOptions{Logger: logger}),
		logger: logger,
	}
	opts := []build.Option{build.WithLogger(logger)}
	if recorder != nil {
		opts = append(opts, build.WithRecorder(recorder))
	}

	if cfg.History.Database != "" {
		store, err := eventstore.NewSQLiteStore(cfg.History.Database)
		if err != nil {
			logger.Warn("History disabled", logfields.Path(cfg.History.Database), logfields.Error(err))
		} else {
			deps.history = store
			opts = append(opts, build.WithHistory(store))
		}
	}

	if cfg.Notify.NATSURL != "" {
		n, err := notify.NewNATSNotifier(cfg.Notify.NATSURL, cfg.Notify.Subject, logger)
		if err != nil {
			logger.Warn("Notifications disabled", logfields.URL(cfg.Notify.NATSURL), logfields.Error(err))
		} else {
			deps.notifier = n
			opts = append(opts, build.WithNotifier(n))
		}
	}

	return build.NewService(deps.engine, opts...), deps
}

// reloadingService rebuilds the underlying build service when a request
// carries history or notify settings that differ from the ones it was built
// with, so reloaded configs take effect in watch mode.
type reloadingService struct {
	logger   *slog.Logger
	recorder metrics.Recorder

	mu      sync.Mutex
	history config.HistoryConfig
	notify  config.NotifyConfig
	svc     build.Service
	deps    *serviceDeps
}

func newReloadingService(cfg *config.Config, logger *slog.Logger, recorder metrics.Recorder) *reloadingService {
	r := &reloadingService{logger: logger, recorder: recorder}
	r.rebuild(cfg)
	return r
}

func (r *reloadingService) rebuild(cfg *config.Config) {
	r.svc, r.deps = newService(cfg, r.logger, r.recorder)
	r.history = cfg.History
	r.notify = cfg.Notify
}

// Run implements build.Service.
func (r *reloadingService) Run(ctx context.Context, req build.Request) (*build.Result, error) {
	r.mu.Lock()
	if cfg := req.Config; cfg != nil && (cfg.History != r.history || cfg.Notify != r.notify) {
		r.logger.Info("History or notification settings changed, reconnecting")
		r.deps.Close()
		r.rebuild(cfg)
	}
	svc := r.svc
	r.mu.Unlock()
	return svc.Run(ctx, req)
}

func (r *reloadingService) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps.Close()
}
