package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/stylesync/internal/build"
	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
)

// DefaultDebounce coalesces editor save bursts into one run.
const DefaultDebounce = 300 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// OutputDir and DevMode are passed through to every run.
	OutputDir string
	DevMode   *bool

	Debounce time.Duration
	Logger   *slog.Logger

	// Loader reloads the configuration file; defaults to config.Load.
	Loader func(path string) (*config.Config, error)
}

// Watcher re-runs sync and build on file changes.
type Watcher struct {
	svc    build.Service
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	cfgWatch  *fsnotify.Watcher
	treeWatch *fsnotify.Watcher
	filter    treeFilter

	scheduler gocron.Scheduler
	resync    chan struct{}
	ready     chan struct{}
}

// trigger accumulates what changed during one debounce window.
type trigger struct {
	config bool
	tree   bool
	paths  int
}

// New creates a watcher for cfg. cfg.ConfigFile must name the loaded file.
func New(svc build.Service, cfg *config.Config, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Loader == nil {
		opts.Loader = config.Load
	}
	return &Watcher{
		svc:    svc,
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger,
		resync: make(chan struct{}, 1),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once both streams are watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run performs an initial sync and build and then watches until ctx is
// canceled. Run errors are logged, never returned; cancellation returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	w.run(ctx, "startup", false)
	if ctx.Err() != nil {
		return nil
	}

	if err := w.watchConfig(); err != nil {
		return err
	}
	defer func() { _ = w.cfgWatch.Close() }()

	if err := w.watchTree(); err != nil {
		return err
	}
	defer w.closeTree()

	w.startResync()
	defer w.stopResync()

	w.logger.Info("Watching for changes",
		logfields.Path(w.cfg.BuildDir), slog.String("config", w.cfg.ConfigFile))

	debounce := time.NewTimer(w.opts.Debounce)
	debounce.Stop()
	defer debounce.Stop()
	close(w.ready)

	var pending trigger
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watcher stopped")
			return nil

		case ev, ok := <-w.cfgWatch.Events:
			if !ok {
				return nil
			}
			if w.isConfigEvent(ev) {
				w.logger.Debug("Config change detected", logfields.File(ev.Name), slog.String("op", ev.Op.String()))
				pending.config = true
				debounce.Reset(w.opts.Debounce)
			}

		case ev, ok := <-w.treeEvents():
			if !ok {
				return nil
			}
			if w.handleTreeEvent(ev) {
				pending.tree = true
				pending.paths++
				debounce.Reset(w.opts.Debounce)
			}

		case err, ok := <-w.cfgWatch.Errors:
			if ok {
				w.logger.Warn("Config watcher error", logfields.Error(err))
			}

		case err, ok := <-w.treeErrors():
			if ok {
				w.logger.Warn("Build directory watcher error", logfields.Error(err))
			}

		case <-debounce.C:
			w.flush(ctx, pending)
			pending = trigger{}

		case <-w.resync:
			w.run(ctx, "refresh", false)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, t trigger) {
	if t.config {
		w.logger.Info("Changes detected in config file, reloading")
		cfg, err := w.opts.Loader(w.cfg.ConfigFile)
		if err == nil {
			w.apply(cfg)
			w.run(ctx, "config", false)
			return
		}
		w.logger.Error("Failed to reload configuration; keeping previous", logfields.Error(err))
	}
	if t.tree {
		w.logger.Info("Changes detected in the build directory, recompiling", logfields.Count(t.paths))
		w.run(ctx, "build_dir", true)
	}
}

func (w *Watcher) run(ctx context.Context, reason string, skipSync bool) {
	res, err := w.svc.Run(ctx, build.Request{
		Config:    w.cfg,
		OutputDir: w.opts.OutputDir,
		DevMode:   w.opts.DevMode,
		SkipSync:  skipSync,
	})
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Run failed", slog.String("trigger", reason), logfields.Error(err))
		}
		return
	}
	w.logger.Debug("Run finished", slog.String("trigger", reason), logfields.RunID(res.RunID))
}

// apply switches to a reloaded configuration, re-registering the build
// directory watch and the refresh job when they changed.
func (w *Watcher) apply(cfg *config.Config) {
	prev := w.cfg
	w.cfg = cfg

	if prev.BuildDir != cfg.BuildDir || prev.OutputDir != cfg.OutputDir || prev.DownloadDir() != cfg.DownloadDir() {
		w.closeTree()
		if err := w.watchTree(); err != nil {
			w.logger.Error("Failed to watch build directory", logfields.Path(cfg.BuildDir), logfields.Error(err))
		}
	}
	if refreshInterval(prev) != refreshInterval(cfg) {
		w.stopResync()
		w.startResync()
	}
}

func (w *Watcher) outputDir() string {
	if w.opts.OutputDir != "" {
		if abs, err := filepath.Abs(w.opts.OutputDir); err == nil {
			return abs
		}
	}
	return w.cfg.OutputDir
}

// watchConfig watches the directory holding the config file, which survives
// editors that save by rename.
func (w *Watcher) watchConfig() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(w.cfg.ConfigFile)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}
	w.cfgWatch = watcher
	return nil
}

func (w *Watcher) isConfigEvent(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(w.cfg.ConfigFile) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) watchTree() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.filter = newTreeFilter(w.outputDir(), w.cfg.DownloadDir())
	if err := w.addDirsRecursive(watcher, w.cfg.BuildDir); err != nil {
		_ = watcher.Close()
		return err
	}
	w.treeWatch = watcher
	return nil
}

func (w *Watcher) closeTree() {
	if w.treeWatch != nil {
		_ = w.treeWatch.Close()
		w.treeWatch = nil
	}
}

// treeEvents and treeErrors return nil channels (never ready) while the
// build directory is not watched.
func (w *Watcher) treeEvents() <-chan fsnotify.Event {
	if w.treeWatch == nil {
		return nil
	}
	return w.treeWatch.Events
}

func (w *Watcher) treeErrors() <-chan error {
	if w.treeWatch == nil {
		return nil
	}
	return w.treeWatch.Errors
}

func (w *Watcher) handleTreeEvent(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	if w.filter.ignored(ev.Name) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addDirsRecursive(w.treeWatch, ev.Name)
		}
	}
	w.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	return true
}

func (w *Watcher) addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("failed to watch build directory %s: %w", root, err)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.filter.ignored(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			w.logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

// startResync schedules the periodic sync when refresh_interval is set.
func (w *Watcher) startResync() {
	interval := refreshInterval(w.cfg)
	if interval <= 0 {
		return
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		w.logger.Error("Failed to create scheduler", logfields.Error(err))
		return
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			select {
			case w.resync <- struct{}{}:
			default:
			}
		}),
		gocron.WithName("stylesync-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		w.logger.Error("Failed to schedule refresh", logfields.Error(err))
		_ = s.Shutdown()
		return
	}
	s.Start()
	w.scheduler = s
	w.logger.Info("Periodic refresh enabled", slog.Duration("interval", interval))
}

func (w *Watcher) stopResync() {
	if w.scheduler == nil {
		return
	}
	if err := w.scheduler.Shutdown(); err != nil {
		w.logger.Warn("Failed to stop scheduler", logfields.Error(err))
	}
	w.scheduler = nil
}

func refreshInterval(cfg *config.Config) time.Duration {
	if cfg.Download == nil {
		return 0
	}
	return cfg.Download.RefreshDuration()
}
