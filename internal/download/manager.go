package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
	"git.home.luguber.info/inful/stylesync/internal/lockfile"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
	"git.home.luguber.info/inful/stylesync/internal/metrics"
	"git.home.luguber.info/inful/stylesync/internal/retry"
)

// Options configures a Manager.
type Options struct {
	Root        string // download directory
	LockFile    string
	Concurrency int           // concurrent fetches; <=0 uses config.DefaultConcurrency
	Workers     int           // concurrent extract/write jobs; <=0 uses runtime.NumCPU()
	Timeout     time.Duration // per request; 0 disables
	Retry       retry.Policy
	UserAgent   string
	Client      *http.Client
	Logger      *slog.Logger
	Recorder    metrics.Recorder
}

// OptionsFromConfig derives manager options from a loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{Root: cfg.DownloadDir(), LockFile: cfg.LockFile}
	if dl := cfg.Download; dl != nil {
		opts.Concurrency = dl.Concurrency
		opts.Timeout = dl.TimeoutDuration()
		opts.Retry = retry.FromDownload(dl)
	}
	return opts
}

// SyncResult summarizes one sync round.
type SyncResult struct {
	Fetched      []string // source URLs downloaded this round
	UpToDate     int
	FilesWritten []string // paths relative to the download root
	StaleDeleted []string
	Bytes        int
	Duration     time.Duration
}

// Manager runs sync rounds. It is safe to call Sync repeatedly; each round
// reloads the lock file.
type Manager struct {
	opts     Options
	client   *http.Client
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultConcurrency
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Retry == (retry.Policy{}) {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "stylesync"
	}
	m := &Manager{opts: opts, client: opts.Client, logger: opts.Logger, recorder: opts.Recorder}
	if m.client == nil {
		m.client = &http.Client{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.recorder == nil {
		m.recorder = metrics.NoopRecorder{}
	}
	return m
}

// Sync brings the download directory up to date with sources.
func (m *Manager) Sync(ctx context.Context, sources []config.Source) (*SyncResult, error) {
	start := time.Now()
	res := &SyncResult{}
	if len(sources) == 0 {
		m.logger.Info("No files to download")
		return res, nil
	}

	cache, err := lockfile.Load(m.opts.Root, m.opts.LockFile, lockfile.WithLogger(m.logger))
	if err != nil {
		return nil, errors.ConfigError("cannot read lock file").
			WithCause(err).WithContext("lock_file", m.opts.LockFile).Build()
	}

	var toFetch []config.Source
	for _, src := range sources {
		if cache.ShouldFetch(src) {
			toFetch = append(toFetch, src)
		} else {
			m.recorder.IncDownloadResult(metrics.DownloadUpToDate)
		}
	}
	res.UpToDate = len(sources) - len(toFetch)

	if len(toFetch) == 0 {
		m.logger.Info("No new files to download", logfields.Count(res.UpToDate))
	} else {
		m.logger.Info("Downloading sources",
			logfields.Count(len(toFetch)),
			slog.Int("up_to_date", res.UpToDate),
			logfields.Path(m.opts.Root))
		if err := m.fetchAll(ctx, cache, toFetch, res); err != nil {
			return nil, err
		}
	}

	if err := cache.Flush(); err != nil {
		return nil, errors.FileSystemError("cannot write lock file").
			WithCause(err).WithContext("lock_file", m.opts.LockFile).Build()
	}
	deleted, err := cache.ReclaimStale()
	res.StaleDeleted = deleted
	m.recorder.IncStaleDeleted(len(deleted))
	if err != nil {
		return nil, errors.FileSystemError("cannot reclaim stale downloads").
			WithCause(err).WithContext("root", m.opts.Root).Build()
	}

	sort.Strings(res.FilesWritten)
	res.Duration = time.Since(start)
	if len(res.Fetched) > 0 {
		m.logger.Info("Sync complete",
			logfields.Count(len(res.FilesWritten)),
			logfields.Size(humanize.Bytes(uint64(res.Bytes))),
			logfields.DurationMS(float64(res.Duration.Milliseconds())))
	}
	return res, nil
}

func (m *Manager) fetchAll(ctx context.Context, cache *lockfile.Cache, toFetch []config.Source, res *SyncResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	workers := semaphore.NewWeighted(int64(m.opts.Workers))

	var mu sync.Mutex
	for _, src := range toFetch {
		g.Go(func() error {
			fetchStart := time.Now()
			body, err := m.fetch(gctx, src)
			m.recorder.ObserveDownloadDuration(time.Since(fetchStart), err == nil)
			if err != nil {
				m.recorder.IncDownloadResult(metrics.DownloadFailed)
				return err
			}

			if err := workers.Acquire(gctx, 1); err != nil {
				return err
			}
			records, err := m.store(src, body)
			workers.Release(1)
			if err != nil {
				m.recorder.IncDownloadResult(metrics.DownloadFailed)
				return errors.FileSystemError("cannot store downloaded source").
					WithCause(err).WithContext("url", src.URL).Build()
			}

			cache.Commit(src, records)
			m.recorder.IncDownloadResult(metrics.DownloadFetched)
			m.recorder.AddDownloadBytes(len(body))

			mu.Lock()
			res.Fetched = append(res.Fetched, src.URL)
			res.Bytes += len(body)
			for _, r := range records {
				res.FilesWritten = append(res.FilesWritten, r.Path)
			}
			mu.Unlock()

			if src.IsArchive() {
				m.logger.Info("Downloaded archive", logfields.URL(src.URL), logfields.Count(len(records)))
			} else {
				m.logger.Info("Downloaded file", logfields.URL(src.URL), logfields.File(src.To))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("sync canceled: %w", ctx.Err())
		}
		if errors.IsClassified(err) {
			return err
		}
		return errors.SyncError("download failed").WithCause(err).Build()
	}
	return nil
}
