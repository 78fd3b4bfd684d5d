package build

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/stylesync/internal/compiler"
	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/eventstore"
	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
	"git.home.luguber.info/inful/stylesync/internal/notify"
)

// passthroughEngine returns the source unchanged and fails on `@error`.
var passthroughEngine = compiler.EngineFunc(func(_ context.Context, req compiler.Request) (compiler.Result, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return compiler.Result{}, err
	}
	if strings.Contains(string(data), "@error") {
		return compiler.Result{}, &compiler.CompileError{Path: req.Path, Line: 1, Column: 1, Message: "forced failure"}
	}
	return compiler.Result{CSS: string(data)}, nil
})

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []notify.Summary
}

func (n *recordingNotifier) Notify(_ context.Context, s notify.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

type fixture struct {
	dir      string
	cfg      *config.Config
	requests *atomic.Int32
	status   *atomic.Int32
	history  *eventstore.SQLiteStore
	notifier *recordingNotifier
	svc      *DefaultService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:      t.TempDir(),
		requests: &atomic.Int32{},
		status:   &atomic.Int32{},
		notifier: &recordingNotifier{},
	}
	f.status.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if code := int(f.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		_, _ = fmt.Fprint(w, "$brand: red;\n")
	}))
	t.Cleanup(srv.Close)

	content := "version: \"1.0\"\n" +
		"build_dir: src\n" +
		"output_dir: out\n" +
		"cache_dir: cache\n" +
		"dev_mode: false\n" +
		"download:\n" +
		"  dir: src/libs\n" +
		"  sources:\n" +
		"    - url: " + srv.URL + "/lib.scss\n" +
		"      to: lib/\n"
	path := filepath.Join(f.dir, config.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	f.write(t, "src/main.scss", "body { color: red; }\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	f.cfg = cfg

	f.history, err = eventstore.NewSQLiteStore(eventstore.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.history.Close() })

	f.svc = NewService(passthroughEngine,
		WithHistory(f.history),
		WithNotifier(f.notifier),
		WithHTTPClient(srv.Client()))
	return f
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func TestRunSyncAndBuild(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Run(t.Context(), Request{Config: f.cfg})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.True(t, res.Status.IsSuccess())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "prod", res.Mode)
	assert.Equal(t, int32(1), f.requests.Load())

	require.NotNil(t, res.Sync)
	assert.Len(t, res.Sync.Fetched, 1)
	assert.FileExists(t, filepath.Join(f.dir, "src", "libs", "lib", "lib.scss"))

	require.NotNil(t, res.Build)
	assert.Equal(t, 1, res.Build.Generated)
	assert.FileExists(t, filepath.Join(f.dir, "out", "main.css"))
	assert.NoFileExists(t, filepath.Join(f.dir, "out", "libs", "lib", "lib.css"))

	runs, err := eventstore.RecentRuns(t.Context(), f.history, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].RunID)
	assert.Equal(t, eventstore.StatusCompleted, runs[0].Status)
	require.NotNil(t, runs[0].Sync)
	assert.Equal(t, 1, runs[0].Sync.Fetched)
	require.NotNil(t, runs[0].Build)
	assert.Equal(t, 1, runs[0].Build.Generated)

	require.Len(t, f.notifier.summaries, 1)
	summary := f.notifier.summaries[0]
	assert.Equal(t, res.RunID, summary.RunID)
	assert.Equal(t, []string{"main.css"}, summary.Files)
	assert.Equal(t, 1, summary.Fetched)
}

func TestRunSecondRunSkipsNetwork(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(t.Context(), Request{Config: f.cfg})
	require.NoError(t, err)
	res, err := f.svc.Run(t.Context(), Request{Config: f.cfg})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.requests.Load())
	assert.Empty(t, res.Sync.Fetched)
	assert.Equal(t, 1, res.Sync.UpToDate)
}

func TestRunCompileFailure(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/broken.scss", "@error \"nope\";\n")

	res, err := f.svc.Run(t.Context(), Request{Config: f.cfg})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompile)
	assert.True(t, errors.HasCategory(err, errors.CategoryBuild))
	var compileErr *compiler.CompileError
	assert.True(t, stdErrors.As(err, &compileErr))

	assert.Equal(t, StatusFailed, res.Status)
	require.NotNil(t, res.Build)
	assert.Equal(t, 1, res.Build.Errors)
	assert.NoDirExists(t, filepath.Join(f.dir, "out"))
	assert.Empty(t, f.notifier.summaries)

	runs, err := eventstore.RecentRuns(t.Context(), f.history, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, eventstore.StatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Failure)
	assert.Equal(t, "compile", runs[0].Failure.Stage)
	assert.Equal(t, 1, runs[0].Failure.Errors)
	assert.NotNil(t, runs[0].Sync, "the sync stage still succeeded")
}

func TestRunSyncFailure(t *testing.T) {
	f := newFixture(t)
	f.status.Store(http.StatusNotFound)

	res, err := f.svc.Run(t.Context(), Request{Config: f.cfg})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSync)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Nil(t, res.Sync)
	assert.Nil(t, res.Build)
	assert.NoDirExists(t, filepath.Join(f.dir, "out"))

	runs, err := eventstore.RecentRuns(t.Context(), f.history, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Failure)
	assert.Equal(t, "sync", runs[0].Failure.Stage)
}

func TestRunOverrides(t *testing.T) {
	f := newFixture(t)
	alt := filepath.Join(f.dir, "alt")
	dev := true

	res, err := f.svc.Run(t.Context(), Request{Config: f.cfg, OutputDir: alt, DevMode: &dev})
	require.NoError(t, err)
	assert.Equal(t, "dev", res.Mode)
	assert.Equal(t, alt, res.OutputPath)
	assert.FileExists(t, filepath.Join(alt, "main.css"))

	// The loaded config is left as is.
	assert.Equal(t, filepath.Join(f.dir, "out"), f.cfg.OutputDir)
	assert.False(t, f.cfg.IsDevMode())
}

func TestRunRejectsOutputEqualToBuildDir(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(t.Context(), Request{Config: f.cfg, OutputDir: f.cfg.BuildDir})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	assert.Equal(t, int32(0), f.requests.Load())
}

func TestRunSkipSyncAndSyncOnly(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Run(t.Context(), Request{Config: f.cfg, SyncOnly: true})
	require.NoError(t, err)
	assert.NotNil(t, res.Sync)
	assert.Nil(t, res.Build)
	assert.NoDirExists(t, filepath.Join(f.dir, "out"))
	assert.Empty(t, f.notifier.summaries)

	res, err = f.svc.Run(t.Context(), Request{Config: f.cfg, SkipSync: true})
	require.NoError(t, err)
	assert.Nil(t, res.Sync)
	assert.NotNil(t, res.Build)
	assert.Equal(t, int32(1), f.requests.Load())
}

func TestRunNilConfig(t *testing.T) {
	svc := NewService(passthroughEngine)
	res, err := svc.Run(t.Context(), Request{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
	assert.Equal(t, StatusFailed, res.Status)
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := f.svc.Run(ctx, Request{Config: f.cfg})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, res.Status)

	// History is still written for canceled runs.
	runs, err := eventstore.RecentRuns(t.Context(), f.history, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, eventstore.StatusFailed, runs[0].Status)
}
