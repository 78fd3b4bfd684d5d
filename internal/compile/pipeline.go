package compile

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"git.home.luguber.info/inful/stylesync/internal/compiler"
	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
	"git.home.luguber.info/inful/stylesync/internal/hashing"
	"git.home.luguber.info/inful/stylesync/internal/importer"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
	"git.home.luguber.info/inful/stylesync/internal/metrics"
	"git.home.luguber.info/inful/stylesync/internal/sizereport"
	"git.home.luguber.info/inful/stylesync/internal/workspace"
)

// Staged mirror directory names used in development mode.
const (
	SrcMirrorDir  = ".src"
	LibsMirrorDir = ".libs"
)

// Options describes one build.
type Options struct {
	BuildRoot    string
	OutputRoot   string
	DownloadRoot string // may be empty
	DevMode      bool
	FileHashes   bool
	WipeOutput   bool
	Include      *regexp.Regexp
	Exclude      *regexp.Regexp
	Replace      config.ReplaceRules
	// SizeCache is the size report cache file; empty disables size tracking.
	SizeCache string
}

// OptionsFromConfig derives build options from a validated configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BuildRoot:    cfg.BuildDir,
		OutputRoot:   cfg.OutputDir,
		DownloadRoot: cfg.DownloadDir(),
		DevMode:      cfg.IsDevMode(),
		FileHashes:   cfg.FileHashes,
		WipeOutput:   cfg.WipeOutputDir,
		Include:      cfg.Include,
		Exclude:      cfg.Exclude,
		Replace:      cfg.Replace,
		SizeCache:    sizereport.CachePath(cfg.CacheDir, cfg.BuildDir),
	}
}

// FileResult is the outcome for one source file.
type FileResult struct {
	Source string // relative to the build root
	Output string // final published path
	Map    string // final published source map path, dev mode only
	Size   int
	Delta  sizereport.Delta
	Err    error
}

// Result summarizes a build.
type Result struct {
	Files     []FileResult
	Generated int
	Errors    int
	Bytes     int
	Duration  time.Duration
}

// Failed returns the per-file failures.
func (r *Result) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Pipeline compiles and publishes stylesheet trees.
type Pipeline struct {
	engine    compiler.Engine
	logger    *slog.Logger
	recorder  metrics.Recorder
	resolvers []importer.Resolver
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithResolver adds a resolver consulted before the SRC/ and DOWNLOAD/ namespaces.
func WithResolver(r importer.Resolver) Option {
	return func(p *Pipeline) { p.resolvers = append(p.resolvers, r) }
}

// NewPipeline creates a pipeline compiling with engine.
func NewPipeline(engine compiler.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{engine: engine, logger: slog.Default(), recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// build holds the state of one Build call.
type build struct {
	*Pipeline
	opts     Options
	ws       *workspace.Manager
	stage    string
	srcRoot  string
	dlRoot   string
	resolver importer.Resolver
	sizes    *sizereport.Reporter
}

// Build compiles every selected file into a staging directory and publishes
// it to the output directory if and only if every file compiled.
func (p *Pipeline) Build(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Include == nil {
		opts.Include = regexp.MustCompile(config.DefaultIncludeFiles)
	}
	mode := "prod"
	if opts.DevMode {
		mode = "dev"
	}
	p.logger.Info("Compiling stylesheets",
		logfields.Source(opts.BuildRoot), logfields.Output(opts.OutputRoot), logfields.Mode(mode))

	b := &build{Pipeline: p, opts: opts, ws: workspace.NewManager(opts.OutputRoot).WithLogger(p.logger)}
	if _, err := b.ws.Sweep(); err != nil {
		p.logger.Warn("Failed to sweep stale staging directories", logfields.Error(err))
	}
	if err := b.ws.Create(); err != nil {
		return nil, errors.FileSystemError("cannot create staging directory").WithCause(err).Build()
	}
	defer func() {
		if err := b.ws.Cleanup(); err != nil {
			p.logger.Warn("Failed to remove staging directory", logfields.Error(err))
		}
	}()
	b.stage = b.ws.GetPath()

	if err := b.prepareSources(); err != nil {
		return nil, err
	}
	b.loadSizes()

	files, err := b.enumerate()
	if err != nil {
		return nil, errors.FileSystemError("cannot enumerate build directory").
			WithCause(err).WithContext("build_dir", opts.BuildRoot).Build()
	}

	res := &Result{}
	compileStart := time.Now()
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fr, err := b.process(ctx, path)
		if err != nil {
			return res, err
		}
		res.Files = append(res.Files, fr)
		if fr.Err != nil {
			res.Errors++
			continue
		}
		res.Generated++
		res.Bytes += fr.Size
	}
	p.recorder.ObserveStageDuration(metrics.StageCompile, time.Since(compileStart))
	res.Duration = time.Since(start)

	if res.Errors > 0 {
		p.logger.Error("Build failed",
			logfields.Count(res.Generated), slog.Int("errors", res.Errors),
			logfields.DurationMS(float64(res.Duration.Milliseconds())))
		p.recorder.IncStageResult(metrics.StageCompile, metrics.ResultFatal)
		return res, errors.BuildError(fmt.Sprintf("%d stylesheet(s) failed to compile", res.Errors)).
			WithContext("errors", res.Errors).
			WithCause(res.Failed()[0].Err).Build()
	}
	p.recorder.IncStageResult(metrics.StageCompile, metrics.ResultSuccess)

	publishStart := time.Now()
	if err := b.publish(); err != nil {
		p.recorder.IncStageResult(metrics.StagePublish, metrics.ResultFatal)
		return res, err
	}
	p.recorder.ObserveStageDuration(metrics.StagePublish, time.Since(publishStart))
	p.recorder.IncStageResult(metrics.StagePublish, metrics.ResultSuccess)
	p.recorder.AddOutputBytes(res.Bytes)

	if b.sizes != nil {
		if err := b.sizes.Save(); err != nil {
			p.logger.Warn("Failed to save size cache", logfields.Error(err))
		}
	}

	res.Duration = time.Since(start)
	p.logger.Info("Stylesheets generated",
		logfields.Count(res.Generated), slog.Int("errors", 0),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, nil
}

// prepareSources mirrors the sources into the staging directory in dev mode
// and fixes the roots used for enumeration and import resolution.
func (b *build) prepareSources() error {
	b.srcRoot = b.opts.BuildRoot
	b.dlRoot = b.opts.DownloadRoot

	if b.opts.DevMode {
		mirror, err := b.ws.CreateSubdir(SrcMirrorDir)
		if err != nil {
			return errors.FileSystemError("cannot create staging subdirectory").WithCause(err).Build()
		}
		if err := workspace.CopyDir(b.opts.BuildRoot, mirror, b.skipOutput); err != nil {
			return errors.FileSystemError("cannot mirror build directory").
				WithCause(err).WithContext("build_dir", b.opts.BuildRoot).Build()
		}
		b.logger.Debug("Mirrored build directory", logfields.Source(b.opts.BuildRoot), logfields.Path(mirror))

		if b.dlRoot != "" {
			if rel, ok := within(b.opts.BuildRoot, b.dlRoot); ok {
				b.dlRoot = filepath.Join(mirror, rel)
			} else if info, err := os.Stat(b.dlRoot); err == nil && info.IsDir() {
				libs, err := b.ws.CreateSubdir(LibsMirrorDir)
				if err != nil {
					return errors.FileSystemError("cannot create staging subdirectory").WithCause(err).Build()
				}
				if err := workspace.CopyDir(b.dlRoot, libs, nil); err != nil {
					return errors.FileSystemError("cannot mirror download directory").
						WithCause(err).WithContext("download_dir", b.dlRoot).Build()
				}
				b.logger.Debug("Mirrored download directory", logfields.Source(b.dlRoot), logfields.Path(libs))
				b.dlRoot = libs
			}
		}
		b.srcRoot = mirror
	}

	var chain importer.Chain
	chain = append(chain, b.resolvers...)
	chain = append(chain, importer.Namespace{SrcRoot: b.srcRoot, DownloadRoot: b.dlRoot})
	b.resolver = chain
	return nil
}

func (b *build) loadSizes() {
	if b.opts.SizeCache == "" {
		return
	}
	sizes, err := sizereport.Load(b.opts.SizeCache)
	if err != nil {
		b.logger.Warn("Ignoring unreadable size cache", logfields.Path(b.opts.SizeCache), logfields.Error(err))
	}
	b.sizes = sizes
}

// skipOutput excludes the output directory and staging directories, which may
// live inside the build directory.
func (b *build) skipOutput(path string, d fs.DirEntry) bool {
	if !d.IsDir() {
		return false
	}
	if filepath.Clean(path) == filepath.Clean(b.opts.OutputRoot) {
		return true
	}
	return b.ws.IsStaging(path)
}

// enumerate lists candidate files under the source root in lexical order.
func (b *build) enumerate() ([]string, error) {
	var files []string
	err := filepath.WalkDir(b.srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == b.srcRoot {
				return nil
			}
			if b.skipOutput(path, d) || (b.dlRoot != "" && filepath.Clean(path) == filepath.Clean(b.dlRoot)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !b.opts.Include.MatchString(d.Name()) {
			return nil
		}
		if b.opts.Exclude != nil && b.opts.Exclude.MatchString(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// process compiles one file into the staging directory. A compile failure is
// reported in the FileResult; only filesystem failures return an error.
func (b *build) process(ctx context.Context, path string) (FileResult, error) {
	rel, err := filepath.Rel(b.srcRoot, path)
	if err != nil {
		return FileResult{}, errors.InternalError("source outside build root").WithCause(err).Build()
	}
	fr := FileResult{Source: filepath.ToSlash(rel)}
	cssRel := strings.TrimSuffix(rel, filepath.Ext(rel)) + ".css"
	cssPath := filepath.Join(b.stage, cssRel)
	mapPath := cssPath + ".map"

	style := compiler.StyleCompact
	if b.opts.DevMode {
		style = compiler.StyleExpanded
	}
	out, err := b.engine.Compile(ctx, compiler.Request{
		Path:      path,
		Resolver:  b.resolver,
		Style:     style,
		Precision: compiler.DefaultPrecision,
		SourceMap: b.opts.DevMode,
	})
	if stdErrors.Is(err, compiler.ErrEngineUnavailable) {
		b.recorder.IncCompileResult(false)
		return fr, errors.RuntimeError("stylesheet compiler unavailable").
			WithCause(err).WithContext("file", fr.Source).Build()
	}
	if err != nil {
		b.recorder.IncCompileResult(false)
		b.logger.Error("Compile error", logfields.File(fr.Source), logfields.Error(err))
		fr.Err = errors.CompileError("compile failed").WithCause(err).WithContext("file", fr.Source).Build()
		return fr, nil
	}
	b.recorder.IncCompileResult(true)

	css := StripSourceMapComment(out.CSS)
	css = ApplyTransforms(fr.Source, css, b.opts.Replace, b.logger)

	if b.opts.FileHashes {
		tag := hashing.Tag([]byte(css))
		cssPath = hashing.InsertTag(cssPath, tag)
		mapPath = hashing.InsertTag(mapPath, tag)
	}

	if err := os.MkdirAll(filepath.Dir(cssPath), 0o755); err != nil {
		return fr, errors.FileSystemError("cannot create output directory").WithCause(err).Build()
	}
	if b.opts.DevMode && out.SourceMap != "" {
		sm, err := RelativizeSourceMap(out.SourceMap, filepath.Dir(mapPath), filepath.Base(cssPath))
		if err != nil {
			b.logger.Warn("Keeping source map as emitted", logfields.File(fr.Source), logfields.Error(err))
			sm = out.SourceMap
		}
		if err := os.WriteFile(mapPath, []byte(sm), 0o644); err != nil {
			return fr, errors.FileSystemError("cannot write source map").WithCause(err).Build()
		}
		css = AppendSourceMapComment(css, filepath.Base(mapPath))
		fr.Map = b.published(mapPath)
	}
	if err := os.WriteFile(cssPath, []byte(css), 0o644); err != nil {
		return fr, errors.FileSystemError("cannot write stylesheet").WithCause(err).Build()
	}

	fr.Output = b.published(cssPath)
	fr.Size = len(css)
	if b.sizes != nil {
		fr.Delta = b.sizes.Record(fr.Output, fr.Size)
	} else {
		fr.Delta = sizereport.Delta{Size: fr.Size}
	}
	attrs := []any{logfields.File(fr.Source), logfields.Output(filepath.ToSlash(relOrSelf(b.stage, cssPath))), logfields.Size(fr.Delta.HumanSize())}
	if c := fr.Delta.Change(); c != "" {
		attrs = append(attrs, logfields.Change(c))
	}
	b.logger.Info("Compiled", attrs...)
	return fr, nil
}

// published maps a staging path to its location after publish.
func (b *build) published(stagePath string) string {
	return filepath.Join(b.opts.OutputRoot, relOrSelf(b.stage, stagePath))
}

func relOrSelf(base, p string) string {
	if rel, err := filepath.Rel(base, p); err == nil {
		return rel
	}
	return p
}

// within reports whether p is inside root, returning the relative path.
func within(root, p string) (string, bool) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
