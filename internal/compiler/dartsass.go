package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"

	"git.home.luguber.info/inful/stylesync/internal/importer"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
)

// DartSassOptions configures the embedded Dart Sass process.
type DartSassOptions struct {
	// Binary is the dart-sass executable; empty searches PATH for "sass".
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// DartSass is an Engine backed by the Dart Sass embedded protocol. The
// underlying process is started on first use and shared across compilations.
type DartSass struct {
	opts DartSassOptions

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// NewDartSass returns an engine that starts dart-sass lazily.
func NewDartSass(opts DartSassOptions) *DartSass {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DartSass{opts: opts}
}

// transpilerFor returns the running transpiler, starting a new one when none
// is running or the previous process has shut down. A failed start is not
// remembered; the next compilation tries again.
func (d *DartSass) transpilerFor() (*godartsass.Transpiler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transpiler != nil && !d.transpiler.IsShutDown() {
		return d.transpiler, nil
	}
	if d.transpiler != nil {
		d.opts.Logger.Warn("dart-sass process stopped, restarting")
		_ = d.transpiler.Close()
		d.transpiler = nil
	}

	logger := d.opts.Logger
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: d.opts.Binary,
		Timeout:                  d.opts.Timeout,
		LogEventHandler: func(e godartsass.LogEvent) {
			switch e.Type {
			case godartsass.LogEventTypeDebug:
				logger.Debug("sass: " + e.Message)
			default:
				logger.Warn("sass: " + e.Message)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: start dart-sass: %w", ErrEngineUnavailable, err)
	}
	d.transpiler = t
	return t, nil
}

// Compile implements Engine. Precision is not configurable in Dart Sass and
// is ignored.
func (d *DartSass) Compile(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	transpiler, err := d.transpilerFor()
	if err != nil {
		return Result{}, err
	}
	src, err := os.ReadFile(req.Path)
	if err != nil {
		return Result{}, &CompileError{Path: req.Path, Message: "cannot read source", Err: err}
	}

	args := godartsass.Args{
		Source:          string(src),
		URL:             fileURL(req.Path),
		OutputStyle:     outputStyle(req.Style),
		SourceSyntax:    sourceSyntax(req.Path),
		IncludePaths:    append([]string{filepath.Dir(req.Path)}, req.IncludePaths...),
		EnableSourceMap: req.SourceMap,
	}
	if req.Resolver != nil {
		args.ImportResolver = resolverAdapter{resolver: req.Resolver, logger: d.opts.Logger}
	}

	res, err := transpiler.Execute(args)
	if err != nil && transpiler.IsShutDown() {
		return Result{}, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	if err != nil {
		return Result{}, &CompileError{Path: req.Path, Message: err.Error(), Err: err}
	}
	return Result{CSS: res.CSS, SourceMap: res.SourceMap}, nil
}

// Close stops the dart-sass process if it was started.
func (d *DartSass) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transpiler == nil {
		return nil
	}
	err := d.transpiler.Close()
	d.transpiler = nil
	return err
}

func outputStyle(s Style) godartsass.OutputStyle {
	switch s {
	case StyleCompact, StyleCompressed:
		return godartsass.OutputStyleCompressed
	default:
		return godartsass.OutputStyleExpanded
	}
}

func sourceSyntax(path string) godartsass.SourceSyntax {
	switch SyntaxOf(path) {
	case "sass":
		return godartsass.SourceSyntaxSASS
	case "css":
		return godartsass.SourceSyntaxCSS
	default:
		return godartsass.SourceSyntaxSCSS
	}
}

func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func filePath(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return raw
}

// resolverAdapter bridges importer.Resolver to the Dart Sass importer API.
type resolverAdapter struct {
	resolver importer.Resolver
	logger   *slog.Logger
}

// CanonicalizeURL maps symbolic imports through the resolver. Relative loads
// from stylesheets this importer loaded arrive as absolute file: URLs and are
// probed next to the importing file.
func (r resolverAdapter) CanonicalizeURL(raw string) (string, error) {
	if strings.HasPrefix(raw, "file:") {
		found, ok := Probe(filePath(raw))
		if !ok {
			return "", nil
		}
		return fileURL(found), nil
	}
	resolved, ok := r.resolver.Resolve(raw)
	if !ok {
		return "", nil
	}
	found, ok := Probe(resolved)
	if !ok {
		return "", fmt.Errorf("import %q resolved to %s but no stylesheet exists there", raw, resolved)
	}
	r.logger.Debug("Import resolved", logfields.Source(raw), logfields.Path(found))
	return fileURL(found), nil
}

func (r resolverAdapter) Load(canonicalizedURL string) (godartsass.Import, error) {
	path := filePath(canonicalizedURL)
	data, err := os.ReadFile(path)
	if err != nil {
		return godartsass.Import{}, err
	}
	return godartsass.Import{Content: string(data), SourceSyntax: sourceSyntax(path)}, nil
}
