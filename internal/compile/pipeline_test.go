package compile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/stylesync/internal/compiler"
	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func read(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type project struct {
	dir    string
	build  string
	out    string
	libs   string
	engine *fakeEngine
}

func newProject(t *testing.T) *project {
	t.Helper()
	dir := t.TempDir()
	return &project{
		dir:    dir,
		build:  filepath.Join(dir, "styles"),
		out:    filepath.Join(dir, "public", "css"),
		libs:   filepath.Join(dir, "styles", "libs"),
		engine: &fakeEngine{},
	}
}

func (p *project) options(dev bool) Options {
	return Options{
		BuildRoot:    p.build,
		OutputRoot:   p.out,
		DownloadRoot: p.libs,
		DevMode:      dev,
		Include:      regexp.MustCompile(config.DefaultIncludeFiles),
		SizeCache:    filepath.Join(p.dir, "cache", "sizes.json"),
	}
}

func (p *project) pipeline() *Pipeline {
	return NewPipeline(p.engine, WithLogger(quietLogger()))
}

func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		out[filepath.ToSlash(rel)] = read(t, path)
		return nil
	})
	return out
}

func stagingLeftovers(t *testing.T, parent string) []string {
	t.Helper()
	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".staging-") {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestBuildProduction(t *testing.T) {
	p := newProject(t)
	write(t, p.build, "main.scss", "@import \"SRC/partials/vars\";\n.a { color: red; }\n")
	write(t, p.build, "partials/_vars.scss", ".vars { x: 1; }\n")
	write(t, p.build, "theme/dark.sass", ".dark { x: 2; }\n")
	write(t, p.build, "libs/vendor.scss", ".vendor {}\n")
	write(t, p.build, "notes.txt", "ignored")

	res, err := p.pipeline().Build(context.Background(), p.options(false))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Generated)
	assert.Zero(t, res.Errors)

	assert.Equal(t, map[string]string{
		"main.css":       ".vars { x: 1; }\n.a { color: red; }\n",
		"theme/dark.css": ".dark { x: 2; }\n",
	}, snapshot(t, p.out))

	calls := p.engine.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, compiler.StyleCompact, calls[0].Style)
	assert.Equal(t, compiler.DefaultPrecision, calls[0].Precision)
	assert.False(t, calls[0].SourceMap)
	assert.Equal(t, filepath.Join(p.build, "main.scss"), calls[0].Path)

	assert.Empty(t, stagingLeftovers(t, filepath.Dir(p.out)))
	assert.FileExists(t, filepath.Join(p.dir, "cache", "sizes.json"))
}

func TestBuildFailureLeavesOutputUntouched(t *testing.T) {
	p := newProject(t)
	write(t, p.build, "main.scss", ".a { color: red; }\n")
	write(t, p.build, "broken.scss", "@error \"nope\";\n")
	write(t, p.build, "other.scss", ".b {}\n")
	write(t, p.out, "main.css", "previous")
	write(t, p.out, "keep/old.css", "old")
	before := snapshot(t, p.out)

	opts := p.options(false)
	opts.WipeOutput = true
	res, err := p.pipeline().Build(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryBuild))
	var ce *compiler.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "nope", ce.Message)

	require.NotNil(t, res)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 2, res.Generated, "scanning continues after a failure")
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, "broken.scss", res.Failed()[0].Source)

	assert.Equal(t, before, snapshot(t, p.out))
	assert.Empty(t, stagingLeftovers(t, filepath.Dir(p.out)))
	assert.NoFileExists(t, filepath.Join(p.dir, "cache", "sizes.json"), "size cache is only saved after publish")
}

func TestBuildEngineUnavailableIsFatal(t *testing.T) {
	p := newProject(t)
	write(t, p.build, "a.scss", ".a {}\n")
	write(t, p.build, "b.scss", ".b {}\n")
	write(t, p.out, "main.css", "previous")
	before := snapshot(t, p.out)

	calls := 0
	engine := compiler.EngineFunc(func(context.Context, compiler.Request) (compiler.Result, error) {
		calls++
		return compiler.Result{}, fmt.Errorf("%w: start dart-sass: not found", compiler.ErrEngineUnavailable)
	})
	res, err := NewPipeline(engine, WithLogger(quietLogger())).Build(context.Background(), p.options(false))
	require.Error(t, err)
	assert.ErrorIs(t, err, compiler.ErrEngineUnavailable)
	assert.True(t, errors.HasCategory(err, errors.CategoryRuntime))
	assert.False(t, errors.HasCategory(err, errors.CategoryBuild))

	assert.Equal(t, 1, calls, "the build stops at the first engine failure")
	require.NotNil(t, res)
	assert.Zero(t, res.Errors)
	assert.Equal(t, before, snapshot(t, p.out))
	assert.Empty(t, stagingLeftovers(t, filepath.Dir(p.out)))
}

func TestBuildDevMode(t *testing.T) {
	p := newProject(t)
	p.libs = filepath.Join(p.dir, "downloads")
	write(t, p.build, "app/main.scss", "@import \"DL/lib/base\";\n@import \"SRC/app/colors\";\n.main {}\n")
	write(t, p.build, "app/_colors.scss", ".colors {}\n")
	write(t, p.libs, "lib/_base.scss", ".base {}\n")

	res, err := p.pipeline().Build(context.Background(), p.options(true))
	require.NoError(t, err)
	require.Len(t, res.Files, 1)

	calls := p.engine.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, compiler.StyleExpanded, calls[0].Style)
	assert.True(t, calls[0].SourceMap)

	css := read(t, filepath.Join(p.out, "app", "main.css"))
	assert.Equal(t, ".base {}\n.colors {}\n.main {}\n/*# sourceMappingURL=main.css.map */\n", css)
	assert.Equal(t, filepath.Join(p.out, "app", "main.css.map"), res.Files[0].Map)

	var sm map[string]any
	require.NoError(t, json.Unmarshal([]byte(read(t, filepath.Join(p.out, "app", "main.css.map"))), &sm))
	assert.Equal(t, []any{"../.src/app/main.scss"}, sm["sources"])
	assert.Equal(t, "main.css", sm["file"])

	assert.FileExists(t, filepath.Join(p.out, ".src", "app", "main.scss"))
	assert.FileExists(t, filepath.Join(p.out, ".libs", "lib", "_base.scss"))
}

func TestBuildDevModeDownloadsInsideBuildDir(t *testing.T) {
	p := newProject(t)
	write(t, p.build, "main.scss", "@import \"DOWNLOAD/pkg/mixins\";\n")
	write(t, p.libs, "pkg/_mixins.scss", ".mixins {}\n")

	_, err := p.pipeline().Build(context.Background(), p.options(true))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(p.out, ".src", "libs", "pkg", "_mixins.scss"))
	assert.NoDirExists(t, filepath.Join(p.out, ".libs"))
	assert.NoFileExists(t, filepath.Join(p.out, "libs", "pkg", "_mixins.css"))
}

func TestBuildOutputInsideBuildDir(t *testing.T) {
	p := newProject(t)
	p.out = filepath.Join(p.build, "dist")
	write(t, p.build, "main.scss", ".a {}\n")
	write(t, p.out, "stale.css", ".stale {}\n")

	for i := 0; i < 2; i++ {
		res, err := p.pipeline().Build(context.Background(), p.options(i == 1))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Generated, "output directory is never compiled")
	}
	assert.NoDirExists(t, filepath.Join(p.out, ".src", "dist"))
}

func TestBuildFileHashesDeterministic(t *testing.T) {
	p := newProject(t)
	write(t, p.build, "main.scss", ".a { color: red; }\n")
	opts := p.options(true)
	opts.FileHashes = true

	first, err := p.pipeline().Build(context.Background(), opts)
	require.NoError(t, err)
	second, err := p.pipeline().Build(context.Background(), opts)
	require.NoError(t, err)

	name := filepath.Base(first.Files[0].Output)
	assert.Equal(t, name, filepath.Base(second.Files[0].Output))
	assert.Regexp(t, `^main\.[0-9a-f]{7}\.css$`, name)

	mapName := filepath.Base(first.Files[0].Map)
	assert.Equal(t, strings.TrimSuffix(name, ".css")+".css.map", mapName)
	assert.Contains(t, read(t, first.Files[0].Output), "/*# sourceMappingURL="+mapName+" */")
}

func TestBuildTransformsAndWipe(t *testing.T) {
	p := newProject(t)
	write(t, p.build, "main.scss", ".a { background: url(../img/a.png); }\n")
	write(t, p.build, "other.scss", ".b { background: url(../img/b.png); }\n")
	write(t, p.out, "stale.css", "stale")

	first, err := config.NewReplacePair(`url\(\.\./(img)/`, `url(/static/\1/`)
	require.NoError(t, err)
	second, err := config.NewReplacePair(`/static/img/`, `/cdn/img/`)
	require.NoError(t, err)
	rule, err := config.NewReplaceRule(`^main\.scss$`, first, second)
	require.NoError(t, err)

	opts := p.options(false)
	opts.Replace = config.ReplaceRules{rule}
	opts.WipeOutput = true
	_, err = p.pipeline().Build(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, ".a { background: url(/cdn/img/a.png); }\n", read(t, filepath.Join(p.out, "main.css")))
	assert.Equal(t, ".b { background: url(../img/b.png); }\n", read(t, filepath.Join(p.out, "other.css")))
	assert.NoFileExists(t, filepath.Join(p.out, "stale.css"))
}

func TestBuildExcludeAndSizeDelta(t *testing.T) {
	p := newProject(t)
	write(t, p.build, "main.scss", strings.Repeat(".a {}\n", 10))
	write(t, p.build, "skip/me.scss", ".b {}\n")
	opts := p.options(false)
	opts.Exclude = regexp.MustCompile(`/skip/`)

	res, err := p.pipeline().Build(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.False(t, res.Files[0].Delta.HasPrevious)

	write(t, p.build, "main.scss", strings.Repeat(".a {}\n", 20))
	res, err = p.pipeline().Build(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "+100%", res.Files[0].Delta.Change())
	assert.Equal(t, filepath.Join(p.out, "main.css"), res.Files[0].Output)
}

func TestBuildSweepsStaleStaging(t *testing.T) {
	p := newProject(t)
	write(t, p.build, "main.scss", ".a {}\n")
	leftover := filepath.Join(filepath.Dir(p.out), ".css.staging-20200101-000000-1")
	write(t, leftover, "half.css", "x")

	_, err := p.pipeline().Build(context.Background(), p.options(false))
	require.NoError(t, err)
	assert.NoDirExists(t, leftover)
}

func TestBuildCanceled(t *testing.T) {
	p := newProject(t)
	write(t, p.build, "main.scss", ".a {}\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.pipeline().Build(ctx, p.options(false))
	require.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, p.out)
}

func TestSourceMapHelpers(t *testing.T) {
	assert.Equal(t, "a{}", StripSourceMapComment("a{}\n/*# sourceMappingURL=x.css.map */\n"))
	assert.Equal(t, "a{}\n", StripSourceMapComment("a{}\n\n/*# sourceMappingURL=x.css.map */"))
	assert.Equal(t, "a{}\n/*# sourceMappingURL=m.map */\n", AppendSourceMapComment("a{}", "m.map"))

	out, err := RelativizeSourceMap(`{"version":3,"sources":["file:///p/src/a.scss","/p/src/b.scss","rel.scss"],"mappings":""}`, "/p/out", "a.css")
	require.NoError(t, err)
	var sm map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &sm))
	assert.Equal(t, []any{"../src/a.scss", "../src/b.scss", "rel.scss"}, sm["sources"])
	assert.Equal(t, "a.css", sm["file"])

	_, err = RelativizeSourceMap("not json", "/", "a.css")
	require.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	dev := false
	cfg := &config.Config{
		BuildDir:   "/p/styles",
		OutputDir:  "/p/out",
		CacheDir:   "/p/cache",
		DevMode:    &dev,
		FileHashes: true,
		Download:   &config.DownloadConfig{Dir: "/p/libs"},
	}
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "/p/libs", opts.DownloadRoot)
	assert.False(t, opts.DevMode)
	assert.True(t, opts.FileHashes)
	assert.True(t, strings.HasPrefix(opts.SizeCache, "/p/cache/size-cache."))
}
