package compile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"git.home.luguber.info/inful/stylesync/internal/compiler"
)

// fakeEngine "compiles" by inlining `@import "x";` lines through the request
// resolver and failing on any line starting with `@error`.
type fakeEngine struct {
	mu       sync.Mutex
	requests []compiler.Request
}

func (e *fakeEngine) Compile(_ context.Context, req compiler.Request) (compiler.Result, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	css, err := e.render(req, req.Path, 0)
	if err != nil {
		return compiler.Result{}, err
	}
	res := compiler.Result{CSS: css + "\n/*# sourceMappingURL=engine.css.map */\n"}
	if req.SourceMap {
		res.SourceMap = fmt.Sprintf(`{"version":3,"sources":[%q],"mappings":"AAAA"}`, "file://"+filepath.ToSlash(req.Path))
	}
	return res, nil
}

func (e *fakeEngine) render(req compiler.Request, path string, depth int) (string, error) {
	if depth > 8 {
		return "", &compiler.CompileError{Path: path, Message: "import loop"}
	}
	f, err := os.Open(path)
	if err != nil {
		return "", &compiler.CompileError{Path: path, Message: err.Error(), Err: err}
	}
	defer func() { _ = f.Close() }()

	var out strings.Builder
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(text, "@error"):
			return "", &compiler.CompileError{Path: path, Line: line, Column: 1, Message: strings.Trim(text[len("@error"):], ` ";`)}
		case strings.HasPrefix(text, "@import"):
			target := strings.Trim(text[len("@import"):], ` ";'`)
			base := filepath.Join(filepath.Dir(path), target)
			if req.Resolver != nil {
				if resolved, ok := req.Resolver.Resolve(target); ok {
					base = resolved
				}
			}
			found, ok := compiler.Probe(base)
			if !ok {
				return "", &compiler.CompileError{Path: path, Line: line, Column: 1, Message: "can't find stylesheet to import: " + target}
			}
			inner, err := e.render(req, found, depth+1)
			if err != nil {
				return "", err
			}
			out.WriteString(inner)
		case text != "":
			out.WriteString(text)
			out.WriteString("\n")
		}
	}
	return out.String(), sc.Err()
}

func (e *fakeEngine) calls() []compiler.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]compiler.Request(nil), e.requests...)
}
