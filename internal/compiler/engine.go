// Package compiler defines the stylesheet compiler collaborator used by the
// build pipeline and ships a Dart Sass backed implementation.
package compiler

import (
	"context"
	"errors"
	"fmt"

	"git.home.luguber.info/inful/stylesync/internal/importer"
)

// Style is the requested CSS output style.
type Style string

const (
	StyleExpanded   Style = "expanded"
	StyleNested     Style = "nested"
	StyleCompact    Style = "compact"
	StyleCompressed Style = "compressed"
)

// DefaultPrecision is the number of decimal digits requested for numbers.
const DefaultPrecision = 10

// Request describes one compilation.
type Request struct {
	Path      string // absolute path of the entry stylesheet
	Resolver  importer.Resolver
	Style     Style
	Precision int
	SourceMap bool
	// IncludePaths are searched after the entry file's directory.
	IncludePaths []string
}

// Result is the engine output. SourceMap is empty unless requested.
type Result struct {
	CSS       string
	SourceMap string
}

// Engine compiles a single stylesheet.
type Engine interface {
	Compile(ctx context.Context, req Request) (Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req Request) (Result, error)

func (f EngineFunc) Compile(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// ErrEngineUnavailable marks failures of the engine itself (missing binary,
// crashed process) as opposed to diagnostics for a source file.
var ErrEngineUnavailable = errors.New("compiler engine unavailable")

// CompileError is a diagnostic for one source file.
type CompileError struct {
	Path    string
	Line    int // 1-based, 0 when unknown
	Column  int
	Message string
	Err     error
}

func (e *CompileError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	default:
		return e.Message
	}
}

func (e *CompileError) Unwrap() error { return e.Err }
