package errors

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"config error", ConfigError("bad config").Build(), 2},
		{"validation error", ValidationError("bad regex").Build(), 2},
		{"sync error", SyncError("unexpected status code").Build(), 1},
		{"build error", BuildError("sass errors").Build(), 1},
		{"filesystem error", FileSystemError("publish failed").Build(), 1},
		{"unclassified error", errors.New("unknown error"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tt.err); got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	cause := errors.New("status 404")
	err := SyncError("download failed").WithCause(cause).Build()

	quiet := NewCLIErrorAdapter(false, slog.Default())
	if got := quiet.FormatError(err); got != "Error: download failed" {
		t.Errorf("unexpected non-verbose format: %q", got)
	}

	verbose := NewCLIErrorAdapter(true, slog.Default())
	if got := verbose.FormatError(err); !strings.Contains(got, "status 404") {
		t.Errorf("expected verbose format to include cause, got %q", got)
	}

	if got := quiet.FormatError(nil); got != "" {
		t.Errorf("expected empty string for nil error, got %q", got)
	}
}

func TestCLIErrorAdapter_HandleError(t *testing.T) {
	var logs, out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	adapter := NewCLIErrorAdapter(false, logger)
	adapter.out = &out

	code := adapter.HandleError(BuildError("sass errors").WithContext("errors", 2).Build())

	if code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out.String(), "sass errors") {
		t.Errorf("expected user message on output, got %q", out.String())
	}
	if !strings.Contains(logs.String(), "category=build") {
		t.Errorf("expected category attribute in logs, got %q", logs.String())
	}
}
