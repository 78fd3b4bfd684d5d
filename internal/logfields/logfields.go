package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyFile       = "file"
	KeySource     = "source"
	KeyOutput     = "output"
	KeyURL        = "url"
	KeyStatus     = "status"
	KeyPattern    = "pattern"
	KeySize       = "size"
	KeyChange     = "change"
	KeyCount      = "count"
	KeyMode       = "mode"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Source(s string) slog.Attr       { return slog.String(KeySource, s) }
func Output(o string) slog.Attr       { return slog.String(KeyOutput, o) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Pattern(p string) slog.Attr      { return slog.String(KeyPattern, p) }
func Size(s string) slog.Attr         { return slog.String(KeySize, s) }
func Change(c string) slog.Attr       { return slog.String(KeyChange, c) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
