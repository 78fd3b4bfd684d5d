package config

import (
	"regexp"
	"time"
)

// DefaultFileName is looked up when the configured path is a directory.
const DefaultFileName = "stylesync.yml"

// Config is the complete stylesync configuration.
type Config struct {
	Version       string          `yaml:"version,omitempty"`
	Download      *DownloadConfig `yaml:"download,omitempty"`
	BuildDir      string          `yaml:"build_dir"`
	OutputDir     string          `yaml:"output_dir"`
	LockFile      string          `yaml:"lock_file,omitempty"`
	CacheDir      string          `yaml:"cache_dir,omitempty"` // size cache store; empty selects the user cache dir
	WipeOutputDir bool            `yaml:"wipe_output_dir,omitempty"`
	IncludeFiles  string          `yaml:"include_files,omitempty"`
	ExcludeFiles  string          `yaml:"exclude_files,omitempty"`
	Replace       ReplaceRules    `yaml:"replace,omitempty"`
	FileHashes    bool            `yaml:"file_hashes,omitempty"`
	DevMode       *bool           `yaml:"dev_mode,omitempty"`
	History       HistoryConfig   `yaml:"history,omitempty"`
	Notify        NotifyConfig    `yaml:"notify,omitempty"`

	// ConfigFile is the absolute path the configuration was loaded from.
	ConfigFile string `yaml:"-"`
	// Include and Exclude are compiled from IncludeFiles and ExcludeFiles during validation.
	Include *regexp.Regexp `yaml:"-"`
	Exclude *regexp.Regexp `yaml:"-"`
}

// DownloadConfig describes the remote sources and where they are cached.
type DownloadConfig struct {
	Dir               string           `yaml:"dir"`
	Concurrency       int              `yaml:"concurrency,omitempty"`
	Retries           int              `yaml:"retries,omitempty"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryInitialDelay string           `yaml:"retry_initial_delay,omitempty"`
	RetryMaxDelay     string           `yaml:"retry_max_delay,omitempty"`
	Timeout           string           `yaml:"timeout,omitempty"`          // per request; empty means none
	RefreshInterval   string           `yaml:"refresh_interval,omitempty"` // watch mode periodic re-sync
	Sources           []Source         `yaml:"sources"`
}

// Source is one remote file or archive.
type Source struct {
	URL string `yaml:"url"`
	// Extract is nil for single files. When set the body is treated as a zip archive.
	Extract ExtractRules `yaml:"extract,omitempty"`
	To      string       `yaml:"to,omitempty"`
}

// IsArchive reports whether the source body is a zip archive to extract.
func (s Source) IsArchive() bool { return s.Extract != nil }

// HistoryConfig enables the SQLite run history.
type HistoryConfig struct {
	Database string `yaml:"database,omitempty"`
}

// NotifyConfig enables NATS build notifications.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// IsDevMode reports the configured build mode (development unless disabled).
func (c *Config) IsDevMode() bool {
	return c.DevMode == nil || *c.DevMode
}

// Sources returns the configured sources, or nil when downloads are not configured.
func (c *Config) Sources() []Source {
	if c.Download == nil {
		return nil
	}
	return c.Download.Sources
}

// DownloadDir returns the download root, or "" when downloads are not configured.
func (c *Config) DownloadDir() string {
	if c.Download == nil {
		return ""
	}
	return c.Download.Dir
}

// TimeoutDuration parses Timeout; zero means no timeout.
func (d *DownloadConfig) TimeoutDuration() time.Duration {
	return parseDurationOrZero(d.Timeout)
}

// RefreshDuration parses RefreshInterval; zero disables periodic refresh.
func (d *DownloadConfig) RefreshDuration() time.Duration {
	return parseDurationOrZero(d.RefreshInterval)
}

func parseDurationOrZero(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

// Identity is the value hashed into the lock-file key for this source.
func (s Source) Identity() []any {
	return []any{s.URL, s.Extract.identity(), s.To}
}
