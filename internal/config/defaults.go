package config

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const (
	DefaultLockFile          = ".stylesync.lock"
	DefaultIncludeFiles      = `^[^_].+\.(?:css|sass|scss)$`
	DefaultConcurrency       = 4
	DefaultRetryInitialDelay = "1s"
	DefaultRetryMaxDelay     = "30s"
	DefaultNotifySubject     = "stylesync.builds"
)

var filePathRe = regexp.MustCompile(`\.[a-zA-Z0-9]{1,5}$`)

// IsFilePath reports whether p looks like a file (has a short extension)
// rather than a directory.
func IsFilePath(p string) bool {
	return p != "" && filePathRe.MatchString(p)
}

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// BuildDefaultApplier handles top-level build settings.
type BuildDefaultApplier struct{}

func (b *BuildDefaultApplier) Domain() string { return "build" }

func (b *BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.LockFile == "" {
		cfg.LockFile = DefaultLockFile
	}
	if cfg.IncludeFiles == "" {
		cfg.IncludeFiles = DefaultIncludeFiles
	}
	if cfg.DevMode == nil {
		dev := true
		cfg.DevMode = &dev
	}
	return nil
}

// DownloadDefaultApplier handles download settings and source normalization.
type DownloadDefaultApplier struct{}

func (d *DownloadDefaultApplier) Domain() string { return "download" }

func (d *DownloadDefaultApplier) ApplyDefaults(cfg *Config) error {
	dl := cfg.Download
	if dl == nil {
		return nil
	}
	if dl.Concurrency <= 0 {
		dl.Concurrency = DefaultConcurrency
	}
	if dl.Retries < 0 {
		dl.Retries = 0
	}
	if dl.RetryBackoff == "" {
		dl.RetryBackoff = RetryBackoffExponential
	} else if m := NormalizeRetryBackoff(string(dl.RetryBackoff)); m != "" {
		dl.RetryBackoff = m
	}
	if dl.RetryInitialDelay == "" {
		dl.RetryInitialDelay = DefaultRetryInitialDelay
	}
	if dl.RetryMaxDelay == "" {
		dl.RetryMaxDelay = DefaultRetryMaxDelay
	}
	for i := range dl.Sources {
		src := &dl.Sources[i]
		src.URL = strings.ReplaceAll(src.URL, " ", "")
		if src.IsArchive() || IsFilePath(src.To) {
			continue
		}
		if name := filenameFromURL(src.URL); name != "" {
			src.To = path.Join(src.To, name)
		}
	}
	return nil
}

// filenameFromURL returns the last path segment when it names a style file.
func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	for _, ext := range []string{".css", ".sass", ".scss"} {
		if strings.HasSuffix(name, ext) {
			return name
		}
	}
	return ""
}

// NotifyDefaultApplier fills the NATS subject when notifications are enabled.
type NotifyDefaultApplier struct{}

func (n *NotifyDefaultApplier) Domain() string { return "notify" }

func (n *NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Notify.NATSURL != "" && cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultNotifySubject
	}
	return nil
}

// CompositeDefaultApplier applies defaults across all configuration domains.
type CompositeDefaultApplier struct {
	appliers []DefaultApplier
}

// NewDefaultApplier creates a composite default applier with all domain appliers.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []DefaultApplier{
			&BuildDefaultApplier{},
			&DownloadDefaultApplier{},
			&NotifyDefaultApplier{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

// GetApplierByDomain returns a specific domain applier (useful for testing).
func (c *CompositeDefaultApplier) GetApplierByDomain(domain string) DefaultApplier {
	for _, applier := range c.appliers {
		if applier.Domain() == domain {
			return applier
		}
	}
	return nil
}
