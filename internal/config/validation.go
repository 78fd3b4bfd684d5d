package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ValidateConfig validates cfg and compiles its file selection patterns.
func ValidateConfig(cfg *Config) error {
	return newConfigurationValidator(cfg).validate()
}

type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	if err := cv.validatePaths(); err != nil {
		return err
	}
	if err := cv.validatePatterns(); err != nil {
		return err
	}
	if err := cv.validateDownload(); err != nil {
		return err
	}
	return nil
}

func (cv *configurationValidator) validatePaths() error {
	c := cv.config
	if c.BuildDir == "" {
		return errors.New("build_dir is required")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if filepath.Clean(c.BuildDir) == filepath.Clean(c.OutputDir) {
		return fmt.Errorf("output_dir must differ from build_dir: %s", c.OutputDir)
	}
	return nil
}

func (cv *configurationValidator) validatePatterns() error {
	c := cv.config
	include, err := regexp.Compile(c.IncludeFiles)
	if err != nil {
		return fmt.Errorf("invalid include_files pattern: %w", err)
	}
	c.Include = include
	c.Exclude = nil
	if c.ExcludeFiles != "" {
		exclude, err := regexp.Compile(c.ExcludeFiles)
		if err != nil {
			return fmt.Errorf("invalid exclude_files pattern: %w", err)
		}
		c.Exclude = exclude
	}
	return nil
}

func (cv *configurationValidator) validateDownload() error {
	dl := cv.config.Download
	if dl == nil {
		return nil
	}
	if dl.Dir == "" {
		return errors.New("download.dir is required when download is configured")
	}
	if err := cv.validateDownloadDir(dl.Dir); err != nil {
		return err
	}
	if NormalizeRetryBackoff(string(dl.RetryBackoff)) == "" {
		return fmt.Errorf("invalid download.retry_backoff %q, valid options: %s",
			dl.RetryBackoff, strings.Join(RetryBackoffModes(), ", "))
	}
	for field, raw := range map[string]string{
		"retry_initial_delay": dl.RetryInitialDelay,
		"retry_max_delay":     dl.RetryMaxDelay,
		"timeout":             dl.Timeout,
		"refresh_interval":    dl.RefreshInterval,
	} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d < 0 {
			return fmt.Errorf("invalid download.%s: %q", field, raw)
		}
	}
	for i, src := range dl.Sources {
		if err := validateSource(src); err != nil {
			return fmt.Errorf("download.sources[%d]: %w", i, err)
		}
	}
	return nil
}

// validateDownloadDir rejects a download directory that holds project files:
// stale reclamation deletes everything in it that no lock entry references.
func (cv *configurationValidator) validateDownloadDir(dir string) error {
	c := cv.config
	guarded := []struct{ name, path string }{
		{"build_dir", c.BuildDir},
		{"output_dir", c.OutputDir},
		{"cache_dir", c.CacheDir},
	}
	if c.ConfigFile != "" {
		guarded = append(guarded, struct{ name, path string }{"the config file directory", filepath.Dir(c.ConfigFile)})
	}
	for _, g := range guarded {
		if g.path != "" && isWithin(dir, g.path) {
			return fmt.Errorf("download.dir %s must not contain %s (%s)", dir, g.name, g.path)
		}
	}
	return nil
}

// isWithin reports whether path equals parent or lies below it.
func isWithin(parent, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func validateSource(src Source) error {
	u, err := url.Parse(src.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q", src.URL)
	}
	if isAbsTarget(src.To) {
		return fmt.Errorf("path may not be absolute, remove the leading slash: %s", src.To)
	}
	if escapesRoot(src.To) {
		return fmt.Errorf("path escapes the download directory: %s", src.To)
	}
	if src.IsArchive() {
		for _, rule := range src.Extract {
			if rule.Skip {
				continue
			}
			if isAbsTarget(rule.Target) {
				return fmt.Errorf("extract path may not be absolute, remove the leading slash: %s", rule.Target)
			}
			if escapesRoot(rule.Target) {
				return fmt.Errorf("extract path escapes the download directory: %s", rule.Target)
			}
		}
		return nil
	}
	if !IsFilePath(src.To) {
		return fmt.Errorf("no filename found in url %q and file path not given via \"to\"", src.URL)
	}
	return nil
}

func isAbsTarget(p string) bool {
	return filepath.IsAbs(p) || strings.HasPrefix(p, "/")
}

func escapesRoot(p string) bool {
	if p == "" {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(p))
	return clean == ".." || strings.HasPrefix(clean, "../")
}
