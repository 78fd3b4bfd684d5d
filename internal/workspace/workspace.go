package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/stylesync/internal/logfields"
)

// StagingMarker separates the target name from the timestamp in staging directory names.
const StagingMarker = ".staging-"

// Manager handles one staging directory next to a publish target.
type Manager struct {
	baseDir string
	prefix  string
	tempDir string
	logger  *slog.Logger
}

// NewManager creates a manager staging for target. The staging directory is
// created in target's parent directory.
func NewManager(target string) *Manager {
	target = filepath.Clean(target)
	return &Manager{
		baseDir: filepath.Dir(target),
		prefix:  "." + filepath.Base(target) + StagingMarker,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	if l != nil {
		m.logger = l
	}
	return m
}

// Prefix returns the name prefix shared by all staging directories of this target.
func (m *Manager) Prefix() string { return m.prefix }

// IsStaging reports whether path is (inside) a staging directory of this target.
func (m *Manager) IsStaging(path string) bool {
	rel, err := filepath.Rel(m.baseDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	return strings.HasPrefix(first, m.prefix)
}

// Sweep removes staging directories left behind by earlier runs.
func (m *Manager) Sweep() ([]string, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan for stale staging directories: %w", err)
	}
	var removed []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), m.prefix) {
			continue
		}
		p := filepath.Join(m.baseDir, e.Name())
		if p == m.tempDir {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return removed, fmt.Errorf("failed to remove stale staging directory %s: %w", p, err)
		}
		m.logger.Warn("Removed stale staging directory", logfields.Path(p))
		removed = append(removed, p)
	}
	return removed, nil
}

// Create creates a fresh staging directory.
func (m *Manager) Create() error {
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return fmt.Errorf("failed to create staging parent directory: %w", err)
	}
	timestamp := time.Now().Format("20060102-150405")
	dir, err := os.MkdirTemp(m.baseDir, m.prefix+timestamp+"-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	m.tempDir = dir
	m.logger.Debug("Created staging directory", logfields.Path(dir))
	return nil
}

// GetPath returns the path to the staging directory.
func (m *Manager) GetPath() string {
	return m.tempDir
}

// Cleanup removes the staging directory. Safe to call repeatedly.
func (m *Manager) Cleanup() error {
	if m.tempDir == "" {
		return nil
	}
	dir := m.tempDir
	m.tempDir = ""
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to cleanup staging directory: %w", err)
	}
	m.logger.Debug("Cleaned up staging directory", logfields.Path(dir))
	return nil
}

// CreateSubdir creates a subdirectory within the staging directory.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.tempDir == "" {
		return "", fmt.Errorf("staging directory not created")
	}
	subdir := filepath.Join(m.tempDir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}
	return subdir, nil
}
