// Package sizereport tracks generated file sizes between builds and reports
// significant changes.
package sizereport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"git.home.luguber.info/inful/stylesync/internal/hashing"
)

// Threshold is the absolute percentage change below which a size counts as unchanged.
const Threshold = 0.5

// Delta describes the size of one generated file relative to the previous build.
type Delta struct {
	Size        int
	Previous    int
	HasPrevious bool
	Percent     float64
}

// Changed reports whether the change exceeds Threshold.
func (d Delta) Changed() bool {
	return d.HasPrevious && math.Abs(d.Percent) > Threshold
}

// Change renders the signed percentage, or "" when unchanged.
func (d Delta) Change() string {
	if !d.Changed() {
		return ""
	}
	return fmt.Sprintf("%+.0f%%", d.Percent)
}

// HumanSize renders Size for logs.
func (d Delta) HumanSize() string {
	return FormatSize(d.Size)
}

// FormatSize renders a byte count for logs.
func FormatSize(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// DefaultCacheDir returns the per-user cache directory for stylesync.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "stylesync")
	}
	return filepath.Join(os.TempDir(), "stylesync")
}

// CachePath returns the size cache file for buildDir under cacheDir. An empty
// cacheDir selects DefaultCacheDir.
func CachePath(cacheDir, buildDir string) string {
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}
	return filepath.Join(cacheDir, "size-cache."+hashing.DirKey(buildDir)+".json")
}

// Reporter compares this build's sizes to the previous one's.
type Reporter struct {
	mu       sync.Mutex
	path     string
	previous map[string]int
	current  map[string]int
}

// Load reads the cache at path. A missing or unreadable cache starts empty.
func Load(path string) (*Reporter, error) {
	r := &Reporter{path: path, previous: map[string]int{}, current: map[string]int{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return r, fmt.Errorf("read size cache: %w", err)
	}
	if err := json.Unmarshal(data, &r.previous); err != nil {
		r.previous = map[string]int{}
		return r, fmt.Errorf("parse size cache %s: %w", path, err)
	}
	return r, nil
}

// Record stores size for path in this build's cache and returns the delta.
func (r *Reporter) Record(path string, size int) Delta {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current[path] = size
	d := Delta{Size: size}
	if old, ok := r.previous[path]; ok && old > 0 {
		d.Previous = old
		d.HasPrevious = true
		d.Percent = float64(size-old) / float64(old) * 100
	}
	return d
}

// Save replaces the cache file with this build's entries.
func (r *Reporter) Save() error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r.current, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create size cache directory: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write size cache: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace size cache: %w", err)
	}
	return nil
}

// Path returns the cache file location.
func (r *Reporter) Path() string { return r.path }
