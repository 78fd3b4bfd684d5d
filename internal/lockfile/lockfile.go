// Package lockfile records which files each remote source produced so that
// unchanged sources are not fetched again and files no longer produced by any
// source can be reclaimed from the download directory.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"

	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/hashing"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
)

// FileRecord is one file produced by a fetch, relative to the download root.
// It is encoded as a two element JSON array: [path, md5].
type FileRecord struct {
	Path string
	Hash string
}

// NewRecord hashes content for relPath.
func NewRecord(relPath string, content []byte) FileRecord {
	return FileRecord{Path: filepath.ToSlash(relPath), Hash: hashing.MD5Hex(content)}
}

func (r FileRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{r.Path, r.Hash})
}

func (r *FileRecord) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("lock record must be [path, hash], got %d elements", len(pair))
	}
	r.Path, r.Hash = pair[0], pair[1]
	return nil
}

// Cache is the in-memory view of the lock file. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	root    string
	path    string
	entries map[string][]FileRecord
	active  map[string]struct{}
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for reclamation messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// Load reads the lock file at path for the download directory root. A missing
// file yields an empty cache. Comments and trailing commas are tolerated.
func Load(root, path string, opts ...Option) (*Cache, error) {
	c := &Cache{
		root:    root,
		path:    path,
		entries: make(map[string][]FileRecord),
		active:  make(map[string]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &c.entries); err != nil {
		return nil, fmt.Errorf("parse lock file %s: %w", path, err)
	}
	if c.entries == nil {
		c.entries = make(map[string][]FileRecord)
	}
	return c, nil
}

// Key returns the lock identity of src.
func Key(src config.Source) string {
	id, err := hashing.Identity(src.Identity())
	if err != nil {
		return hashing.MD5Hex([]byte(fmt.Sprint(src.Identity()...)))
	}
	return id
}

// ShouldFetch reports whether src has to be downloaded: it has never been
// recorded, or one of its recorded files is missing or modified. A recorded
// source is marked active either way.
func (c *Cache) ShouldFetch(src config.Source) bool {
	k := Key(src)

	c.mu.Lock()
	records, ok := c.entries[k]
	if ok {
		c.active[k] = struct{}{}
	}
	records = append([]FileRecord(nil), records...)
	c.mu.Unlock()

	if !ok {
		return true
	}
	for _, r := range records {
		if !c.unchanged(r) {
			return true
		}
	}
	return false
}

func (c *Cache) unchanged(r FileRecord) bool {
	data, err := os.ReadFile(filepath.Join(c.root, filepath.FromSlash(r.Path)))
	if err != nil {
		return false
	}
	return hashing.MD5Hex(data) == r.Hash
}

// Record adds or overwrites the entry for relPath under src and marks src active.
func (c *Cache) Record(src config.Source, relPath string, content []byte) {
	rec := NewRecord(relPath, content)
	k := Key(src)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[k] = struct{}{}
	records := c.entries[k]
	for i := range records {
		if records[i].Path == rec.Path {
			records[i] = rec
			return
		}
	}
	c.entries[k] = append(records, rec)
}

// Commit replaces the entry for src with records from one completed fetch and
// marks src active.
func (c *Cache) Commit(src config.Source, records []FileRecord) {
	k := Key(src)
	cp := append([]FileRecord{}, records...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = cp
	c.active[k] = struct{}{}
}

// Records returns a copy of the entry for src.
func (c *Cache) Records(src config.Source) []FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FileRecord(nil), c.entries[Key(src)]...)
}

// Flush writes the active entries to the lock file. Inactive entries are dropped.
func (c *Cache) Flush() error {
	c.mu.Lock()
	out := make(map[string][]FileRecord, len(c.active))
	for k := range c.active {
		out[k] = c.entries[k]
		if out[k] == nil {
			out[k] = []FileRecord{}
		}
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock file: %w", err)
	}
	data = append(data, '\n')
	return writeAtomic(c.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create lock file directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp lock file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp lock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp lock file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp lock file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace lock file: %w", err)
	}
	return nil
}

// ReclaimStale deletes every file under the download root that no active
// entry references, then removes directories left empty. The lock file itself
// is never deleted. It returns the deleted paths relative to the root.
func (c *Cache) ReclaimStale() ([]string, error) {
	c.mu.Lock()
	keep := make(map[string]struct{})
	for k := range c.active {
		for _, r := range c.entries[k] {
			keep[r.Path] = struct{}{}
		}
	}
	c.mu.Unlock()

	lockAbs, _ := filepath.Abs(c.path)
	var deleted []string
	var dirs []string
	err := filepath.WalkDir(c.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == c.root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if p != c.root {
				dirs = append(dirs, p)
			}
			return nil
		}
		if abs, _ := filepath.Abs(p); abs == lockAbs {
			return nil
		}
		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if _, ok := keep[rel]; ok {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("delete stale file %s: %w", rel, err)
		}
		c.logger.Info("Stale file deleted", logfields.Path(rel))
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return deleted, err
	}

	// Deepest first so parents empty out before they are checked.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil || len(entries) > 0 {
			continue
		}
		_ = os.Remove(d)
	}
	return deleted, nil
}
