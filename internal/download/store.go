package download

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/lockfile"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
)

// store writes a fetched body and returns the records it produced.
func (m *Manager) store(src config.Source, body []byte) ([]lockfile.FileRecord, error) {
	if !src.IsArchive() {
		target := path.Clean(filepath.ToSlash(src.To))
		if err := m.save(target, body); err != nil {
			return nil, err
		}
		return []lockfile.FileRecord{lockfile.NewRecord(target, body)}, nil
	}
	return m.extract(src, body)
}

func (m *Manager) extract(src config.Source, body []byte) ([]lockfile.FileRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open zip archive from %s: %w", src.URL, err)
	}
	m.logger.Debug("Zip archive opened", logfields.URL(src.URL), logfields.Count(len(zr.File)))

	var records []lockfile.FileRecord
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		target, ok := ResolveTarget(src.Extract, f.Name)
		if !ok {
			m.logger.Debug("Archive entry skipped", logfields.URL(src.URL), logfields.File(f.Name))
			continue
		}
		content, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read %s from %s: %w", f.Name, src.URL, err)
		}
		m.logger.Debug("Archive entry extracted", logfields.File(f.Name), logfields.Output(target))
		if err := m.save(target, content); err != nil {
			return nil, err
		}
		records = append(records, lockfile.NewRecord(target, content))
	}
	return records, nil
}

// ResolveTarget maps an archive entry name to its path under the download
// root. ok is false when no rule matches or the matching rule skips the entry.
// A directory target (no file extension) receives the "filename" capture group,
// else the last capture group, else the entry's base name.
func ResolveTarget(rules config.ExtractRules, name string) (string, bool) {
	rule, m := rules.Match(name)
	if rule == nil || rule.Skip {
		return "", false
	}
	if config.IsFilePath(rule.Target) {
		return path.Clean(filepath.ToSlash(rule.Target)), true
	}
	fileName := ""
	if idx := rule.Pattern.SubexpIndex("filename"); idx > 0 && m[idx] != "" {
		fileName = m[idx]
	} else if len(m) > 1 && m[len(m)-1] != "" {
		fileName = m[len(m)-1]
	} else {
		fileName = path.Base(name)
	}
	return path.Join(rule.Target, fileName), true
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func (m *Manager) save(rel string, content []byte) error {
	p, err := m.within(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// within joins rel onto the download root and rejects paths escaping it.
func (m *Manager) within(rel string) (string, error) {
	root := filepath.Clean(m.opts.Root)
	p := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, p)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("target %q escapes the download directory", rel)
	}
	return p, nil
}
