package watch

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/stylesync/internal/workspace"
)

// shouldIgnoreName reports editor droppings and hidden files.
func shouldIgnoreName(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, ".tmp") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db" || base == "4913" // vim write probe
}

// treeFilter decides which build directory paths can trigger a rebuild.
type treeFilter struct {
	staging  *workspace.Manager
	skipDirs []string
}

// newTreeFilter ignores the output directory, its staging siblings and the
// download directory (writes there are followed by a build anyway).
func newTreeFilter(outputDir, downloadDir string) treeFilter {
	f := treeFilter{staging: workspace.NewManager(outputDir)}
	for _, d := range []string{outputDir, downloadDir} {
		if d != "" {
			f.skipDirs = append(f.skipDirs, filepath.Clean(d))
		}
	}
	return f
}

func (f treeFilter) ignored(path string) bool {
	if shouldIgnoreName(path) || f.staging.IsStaging(path) {
		return true
	}
	path = filepath.Clean(path)
	for _, dir := range f.skipDirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
