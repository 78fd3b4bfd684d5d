package compile

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var sourceMapComment = regexp.MustCompile(`(?m)\n?/\*# sourceMappingURL=\S+ \*/[ \t]*\n?`)

// StripSourceMapComment removes any source map reference the engine emitted.
func StripSourceMapComment(css string) string {
	return sourceMapComment.ReplaceAllString(css, "")
}

// AppendSourceMapComment references mapName at the end of css.
func AppendSourceMapComment(css, mapName string) string {
	if css != "" && !strings.HasSuffix(css, "\n") {
		css += "\n"
	}
	return css + "/*# sourceMappingURL=" + mapName + " */\n"
}

// RelativizeSourceMap rewrites the map's sources relative to mapDir and sets
// its file field to cssName.
func RelativizeSourceMap(raw, mapDir, cssName string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return "", fmt.Errorf("decode source map: %w", err)
	}
	if sources, ok := m["sources"].([]any); ok {
		for i, s := range sources {
			str, ok := s.(string)
			if !ok {
				continue
			}
			sources[i] = relativeSource(str, mapDir)
		}
	}
	m["file"] = cssName
	out, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode source map: %w", err)
	}
	return string(out), nil
}

func relativeSource(src, mapDir string) string {
	p := src
	if u, err := url.Parse(src); err == nil && u.Scheme == "file" {
		p = filepath.FromSlash(u.Path)
	}
	if !filepath.IsAbs(p) {
		return src
	}
	rel, err := filepath.Rel(mapDir, p)
	if err != nil {
		return src
	}
	return filepath.ToSlash(rel)
}
