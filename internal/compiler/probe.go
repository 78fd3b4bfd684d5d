package compiler

import (
	"os"
	"path/filepath"
	"strings"
)

var styleExtensions = []string{".scss", ".sass", ".css"}

// Probe finds the file an import of base refers to, following Sass rules:
// the exact file, then partial and extension variants, then index files.
func Probe(base string) (string, bool) {
	if isFile(base) && hasStyleExt(base) {
		return base, true
	}
	dir, name := filepath.Split(base)
	var candidates []string
	if hasStyleExt(name) {
		candidates = append(candidates, filepath.Join(dir, "_"+name))
	} else {
		for _, ext := range styleExtensions {
			candidates = append(candidates,
				filepath.Join(dir, "_"+name+ext),
				filepath.Join(dir, name+ext))
		}
		for _, ext := range styleExtensions {
			candidates = append(candidates,
				filepath.Join(base, "_index"+ext),
				filepath.Join(base, "index"+ext))
		}
	}
	for _, c := range candidates {
		if isFile(c) {
			return c, true
		}
	}
	return "", false
}

// SyntaxOf reports the source syntax implied by the file extension.
func SyntaxOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sass":
		return "sass"
	case ".css":
		return "css"
	default:
		return "scss"
	}
}

func hasStyleExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range styleExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
