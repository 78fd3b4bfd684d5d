// Package importer maps symbolic import paths used in style sources onto real
// filesystem locations.
package importer

import (
	"path/filepath"
	"strings"
)

// Symbolic namespace prefixes.
const (
	PrefixSrc      = "SRC/"
	PrefixDownload = "DOWNLOAD/"
	PrefixDL       = "DL/"
)

// Resolver translates an import path. ok is false when the path is not
// handled and the engine's default lookup applies.
type Resolver interface {
	Resolve(importPath string) (resolved string, ok bool)
}

// Func adapts a function to Resolver.
type Func func(importPath string) (string, bool)

func (f Func) Resolve(importPath string) (string, bool) { return f(importPath) }

// Chain tries resolvers in order; the first one that handles the path wins.
type Chain []Resolver

func (c Chain) Resolve(importPath string) (string, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if resolved, ok := r.Resolve(importPath); ok {
			return resolved, true
		}
	}
	return "", false
}

// Namespace resolves SRC/ against SrcRoot and DOWNLOAD/ or DL/ against
// DownloadRoot. It does no I/O.
type Namespace struct {
	SrcRoot      string
	DownloadRoot string
}

func (n Namespace) Resolve(importPath string) (string, bool) {
	switch {
	case strings.HasPrefix(importPath, PrefixSrc):
		return join(n.SrcRoot, importPath[len(PrefixSrc):])
	case strings.HasPrefix(importPath, PrefixDownload):
		return join(n.DownloadRoot, importPath[len(PrefixDownload):])
	case strings.HasPrefix(importPath, PrefixDL):
		return join(n.DownloadRoot, importPath[len(PrefixDL):])
	default:
		return "", false
	}
}

func join(root, rest string) (string, bool) {
	if root == "" {
		return "", false
	}
	return filepath.Join(root, filepath.FromSlash(rest)), true
}
