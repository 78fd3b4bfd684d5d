// Package hashing provides the content digests used across stylesync: md5 identities for the
// lock file, short filename tags for cache-busting, cheap change detection for transforms and
// cache-key derivation for per-project scratch files.
package hashing

import (
	"crypto/md5" //nolint:gosec // content identity, not a security boundary
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// TagLength matches git short commit references.
const TagLength = 7

// dirKeyLength is the number of hex characters kept from the blake3 directory digest.
const dirKeyLength = 16

// MD5Hex returns the lowercase hex md5 digest of content.
func MD5Hex(content []byte) string {
	sum := md5.Sum(content) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Identity returns the md5 hex digest of the JSON encoding of v.
func Identity(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return MD5Hex(data), nil
}

// Tag returns the short content tag used in cache-busted filenames.
func Tag(content []byte) string {
	return MD5Hex(content)[:TagLength]
}

// InsertTag inserts tag into the filename of path immediately after its first dot,
// or appends it as a new suffix when the filename has no dot.
//
//	main.css      -> main.<tag>.css
//	main.css.map  -> main.<tag>.css.map
//	LICENSE       -> LICENSE.<tag>
func InsertTag(path, tag string) string {
	dir, name := filepath.Split(path)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i] + "." + tag + name[i:]
	} else {
		name = name + "." + tag
	}
	return dir + name
}

// InsertHash is InsertTag with the tag derived from content.
func InsertHash(path string, content []byte) string {
	return InsertTag(path, Tag(content))
}

// Cheap returns a fast non-cryptographic digest suitable for before/after equality checks.
func Cheap(content string) uint64 {
	return xxhash.Sum64String(content)
}

// DirKey derives a stable short key from a directory path so that per-project scratch
// files never collide. The path is made absolute and cleaned first.
func DirKey(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	sum := blake3.Sum256([]byte(filepath.Clean(dir)))
	return hex.EncodeToString(sum[:])[:dirKeyLength]
}
