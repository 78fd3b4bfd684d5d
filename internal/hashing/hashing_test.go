package hashing

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMD5Hex(t *testing.T) {
	// md5("") is a well known constant.
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", MD5Hex(nil))
	assert.Len(t, MD5Hex([]byte("body { color: red }")), 32)
}

func TestTag_DeterministicAndSensitive(t *testing.T) {
	a := Tag([]byte(".a{color:red}"))
	b := Tag([]byte(".a{color:red}"))
	c := Tag([]byte(".a{color:red }"))

	assert.Len(t, a, TagLength)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestInsertTag(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"main.css", "main.abc1234.css"},
		{"main.css.map", "main.abc1234.css.map"},
		{filepath.Join("out", "theme", "site.min.css"), filepath.Join("out", "theme", "site.abc1234.min.css")},
		{"LICENSE", "LICENSE.abc1234"},
		{filepath.Join("a.b", "noext"), filepath.Join("a.b", "noext.abc1234")},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, InsertTag(tc.in, "abc1234"), tc.in)
	}
}

func TestInsertHash_UsesContentTag(t *testing.T) {
	content := []byte("p{margin:0}")
	assert.Equal(t, InsertTag("x.css", Tag(content)), InsertHash("x.css", content))
}

func TestIdentity_StableForEqualValues(t *testing.T) {
	a, err := Identity([]any{"https://example.com/a.css", nil, "vendor/a.css"})
	require.NoError(t, err)
	b, err := Identity([]any{"https://example.com/a.css", nil, "vendor/a.css"})
	require.NoError(t, err)
	c, err := Identity([]any{"https://example.com/a.css", nil, "vendor/b.css"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCheap(t *testing.T) {
	assert.Equal(t, Cheap("abc"), Cheap("abc"))
	assert.NotEqual(t, Cheap("abc"), Cheap("abd"))
}

func TestDirKey(t *testing.T) {
	dir := t.TempDir()
	k1 := DirKey(dir)
	k2 := DirKey(dir + string(filepath.Separator))

	assert.Len(t, k1, dirKeyLength)
	assert.Equal(t, k1, k2, "trailing separator must not change the key")
	assert.NotEqual(t, k1, DirKey(filepath.Join(dir, "other")))
}
