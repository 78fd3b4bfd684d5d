package sizereport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDeltas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "size-cache.json")
	r, err := Load(path)
	require.NoError(t, err)

	d := r.Record("/out/a.css", 1000)
	assert.False(t, d.HasPrevious)
	assert.Empty(t, d.Change())
	r.Record("/out/b.css", 1000)
	r.Record("/out/c.css", 1000)
	require.NoError(t, r.Save())

	r, err = Load(path)
	require.NoError(t, err)

	grown := r.Record("/out/a.css", 1100)
	assert.True(t, grown.Changed())
	assert.Equal(t, "+10%", grown.Change())

	shrunk := r.Record("/out/b.css", 900)
	assert.Equal(t, "-10%", shrunk.Change())

	steady := r.Record("/out/c.css", 1004)
	assert.True(t, steady.HasPrevious)
	assert.False(t, steady.Changed(), "0.4%% is below the threshold")
	assert.Empty(t, steady.Change())
}

func TestSaveReplacesWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")
	r, err := Load(path)
	require.NoError(t, err)
	r.Record("/out/old.css", 10)
	require.NoError(t, r.Save())

	r, err = Load(path)
	require.NoError(t, err)
	r.Record("/out/new.css", 20)
	require.NoError(t, r.Save())

	r, err = Load(path)
	require.NoError(t, err)
	assert.False(t, r.Record("/out/old.css", 10).HasPrevious)
}

func TestLoadCorruptCacheStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))
	r, err := Load(path)
	require.Error(t, err)
	require.NotNil(t, r)
	assert.False(t, r.Record("/x", 1).HasPrevious)
}

func TestCachePath(t *testing.T) {
	dir := t.TempDir()
	a := CachePath(dir, "/proj/a/styles")
	b := CachePath(dir, "/proj/b/styles")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, CachePath(dir, "/proj/a/styles/"))
	assert.Equal(t, dir, filepath.Dir(a))
	assert.Regexp(t, `^size-cache\.[0-9a-f]{16}\.json$`, filepath.Base(a))
	assert.Contains(t, CachePath("", "/x"), "stylesync")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KiB", FormatSize(1536))
	assert.Equal(t, "0 B", FormatSize(-1))
}
