package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadConfig(dir))
	require.NotNil(t, C)

	assert.Equal(t, 10*time.Second, C.Cache.EntityTTL)
	assert.Equal(t, 10*time.Minute, C.Cache.ImageTTL)
	assert.Equal(t, 375, C.Compression.Width)
	assert.Equal(t, 100, C.Compression.Quality)
	assert.Equal(t, "masterFinal", C.Catalog.PartitionKey)
	assert.Equal(t, 30, C.Catalog.SearchLimit)
}

func TestLoadConfigOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
database:
  driver: memory
cache:
  entityTTL: 2s
compression:
  quality: 80
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))
	require.NoError(t, LoadConfig(dir))

	assert.Equal(t, "memory", C.Database.Driver)
	assert.Equal(t, 2*time.Second, C.Cache.EntityTTL)
	assert.Equal(t, 80, C.Compression.Quality)
	// 未覆盖的字段保持默认
	assert.Equal(t, 375, C.Compression.Height)
	assert.Equal(t, "newimages", C.Blob.Containers.Images)
}
