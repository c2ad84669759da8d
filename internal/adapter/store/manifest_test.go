package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/domain"
)

func TestManifest_BindAndMismatch(t *testing.T) {
	m, err := OpenManifest(filepath.Join(t.TempDir(), ManifestFile))
	require.NoError(t, err)
	defer m.Close()

	info, err := m.Info()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, info.SchemaVersion)
	assert.Empty(t, info.Model)

	require.NoError(t, m.Bind("text-embedding-3-small", false))
	require.NoError(t, m.SetCounts(3, 1536))

	err = m.Bind("nomic-embed-text", true)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.ErrorIs(t, err, domain.ErrModelMismatch)

	// an empty index may switch models
	require.NoError(t, m.Bind("nomic-embed-text", false))
	info, err = m.Info()
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", info.Model)
	assert.Equal(t, 3, info.Count)
	assert.Equal(t, 1536, info.Dimension)
	assert.False(t, info.UpdatedAt.IsZero())
}

func TestManifest_Sources(t *testing.T) {
	m, err := OpenManifest(filepath.Join(t.TempDir(), ManifestFile))
	require.NoError(t, err)
	defer m.Close()

	_, found, err := m.GetSource("docs/a.md")
	require.NoError(t, err)
	assert.False(t, found)

	mod := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.PutSource(SourceInfo{Path: "docs/a.md", ModTime: mod, Chunks: 3}))
	require.NoError(t, m.PutSource(SourceInfo{Path: "docs/b.md", ModTime: mod, Chunks: 1}))

	src, found, err := m.GetSource("docs/a.md")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, src.Chunks)
	assert.True(t, mod.Equal(src.ModTime))

	all, err := m.ListSources()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestManifest_ExclusiveLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFile)
	m, err := OpenManifest(path)
	require.NoError(t, err)
	defer m.Close()

	_, err = OpenManifest(path)
	assert.ErrorIs(t, err, ErrLocked)
}
