package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadEmptyDirectory(t *testing.T) {
	t.Parallel()

	l, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.False(t, l.IsProcessed(KindSpecies, "Iris sibirica"))
	assert.Zero(t, l.Count(KindSpecies))
	assert.Zero(t, l.Count(KindFiles))
}

func TestLoadRequiresDirectory(t *testing.T) {
	t.Parallel()

	_, err := Load("")
	require.Error(t, err)
}

func TestMarkProcessedPersistsImmediately(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	l, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, l.MarkProcessed(KindSpecies, "Iris sibirica"))
	assert.True(t, l.IsProcessed(KindSpecies, "Iris sibirica"))

	// The file must already reflect the change, not wait for a final flush
	data, err := os.ReadFile(filepath.Join(dir, "processed_species.yaml"))
	require.NoError(t, err)

	var names []string
	require.NoError(t, yaml.Unmarshal(data, &names))
	assert.Equal(t, []string{"Iris sibirica"}, names)
}

func TestRoundTripIgnoresInsertionOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	l, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessed(KindGenera, "Rosa"))
	require.NoError(t, l.MarkProcessed(KindGenera, "Iris"))
	require.NoError(t, l.MarkProcessed(KindGenera, "Crocus"))

	reloaded, err := Load(dir)
	require.NoError(t, err)

	for _, name := range []string{"Rosa", "Iris", "Crocus"} {
		assert.True(t, reloaded.IsProcessed(KindGenera, name), name)
	}
	assert.Equal(t, 3, reloaded.Count(KindGenera))

	// Persisted form is sorted regardless of insertion order
	data, err := os.ReadFile(filepath.Join(dir, "processed_genera.yaml"))
	require.NoError(t, err)
	var names []string
	require.NoError(t, yaml.Unmarshal(data, &names))
	assert.Equal(t, []string{"Crocus", "Iris", "Rosa"}, names)
}

func TestKindsAreIndependent(t *testing.T) {
	t.Parallel()

	l, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessed(KindSpecies, "Iris sibirica"))

	assert.False(t, l.IsProcessed(KindGenera, "Iris sibirica"))
	assert.False(t, l.IsProcessed(KindFiles, "Iris sibirica"))
}

func TestMarkProcessedTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	l, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessed(KindFiles, "File:Iris sibirica.jpg"))
	require.NoError(t, l.MarkProcessed(KindFiles, "File:Iris sibirica.jpg"))

	assert.Equal(t, 1, l.Count(KindFiles))
}

func TestMarkProcessedUnknownKind(t *testing.T) {
	t.Parallel()

	l, err := Load(t.TempDir())
	require.NoError(t, err)

	err = l.MarkProcessed(Kind("orders"), "Asparagales")
	require.Error(t, err)
}

func TestCorruptLedgerFileLoadsAsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "processed_species.yaml")
	require.NoError(t, os.WriteFile(corrupt, []byte("{unbalanced: [yaml"), 0o644))

	l, err := Load(dir)
	require.NoError(t, err)
	assert.Zero(t, l.Count(KindSpecies))

	// A corrupt file must not poison new marks
	require.NoError(t, l.MarkProcessed(KindSpecies, "Iris sibirica"))
	assert.True(t, l.IsProcessed(KindSpecies, "Iris sibirica"))
}

func TestNoLeftoverTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	l, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessed(KindFamilies, "Iridaceae"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), "ledger-", "temp file left behind: %s", entry.Name())
	}
}
