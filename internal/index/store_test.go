package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePair persists a valid index pair into dir and returns its paths.
func writePair(t *testing.T, dir string, vectors [][]float32, records []Record) (string, string) {
	t.Helper()
	indexPath := filepath.Join(dir, "recipes.index")
	metaPath := filepath.Join(dir, "recipes_metadata.csv")

	mw, err := NewMetadataWriter(metaPath)
	require.NoError(t, err)
	require.NoError(t, mw.Append(records))
	require.NoError(t, mw.Close())

	sum, err := MetadataChecksum(metaPath)
	require.NoError(t, err)

	w, err := NewWriter(indexPath, len(vectors[0]))
	require.NoError(t, err)
	require.NoError(t, w.Append(vectors))
	require.NoError(t, w.Finalize(sum))

	return indexPath, metaPath
}

func TestLoad_RoundTrip(t *testing.T) {
	vectors := [][]float32{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	}
	records := []Record{
		NewRecord("Tomato Soup", "tomatoes, basil", "simmer 20 minutes"),
		NewRecord("Bread", "flour, water, yeast", "bake at 220C"),
		NewRecord("Salad", "lettuce, olive oil", "toss"),
	}
	indexPath, metaPath := writePair(t, t.TempDir(), vectors, records)

	ix, err := Load(indexPath, metaPath)
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, 3, ix.Dimension())

	results, err := ix.Search([]float32{1, 2, 3}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Tomato Soup", results[0].Record.Title)
	assert.Equal(t, 0, results[0].Position)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-9)
}

func TestLoad_RefusesModifiedMetadata(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}}
	records := testRecords(2)
	indexPath, metaPath := writePair(t, t.TempDir(), vectors, records)

	// Tamper with the metadata file after the pair was published.
	f, err := os.OpenFile(metaPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("Extra,row,snuck,in\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Load(indexPath, metaPath)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestLoad_RefusesMismatchedPair(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	indexPath, _ := writePair(t, dir1, [][]float32{{1, 0}}, testRecords(1))
	_, otherMeta := writePair(t, dir2, [][]float32{{1, 0}, {0, 1}}, testRecords(2))

	_, err := Load(indexPath, otherMeta)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestLoad_RefusesUnfinalizedArtifact(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "recipes.index")
	metaPath := filepath.Join(dir, "recipes_metadata.csv")

	records := testRecords(1)
	mw, err := NewMetadataWriter(metaPath)
	require.NoError(t, err)
	require.NoError(t, mw.Append(records))
	require.NoError(t, mw.Close())

	// Writer closed without Finalize: no manifest, load must refuse.
	w, err := NewWriter(indexPath, 2)
	require.NoError(t, err)
	require.NoError(t, w.Append([][]float32{{1, 0}}))
	require.NoError(t, w.Close())

	_, err = Load(indexPath, metaPath)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestLoad_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	metaPath := filepath.Join(dir, "recipes_metadata.csv")
	mw, err := NewMetadataWriter(metaPath)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	_, err = Load(filepath.Join(dir, "missing.index"), metaPath)
	assert.Error(t, err)
}

func TestWriter_RejectsWrongDimension(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "recipes.index")
	w, err := NewWriter(indexPath, 3)
	require.NoError(t, err)
	defer w.Close()

	err = w.Append([][]float32{{1, 2}})
	assert.Error(t, err)
}

func TestMetadata_RoundTripPreservesFields(t *testing.T) {
	metaPath := filepath.Join(t.TempDir(), "meta.csv")
	records := []Record{
		NewRecord(`Pie, "Grandma's"`, "apples\nsugar", "bake"),
	}
	mw, err := NewMetadataWriter(metaPath)
	require.NoError(t, err)
	require.NoError(t, mw.Append(records))
	require.NoError(t, mw.Close())

	got, sum, err := ReadMetadata(metaPath)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, records[0], got[0])
	assert.NotEmpty(t, sum)
}
