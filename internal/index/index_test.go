package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = NewRecord("Recipe "+string(rune('A'+i)), "ingredients", "directions")
	}
	return records
}

func TestSearch_OrdersByDistance(t *testing.T) {
	vectors := [][]float32{
		{10, 0}, // distance 10 from origin
		{1, 0},  // distance 1
		{5, 0},  // distance 5
	}
	ix, err := New(2, vectors, testRecords(3))
	require.NoError(t, err)

	results, err := ix.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 1, results[0].Position)
	assert.Equal(t, 2, results[1].Position)
	assert.Equal(t, 0, results[2].Position)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
	assert.LessOrEqual(t, results[1].Distance, results[2].Distance)
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	// All vectors equidistant from the query.
	vectors := [][]float32{
		{1, 0},
		{0, 1},
		{-1, 0},
		{0, -1},
	}
	ix, err := New(2, vectors, testRecords(4))
	require.NoError(t, err)

	results, err := ix.Search([]float32{0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, i, r.Position, "ties must preserve corpus order")
	}
}

func TestSearch_KLargerThanIndex(t *testing.T) {
	vectors := [][]float32{{1, 0}, {2, 0}}
	ix, err := New(2, vectors, testRecords(2))
	require.NoError(t, err)

	results, err := ix.Search([]float32{0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_InvalidArguments(t *testing.T) {
	ix, err := New(2, [][]float32{{1, 0}}, testRecords(1))
	require.NoError(t, err)

	_, err = ix.Search([]float32{0, 0}, 0)
	assert.Error(t, err)

	_, err = ix.Search([]float32{0, 0, 0}, 1)
	assert.Error(t, err, "dimension mismatch must be rejected")
}

func TestSearch_EmptyIndex(t *testing.T) {
	ix, err := New(2, nil, nil)
	require.NoError(t, err)

	_, err = ix.Search([]float32{0, 0}, 1)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNew_RejectsMismatchedLengths(t *testing.T) {
	_, err := New(2, [][]float32{{1, 0}}, testRecords(2))
	assert.Error(t, err)
}

func TestDeriveText_Deterministic(t *testing.T) {
	a := DeriveText("Soup", "water, salt", "boil")
	b := DeriveText("Soup", "water, salt", "boil")
	assert.Equal(t, a, b)
	assert.Contains(t, a, "Title: Soup")
	assert.Contains(t, a, "Ingredients: water, salt")
	assert.Contains(t, a, "Instructions: boil")
}
