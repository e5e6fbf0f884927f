package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrEmpty is returned when a search runs against an index with no vectors.
var ErrEmpty = errors.New("index is empty")

// Index is an in-memory exact nearest-neighbor index over L2 distance,
// loaded from a persisted vector artifact and its row-aligned metadata table.
// Immutable after construction, so concurrent searches need no locking.
type Index struct {
	dimension int
	vectors   [][]float32
	records   []Record
}

// Result is one retrieval hit: the matched record, its L2 distance from the
// query, and its insertion position in the corpus.
type Result struct {
	Record   Record
	Distance float64
	Position int
}

// New builds an Index from parallel vector and record slices.
// The slices must be the same length; positions are fixed by slice order.
func New(dimension int, vectors [][]float32, records []Record) (*Index, error) {
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("vector count %d does not match record count %d", len(vectors), len(records))
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dimension)
		}
	}
	return &Index{dimension: dimension, vectors: vectors, records: records}, nil
}

// Search returns the k records nearest to the query by L2 distance, sorted
// ascending. Ties keep corpus insertion order. If the index holds fewer than
// k vectors, all of them are returned.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}
	if len(ix.vectors) == 0 {
		return nil, ErrEmpty
	}
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", ix.dimension, len(query))
	}

	results := make([]Result, len(ix.vectors))
	for i, v := range ix.vectors {
		results[i] = Result{
			Record:   ix.records[i],
			Distance: l2Distance(query, v),
			Position: i,
		}
	}

	// Stable sort preserves insertion order for equal distances.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	return len(ix.vectors)
}

// Dimension returns the embedding dimension the index was built with.
func (ix *Index) Dimension() int {
	return ix.dimension
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
