package semantic

import (
	"sort"

	"github.com/joseph-ayodele/timetable-extractor/internal/llm"
)

// Neighbor is one search hit.
type Neighbor struct {
	Index      int
	Similarity float64
}

// Index is a brute-force cosine index owned by a single analysis pass.
type Index struct {
	vectors [][]float32
}

func NewIndex(vectors [][]float32) *Index {
	return &Index{vectors: vectors}
}

func (x *Index) Len() int { return len(x.vectors) }

// Search returns the k entries most similar to entry i, excluding i itself, best first.
// Ties keep the lower index first.
func (x *Index) Search(i, k int) []Neighbor {
	if i < 0 || i >= len(x.vectors) || k <= 0 {
		return nil
	}
	hits := make([]Neighbor, 0, len(x.vectors)-1)
	for j, v := range x.vectors {
		if j == i {
			continue
		}
		hits = append(hits, Neighbor{Index: j, Similarity: llm.CosineSimilarity(x.vectors[i], v)})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Similarity > hits[b].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
