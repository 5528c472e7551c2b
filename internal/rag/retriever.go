package rag

import (
	"fmt"
	"sort"
)

// Retrieve ranks every indexed record against query by cosine similarity and
// returns the k best. k larger than the index returns every record; an empty
// index returns an empty result. The index is only read.
func Retrieve(index *Index, query string, k int) (RankedResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: top-k must be at least 1, got %d", ErrConfiguration, k)
	}
	if index.Len() == 0 {
		return RankedResult{}, nil
	}
	return index.rank(index.vectorize(query), k)
}

func (x *Index) rank(query sparseVector, k int) (RankedResult, error) {
	if query.dim != x.Dim() {
		return nil, fmt.Errorf("%w: query dimension %d does not match vocabulary size %d", ErrRetrieval, query.dim, x.Dim())
	}

	results := scoreRows(x.rows, query)
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func scoreRows(rows []sparseVector, query sparseVector) RankedResult {
	results := make(RankedResult, len(rows))
	queryNorm := query.norm()
	for i, row := range rows {
		results[i] = Result{Index: i, Score: cosineSimilarity(query, row, queryNorm)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

func cosineSimilarity(a, b sparseVector, normA float64) float64 {
	if normA == 0 {
		return 0
	}
	normB := b.norm()
	if normB == 0 {
		return 0
	}
	return dot(a, b) / (normA * normB)
}
