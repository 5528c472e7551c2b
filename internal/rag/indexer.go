package rag

import (
	"fmt"
	"math"
	"sort"
)

// Index is a fitted TF-IDF model plus one L2-normalized row per corpus entry.
// It is immutable after BuildIndex returns.
type Index struct {
	analyzer   *Analyzer
	vocabulary map[string]int
	terms      []string
	idf        []float64
	rows       []sparseVector
}

// sparseVector stores non-zero weights sorted by feature id.
type sparseVector struct {
	dim int
	ids []int
	val []float64
}

// BuildIndex fits the vocabulary and IDF weights over corpus. Every term that
// occurs in at least one entry is kept. A nil analyzer folds accents but does
// not stem.
func BuildIndex(corpus []string, analyzer *Analyzer) (*Index, error) {
	if len(corpus) == 0 {
		return nil, fmt.Errorf("%w: cannot build an index over zero records", ErrEmptyCorpus)
	}
	if analyzer == nil {
		analyzer = &Analyzer{}
	}

	counts := make([]map[string]int, len(corpus))
	docFreq := make(map[string]int)
	for i, entry := range corpus {
		counts[i] = analyzer.termCounts(entry)
		for term := range counts[i] {
			docFreq[term]++
		}
	}

	terms := make([]string, 0, len(docFreq))
	for term := range docFreq {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(corpus))
	vocabulary := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	for id, term := range terms {
		vocabulary[term] = id
		idf[id] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}

	idx := &Index{
		analyzer:   analyzer,
		vocabulary: vocabulary,
		terms:      terms,
		idf:        idf,
		rows:       make([]sparseVector, len(corpus)),
	}
	for i := range counts {
		idx.rows[i] = idx.weigh(counts[i])
	}
	return idx, nil
}

// vectorize maps text into the index feature space without refitting.
// Terms outside the vocabulary are ignored.
func (x *Index) vectorize(text string) sparseVector {
	return x.weigh(x.analyzer.termCounts(text))
}

func (x *Index) weigh(counts map[string]int) sparseVector {
	vec := sparseVector{dim: len(x.terms)}
	for term := range counts {
		id, ok := x.vocabulary[term]
		if !ok {
			continue
		}
		vec.ids = append(vec.ids, id)
	}
	sort.Ints(vec.ids)
	vec.val = make([]float64, len(vec.ids))
	for i, id := range vec.ids {
		vec.val[i] = float64(counts[x.terms[id]]) * x.idf[id]
	}
	if norm := vec.norm(); norm > 0 {
		for i := range vec.val {
			vec.val[i] /= norm
		}
	}
	return vec
}

// Len returns the number of indexed records.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.rows)
}

// Dim returns the vocabulary size.
func (x *Index) Dim() int { return len(x.terms) }

// features returns the sorted feature names.
func (x *Index) features() []string { return append([]string(nil), x.terms...) }

// IDF returns the weight of term and whether it is in the vocabulary.
func (x *Index) IDF(term string) (float64, bool) {
	id, ok := x.vocabulary[term]
	if !ok {
		return 0, false
	}
	return x.idf[id], true
}

func (v sparseVector) norm() float64 {
	sum := 0.0
	for _, w := range v.val {
		sum += w * w
	}
	return math.Sqrt(sum)
}

func dot(a, b sparseVector) float64 {
	sum := 0.0
	i, j := 0, 0
	for i < len(a.ids) && j < len(b.ids) {
		switch {
		case a.ids[i] == b.ids[j]:
			sum += a.val[i] * b.val[j]
			i++
			j++
		case a.ids[i] < b.ids[j]:
			i++
		default:
			j++
		}
	}
	return sum
}
