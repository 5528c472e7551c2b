// Package rag builds a TF-IDF index over tabular records and retrieves the
// records most relevant to a question.
package rag

import (
	"errors"
	"strings"

	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/dataset"
)

// DefaultColumnCount is how many leading columns are indexed when no text
// columns are configured.
const DefaultColumnCount = 3

var (
	// ErrConfiguration means the column selection or a retrieval knob is unusable.
	ErrConfiguration = errors.New("rag configuration error")
	// ErrEmptyCorpus means an index build was attempted over zero records.
	ErrEmptyCorpus = errors.New("rag corpus is empty")
	// ErrRetrieval means a query vector did not match the index feature space.
	ErrRetrieval = errors.New("rag retrieval invariant violated")
)

// Result is a record index plus its cosine similarity to the query.
type Result struct {
	Index int
	Score float64
}

// RankedResult is ordered by descending score; equal scores keep record order.
type RankedResult []Result

// Indices returns the record indices in rank order.
func (r RankedResult) Indices() []int {
	out := make([]int, len(r))
	for i, res := range r {
		out[i] = res.Index
	}
	return out
}

// Selection is the part of the configuration an index depends on.
type Selection struct {
	Columns      []string
	MaxRows      int
	StemLanguage string
}

// SelectionFromConfig extracts the index-relevant settings from cfg.
func SelectionFromConfig(cfg *appconfig.Config) Selection {
	return Selection{
		Columns:      append([]string(nil), cfg.TextColumns...),
		MaxRows:      cfg.MaxRows,
		StemLanguage: strings.ToLower(strings.TrimSpace(cfg.StemLanguage)),
	}
}

// Resolve returns s with the first DefaultColumnCount columns of ds filled in
// when s names no columns.
func (s Selection) Resolve(ds *dataset.Dataset) Selection {
	if len(s.Columns) > 0 || ds == nil {
		return s
	}
	n := min(DefaultColumnCount, len(ds.Columns))
	s.Columns = append([]string(nil), ds.Columns[:n]...)
	return s
}
