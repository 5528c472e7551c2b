package rag

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/dataset"
	"github.com/mwiater/csvchat/internal/util"
)

const (
	previewHeadRows = 10
	previewRowWidth = 120
)

// RunPreviewCommand is the CLI entry point for rag preview. It loads the
// configured dataset, builds the index and prints the ranked rows and the
// context block a chat turn would send, without calling a model.
func RunPreviewCommand(out io.Writer, cfg *appconfig.Config, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	status := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		log.Print(msg)
		fmt.Fprintln(out, msg)
	}

	ds, err := dataset.Load(cfg.Dataset)
	if err != nil {
		return err
	}
	sel := SelectionFromConfig(cfg).Resolve(ds)

	status("[RAG] Preview query: %s", query)
	status("[RAG] dataset: %s (%s)", ds.Name, ds.Summary())
	for _, record := range ds.Head(previewHeadRows) {
		status("[RAG] head %d: %s", record.Index, util.TruncateRunes(joinRecord(record), previewRowWidth))
	}
	status("[RAG] text columns: %s", strings.Join(sel.Columns, ", "))
	status("[RAG] max rows: %d", sel.MaxRows)
	status("[RAG] topK: %d", cfg.TopK)
	if sel.StemLanguage != "" {
		status("[RAG] stemming: %s", sel.StemLanguage)
	}
	status("[RAG] context token limit: %d", cfg.ContextTokenLimit)

	cache := NewCache()
	snap, err := cache.Ensure(ds, sel)
	if err != nil {
		return err
	}
	status("[RAG] indexed rows: %d, vocabulary: %d, build: %s", snap.Index.Len(), snap.Index.Dim(), snap.BuildTime.Truncate(time.Microsecond))

	if terms := queryTerms(snap.Index, query); len(terms) > 0 {
		status("[RAG] query terms: %s", strings.Join(terms, ", "))
	} else {
		status("[RAG] query terms: none in vocabulary")
	}

	start := time.Now()
	results, err := Retrieve(snap.Index, query, cfg.TopK)
	if err != nil {
		return err
	}
	status("[RAG] retrieval_ms: %d", time.Since(start).Milliseconds())

	for i, res := range results {
		status("[RAG] rank %d row=%d score=%.6f", i+1, res.Index, res.Score)
		status("[RAG] rank %d text: %s", i+1, snap.Corpus[res.Index])
	}

	context, tokens := FormatContext(results, ds, sel.Columns, cfg.ContextTokenLimit)
	status("[RAG] context_tokens: %d", tokens)
	if context != "" {
		status("[RAG] context:\n%s", context)
	}

	return nil
}

func joinRecord(record dataset.Record) string {
	values := record.Values()
	pairs := make([]string, len(values))
	for i, col := range record.Columns() {
		pairs[i] = col + "=" + values[i]
	}
	return strings.Join(pairs, Delimiter)
}

// queryTerms lists the query terms the index knows, with their IDF weight.
func queryTerms(index *Index, query string) []string {
	if index == nil {
		return nil
	}
	var out []string
	for term := range index.analyzer.termCounts(query) {
		if idf, ok := index.IDF(term); ok {
			out = append(out, fmt.Sprintf("%s (idf=%.3f)", term, idf))
		}
	}
	sort.Strings(out)
	return out
}
