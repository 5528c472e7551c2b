package rag

import (
	"fmt"
	"strings"

	"github.com/mwiater/csvchat/internal/dataset"
)

// Delimiter joins column values inside a corpus entry and a context line.
const Delimiter = " | "

// BuildCorpus renders the selected columns of each record as one string.
// Entry i always belongs to record i. A positive maxRows keeps only the first
// maxRows records.
func BuildCorpus(ds *dataset.Dataset, columns []string, maxRows int) ([]string, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: select at least one text column", ErrConfiguration)
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: dataset is not loaded", ErrConfiguration)
	}
	for _, col := range columns {
		if !ds.HasColumn(col) {
			return nil, fmt.Errorf("%w: column %q not found in %s", ErrConfiguration, col, ds.Name)
		}
	}

	n := ds.Len()
	if maxRows > 0 && maxRows < n {
		n = maxRows
	}

	entries := make([]string, n)
	values := make([]string, len(columns))
	for i := 0; i < n; i++ {
		record := ds.Record(i)
		for j, col := range columns {
			values[j], _ = record.Value(col)
		}
		entries[i] = strings.Join(values, Delimiter)
	}
	return entries, nil
}
