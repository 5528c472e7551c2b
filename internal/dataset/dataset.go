// Package dataset loads delimited tabular files into immutable in-memory records.
package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Dataset is a loaded table. Rows are never mutated after load.
type Dataset struct {
	// ID fingerprints the content so caches can tell datasets apart.
	ID      string
	Name    string
	Columns []string
	rows    [][]string
	index   map[string]int
}

// Record is one row viewed as an ordered column -> value mapping.
type Record struct {
	Index   int
	columns []string
	values  []string
}

// Load reads a CSV file with a header row.
func Load(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return Read(filepath.Base(path), bytes.NewReader(raw))
}

// Read parses CSV content from r. Short rows are padded and long rows are
// truncated to the header width.
func Read(name string, r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("dataset %s has no header row", name)
		}
		return nil, fmt.Errorf("parse dataset %s header: %w", name, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows [][]string
	line := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("parse dataset %s line %d: %w", name, line, err)
		}
		rows = append(rows, fitRow(fields, len(header)))
	}

	return New(name, header, rows)
}

// New builds a dataset from already parsed values.
func New(name string, columns []string, rows [][]string) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataset %s has no columns", name)
	}
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if _, dup := index[col]; dup {
			return nil, fmt.Errorf("dataset %s has duplicate column %q", name, col)
		}
		index[col] = i
	}
	fitted := make([][]string, len(rows))
	for i, row := range rows {
		fitted[i] = fitRow(row, len(columns))
	}
	return &Dataset{
		ID:      fingerprint(columns, fitted),
		Name:    name,
		Columns: append([]string(nil), columns...),
		rows:    fitted,
		index:   index,
	}, nil
}

func fitRow(fields []string, width int) []string {
	row := make([]string, width)
	copy(row, fields)
	return row
}

func fingerprint(columns []string, rows [][]string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(columns, "\x1f")))
	for _, row := range rows {
		h.Write([]byte{0x1e})
		h.Write([]byte(strings.Join(row, "\x1f")))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// HasColumn reports whether col is part of the header.
func (d *Dataset) HasColumn(col string) bool {
	_, ok := d.index[col]
	return ok
}

// Record returns row i. It panics when i is out of range, like a slice index.
func (d *Dataset) Record(i int) Record {
	return Record{Index: i, columns: d.Columns, values: d.rows[i]}
}

// Head returns up to n leading records.
func (d *Dataset) Head(n int) []Record {
	if n > d.Len() || n < 0 {
		n = d.Len()
	}
	out := make([]Record, n)
	for i := range out {
		out[i] = d.Record(i)
	}
	return out
}

// Summary mirrors the "Loaded N rows × M cols" banner.
func (d *Dataset) Summary() string {
	return fmt.Sprintf("Loaded %d rows × %d cols", d.Len(), len(d.Columns))
}

// Value returns the value stored under col.
func (r Record) Value(col string) (string, bool) {
	for i, c := range r.columns {
		if c == col {
			return r.values[i], true
		}
	}
	return "", false
}

// Columns returns the header in file order.
func (r Record) Columns() []string { return r.columns }

// Values returns the row values in column order.
func (r Record) Values() []string { return append([]string(nil), r.values...) }
