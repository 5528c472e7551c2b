package rag

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/dataset"
)

const previewCSV = "name,color,notes,price\nroadster,red,fast and loud,30000\ncruiser,blue,slow,22000\nhatch,red,cheap to run,15000\n"

func previewConfig(t *testing.T) *appconfig.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cars.csv")
	if err := os.WriteFile(path, []byte(previewCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	cfg := &appconfig.Config{Dataset: path, TopK: 2}
	cfg.ApplyDefaults()
	return cfg
}

func TestRunPreviewCommandDefaultColumns(t *testing.T) {
	cfg := previewConfig(t)

	var out bytes.Buffer
	if err := RunPreviewCommand(&out, cfg, []string{"red", "car"}); err != nil {
		t.Fatalf("RunPreviewCommand error: %v", err)
	}
	text := out.String()

	for _, want := range []string{
		"[RAG] dataset: cars.csv (Loaded 3 rows × 4 cols)",
		"[RAG] head 0: name=roadster | color=red | notes=fast and loud | price=30000",
		"[RAG] head 2: name=hatch | color=red | notes=cheap to run | price=15000",
		"[RAG] text columns: name, color, notes",
		"[RAG] query terms: red (idf=1.288)",
		"[RAG] rank 1 row=",
		"[RAG] rank 2 row=",
		"ROW 0: name=roadster | color=red | notes=fast and loud",
		"ROW 2: name=hatch | color=red | notes=cheap to run",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
	if strings.Contains(text, "ROW 1:") {
		t.Fatalf("expected the blue cruiser to stay out of the context:\n%s", text)
	}
	if strings.Contains(text, "rank 3") {
		t.Fatalf("expected only topK ranks:\n%s", text)
	}
}

func TestRunPreviewCommandTruncatesHeadRows(t *testing.T) {
	cfg := previewConfig(t)
	long := strings.Repeat("x", 2*previewRowWidth)
	if err := os.WriteFile(cfg.Dataset, []byte("name,notes\nlong,"+long+"\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	var out bytes.Buffer
	if err := RunPreviewCommand(&out, cfg, []string{"long"}); err != nil {
		t.Fatalf("RunPreviewCommand error: %v", err)
	}
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "[RAG] head 0: ") {
			if !strings.HasSuffix(line, "…") || strings.Contains(line, long) {
				t.Fatalf("expected truncated head row, got %q", line)
			}
			return
		}
	}
	t.Fatalf("expected a head row in output:\n%s", out.String())
}

func TestRunPreviewCommandErrors(t *testing.T) {
	cfg := previewConfig(t)

	if err := RunPreviewCommand(new(bytes.Buffer), cfg, []string{"  "}); err == nil {
		t.Fatal("expected error for an empty query")
	}
	if err := RunPreviewCommand(new(bytes.Buffer), nil, []string{"red"}); err == nil {
		t.Fatal("expected error for a nil config")
	}

	cfg.TextColumns = []string{"mileage"}
	err := RunPreviewCommand(new(bytes.Buffer), cfg, []string{"red"})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for an unknown column, got %v", err)
	}
}

func TestSelectionResolve(t *testing.T) {
	ds, err := dataset.New("wide.csv", []string{"a", "b", "c", "d"}, [][]string{{"1", "2", "3", "4"}})
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}
	narrow, err := dataset.New("narrow.csv", []string{"a", "b"}, [][]string{{"1", "2"}})
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}

	tests := []struct {
		name string
		sel  Selection
		ds   *dataset.Dataset
		want []string
	}{
		{name: "defaults to leading columns", sel: Selection{}, ds: ds, want: []string{"a", "b", "c"}},
		{name: "fewer columns than default", sel: Selection{}, ds: narrow, want: []string{"a", "b"}},
		{name: "configured columns kept", sel: Selection{Columns: []string{"d"}}, ds: ds, want: []string{"d"}},
		{name: "nil dataset", sel: Selection{}, ds: nil, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.sel.Resolve(tc.ds).Columns
			if strings.Join(got, ",") != strings.Join(tc.want, ",") || len(got) != len(tc.want) {
				t.Fatalf("Resolve columns = %v, want %v", got, tc.want)
			}
		})
	}
}
