package rag

import (
	"fmt"
	"strings"

	"github.com/mwiater/csvchat/internal/dataset"
)

// DefaultInstruction asks the model to stay inside the supplied rows. Nothing
// enforces it: the model can still invent content that is not in the context.
const DefaultInstruction = "You are a helpful assistant. Answer ONLY using the provided CSV CONTEXT rows. " +
	"If the answer is not in the context, say you cannot find it."

// FormatContext renders retrieved records as "ROW <i>: col=val | col=val"
// lines in rank order and returns the block plus its word count. A positive
// maxTokens truncates the block at that many words.
func FormatContext(results RankedResult, ds *dataset.Dataset, columns []string, maxTokens int) (string, int) {
	if len(results) == 0 || ds == nil {
		return "", 0
	}
	if maxTokens < 0 {
		maxTokens = 0
	}

	var b strings.Builder
	contextTokens := 0
	remaining := maxTokens

	for _, res := range results {
		if res.Index < 0 || res.Index >= ds.Len() {
			continue
		}
		line := formatRow(ds.Record(res.Index), columns)

		if maxTokens > 0 {
			if remaining <= 0 {
				break
			}
			if tokens := estimateTokens(line); tokens > remaining {
				line = truncateToTokens(line, remaining)
			}
		}

		usedTokens := estimateTokens(line)
		if usedTokens == 0 {
			continue
		}

		b.WriteString(line)
		b.WriteByte('\n')
		contextTokens += usedTokens
		if maxTokens > 0 {
			remaining -= usedTokens
		}
	}

	return strings.TrimRight(b.String(), "\n"), contextTokens
}

// formatRow numbers lines by record index so a "ROW n" cited in an answer
// matches the rows listed next to it.
func formatRow(record dataset.Record, columns []string) string {
	pairs := make([]string, 0, len(columns))
	for _, col := range columns {
		value, _ := record.Value(col)
		pairs = append(pairs, col+"="+value)
	}
	return fmt.Sprintf("ROW %d: %s", record.Index, strings.Join(pairs, Delimiter))
}

// BuildPrompt places the instruction, question and context into the fixed
// template the model is prompted with.
func BuildPrompt(instruction, question, context string) string {
	return fmt.Sprintf("%s\n\nQUESTION:\n%s\n\nCONTEXT (CSV rows):\n%s\n\nANSWER:", instruction, question, context)
}

func estimateTokens(text string) int {
	return len(strings.Fields(text))
}

func truncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	parts := strings.Fields(text)
	if len(parts) <= maxTokens {
		return text
	}
	return strings.Join(parts[:maxTokens], " ")
}
