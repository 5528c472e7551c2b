package rag

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
	"github.com/mwiater/csvchat/internal/appconfig"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenPattern keeps runs of two or more word characters.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Analyzer turns text into the unigram and bigram terms the index is built on.
// Accents are folded and text is lowercased before tokenizing, so "Cuauhtémoc"
// and "CUAUHTEMOC" produce the same term.
type Analyzer struct {
	stemLanguage string
}

// NewAnalyzer returns an analyzer. An empty stemLanguage disables stemming.
func NewAnalyzer(stemLanguage string) (*Analyzer, error) {
	lang := strings.ToLower(strings.TrimSpace(stemLanguage))
	if !appconfig.SupportedStemLanguage(lang) {
		return nil, fmt.Errorf("%w: unsupported stem language %q", ErrConfiguration, stemLanguage)
	}
	return &Analyzer{stemLanguage: lang}, nil
}

// Tokens returns the normalized single-word tokens of text.
func (a *Analyzer) Tokens(text string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(foldAccents(text)), -1)
	if a.stemLanguage == "" {
		return tokens
	}
	for i, tok := range tokens {
		if stemmed, err := snowball.Stem(tok, a.stemLanguage, true); err == nil && stemmed != "" {
			tokens[i] = stemmed
		}
	}
	return tokens
}

// Terms returns unigrams followed by space-joined bigrams.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Tokens(text)
	if len(tokens) == 0 {
		return nil
	}
	terms := make([]string, 0, 2*len(tokens)-1)
	terms = append(terms, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		terms = append(terms, tokens[i]+" "+tokens[i+1])
	}
	return terms
}

func (a *Analyzer) termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, term := range a.Terms(text) {
		counts[term]++
	}
	return counts
}

// foldAccents decomposes text and drops combining marks.
func foldAccents(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return folded
}
