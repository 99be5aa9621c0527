// Package normalize turns raw phrases into canonical concept strings: lemma
// forms, lowercased, with stop words and punctuation removed.
package normalize

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"

	"github.com/cognicore/conceptmine/pkg/conceptmine/stoplist"
	"github.com/cognicore/conceptmine/pkg/conceptmine/syntax"
)

// Normalizer canonicalizes phrases. It is safe for concurrent use as long as
// the analyzer is.
type Normalizer struct {
	analyzer syntax.Analyzer
	stops    *stoplist.Manager
}

// New creates a normalizer. A nil stop list selects the default concept list
// (English minus "of" and "and").
func New(analyzer syntax.Analyzer, stops *stoplist.Manager) *Normalizer {
	if stops == nil {
		stops = stoplist.ForConcepts(nil, nil)
	}
	return &Normalizer{analyzer: analyzer, stops: stops}
}

// Normalize re-analyzes phrase on its own so lemmas are phrase-local, then
// joins the surviving lemmas. An empty result is valid.
func (n *Normalizer) Normalize(ctx context.Context, phrase string) (string, error) {
	if strings.TrimSpace(phrase) == "" {
		return "", nil
	}
	a, err := n.analyzer.Analyze(ctx, phrase)
	if err != nil {
		return "", fmt.Errorf("normalize %q: %w", phrase, err)
	}
	return n.NormalizeTokens(a.Tokens), nil
}

// NormalizeTokens applies the same rule to tokens taken from an existing
// analysis, avoiding a second analyzer call.
func (n *Normalizer) NormalizeTokens(tokens []syntax.Token) string {
	lemmas := make([]string, len(tokens))
	for i, tok := range tokens {
		lemmas[i] = lemmaOf(tok)
	}
	return JoinLemmas(lemmas, n.stops)
}

// JoinLemmas lowercases and trims each word, drops stop words and single
// punctuation characters, and joins the rest with one space.
func JoinLemmas(words []string, stops *stoplist.Manager) string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(strings.ToLower(norm.NFKC.String(w)))
		if w == "" || isPunct(w) {
			continue
		}
		if stops != nil && stops.IsStop(w) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// lemmaOf falls back to a Snowball stem when the analyzer gave no lemma.
func lemmaOf(tok syntax.Token) string {
	if strings.TrimSpace(tok.Lemma) != "" {
		return tok.Lemma
	}
	word := strings.ToLower(strings.TrimSpace(tok.Text))
	if word == "" || isPunct(word) {
		return word
	}
	return english.Stem(word, false)
}

func isPunct(w string) bool {
	if utf8.RuneCountInString(w) != 1 {
		return false
	}
	return strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", []rune(w)[0])
}
