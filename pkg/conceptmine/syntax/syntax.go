// Package syntax defines the contract of the Syntactic Analyzer: tokens with
// universal POS tags, lemmas and character offsets, plus baseline noun chunks.
package syntax

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

// Universal POS tags used by the phrase extractor.
const (
	POSDet   = "DET"
	POSNoun  = "NOUN"
	POSAdp   = "ADP"
	POSAdj   = "ADJ"
	POSPron  = "PRON"
	POSPunct = "PUNCT"
)

// Token is one analyzed token. Offsets are rune offsets into the analyzed text.
type Token struct {
	Text  string `json:"text"`
	POS   string `json:"pos"`
	Lemma string `json:"lemma"`
	Start int    `json:"start_char"`
	End   int    `json:"end_char"`
}

// Span is a contiguous character range [Start, End) of a text.
type Span struct {
	Start int    `json:"start_char"`
	End   int    `json:"end_char"`
	Text  string `json:"text"`
}

// Entity is a named entity span with its label (PERSON, ORG, ...).
type Entity struct {
	Span
	Label string `json:"label"`
}

// Analysis is the analyzer output for one text.
type Analysis struct {
	Tokens     []Token  `json:"tokens"`
	NounChunks []Span   `json:"noun_chunks"`
	Entities   []Entity `json:"entities,omitempty"`
}

// Analyzer tokenizes, tags, lemmatizes and chunks text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Analysis, error)
}

// Contains reports whether s lies entirely within other.
func (s Span) Contains(other Span) bool {
	return other.Start >= s.Start && other.End <= s.End
}

// SameRange reports whether both spans cover the same characters.
func (s Span) SameRange(other Span) bool {
	return s.Start == other.Start && s.End == other.End
}

// Validate checks the analysis against text. Any violation is reported as
// internalerr.ErrAnalysis so callers can treat it as a malformed engine reply.
func (a Analysis) Validate(text string) error {
	n := utf8.RuneCountInString(text)
	prevEnd := 0
	for i, tok := range a.Tokens {
		if tok.Start < prevEnd || tok.Start >= tok.End || tok.End > n {
			return fmt.Errorf("%w: token %d has bad offsets [%d,%d) for text of %d chars",
				internalerr.ErrAnalysis, i, tok.Start, tok.End, n)
		}
		prevEnd = tok.End
	}
	for i, ch := range a.NounChunks {
		if ch.Start < 0 || ch.Start >= ch.End || ch.End > n {
			return fmt.Errorf("%w: noun chunk %d has bad offsets [%d,%d)",
				internalerr.ErrAnalysis, i, ch.Start, ch.End)
		}
	}
	for i, ent := range a.Entities {
		if ent.Start < 0 || ent.Start >= ent.End || ent.End > n {
			return fmt.Errorf("%w: entity %d has bad offsets [%d,%d)",
				internalerr.ErrAnalysis, i, ent.Start, ent.End)
		}
	}
	return nil
}

// Slice returns the text covered by [start, end) in rune offsets.
func Slice(text string, start, end int) string {
	runes := []rune(text)
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}

// TokensIn returns the tokens fully covered by span, in order.
func TokensIn(tokens []Token, span Span) []Token {
	var out []Token
	for _, tok := range tokens {
		if tok.Start >= span.End {
			break
		}
		if span.Contains(Span{Start: tok.Start, End: tok.End}) {
			out = append(out, tok)
		}
	}
	return out
}
