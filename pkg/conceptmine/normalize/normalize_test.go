package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
	"github.com/cognicore/conceptmine/pkg/conceptmine/stoplist"
	"github.com/cognicore/conceptmine/pkg/conceptmine/syntax"
)

// lemmaAnalyzer splits on spaces and looks lemmas up in a table, defaulting
// to the word itself.
type lemmaAnalyzer struct {
	lemmas map[string]string
	calls  int
	err    error
}

func (a *lemmaAnalyzer) Analyze(_ context.Context, text string) (syntax.Analysis, error) {
	a.calls++
	if a.err != nil {
		return syntax.Analysis{}, a.err
	}
	var out syntax.Analysis
	pos := 0
	for _, w := range strings.Fields(text) {
		lemma, ok := a.lemmas[w]
		if !ok {
			lemma = w
		}
		out.Tokens = append(out.Tokens, syntax.Token{Text: w, Lemma: lemma, Start: pos, End: pos + len(w)})
		pos += len(w) + 1
	}
	return out, nil
}

func TestNormalizeKeepsConnectives(t *testing.T) {
	stops := stoplist.ForConcepts([]string{"the", "of", "and"}, nil)
	n := New(&lemmaAnalyzer{}, stops)

	got, err := n.Normalize(context.Background(), "the of and studies")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got != "of and studies" {
		t.Errorf("got %q, want %q", got, "of and studies")
	}
}

func TestNormalizeLemmatizesAndLowercases(t *testing.T) {
	a := &lemmaAnalyzer{lemmas: map[string]string{"Networks": "Network", "were": "be"}}
	n := New(a, nil)

	got, err := n.Normalize(context.Background(), "The Neural Networks , were")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got != "neural network" {
		t.Errorf("got %q, want %q", got, "neural network")
	}
	if a.calls != 1 {
		t.Errorf("expected one analyzer call, got %d", a.calls)
	}
}

func TestNormalizeEmptyResult(t *testing.T) {
	n := New(&lemmaAnalyzer{}, nil)
	for _, phrase := range []string{"", "   ", "we", "it . ,"} {
		got, err := n.Normalize(context.Background(), phrase)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", phrase, err)
		}
		if got != "" {
			t.Errorf("Normalize(%q) = %q, want empty", phrase, got)
		}
	}
}

func TestNormalizeAnalyzerFailure(t *testing.T) {
	n := New(&lemmaAnalyzer{err: internalerr.ErrAnalysis}, nil)
	if _, err := n.Normalize(context.Background(), "model"); !errors.Is(err, internalerr.ErrAnalysis) {
		t.Errorf("expected ErrAnalysis, got %v", err)
	}
}

func TestNormalizeTokensReusesLemmas(t *testing.T) {
	a := &lemmaAnalyzer{}
	n := New(a, nil)
	tokens := []syntax.Token{
		{Text: "a", Lemma: "a"},
		{Text: "model", Lemma: "model"},
		{Text: "of", Lemma: "of"},
		{Text: "estimations", Lemma: "estimation"},
	}
	if got := n.NormalizeTokens(tokens); got != "model of estimation" {
		t.Errorf("got %q", got)
	}
	if a.calls != 0 {
		t.Error("NormalizeTokens must not call the analyzer")
	}
}

func TestNormalizeTokensStemsMissingLemma(t *testing.T) {
	n := New(nil, nil)
	got := n.NormalizeTokens([]syntax.Token{{Text: "Networks"}, {Text: "."}})
	if got != "network" {
		t.Errorf("got %q, want snowball stem %q", got, "network")
	}
}

func TestJoinLemmas(t *testing.T) {
	stops := stoplist.NewManager([]string{"the"})
	got := JoinLemmas([]string{" THE ", "Field", "-", "of", "", "Study", "--"}, stops)
	if got != "field of study --" {
		t.Errorf("got %q", got)
	}
}
