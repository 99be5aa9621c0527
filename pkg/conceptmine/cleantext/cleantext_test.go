package cleantext

import (
	"errors"
	"testing"

	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

func TestConvert(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "We study   graphs.\n", "We study graphs."},
		{"html", "<p>Deep <i>learning</i></p><p>works&amp;scales</p>", "Deep learning works&scales"},
		{"script dropped", "<script>var x=1;</script>Text", "Text"},
		{"inline math", "Let $x^2$ be a field of study.", "Let be a field of study."},
		{"display math", "A $$\\sum_i x_i$$ sum and \\[ y \\] too.", "A sum and too."},
		{"paren math", "The rate \\(\\alpha\\) decays.", "The rate decays."},
		{"environment", "Energy \\begin{equation*}E=mc^2\\end{equation*} matters.", "Energy matters."},
		{"text command", "An \\emph{efficient} solver.", "An efficient solver."},
		{"escaped dollar", "Costs \\$5 per unit.", "Costs $5 per unit."},
		{"nfkc", "ﬁnite ﬁelds", "finite fields"},
		{"currency", "<p>The survey cost US$5 per respondent and $10 per household.</p>",
			"The survey cost US$5 per respondent and $10 per household."},
		{"lone dollar", "Budgets above $1M were excluded.", "Budgets above $1M were excluded."},
		{"math beside currency", "A $k$-means run cost $3.", "A -means run cost $3."},
		{"layout environment", "<p>We contribute: \\begin{itemize}\\item a solver \\item a benchmark\\end{itemize}</p>",
			"We contribute: a solver a benchmark"},
		{"comparison not html", "p < 0.05 holds", "p < 0.05 holds"},
	}
	for _, tc := range cases {
		got, err := Cleaner{}.Convert(tc.in)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestConvertKeepMath(t *testing.T) {
	got, err := Cleaner{KeepMath: true}.Convert("Let $x$ vary.")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got != "Let $x$ vary." {
		t.Errorf("got %q", got)
	}
}

func TestCleanFallsBackToRaw(t *testing.T) {
	raw := "An  unterminated \\(x\nformula"
	got, err := Clean(Cleaner{}, raw)
	if !errors.Is(err, internalerr.ErrUpstreamFormat) {
		t.Fatalf("expected ErrUpstreamFormat, got %v", err)
	}
	if got != "An unterminated \\(x formula" {
		t.Errorf("fallback text = %q", got)
	}

	if _, err := Clean(Cleaner{}, "\\begin{align} x"); !errors.Is(err, internalerr.ErrUpstreamFormat) {
		t.Errorf("expected ErrUpstreamFormat for dangling environment, got %v", err)
	}
}

func TestCleanEmpty(t *testing.T) {
	got, err := Clean(Cleaner{}, "")
	if err != nil || got != "" {
		t.Errorf("got %q, %v", got, err)
	}
}
