package aggregate

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRowsGroupAndCount(t *testing.T) {
	a := New(DefaultBounds())
	a.AddAll([]Record{
		{ArticleID: "A1", Concept: "neural network", Relevance: 0.6},
		{ArticleID: "A1", Concept: "neural network", Relevance: 0.8},
		{ArticleID: "A1", Concept: "deep learning", Relevance: 0.5},
		{ArticleID: "A2", Concept: "neural network", Relevance: 0.9},
	})

	want := []Row{
		{ArticleID: "A1", Concept: "deep learning", AvgRelevance: 0.5, FreqPerArticle: 1, CountPerArticle: 2, ArticleCount: 1},
		{ArticleID: "A1", Concept: "neural network", AvgRelevance: 0.7, FreqPerArticle: 2, CountPerArticle: 2, ArticleCount: 2},
		{ArticleID: "A2", Concept: "neural network", AvgRelevance: 0.9, FreqPerArticle: 1, CountPerArticle: 1, ArticleCount: 2},
	}
	got := a.Rows()
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ArticleID != w.ArticleID || g.Concept != w.Concept ||
			g.FreqPerArticle != w.FreqPerArticle || g.CountPerArticle != w.CountPerArticle ||
			g.ArticleCount != w.ArticleCount || !approx(g.AvgRelevance, w.AvgRelevance) {
			t.Errorf("row %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestFilters(t *testing.T) {
	a := New(DefaultBounds())
	cases := []struct {
		rec  Record
		keep bool
	}{
		{Record{ArticleID: "A1", Concept: "12", Relevance: 0.4}, false},
		{Record{ArticleID: "A1", Concept: "x", Relevance: 0.4}, false},
		{Record{ArticleID: "A1", Concept: "", Relevance: 0.4}, false},
		{Record{ArticleID: "A1", Concept: "2024", Relevance: 0.4}, false},
		{Record{ArticleID: "", Concept: "graph", Relevance: 0.4}, false},
		{Record{ArticleID: "A1", Concept: "graph", Relevance: math.NaN()}, false},
		{Record{ArticleID: "A1", Concept: "  3d model  ", Relevance: 0.4}, true},
		{Record{ArticleID: "A1", Concept: "über", Relevance: 0.4}, true},
	}
	for _, tc := range cases {
		if got := a.Add(tc.rec); got != tc.keep {
			t.Errorf("Add(%+v) = %v, want %v", tc.rec, got, tc.keep)
		}
	}
	if s := a.Stats(); s.Accepted != 2 || s.Rejected != 6 {
		t.Errorf("stats = %+v", s)
	}
	for _, r := range a.Rows() {
		if r.Concept == "  3d model  " {
			t.Errorf("concept not trimmed: %q", r.Concept)
		}
	}
}

func TestBoundsLengthInCharacters(t *testing.T) {
	b := Bounds{Min: 3, Max: 5}
	if !b.Accepts("ébé") {
		t.Error("3 characters with multibyte runes should be accepted")
	}
	if b.Accepts("abcdef") {
		t.Error("6 characters should exceed max 5")
	}
	if b.Accepts("ab") {
		t.Error("2 characters should be below min 3")
	}
}

func TestMergeMatchesSequential(t *testing.T) {
	records := []Record{
		{ArticleID: "A1", Concept: "graph", Relevance: 0.2},
		{ArticleID: "A2", Concept: "graph", Relevance: 0.4},
		{ArticleID: "A1", Concept: "graph", Relevance: 0.6},
		{ArticleID: "A3", Concept: "field of study", Relevance: 0.1},
	}
	seq := New(DefaultBounds())
	seq.AddAll(records)

	left, right := New(DefaultBounds()), New(DefaultBounds())
	left.AddAll(records[:2])
	right.AddAll(records[2:])
	merged := New(DefaultBounds())
	merged.Merge(right)
	merged.Merge(left)

	a, b := seq.Rows(), merged.Rows()
	if len(a) != len(b) {
		t.Fatalf("row count %d != %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ArticleID != b[i].ArticleID || a[i].Concept != b[i].Concept ||
			a[i].FreqPerArticle != b[i].FreqPerArticle || a[i].ArticleCount != b[i].ArticleCount ||
			!approx(a[i].AvgRelevance, b[i].AvgRelevance) {
			t.Errorf("row %d: sequential %+v merged %+v", i, a[i], b[i])
		}
	}
	if merged.Stats() != seq.Stats() {
		t.Errorf("stats %+v != %+v", merged.Stats(), seq.Stats())
	}
}

func TestEmpty(t *testing.T) {
	a := New(DefaultBounds())
	if rows := a.Rows(); len(rows) != 0 {
		t.Errorf("expected no rows, got %+v", rows)
	}
}
