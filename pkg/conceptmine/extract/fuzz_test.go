package extract

import (
	"testing"

	"github.com/cognicore/conceptmine/pkg/conceptmine/syntax"
)

// spansFromBytes decodes pairs of bytes into short spans over a 32-char text.
func spansFromBytes(data []byte) []Phrase {
	var out []Phrase
	for i := 0; i+1 < len(data); i += 2 {
		start := int(data[i] % 32)
		end := start + int(data[i+1]%8) + 1
		out = append(out, Phrase{
			Span:       syntax.Span{Start: start, End: end},
			Provenance: Provenance(len(out) % 3),
			order:      len(out),
		})
	}
	return out
}

func FuzzResolve(f *testing.F) {
	f.Add([]byte{0, 5, 2, 1})
	f.Add([]byte{4, 3, 4, 3, 4, 1})
	f.Add([]byte{})
	f.Add([]byte{31, 7, 0, 0, 10, 2, 9, 6})

	f.Fuzz(func(t *testing.T, data []byte) {
		candidates := spansFromBytes(data)
		for _, tie := range []TiePolicy{KeepAll, FirstByProvenance, FirstByDiscovery} {
			got := Resolve(candidates, tie)
			for i, a := range got {
				if i > 0 && a.Start < got[i-1].Start {
					t.Fatalf("%s: output not in document order: %+v", tie, got)
				}
				for j, b := range got {
					if i == j {
						continue
					}
					if b.Contains(a.Span) && !a.SameRange(b.Span) {
						t.Fatalf("%s: %+v strictly inside %+v", tie, a.Span, b.Span)
					}
					if tie != KeepAll && a.SameRange(b.Span) {
						t.Fatalf("%s: duplicate range %+v survived", tie, a.Span)
					}
				}
			}
			if len(candidates) > 0 && len(got) == 0 {
				t.Fatalf("%s: every candidate dropped from %+v", tie, candidates)
			}
		}
	})
}
