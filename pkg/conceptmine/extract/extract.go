// Package extract derives candidate concept phrases from an analyzed text.
//
// Candidates come from the analyzer's baseline noun chunks, from a
// "noun of noun" compound pattern the chunker splits apart, and optionally
// from named entities. Candidates strictly contained in another candidate
// are dropped so only locally maximal spans survive.
package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cognicore/conceptmine/pkg/conceptmine/syntax"
)

// Provenance records which source produced a candidate.
type Provenance int

const (
	FromChunker Provenance = iota
	FromPattern
	FromEntity
)

func (p Provenance) String() string {
	switch p {
	case FromChunker:
		return "from_chunker"
	case FromPattern:
		return "from_pattern"
	case FromEntity:
		return "from_entity"
	default:
		return fmt.Sprintf("provenance(%d)", int(p))
	}
}

// TiePolicy decides what happens to candidates with identical ranges.
type TiePolicy string

const (
	// KeepAll lets every identical-range candidate survive.
	KeepAll TiePolicy = "keep_all"
	// FirstByProvenance keeps one candidate, preferring chunker over pattern
	// over entity.
	FirstByProvenance TiePolicy = "first_by_provenance"
	// FirstByDiscovery keeps the earliest discovered candidate.
	FirstByDiscovery TiePolicy = "first_by_discovery"
)

// ParseTiePolicy validates a configured policy name. Empty selects the default.
func ParseTiePolicy(s string) (TiePolicy, error) {
	switch p := TiePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FirstByDiscovery, nil
	case KeepAll, FirstByProvenance, FirstByDiscovery:
		return p, nil
	default:
		return "", fmt.Errorf("unknown tie policy %q", s)
	}
}

// DefaultEntityLabels are the entity types folded in when entities are enabled.
var DefaultEntityLabels = []string{"PERSON", "ORG", "GPE", "PRODUCT", "EVENT", "WORK_OF_ART"}

// Phrase is a surviving candidate span.
type Phrase struct {
	syntax.Span
	Provenance Provenance
	// Tokens are the document tokens covered by the span, for lemma reuse.
	Tokens []syntax.Token

	order int
}

// Options configures an Extractor.
type Options struct {
	TiePolicy       TiePolicy
	IncludeEntities bool
	EntityLabels    []string
}

// Extractor produces the maximal, non-overlapping phrase set of a document.
type Extractor struct {
	tie      TiePolicy
	entities bool
	labels   map[string]struct{}
}

// New creates an extractor.
func New(opts Options) *Extractor {
	if opts.TiePolicy == "" {
		opts.TiePolicy = FirstByDiscovery
	}
	labels := opts.EntityLabels
	if len(labels) == 0 {
		labels = DefaultEntityLabels
	}
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[strings.ToUpper(l)] = struct{}{}
	}
	return &Extractor{tie: opts.TiePolicy, entities: opts.IncludeEntities, labels: set}
}

// Extract returns the surviving phrases of text in document order.
func (e *Extractor) Extract(text string, a syntax.Analysis) []Phrase {
	if text == "" {
		return nil
	}
	candidates := e.Candidates(text, a)
	survivors := Resolve(candidates, e.tie)
	for i := range survivors {
		survivors[i].Tokens = syntax.TokensIn(a.Tokens, survivors[i].Span)
	}
	return survivors
}

// Texts is a convenience returning only the literal phrase texts.
func (e *Extractor) Texts(text string, a syntax.Analysis) []string {
	phrases := e.Extract(text, a)
	out := make([]string, len(phrases))
	for i, p := range phrases {
		out[i] = p.Text
	}
	return out
}

// Candidates collects every candidate before overlap resolution, in
// discovery order: noun chunks, pattern matches, then entities.
func (e *Extractor) Candidates(text string, a syntax.Analysis) []Phrase {
	var out []Phrase
	add := func(span syntax.Span, prov Provenance) {
		if span.Text == "" {
			span.Text = syntax.Slice(text, span.Start, span.End)
		}
		out = append(out, Phrase{Span: span, Provenance: prov, order: len(out)})
	}

	// Pronoun-headed chunks stay; the normalizer's stop words remove them.
	for _, chunk := range a.NounChunks {
		add(chunk, FromChunker)
	}
	for _, m := range MatchCompounds(a.Tokens) {
		add(syntax.Span{
			Start: a.Tokens[m.First].Start,
			End:   a.Tokens[m.Last].End,
			Text:  syntax.Slice(text, a.Tokens[m.First].Start, a.Tokens[m.Last].End),
		}, FromPattern)
	}
	if e.entities {
		for _, ent := range a.Entities {
			if _, ok := e.labels[strings.ToUpper(ent.Label)]; ok {
				add(ent.Span, FromEntity)
			}
		}
	}
	return out
}

// Resolve drops every candidate strictly contained in a candidate with a
// different range, applies the tie policy to identical ranges and returns
// the survivors sorted by position.
func Resolve(candidates []Phrase, tie TiePolicy) []Phrase {
	var survivors []Phrase
	for i, c := range candidates {
		subsumed := false
		for j, other := range candidates {
			if i == j || c.SameRange(other.Span) {
				continue
			}
			if other.Contains(c.Span) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			survivors = append(survivors, c)
		}
	}

	if tie != KeepAll {
		survivors = dedupeTies(survivors, tie)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.order < b.order
	})
	return survivors
}

func dedupeTies(phrases []Phrase, tie TiePolicy) []Phrase {
	type key struct{ start, end int }
	best := make(map[key]int, len(phrases))
	for i, p := range phrases {
		k := key{p.Start, p.End}
		j, ok := best[k]
		if !ok {
			best[k] = i
			continue
		}
		cur := phrases[j]
		switch tie {
		case FirstByProvenance:
			if p.Provenance < cur.Provenance ||
				(p.Provenance == cur.Provenance && p.order < cur.order) {
				best[k] = i
			}
		default:
			if p.order < cur.order {
				best[k] = i
			}
		}
	}
	out := make([]Phrase, 0, len(best))
	for i, p := range phrases {
		if best[key{p.Start, p.End}] == i {
			out = append(out, p)
		}
	}
	return out
}
