// Package aggregate turns per-phrase concept records into the per-article
// concept table.
package aggregate

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// Record is one scored occurrence of a concept in an article.
type Record struct {
	ArticleID string  `json:"article_id"`
	RawPhrase string  `json:"raw_phrase"`
	Concept   string  `json:"clean_concept"`
	Relevance float64 `json:"concept_relevance"`
}

// Row is one unique (article, concept) pair of the output table.
type Row struct {
	ArticleID       string  `json:"article_id"`
	Concept         string  `json:"clean_concept"`
	AvgRelevance    float64 `json:"avg_relevance"`
	FreqPerArticle  int     `json:"concept_freq_per_art"`
	CountPerArticle int     `json:"concept_count_per_art"`
	ArticleCount    int     `json:"art_count"`
}

// Bounds limits accepted concept lengths, in characters, inclusive.
type Bounds struct {
	Min int
	Max int
}

// DefaultBounds accepts concepts of 3 to 100 characters.
func DefaultBounds() Bounds { return Bounds{Min: 3, Max: 100} }

// Stats counts records seen by an Aggregator.
type Stats struct {
	Accepted int
	Rejected int
}

type key struct {
	article string
	concept string
}

type group struct {
	sum   float64
	count int
}

// Aggregator groups records by (article, concept). It is not safe for
// concurrent use; workers build their own and Merge them.
type Aggregator struct {
	bounds Bounds
	groups map[key]*group
	stats  Stats
}

// New returns an empty Aggregator.
func New(b Bounds) *Aggregator {
	return &Aggregator{bounds: b, groups: make(map[key]*group)}
}

// Accepts reports whether concept passes the filters after trimming.
func (b Bounds) Accepts(concept string) bool {
	concept = strings.TrimSpace(concept)
	if !hasASCIILetter(concept) {
		return false
	}
	n := utf8.RuneCountInString(concept)
	return n >= b.Min && n <= b.Max
}

// Add folds r into the table. Records that fail the filters are dropped and
// Add returns false.
func (a *Aggregator) Add(r Record) bool {
	concept := strings.TrimSpace(r.Concept)
	if r.ArticleID == "" || !a.bounds.Accepts(concept) ||
		math.IsNaN(r.Relevance) || math.IsInf(r.Relevance, 0) {
		a.stats.Rejected++
		return false
	}
	k := key{article: r.ArticleID, concept: concept}
	g := a.groups[k]
	if g == nil {
		g = &group{}
		a.groups[k] = g
	}
	g.sum += r.Relevance
	g.count++
	a.stats.Accepted++
	return true
}

// AddAll adds every record and returns how many were accepted.
func (a *Aggregator) AddAll(records []Record) int {
	n := 0
	for _, r := range records {
		if a.Add(r) {
			n++
		}
	}
	return n
}

// Merge folds a partial aggregate into a. other is left unchanged.
func (a *Aggregator) Merge(other *Aggregator) {
	for k, og := range other.groups {
		g := a.groups[k]
		if g == nil {
			g = &group{}
			a.groups[k] = g
		}
		g.sum += og.sum
		g.count += og.count
	}
	a.stats.Accepted += other.stats.Accepted
	a.stats.Rejected += other.stats.Rejected
}

// Stats returns the accepted and rejected record counts.
func (a *Aggregator) Stats() Stats { return a.stats }

// Rows returns the table sorted by article, then concept.
func (a *Aggregator) Rows() []Row {
	perArticle := make(map[string]int)
	perConcept := make(map[string]int)
	for k := range a.groups {
		perArticle[k.article]++
		perConcept[k.concept]++
	}

	rows := make([]Row, 0, len(a.groups))
	for k, g := range a.groups {
		rows = append(rows, Row{
			ArticleID:       k.article,
			Concept:         k.concept,
			AvgRelevance:    g.sum / float64(g.count),
			FreqPerArticle:  g.count,
			CountPerArticle: perArticle[k.article],
			ArticleCount:    perConcept[k.concept],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ArticleID != rows[j].ArticleID {
			return rows[i].ArticleID < rows[j].ArticleID
		}
		return rows[i].Concept < rows[j].Concept
	})
	return rows
}

// Len returns the number of distinct (article, concept) pairs.
func (a *Aggregator) Len() int { return len(a.groups) }

func hasASCIILetter(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}
