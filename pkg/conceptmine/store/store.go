package store

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/conceptmine/pkg/conceptmine/aggregate"
)

// Store persists finished runs and answers queries over their concept tables.
type Store interface {
	Close() error

	// Runs
	SaveRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Concept table
	Concepts(ctx context.Context, runID string, f ConceptFilter) ([]aggregate.Row, error)
	// TopConcepts returns every concept when k <= 0.
	TopConcepts(ctx context.Context, runID string, k int) ([]ConceptSummary, error)
	Failures(ctx context.Context, runID string) ([]Failure, error)
}

// Run is one execution of the pipeline over a corpus. GetRun and ListRuns
// return runs without Rows and Failures; use Concepts and Failures for those.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Articles   int
	Records    int
	Rows       []aggregate.Row
	Failures   []Failure
}

// Failure records one skipped document or phrase.
type Failure struct {
	ArticleID string
	Phrase    string
	Kind      string
	Message   string
}

// ConceptFilter narrows a Concepts query. Zero values match everything.
type ConceptFilter struct {
	ArticleID string
	Concept   string
	Limit     int
}

// ConceptSummary describes one concept across a run.
type ConceptSummary struct {
	Concept      string
	ArticleCount int
	TotalFreq    int
	AvgRelevance float64
}

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a time-ordered unique run identifier.
func NewRunID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Now(), idEntropy).String()
}

// FilterRows applies f to rows, which are expected in table order.
func FilterRows(rows []aggregate.Row, f ConceptFilter) []aggregate.Row {
	var out []aggregate.Row
	for _, r := range rows {
		if f.ArticleID != "" && r.ArticleID != f.ArticleID {
			continue
		}
		if f.Concept != "" && r.Concept != f.Concept {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// RankConcepts summarizes rows per concept, ordered by article count, then
// total frequency, then concept.
func RankConcepts(rows []aggregate.Row, k int) []ConceptSummary {
	type acc struct {
		ConceptSummary
		relSum float64
	}
	byConcept := make(map[string]*acc)
	for _, r := range rows {
		a := byConcept[r.Concept]
		if a == nil {
			a = &acc{ConceptSummary: ConceptSummary{Concept: r.Concept}}
			byConcept[r.Concept] = a
		}
		a.ArticleCount++
		a.TotalFreq += r.FreqPerArticle
		a.relSum += r.AvgRelevance
	}
	out := make([]ConceptSummary, 0, len(byConcept))
	for _, a := range byConcept {
		a.AvgRelevance = a.relSum / float64(a.ArticleCount)
		out = append(out, a.ConceptSummary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ArticleCount != out[j].ArticleCount {
			return out[i].ArticleCount > out[j].ArticleCount
		}
		if out[i].TotalFreq != out[j].TotalFreq {
			return out[i].TotalFreq > out[j].TotalFreq
		}
		return out[i].Concept < out[j].Concept
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
