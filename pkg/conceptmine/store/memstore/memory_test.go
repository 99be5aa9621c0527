package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cognicore/conceptmine/pkg/conceptmine/aggregate"
	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
	"github.com/cognicore/conceptmine/pkg/conceptmine/store"
)

func sampleRun(id string, started time.Time) store.Run {
	return store.Run{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Articles:   2,
		Records:    4,
		Rows: []aggregate.Row{
			{ArticleID: "A2", Concept: "neural network", AvgRelevance: 0.9, FreqPerArticle: 1, CountPerArticle: 1, ArticleCount: 2},
			{ArticleID: "A1", Concept: "neural network", AvgRelevance: 0.7, FreqPerArticle: 2, CountPerArticle: 2, ArticleCount: 2},
			{ArticleID: "A1", Concept: "deep learning", AvgRelevance: 0.5, FreqPerArticle: 1, CountPerArticle: 2, ArticleCount: 1},
		},
		Failures: []store.Failure{{ArticleID: "A3", Kind: "analysis", Message: "boom"}},
	}
}

func TestMemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	now := time.Now()
	if err := s.SaveRun(ctx, sampleRun("r1", now)); err != nil {
		t.Fatalf("save: %v", err)
	}

	run, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.Articles != 2 || run.Rows != nil {
		t.Errorf("unexpected run summary %+v", run)
	}

	rows, err := s.Concepts(ctx, "r1", store.ConceptFilter{})
	if err != nil {
		t.Fatalf("concepts: %v", err)
	}
	if len(rows) != 3 || rows[0].ArticleID != "A1" || rows[0].Concept != "deep learning" {
		t.Errorf("rows not in table order: %+v", rows)
	}

	top, err := s.TopConcepts(ctx, "r1", 1)
	if err != nil || len(top) != 1 || top[0].Concept != "neural network" {
		t.Errorf("top = %+v, %v", top, err)
	}

	fails, err := s.Failures(ctx, "r1")
	if err != nil || len(fails) != 1 || fails[0].Kind != "analysis" {
		t.Errorf("failures = %+v, %v", fails, err)
	}
}

func TestMemStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("GetRun: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Concepts(ctx, "missing", store.ConceptFilter{}); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("Concepts: expected ErrNotFound, got %v", err)
	}
	if err := s.SaveRun(ctx, store.Run{}); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("SaveRun without id: expected ErrInvalidInput, got %v", err)
	}
}

func TestMemStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		if err := s.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("unexpected order %+v", runs)
	}
}

func TestMemStoreIsolatesCallerSlices(t *testing.T) {
	ctx := context.Background()
	s := New()
	run := sampleRun("r1", time.Now())
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	run.Rows[0].Concept = "mutated"
	rows, _ := s.Concepts(ctx, "r1", store.ConceptFilter{Concept: "mutated"})
	if len(rows) != 0 {
		t.Error("store shares row storage with caller")
	}
}
