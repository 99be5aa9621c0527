// Package conceptmine extracts, normalizes, scores and aggregates concepts
// from scientific abstracts.
package conceptmine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/conceptmine/pkg/conceptmine/aggregate"
	"github.com/cognicore/conceptmine/pkg/conceptmine/cleantext"
	"github.com/cognicore/conceptmine/pkg/conceptmine/config"
	"github.com/cognicore/conceptmine/pkg/conceptmine/embed"
	"github.com/cognicore/conceptmine/pkg/conceptmine/extract"
	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
	"github.com/cognicore/conceptmine/pkg/conceptmine/normalize"
	"github.com/cognicore/conceptmine/pkg/conceptmine/relevance"
	"github.com/cognicore/conceptmine/pkg/conceptmine/stoplist"
	"github.com/cognicore/conceptmine/pkg/conceptmine/store"
	"github.com/cognicore/conceptmine/pkg/conceptmine/syntax"
)

// Engine is the pipeline facade.
type Engine struct {
	analyzer   syntax.Analyzer
	converter  cleantext.Converter
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer
	scorer     *relevance.Scorer
	bounds     aggregate.Bounds
	store      store.Store
	logger     *log.Logger

	workers     int
	batchSize   int
	timeout     time.Duration
	reuseLemmas bool
}

// Options configures an Engine. Analyzer and Embedder are required.
type Options struct {
	Analyzer  syntax.Analyzer
	Embedder  embed.Embedder
	Converter cleantext.Converter
	Extractor *extract.Extractor
	Stops     *stoplist.Manager
	Bounds    aggregate.Bounds
	// Store receives every finished run when set.
	Store  store.Store
	Logger *log.Logger

	Workers             int
	BatchSize           int
	EngineTimeout       time.Duration
	ReuseDocumentLemmas bool
}

// New creates an Engine with the given dependencies
func New(opts Options) (*Engine, error) {
	if opts.Analyzer == nil || opts.Embedder == nil {
		return nil, fmt.Errorf("%w: analyzer and embedder required", internalerr.ErrInvalidConfig)
	}
	if opts.Converter == nil {
		opts.Converter = cleantext.Cleaner{}
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.New(extract.Options{})
	}
	if opts.Bounds == (aggregate.Bounds{}) {
		opts.Bounds = aggregate.DefaultBounds()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	return &Engine{
		analyzer:    opts.Analyzer,
		converter:   opts.Converter,
		extractor:   opts.Extractor,
		normalizer:  normalize.New(opts.Analyzer, opts.Stops),
		scorer:      relevance.New(opts.Embedder),
		bounds:      opts.Bounds,
		store:       opts.Store,
		logger:      opts.Logger,
		workers:     opts.Workers,
		batchSize:   opts.BatchSize,
		timeout:     opts.EngineTimeout,
		reuseLemmas: opts.ReuseDocumentLemmas,
	}, nil
}

// NewFromConfig builds the configurable components from cfg and fills the
// matching Options fields before calling New.
func NewFromConfig(cfg config.Config, opts Options) (*Engine, error) {
	loader := config.Loader{Config: cfg}
	comp, err := loader.Load()
	if err != nil {
		return nil, err
	}
	opts.Stops = comp.Stops
	opts.Extractor = comp.Extractor
	opts.Bounds = comp.Bounds
	if opts.Converter == nil {
		opts.Converter = cleantext.Cleaner{KeepMath: cfg.KeepMath}
	}
	opts.Workers = cfg.Workers
	opts.BatchSize = cfg.BatchSize
	opts.EngineTimeout = cfg.EngineTimeout
	opts.ReuseDocumentLemmas = cfg.ReuseDocumentLemmas
	return New(opts)
}

// Close releases the store, if any.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Article is one input abstract.
type Article struct {
	ID   string `json:"article_id"`
	Text string `json:"text"`
}

// Document is an article after upstream conversion. CleanText is what every
// later stage reads.
type Document struct {
	ArticleID string
	RawText   string
	CleanText string
}

// FailureKind classifies a skipped unit of work.
type FailureKind string

const (
	KindUpstreamFormat FailureKind = "upstream_format"
	KindAnalysis       FailureKind = "analysis"
	KindEmbedding      FailureKind = "embedding"
)

// Failure records a document or phrase that was skipped, or for
// KindUpstreamFormat, a document processed from its raw text.
type Failure struct {
	ArticleID string
	Phrase    string
	Kind      FailureKind
	Err       error
}

func (f Failure) Error() string {
	if f.Phrase != "" {
		return fmt.Sprintf("article %s phrase %q: %s: %v", f.ArticleID, f.Phrase, f.Kind, f.Err)
	}
	return fmt.Sprintf("article %s: %s: %v", f.ArticleID, f.Kind, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// DocResult is the outcome of processing one article.
type DocResult struct {
	Document Document
	Phrases  []extract.Phrase
	Records  []aggregate.Record
	Failures []Failure
}

// ProcessDoc runs conversion, extraction, normalization and scoring for one
// article. Per-document and per-phrase failures are reported in the result;
// the error is non-nil only when ctx is done.
func (e *Engine) ProcessDoc(ctx context.Context, a Article) (DocResult, error) {
	res := DocResult{Document: Document{ArticleID: a.ID, RawText: a.Text}}

	clean, err := cleantext.Clean(e.converter, a.Text)
	if err != nil {
		e.logger.Printf("conceptmine: article %s: using raw text: %v", a.ID, err)
		res.Failures = append(res.Failures, Failure{ArticleID: a.ID, Kind: KindUpstreamFormat, Err: err})
	}
	res.Document.CleanText = clean
	if clean == "" {
		return res, ctx.Err()
	}

	analysis, err := e.analyze(ctx, clean)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		e.logger.Printf("conceptmine: article %s: skipped: %v", a.ID, err)
		res.Failures = append(res.Failures, Failure{ArticleID: a.ID, Kind: KindAnalysis, Err: err})
		return res, nil
	}

	res.Phrases = e.extractor.Extract(clean, analysis)
	if len(res.Phrases) == 0 {
		return res, nil
	}

	concepts := make([]string, len(res.Phrases))
	conceptErr := make([]error, len(res.Phrases))
	scores := make([]float64, len(res.Phrases))
	scoreErr := make([]error, len(res.Phrases))

	// Failures stay per phrase, so neither goroutine returns an error.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i, p := range res.Phrases {
			if e.reuseLemmas {
				concepts[i] = e.normalizer.NormalizeTokens(p.Tokens)
				continue
			}
			concepts[i], conceptErr[i] = e.normalize(ctx, p.Text)
		}
	}()
	go func() {
		defer wg.Done()
		for start := 0; start < len(res.Phrases); start += e.batchSize {
			end := min(start+e.batchSize, len(res.Phrases))
			texts := make([]string, 0, end-start)
			for _, p := range res.Phrases[start:end] {
				texts = append(texts, p.Text)
			}
			batch, err := e.score(ctx, texts, clean)
			for i := start; i < end; i++ {
				if err != nil {
					scoreErr[i] = err
				} else {
					scores[i] = batch[i-start]
				}
			}
		}
	}()
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for i, p := range res.Phrases {
		switch {
		case conceptErr[i] != nil:
			res.Failures = append(res.Failures, Failure{ArticleID: a.ID, Phrase: p.Text, Kind: KindAnalysis, Err: conceptErr[i]})
		case scoreErr[i] != nil:
			res.Failures = append(res.Failures, Failure{ArticleID: a.ID, Phrase: p.Text, Kind: KindEmbedding, Err: scoreErr[i]})
		default:
			res.Records = append(res.Records, aggregate.Record{
				ArticleID: a.ID,
				RawPhrase: p.Text,
				Concept:   concepts[i],
				Relevance: scores[i],
			})
		}
	}
	if n := len(res.Phrases) - len(res.Records); n > 0 {
		e.logger.Printf("conceptmine: article %s: %d of %d phrases skipped", a.ID, n, len(res.Phrases))
	}
	return res, nil
}

// RunResult is the outcome of a corpus run.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Articles   int
	Records    int
	Rows       []aggregate.Row
	Failures   []Failure
	Stats      aggregate.Stats
}

// Run processes articles on a fixed set of workers. Each worker folds its
// records into a private aggregator and keeps no per-document state; the
// partial aggregates are merged once every article has finished. When a
// store is configured the run is saved before returning.
func (e *Engine) Run(ctx context.Context, articles []Article) (*RunResult, error) {
	result := &RunResult{RunID: store.NewRunID(), StartedAt: time.Now().UTC(), Articles: len(articles)}
	workers := max(1, min(e.workers, len(articles)))
	e.logger.Printf("conceptmine: run %s: %d articles, %d workers", result.RunID, len(articles), workers)

	partials := make([]*aggregate.Aggregator, workers)
	records := make([]int, workers)
	// indexed by article so failures keep input order
	failures := make([][]Failure, len(articles))

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range articles {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := range workers {
		partials[w] = aggregate.New(e.bounds)
		g.Go(func() error {
			for i := range jobs {
				res, err := e.ProcessDoc(gctx, articles[i])
				if err != nil {
					return err
				}
				partials[w].AddAll(res.Records)
				records[w] += len(res.Records)
				failures[i] = res.Failures
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run %s: %w", result.RunID, err)
	}

	agg := aggregate.New(e.bounds)
	for w, p := range partials {
		agg.Merge(p)
		result.Records += records[w]
	}
	for _, f := range failures {
		result.Failures = append(result.Failures, f...)
	}
	result.Rows = agg.Rows()
	result.Stats = agg.Stats()
	result.FinishedAt = time.Now().UTC()
	e.logger.Printf("conceptmine: run %s: %d records, %d rows, %d failures in %s",
		result.RunID, result.Records, len(result.Rows), len(result.Failures),
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))

	if e.store != nil {
		if err := e.store.SaveRun(ctx, toStoreRun(result)); err != nil {
			return result, fmt.Errorf("save run %s: %w", result.RunID, err)
		}
	}
	return result, nil
}

func toStoreRun(r *RunResult) store.Run {
	failures := make([]store.Failure, len(r.Failures))
	for i, f := range r.Failures {
		failures[i] = store.Failure{
			ArticleID: f.ArticleID,
			Phrase:    f.Phrase,
			Kind:      string(f.Kind),
			Message:   f.Err.Error(),
		}
	}
	return store.Run{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Articles:   r.Articles,
		Records:    r.Records,
		Rows:       r.Rows,
		Failures:   failures,
	}
}

func (e *Engine) analyze(ctx context.Context, text string) (syntax.Analysis, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	a, err := e.analyzer.Analyze(ctx, text)
	if err != nil {
		return syntax.Analysis{}, wrapKind(err, internalerr.ErrAnalysis)
	}
	if err := a.Validate(text); err != nil {
		return syntax.Analysis{}, err
	}
	return a, nil
}

func (e *Engine) normalize(ctx context.Context, phrase string) (string, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	concept, err := e.normalizer.Normalize(ctx, phrase)
	if err != nil {
		return "", wrapKind(err, internalerr.ErrAnalysis)
	}
	return concept, nil
}

func (e *Engine) score(ctx context.Context, phrases []string, doc string) ([]float64, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	scores, err := e.scorer.ScoreBatch(ctx, phrases, doc)
	if err != nil {
		return nil, wrapKind(err, internalerr.ErrEmbedding)
	}
	return scores, nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// wrapKind makes sure err matches kind with errors.Is.
func wrapKind(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
