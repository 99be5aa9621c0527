package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/conceptmine/internal/pyworker"
	"github.com/cognicore/conceptmine/pkg/conceptmine"
	"github.com/cognicore/conceptmine/pkg/conceptmine/config"
	"github.com/cognicore/conceptmine/pkg/conceptmine/embed"
	"github.com/cognicore/conceptmine/pkg/conceptmine/stoplist"
	"github.com/cognicore/conceptmine/pkg/conceptmine/store"
	"github.com/cognicore/conceptmine/pkg/conceptmine/store/memstore"
	"github.com/cognicore/conceptmine/pkg/conceptmine/syntax"
)

func startPool(cfg config.Config, logger *log.Logger) (*pyworker.Pool, error) {
	return pyworker.Start(pyworker.Config{
		Dir:       cfg.Analyzer.PythonDir,
		Python:    cfg.Analyzer.Python,
		SetupVenv: cfg.Analyzer.SetupVenv,
		Workers:   cfg.Analyzer.Workers,
		Init: map[string]any{
			"spacy_model":     cfg.Analyzer.SpacyModel,
			"enable_ner":      cfg.Analyzer.EnableNER || cfg.IncludeEntities,
			"embedding_model": cfg.Embedder.Model,
			"batch_size":      cfg.BatchSize,
		},
	}, logger)
}

func buildEmbedder(cfg config.Config, pool *pyworker.Pool) (embed.Embedder, func(), error) {
	switch strings.ToLower(cfg.Embedder.Backend) {
	case config.BackendHTTP:
		return &embed.HTTPEmbedder{URL: cfg.Embedder.URL, APIKey: cfg.Embedder.APIKey, Model: cfg.Embedder.Model}, func() {}, nil
	case config.BackendONNX:
		onnxCfg := cfg.Embedder.ONNX
		if onnxCfg.ModelID == "" {
			onnxCfg.ModelID = cfg.Embedder.Model
		}
		e, err := embed.NewONNXEmbedder(onnxCfg)
		if err != nil {
			return nil, nil, err
		}
		return e, func() { e.Close() }, nil
	default:
		return embed.NewPythonEmbedder(pool, cfg.Embedder.Model), func() {}, nil
	}
}

// buildEngine wires the worker pool, embedder, cache and store described by
// cfg. The returned cleanup closes all of them.
func buildEngine(ctx context.Context, cfg config.Config, logger *log.Logger) (*conceptmine.Engine, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := startPool(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("start python workers: %w", err)
	}
	closers = append(closers, func() { pool.Close() })

	inner, closeEmbedder, err := buildEmbedder(cfg, pool)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeEmbedder)

	cached, err := embed.NewCache(inner, cfg.Embedder.CacheDir, cfg.Embedder.CacheSize, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var st store.Store = memstore.New()
	if cfg.Store.Path != "" {
		st, err = openStore(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	eng, err := conceptmine.NewFromConfig(cfg, conceptmine.Options{
		Analyzer: syntax.NewPythonAnalyzer(pool),
		Embedder: cached,
		Store:    st,
		Logger:   logger,
	})
	if err != nil {
		st.Close()
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() { eng.Close() })
	return eng, cleanup, nil
}

func stopwordsCmd() *cobra.Command {
	var fromModel bool

	cmd := &cobra.Command{
		Use:   "stopwords",
		Short: "Print the stop words used for concept normalization",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var base []string
			switch {
			case fromModel:
				pool, err := startPool(cfg, log.Default())
				if err != nil {
					return err
				}
				defer pool.Close()
				base, err = syntax.NewPythonAnalyzer(pool).StopWords(cmd.Context())
				if err != nil {
					return err
				}
			case cfg.StoplistPath != "":
				sl, err := config.LoadStoplist(cfg.StoplistPath)
				if err != nil {
					return err
				}
				base = sl.Terms
			}

			m := stoplist.ForConcepts(base, cfg.KeepWords)
			words := m.All()
			sort.Strings(words)
			for _, w := range words {
				fmt.Println(w)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromModel, "from-model", false, "ask the spaCy model for its default list")
	return cmd
}
