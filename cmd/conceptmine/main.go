package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognicore/conceptmine/internal/corpus"
	"github.com/cognicore/conceptmine/pkg/conceptmine"
	"github.com/cognicore/conceptmine/pkg/conceptmine/config"
	"github.com/cognicore/conceptmine/pkg/conceptmine/store"
	"github.com/cognicore/conceptmine/pkg/conceptmine/store/sqlite"
)

var (
	configPath string
	envFile    string
	dbPath     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "conceptmine",
		Short:         "Extract and rank concepts from scientific abstracts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with CONCEPTMINE_* overrides")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "results database (overrides store.path)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(conceptsCmd())
	rootCmd.AddCommand(topCmd())
	rootCmd.AddCommand(failuresCmd())
	rootCmd.AddCommand(stopwordsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(envFile); err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	return cfg, cfg.Validate()
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, errors.New("no results database: set store.path or --db")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return sqlite.OpenSQLite(ctx, cfg.Store.Path)
}

func runCmd() *cobra.Command {
	var (
		input  string
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a JSONL corpus and emit the concept table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "", log.LstdFlags)

			articles, err := readArticles(input)
			if err != nil {
				return err
			}

			eng, cleanup, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := eng.Run(ctx, articles)
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			switch strings.ToLower(format) {
			case "csv":
				err = corpus.WriteCSV(w, res.Rows)
			case "jsonl":
				err = corpus.WriteJSONL(w, res.Rows)
			default:
				err = fmt.Errorf("unknown format %q", format)
			}
			if err != nil {
				return err
			}

			logger.Printf("run %s: %d articles, %d rows, %d failures",
				res.RunID, res.Articles, len(res.Rows), len(res.Failures))
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "articles JSONL ({article_id, text}); - for stdin")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file; - for stdout")
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv or jsonl")
	return cmd
}

func readArticles(input string) ([]conceptmine.Article, error) {
	if input == "" || input == "-" {
		return corpus.ReadJSONL(os.Stdin, "stdin")
	}
	return corpus.LoadFromJSONL(input)
}

func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("%s  %s  %d articles  %d records  %s\n",
					r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Articles, r.Records,
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	return cmd
}

func conceptsCmd() *cobra.Command {
	var (
		article string
		concept string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "concepts <run-id>",
		Short: "Show the concept table of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.Concepts(ctx, args[0], store.ConceptFilter{ArticleID: article, Concept: concept, Limit: limit})
			if err != nil {
				return err
			}
			return corpus.WriteCSV(os.Stdout, rows)
		},
	}

	cmd.Flags().StringVar(&article, "article", "", "only this article")
	cmd.Flags().StringVar(&concept, "concept", "", "only this concept")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum rows (0 = all)")
	return cmd
}

func topCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "top <run-id>",
		Short: "Rank a run's concepts by the number of articles using them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			top, err := s.TopConcepts(ctx, args[0], k)
			if err != nil {
				return err
			}
			for i, c := range top {
				fmt.Printf("%3d. %-50s articles=%d freq=%d relevance=%.3f\n",
					i+1, c.Concept, c.ArticleCount, c.TotalFreq, c.AvgRelevance)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 20, "number of concepts (0 = all)")
	return cmd
}

func failuresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures <run-id>",
		Short: "Show documents and phrases skipped during a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			fails, err := s.Failures(ctx, args[0])
			if err != nil {
				return err
			}
			for _, f := range fails {
				if f.Phrase != "" {
					fmt.Printf("%-16s %-24s %q: %s\n", f.Kind, f.ArticleID, f.Phrase, f.Message)
					continue
				}
				fmt.Printf("%-16s %-24s %s\n", f.Kind, f.ArticleID, f.Message)
			}
			return nil
		},
	}
	return cmd
}
