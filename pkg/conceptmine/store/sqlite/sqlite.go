package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/conceptmine/pkg/conceptmine/aggregate"
	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
	"github.com/cognicore/conceptmine/pkg/conceptmine/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize schema
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	articles INTEGER NOT NULL DEFAULT 0,
	records INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS concepts (
	run_id TEXT NOT NULL,
	article_id TEXT NOT NULL,
	clean_concept TEXT NOT NULL,
	avg_relevance REAL NOT NULL,
	concept_freq_per_art INTEGER NOT NULL,
	concept_count_per_art INTEGER NOT NULL,
	art_count INTEGER NOT NULL,
	PRIMARY KEY(run_id, article_id, clean_concept),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS concepts_by_concept ON concepts(run_id, clean_concept);

CREATE TABLE IF NOT EXISTS failures (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	article_id TEXT,
	phrase TEXT,
	kind TEXT NOT NULL,
	message TEXT,
	PRIMARY KEY(run_id, seq),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveRun inserts or replaces a run with its rows and failures.
func (s *sqliteStore) SaveRun(ctx context.Context, r store.Run) error {
	if r.ID == "" {
		return fmt.Errorf("%w: run id required", internalerr.ErrInvalidInput)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO runs (id, started_at, finished_at, articles, records)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	started_at=excluded.started_at,
	finished_at=excluded.finished_at,
	articles=excluded.articles,
	records=excluded.records;
`
	if _, err := tx.ExecContext(ctx, stmt,
		r.ID,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.Articles,
		r.Records,
	); err != nil {
		return err
	}

	if err := replaceConcepts(ctx, tx, r.ID, r.Rows); err != nil {
		return err
	}
	if err := replaceFailures(ctx, tx, r.ID, r.Failures); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceConcepts(ctx context.Context, tx *sql.Tx, runID string, rows []aggregate.Row) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM concepts WHERE run_id=?`, runID); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO concepts (run_id, article_id, clean_concept, avg_relevance,
	concept_freq_per_art, concept_count_per_art, art_count)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, runID, row.ArticleID, row.Concept, row.AvgRelevance,
			row.FreqPerArticle, row.CountPerArticle, row.ArticleCount); err != nil {
			return err
		}
	}
	return nil
}

func replaceFailures(ctx context.Context, tx *sql.Tx, runID string, failures []store.Failure) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM failures WHERE run_id=?`, runID); err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO failures (run_id, seq, article_id, phrase, kind, message)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, f := range failures {
		if _, err := stmt.ExecContext(ctx, runID, i, f.ArticleID, f.Phrase, f.Kind, f.Message); err != nil {
			return err
		}
	}
	return nil
}

// GetRun retrieves run metadata by ID
func (s *sqliteStore) GetRun(ctx context.Context, id string) (store.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, articles, records FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Run{}, fmt.Errorf("run %s: %w", id, internalerr.ErrNotFound)
	}
	return r, err
}

// ListRuns returns runs newest first
func (s *sqliteStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, finished_at, articles, records
FROM runs
ORDER BY started_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (store.Run, error) {
	var (
		r                 store.Run
		started, finished string
	)
	if err := sc.Scan(&r.ID, &started, &finished, &r.Articles, &r.Records); err != nil {
		return store.Run{}, err
	}
	var err error
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return store.Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return store.Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return r, nil
}

// Concepts returns the run's table rows matching f in (article, concept) order
func (s *sqliteStore) Concepts(ctx context.Context, runID string, f store.ConceptFilter) ([]aggregate.Row, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	query := `
SELECT article_id, clean_concept, avg_relevance, concept_freq_per_art, concept_count_per_art, art_count
FROM concepts
WHERE run_id = ?`
	args := []any{runID}
	if f.ArticleID != "" {
		query += ` AND article_id = ?`
		args = append(args, f.ArticleID)
	}
	if f.Concept != "" {
		query += ` AND clean_concept = ?`
		args = append(args, f.Concept)
	}
	query += ` ORDER BY article_id, clean_concept`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []aggregate.Row
	for rows.Next() {
		var r aggregate.Row
		if err := rows.Scan(&r.ArticleID, &r.Concept, &r.AvgRelevance,
			&r.FreqPerArticle, &r.CountPerArticle, &r.ArticleCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TopConcepts ranks the run's concepts by the number of articles using them
func (s *sqliteStore) TopConcepts(ctx context.Context, runID string, k int) ([]store.ConceptSummary, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT clean_concept, COUNT(*) AS articles, SUM(concept_freq_per_art) AS freq, AVG(avg_relevance)
FROM concepts
WHERE run_id = ?
GROUP BY clean_concept
ORDER BY articles DESC, freq DESC, clean_concept ASC
LIMIT ?`, runID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ConceptSummary
	for rows.Next() {
		var c store.ConceptSummary
		if err := rows.Scan(&c.Concept, &c.ArticleCount, &c.TotalFreq, &c.AvgRelevance); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Failures returns the run's failures in the order they were recorded
func (s *sqliteStore) Failures(ctx context.Context, runID string) ([]store.Failure, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT article_id, phrase, kind, message
FROM failures
WHERE run_id = ?
ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Failure
	for rows.Next() {
		var (
			f               store.Failure
			article, phrase sql.NullString
			message         sql.NullString
		)
		if err := rows.Scan(&article, &phrase, &f.Kind, &message); err != nil {
			return nil, err
		}
		f.ArticleID, f.Phrase, f.Message = article.String, phrase.String, message.String
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *sqliteStore) requireRun(ctx context.Context, runID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	return err
}
