package syntax

import (
	"context"
	"fmt"

	"github.com/cognicore/conceptmine/internal/pyworker"
	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

// Caller is the subset of pyworker.Pool used by the analyzer.
type Caller interface {
	Call(ctx context.Context, op string, payload any, out any) error
}

var _ Caller = (*pyworker.Pool)(nil)

// PythonAnalyzer runs spaCy inside a pyworker pool.
type PythonAnalyzer struct {
	pool Caller
}

// NewPythonAnalyzer wraps a started worker pool.
func NewPythonAnalyzer(pool Caller) *PythonAnalyzer {
	return &PythonAnalyzer{pool: pool}
}

// Analyze implements Analyzer.
func (a *PythonAnalyzer) Analyze(ctx context.Context, text string) (Analysis, error) {
	if text == "" {
		return Analysis{}, nil
	}
	var out Analysis
	if err := a.pool.Call(ctx, "analyze", map[string]string{"text": text}, &out); err != nil {
		return Analysis{}, fmt.Errorf("%w: %w", internalerr.ErrAnalysis, err)
	}
	if err := out.Validate(text); err != nil {
		return Analysis{}, err
	}
	return out, nil
}

// StopWords returns the model's default stop-word list.
func (a *PythonAnalyzer) StopWords(ctx context.Context) ([]string, error) {
	var out struct {
		Terms []string `json:"terms"`
	}
	if err := a.pool.Call(ctx, "stop_words", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("%w: stop words: %w", internalerr.ErrAnalysis, err)
	}
	return out.Terms, nil
}
