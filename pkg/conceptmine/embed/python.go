package embed

import (
	"context"
	"fmt"

	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

// Caller is the subset of pyworker.Pool used by PythonEmbedder.
type Caller interface {
	Call(ctx context.Context, op string, payload any, out any) error
}

// PythonEmbedder encodes texts with sentence-transformers in a worker pool.
type PythonEmbedder struct {
	pool  Caller
	model string
}

// NewPythonEmbedder wraps a started pool configured with model.
func NewPythonEmbedder(pool Caller, model string) *PythonEmbedder {
	return &PythonEmbedder{pool: pool, model: model}
}

// ModelID implements Embedder.
func (p *PythonEmbedder) ModelID() string { return p.model }

// Embed implements Embedder.
func (p *PythonEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out struct {
		Vectors [][]float32 `json:"vectors"`
	}
	if err := p.pool.Call(ctx, "embed", map[string][]string{"texts": texts}, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", internalerr.ErrEmbedding, err)
	}
	if err := Validate(out.Vectors, len(texts)); err != nil {
		return nil, err
	}
	return out.Vectors, nil
}
