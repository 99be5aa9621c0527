// Package embed provides Embedding Engine backends: a sentence-transformers
// worker, an OpenAI-compatible HTTP endpoint, and an in-process ONNX model,
// plus a caching wrapper.
package embed

import (
	"context"
	"fmt"
	"math"

	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

// Embedder maps texts to fixed-dimension vectors. Identical input must give
// identical output within a run.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
}

// Validate checks an engine reply for n inputs. Violations are reported as
// internalerr.ErrEmbedding.
func Validate(vectors [][]float32, n int) error {
	if len(vectors) != n {
		return fmt.Errorf("%w: got %d vectors for %d texts", internalerr.ErrEmbedding, len(vectors), n)
	}
	dim := -1
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: vector %d is empty", internalerr.ErrEmbedding, i)
		}
		if dim >= 0 && len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", internalerr.ErrEmbedding, i, len(v), dim)
		}
		dim = len(v)
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return fmt.Errorf("%w: vector %d contains non-finite values", internalerr.ErrEmbedding, i)
			}
		}
	}
	return nil
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
