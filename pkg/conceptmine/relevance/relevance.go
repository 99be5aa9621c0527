// Package relevance scores how close a phrase is to the document it came
// from, as the cosine of their embeddings.
package relevance

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/cognicore/conceptmine/pkg/conceptmine/embed"
	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

// Scorer holds no state besides the engine handle.
type Scorer struct {
	embedder embed.Embedder
}

// New returns a Scorer backed by e.
func New(e embed.Embedder) *Scorer {
	return &Scorer{embedder: e}
}

// Score returns cosine(embed(phrase), embed(doc)), unclamped. The document is
// embedded on every call.
func (s *Scorer) Score(ctx context.Context, phrase, doc string) (float64, error) {
	scores, err := s.ScoreBatch(ctx, []string{phrase}, doc)
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch scores every phrase against doc with a single engine call.
// scores[i] equals Score(ctx, phrases[i], doc).
func (s *Scorer) ScoreBatch(ctx context.Context, phrases []string, doc string) ([]float64, error) {
	if len(phrases) == 0 {
		return nil, nil
	}
	texts := make([]string, 0, len(phrases)+1)
	texts = append(texts, phrases...)
	texts = append(texts, doc)

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if err := embed.Validate(vectors, len(texts)); err != nil {
		return nil, err
	}

	docVec := toFloat64(vectors[len(phrases)])
	scores := make([]float64, len(phrases))
	for i := range phrases {
		c, err := Cosine(toFloat64(vectors[i]), docVec)
		if err != nil {
			return nil, err
		}
		scores[i] = c
	}
	return scores, nil
}

// Cosine returns the cosine similarity of a and b.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: cosine of vectors with dimensions %d and %d", internalerr.ErrEmbedding, len(a), len(b))
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("%w: cosine of zero vector", internalerr.ErrEmbedding)
	}
	return floats.Dot(a, b) / (na * nb), nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
