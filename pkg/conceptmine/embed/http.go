package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedder struct {
	URL    string
	APIKey string
	Model  string

	HTTPClient *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ModelID implements Embedder.
func (h *HTTPEmbedder) ModelID() string { return h.Model }

// Embed implements Embedder.
func (h *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if h.URL == "" || h.Model == "" {
		return nil, fmt.Errorf("%w: embedding URL and model required", internalerr.ErrInvalidConfig)
	}

	body, err := json.Marshal(embeddingRequest{Input: texts, Model: h.Model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", internalerr.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", internalerr.ErrEmbedding, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: api error (status %d): %s",
			internalerr.ErrEmbedding, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var payload embeddingResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", internalerr.ErrEmbedding, err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("%w: %s", internalerr.ErrEmbedding, payload.Error.Message)
	}

	sort.SliceStable(payload.Data, func(i, j int) bool {
		return payload.Data[i].Index < payload.Data[j].Index
	})
	vectors := make([][]float32, len(payload.Data))
	for i, d := range payload.Data {
		vectors[i] = d.Embedding
	}
	if err := Validate(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (h *HTTPEmbedder) httpClient() *http.Client {
	if h.HTTPClient != nil {
		return h.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
