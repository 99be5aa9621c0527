package embed

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

// ONNXConfig locates a sentence-transformer exported to ONNX.
type ONNXConfig struct {
	SharedLibrary string `yaml:"shared_library"`
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	MaxSeqLen     int    `yaml:"max_seq_len"`
	ModelID       string `yaml:"model_id"`
}

var (
	ortOnce sync.Once
	ortErr  error
)

func initRuntime(lib string) error {
	ortOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXEmbedder runs the encoder in-process and mean-pools the last hidden
// state into an L2-normalized vector.
type ONNXEmbedder struct {
	cfg     ONNXConfig
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession

	mu sync.Mutex
}

// NewONNXEmbedder loads the tokenizer and the model session.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("%w: onnx model_path and tokenizer_path required", internalerr.ErrInvalidConfig)
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 256
	}
	if cfg.ModelID == "" {
		cfg.ModelID = filepath.Base(filepath.Dir(cfg.ModelPath))
	}
	if err := initRuntime(cfg.SharedLibrary); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}
	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"}, nil)
	if err != nil {
		return nil, fmt.Errorf("open onnx session: %w", err)
	}
	return &ONNXEmbedder{cfg: cfg, tk: tk, session: session}, nil
}

// ModelID implements Embedder.
func (o *ONNXEmbedder) ModelID() string { return o.cfg.ModelID }

// Close releases the session.
func (o *ONNXEmbedder) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.session = nil
	return err
}

// Embed implements Embedder. Texts are encoded one at a time.
func (o *ONNXEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := o.encode(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", internalerr.ErrEmbedding, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (o *ONNXEmbedder) encode(text string) ([]float32, error) {
	enc, err := o.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	n := len(enc.Ids)
	if n > o.cfg.MaxSeqLen {
		n = o.cfg.MaxSeqLen
	}
	if n == 0 {
		return nil, fmt.Errorf("tokenizer produced no tokens")
	}
	ids := make([]int64, n)
	mask := make([]int64, n)
	types := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(enc.Ids[i])
		mask[i] = 1
		if i < len(enc.AttentionMask) {
			mask[i] = int64(enc.AttentionMask[i])
		}
		if i < len(enc.TypeIds) {
			types[i] = int64(enc.TypeIds[i])
		}
	}

	shape := ort.NewShape(1, int64(n))
	idsT, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, err
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, err
	}
	defer maskT.Destroy()
	typesT, err := ort.NewTensor(shape, types)
	if err != nil {
		return nil, err
	}
	defer typesT.Destroy()

	outputs := []ort.Value{nil}
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("session closed")
	}
	err = o.session.Run([]ort.Value{idsT, maskT, typesT}, outputs)
	o.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	defer outputs[0].Destroy()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	dims := hidden.GetShape()
	if len(dims) != 3 || dims[1] != int64(n) {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	return meanPool(hidden.GetData(), mask, int(dims[2])), nil
}

// meanPool averages token states under the attention mask and L2-normalizes.
func meanPool(hidden []float32, mask []int64, dim int) []float32 {
	vec := make([]float32, dim)
	var count float32
	for t, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[t*dim : (t+1)*dim]
		for j, x := range row {
			vec[j] += x
		}
		count++
	}
	if count == 0 {
		return vec
	}
	var norm float64
	for j := range vec {
		vec[j] /= count
		norm += float64(vec[j]) * float64(vec[j])
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for j := range vec {
		vec[j] = float32(float64(vec[j]) / norm)
	}
	return vec
}
