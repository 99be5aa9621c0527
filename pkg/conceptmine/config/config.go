package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/conceptmine/pkg/conceptmine/embed"
	"github.com/cognicore/conceptmine/pkg/conceptmine/extract"
	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

// Embedding backends.
const (
	BackendPython = "python"
	BackendHTTP   = "http"
	BackendONNX   = "onnx"
)

// Config is the run configuration. Components receive it already loaded;
// only the command layer reads files and the environment.
type Config struct {
	MinConceptLen       int           `yaml:"min_concept_len"`
	MaxConceptLen       int           `yaml:"max_concept_len"`
	BatchSize           int           `yaml:"batch_size"`
	Workers             int           `yaml:"workers"`
	TiePolicy           string        `yaml:"tie_policy"`
	ReuseDocumentLemmas bool          `yaml:"reuse_document_lemmas"`
	IncludeEntities     bool          `yaml:"include_entities"`
	EntityLabels        []string      `yaml:"entity_labels"`
	EngineTimeout       time.Duration `yaml:"engine_timeout"`
	StoplistPath        string        `yaml:"stoplist_path"`
	KeepWords           []string      `yaml:"keep_words"`
	KeepMath            bool          `yaml:"keep_math"`

	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Store    StoreConfig    `yaml:"store"`
}

// AnalyzerConfig selects the spaCy pipeline and its worker processes.
type AnalyzerConfig struct {
	SpacyModel string `yaml:"spacy_model"`
	EnableNER  bool   `yaml:"enable_ner"`
	PythonDir  string `yaml:"python_dir"`
	Python     string `yaml:"python"`
	SetupVenv  bool   `yaml:"setup_venv"`
	Workers    int    `yaml:"workers"`
}

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	Backend  string           `yaml:"backend"`
	Model    string           `yaml:"model"`
	URL      string           `yaml:"url"`
	APIKey   string           `yaml:"api_key"`
	ONNX     embed.ONNXConfig `yaml:"onnx"`
	CacheDir string           `yaml:"cache_dir"`
	// CacheSize caps the vectors held in memory; the disk tier is unbounded.
	CacheSize int `yaml:"cache_size"`
}

// StoreConfig locates the results database. An empty path keeps results in
// memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		MinConceptLen: 3,
		MaxConceptLen: 100,
		BatchSize:     32,
		Workers:       runtime.NumCPU(),
		TiePolicy:     string(extract.FirstByDiscovery),
		EntityLabels:  append([]string(nil), extract.DefaultEntityLabels...),
		EngineTimeout: 60 * time.Second,
		KeepWords:     []string{"of", "and"},
		Analyzer: AnalyzerConfig{
			SpacyModel: "en_core_web_lg",
			PythonDir:  defaultPythonDir(),
			Workers:    1,
		},
		Embedder: EmbedderConfig{
			Backend:   BackendPython,
			Model:     "all-MiniLM-L6-v2",
			CacheSize: embed.DefaultCacheSize,
		},
	}
}

func defaultPythonDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "conceptmine")
}

// Load reads a YAML file over the defaults. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", internalerr.ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv loads the given .env files (missing files are ignored) and lets
// CONCEPTMINE_* variables override fields.
func (c *Config) ApplyEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	c.MinConceptLen = getEnvInt("CONCEPTMINE_MIN_CONCEPT_LEN", c.MinConceptLen)
	c.MaxConceptLen = getEnvInt("CONCEPTMINE_MAX_CONCEPT_LEN", c.MaxConceptLen)
	c.BatchSize = getEnvInt("CONCEPTMINE_BATCH_SIZE", c.BatchSize)
	c.Workers = getEnvInt("CONCEPTMINE_WORKERS", c.Workers)
	c.TiePolicy = getEnv("CONCEPTMINE_TIE_POLICY", c.TiePolicy)
	c.ReuseDocumentLemmas = getEnvBool("CONCEPTMINE_REUSE_DOCUMENT_LEMMAS", c.ReuseDocumentLemmas)
	c.IncludeEntities = getEnvBool("CONCEPTMINE_INCLUDE_ENTITIES", c.IncludeEntities)
	c.EngineTimeout = getEnvDuration("CONCEPTMINE_ENGINE_TIMEOUT", c.EngineTimeout)
	c.StoplistPath = getEnv("CONCEPTMINE_STOPLIST_PATH", c.StoplistPath)

	c.Analyzer.SpacyModel = getEnv("CONCEPTMINE_SPACY_MODEL", c.Analyzer.SpacyModel)
	c.Analyzer.PythonDir = getEnv("CONCEPTMINE_PYTHON_DIR", c.Analyzer.PythonDir)
	c.Analyzer.Python = getEnv("CONCEPTMINE_PYTHON", c.Analyzer.Python)
	c.Analyzer.Workers = getEnvInt("CONCEPTMINE_ANALYZER_WORKERS", c.Analyzer.Workers)

	c.Embedder.Backend = getEnv("CONCEPTMINE_EMBEDDER", c.Embedder.Backend)
	c.Embedder.Model = getEnv("CONCEPTMINE_EMBEDDING_MODEL", c.Embedder.Model)
	c.Embedder.URL = getEnv("CONCEPTMINE_EMBEDDING_URL", c.Embedder.URL)
	c.Embedder.APIKey = getEnv("CONCEPTMINE_EMBEDDING_API_KEY", c.Embedder.APIKey)
	c.Embedder.CacheDir = getEnv("CONCEPTMINE_CACHE_DIR", c.Embedder.CacheDir)
	c.Embedder.CacheSize = getEnvInt("CONCEPTMINE_CACHE_SIZE", c.Embedder.CacheSize)
	c.Embedder.ONNX.SharedLibrary = getEnv("CONCEPTMINE_ORT_LIBRARY", c.Embedder.ONNX.SharedLibrary)

	c.Store.Path = getEnv("CONCEPTMINE_STORE_PATH", c.Store.Path)
	return nil
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", internalerr.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if c.MinConceptLen < 1 {
		return invalid("min_concept_len must be at least 1, got %d", c.MinConceptLen)
	}
	if c.MaxConceptLen < c.MinConceptLen {
		return invalid("max_concept_len %d below min_concept_len %d", c.MaxConceptLen, c.MinConceptLen)
	}
	if c.BatchSize < 1 {
		return invalid("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Workers < 0 {
		return invalid("workers must not be negative, got %d", c.Workers)
	}
	if c.EngineTimeout < 0 {
		return invalid("engine_timeout must not be negative")
	}
	if _, err := extract.ParseTiePolicy(c.TiePolicy); err != nil {
		return invalid("%v", err)
	}
	switch strings.ToLower(c.Embedder.Backend) {
	case BackendPython:
	case BackendHTTP:
		if c.Embedder.URL == "" {
			return invalid("embedder.url is required for the http backend")
		}
	case BackendONNX:
		if c.Embedder.ONNX.ModelPath == "" || c.Embedder.ONNX.TokenizerPath == "" {
			return invalid("embedder.onnx model_path and tokenizer_path are required")
		}
	default:
		return invalid("unknown embedder backend %q", c.Embedder.Backend)
	}
	if c.Embedder.CacheSize < 0 {
		return invalid("embedder.cache_size must not be negative, got %d", c.Embedder.CacheSize)
	}
	if c.Embedder.Model == "" {
		return invalid("embedder.model is required")
	}
	if c.Analyzer.SpacyModel == "" {
		return invalid("analyzer.spacy_model is required")
	}
	return nil
}

// Stoplist represents the stopword list configuration
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}

	return &sl, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
