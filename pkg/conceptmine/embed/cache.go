package embed

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the in-memory tier when no size is configured.
const DefaultCacheSize = 100_000

// Cache memoizes an Embedder in a bounded LRU and, when dir is set, on disk.
// Keys are sha1(model|text), so vectors from different models never mix.
// The disk tier is unbounded; evicted vectors are reloaded from it.
type Cache struct {
	inner  Embedder
	dir    string
	logger *log.Logger
	mem    *lru.Cache[string, []float32]
}

// NewCache wraps inner, keeping at most size vectors in memory
// (DefaultCacheSize when size <= 0). An empty dir disables the disk tier.
func NewCache(inner Embedder, dir string, size int, logger *log.Logger) (*Cache, error) {
	if logger == nil {
		logger = log.Default()
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	mem, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &Cache{inner: inner, dir: dir, logger: logger, mem: mem}, nil
}

// ModelID implements Embedder.
func (c *Cache) ModelID() string { return c.inner.ModelID() }

// Embed implements Embedder. Misses are sent to the wrapped engine in a
// single call; duplicate texts within one call are embedded once.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	pending := make(map[string][]int)
	var missing []string

	for i, text := range texts {
		key := c.key(text)
		keys[i] = key
		if vec, ok := c.lookup(key); ok {
			out[i] = vec
			continue
		}
		if _, seen := pending[key]; !seen {
			missing = append(missing, text)
		}
		pending[key] = append(pending[key], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if err := Validate(vectors, len(missing)); err != nil {
		return nil, err
	}
	for j, text := range missing {
		key := c.key(text)
		c.store(key, vectors[j])
		for _, i := range pending[key] {
			out[i] = cloneVector(vectors[j])
		}
	}
	return out, nil
}

// Len reports the number of vectors held in memory.
func (c *Cache) Len() int {
	return c.mem.Len()
}

func (c *Cache) key(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, c.inner.ModelID())
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) lookup(key string) ([]float32, bool) {
	if vec, ok := c.mem.Get(key); ok {
		return cloneVector(vec), true
	}
	vec, err := c.loadFromDisk(key)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Printf("embed cache: %v", err)
		}
		return nil, false
	}
	c.mem.Add(key, vec)
	return cloneVector(vec), true
}

func (c *Cache) store(key string, vec []float32) {
	c.mem.Add(key, cloneVector(vec))
	if err := c.saveToDisk(key, vec); err != nil {
		c.logger.Printf("embed cache: save %s: %v", key, err)
	}
}

func (c *Cache) loadFromDisk(key string) ([]float32, error) {
	if c.dir == "" {
		return nil, os.ErrNotExist
	}
	path := filepath.Join(c.dir, key+".bin")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("cache file too small: %s", path)
	}
	length := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if length == 0 || len(data) != length*4 {
		return nil, fmt.Errorf("cache length mismatch: %s", path)
	}
	vec := make([]float32, length)
	for i := 0; i < length; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : (i+1)*4]))
	}
	return vec, nil
}

func (c *Cache) saveToDisk(key string, vec []float32) error {
	if c.dir == "" {
		return nil
	}
	path := filepath.Join(c.dir, key+".bin")
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec)))
	off := 4
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	// Concurrent writers of one key each get their own temp file.
	tmp, err := os.CreateTemp(c.dir, key+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
