package discovery

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultEmbeddingCacheBytes bounds the memory used by CachedEmbedder.
const DefaultEmbeddingCacheBytes = 16 << 20

// CachedEmbedder memoizes embeddings of repeated texts, typically intents.
type CachedEmbedder struct {
	next  Embedder
	cache *ristretto.Cache[string, []float32]
	ttl   time.Duration
}

// NewCachedEmbedder wraps next with an in-process cache of at most maxBytes.
func NewCachedEmbedder(next Embedder, maxBytes int64, ttl time.Duration) (*CachedEmbedder, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultEmbeddingCacheBytes
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: maxBytes / 1024 * 10, // ~10x expected items at 1 KiB per vector
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{next: next, cache: c, ttl: ttl}, nil
}

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.next.Name() + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(key, v, int64(len(v)*4), c.ttl)
	return v, nil
}

// EmbedBatch implements Embedder. Batches go straight to the wrapped
// embedder; they are only used when the index is rebuilt.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedBatch(ctx, texts)
}

// Dimensions implements Embedder.
func (c *CachedEmbedder) Dimensions() int { return c.next.Dimensions() }

// Name implements Embedder.
func (c *CachedEmbedder) Name() string { return c.next.Name() }

// Wait blocks until pending cache writes are applied.
func (c *CachedEmbedder) Wait() { c.cache.Wait() }

// Close releases the cache.
func (c *CachedEmbedder) Close() { c.cache.Close() }
