package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CachedEmbedder memoizes query embeddings. Questions are short and
// frequently repeated, so a small LRU removes most embedding round trips.
type CachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
	group singleflight.Group
}

// NewCachedEmbedder wraps next with an LRU of the given size. A ttl of zero
// keeps entries until they are evicted by size.
func NewCachedEmbedder(next Embedder, size int, ttl time.Duration) *CachedEmbedder {
	if size <= 0 {
		size = 1024
	}
	return &CachedEmbedder{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func cacheKey(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// GenerateEmbedding returns a cached vector when one exists. Concurrent
// calls for the same input share a single upstream request.
func (c *CachedEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	key := cacheKey(input)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		emb, err := c.next.GenerateEmbedding(ctx, input)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, emb)
		return emb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// Len reports the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Purge drops every cached vector. Call it after the embedding model changes.
func (c *CachedEmbedder) Purge() {
	c.cache.Purge()
}
