package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedEmbedder memoizes embeddings by text. Retrieval re-embeds the same
// short queries often; ingestion chunks rarely repeat and pass straight through.
type CachedEmbedder struct {
	next  Embedder
	cache *cache.Cache
}

func NewCachedEmbedder(next Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		if v, ok := c.cache.Get(cacheKey(t)); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	embedded, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range embedded {
		out[missingIdx[j]] = vec
		c.cache.Set(cacheKey(missing[j]), vec, cache.DefaultExpiration)
	}
	return out, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
