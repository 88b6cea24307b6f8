package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Key prefixes keep the two typed views disjoint in a shared store.
const (
	embeddingKeyPrefix = "qf:emb:"
	resultKeyPrefix    = "qf:res:"
)

// hashKey returns a stable hex digest for arbitrary key material.
func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// EmbeddingCache caches query embeddings keyed by query text.
type EmbeddingCache struct {
	store Store
	ttl   time.Duration
}

// NewEmbeddingCache wraps a store. Embeddings are stable for a given model,
// so they get a longer TTL than result entries.
func NewEmbeddingCache(store Store, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EmbeddingCache{store: store, ttl: ttl}
}

// Get returns the cached embedding for query, or ErrCacheMiss.
func (c *EmbeddingCache) Get(ctx context.Context, query string) ([]float64, error) {
	var vec []float64
	if err := GetJSON(ctx, c.store, embeddingKeyPrefix+hashKey(query), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// Put stores the embedding for query.
func (c *EmbeddingCache) Put(ctx context.Context, query string, vec []float64) error {
	return SetJSON(ctx, c.store, embeddingKeyPrefix+hashKey(query), vec, c.ttl)
}

// ResultEntry is the cached outcome of one retrieval: the ordered chunk ids
// plus summary metadata. Full citation text is never cached; chunks are
// re-fetched by id on a hit. Cached entries carry no meaningful score — the
// engine assigns a placeholder on rehydration.
type ResultEntry struct {
	ChunkIDs []string  `json:"chunk_ids"`
	Domain   string    `json:"domain"`
	TopK     int       `json:"top_k"`
	CachedAt time.Time `json:"cached_at"`
}

// ResultCache caches retrieval results keyed by (domain, query).
type ResultCache struct {
	store Store
	ttl   time.Duration
}

// NewResultCache wraps a store with the structured-lookup TTL (default 300s).
func NewResultCache(store Store, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{store: store, ttl: ttl}
}

// Get returns the cached result entry for (domain, query), or ErrCacheMiss.
func (c *ResultCache) Get(ctx context.Context, domain, query string) (*ResultEntry, error) {
	var entry ResultEntry
	if err := GetJSON(ctx, c.store, resultKeyPrefix+hashKey(domain, query), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put stores the result entry for (domain, query).
func (c *ResultCache) Put(ctx context.Context, domain, query string, entry *ResultEntry) error {
	return SetJSON(ctx, c.store, resultKeyPrefix+hashKey(domain, query), entry, c.ttl)
}
