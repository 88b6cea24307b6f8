package embedding

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/queryflow/cache"
	"github.com/BaSui01/queryflow/retry"
)

// CachedProvider decorates a Provider with the embedding cache and the shared
// retry policy. Concurrent requests for the same query are collapsed into one
// upstream call.
type CachedProvider struct {
	inner   Provider
	cache   *cache.EmbeddingCache
	retryer retry.Retryer
	group   singleflight.Group
	logger  *zap.Logger
}

// NewCachedProvider wraps inner. The cache may be nil, in which case only
// retry and request collapsing apply.
func NewCachedProvider(inner Provider, ec *cache.EmbeddingCache, retryer retry.Retryer, logger *zap.Logger) *CachedProvider {
	if retryer == nil {
		retryer = retry.NewRetryer(nil, logger)
	}
	return &CachedProvider{
		inner:   inner,
		cache:   ec,
		retryer: retryer,
		logger:  logger.With(zap.String("component", "embedding")),
	}
}

// EmbedQuery resolves the query embedding through the cache, collapsing
// concurrent identical requests, and retries the upstream call per policy.
func (p *CachedProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if p.cache != nil {
		if vec, err := p.cache.Get(ctx, query); err == nil {
			return vec, nil
		}
	}

	v, err, _ := p.group.Do(query, func() (any, error) {
		var vec []float64
		err := p.retryer.Do(ctx, func() error {
			var innerErr error
			vec, innerErr = p.inner.EmbedQuery(ctx, query)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		if p.cache != nil {
			if cacheErr := p.cache.Put(ctx, query, vec); cacheErr != nil {
				p.logger.Warn("embedding cache put failed", zap.Error(cacheErr))
			}
		}
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	// singleflight shares the slice between callers; the pipeline treats
	// embeddings as immutable so no copy is taken.
	return v.([]float64), nil
}

// EmbedDocuments embeds a batch with retry. Document embeddings are only used
// by the serialized ingestion pipeline and are not cached.
func (p *CachedProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	var vecs [][]float64
	err := p.retryer.Do(ctx, func() error {
		var innerErr error
		vecs, innerErr = p.inner.EmbedDocuments(ctx, documents)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// Name returns the wrapped provider name.
func (p *CachedProvider) Name() string { return p.inner.Name() }

// Dimensions returns the wrapped provider dimensionality.
func (p *CachedProvider) Dimensions() int { return p.inner.Dimensions() }
