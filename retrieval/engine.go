package retrieval

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/cache"
	"github.com/BaSui01/queryflow/index"
	"github.com/BaSui01/queryflow/internal/metrics"
	"github.com/BaSui01/queryflow/retry"
	"github.com/BaSui01/queryflow/types"
)

// placeholderScore is assigned to citations rehydrated from the result cache.
// It is not comparable to freshly computed pipeline scores; downstream
// ranking must not treat it as a similarity.
const placeholderScore = 1.0

// QueryEmbedder resolves a query embedding. Satisfied by
// embedding.CachedProvider.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
}

// LexicalSearcher is the sparse backend consumed by the engine. Satisfied by
// index.LexicalIndex.
type LexicalSearcher interface {
	Search(ctx context.Context, query, domain string, limit int) ([]index.Hit, error)
}

// Config holds the engine's tuning parameters.
type Config struct {
	// TopK is the default result count when the caller passes 0.
	TopK int `yaml:"top_k" json:"top_k"`
	// OverFetchFactor multiplies topK for each backend query so dedup and
	// fusion have enough candidates.
	OverFetchFactor int `yaml:"over_fetch_factor" json:"over_fetch_factor"`
	// Fusion configures reciprocal rank fusion.
	Fusion FusionConfig `yaml:"fusion" json:"fusion"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		TopK:            5,
		OverFetchFactor: 3,
		Fusion:          DefaultFusionConfig(),
	}
}

// Result is the outcome of one retrieval. The engine never returns an error:
// backend failures degrade to fewer (or zero) citations, with Unavailable set
// when no grounding at all could be produced.
type Result struct {
	Citations []types.Citation
	// Unavailable flags that retrieval could not run (embedding failure or
	// all backends down). The generation stage switches to its summary-only
	// degraded path when set.
	Unavailable bool
	// CacheHit reports that citations were rehydrated from the result cache
	// and carry placeholder scores.
	CacheHit bool
}

// Engine orchestrates the full retrieval pipeline:
// cache → embedding → vector+lexical → dedup → RRF → feedback → overlap boost.
type Engine struct {
	config      Config
	embedder    QueryEmbedder
	vector      index.VectorIndex
	lexical     LexicalSearcher
	chunks      index.ChunkStore
	resultCache *cache.ResultCache
	reranker    *FeedbackReranker
	retryer     retry.Retryer
	collector   *metrics.Collector
	logger      *zap.Logger
}

// NewEngine wires the retrieval pipeline. resultCache, reranker, and
// collector may be nil; the corresponding stage is skipped.
func NewEngine(
	config Config,
	embedder QueryEmbedder,
	vector index.VectorIndex,
	lexical LexicalSearcher,
	chunks index.ChunkStore,
	resultCache *cache.ResultCache,
	reranker *FeedbackReranker,
	retryer retry.Retryer,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Engine {
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if config.OverFetchFactor <= 0 {
		config.OverFetchFactor = 3
	}
	if retryer == nil {
		retryer = retry.NewRetryer(nil, logger)
	}
	return &Engine{
		config:      config,
		embedder:    embedder,
		vector:      vector,
		lexical:     lexical,
		chunks:      chunks,
		resultCache: resultCache,
		reranker:    reranker,
		retryer:     retryer,
		collector:   collector,
		logger:      logger.With(zap.String("component", "retrieval_engine")),
	}
}

// Retrieve runs the pipeline for (domain, query) and returns up to topK
// citations in descending score order.
func (e *Engine) Retrieve(ctx context.Context, domain, query string, topK int) Result {
	start := time.Now()
	if topK <= 0 {
		topK = e.config.TopK
	}

	// 1. Result cache: a hit skips the whole pipeline. Rehydrated citations
	// carry placeholder scores.
	if cached, ok := e.fromCache(ctx, domain, query, topK); ok {
		e.observe(domain, true, len(cached), start)
		return Result{Citations: cached, CacheHit: true}
	}

	// 2. Query embedding. Failure (after retries inside the provider) means
	// retrieval is unavailable for this turn: empty result plus flag, which
	// the generation stage consumes as a mode switch.
	vector, embedErr := e.embedder.EmbedQuery(ctx, query)
	if embedErr != nil {
		e.logger.Warn("query embedding failed, retrieval unavailable",
			zap.String("domain", domain),
			zap.Error(embedErr))
		if e.collector != nil {
			e.collector.IncBackendError("embedding")
		}
		e.observe(domain, false, 0, start)
		return Result{Unavailable: true}
	}

	// 3. Query both backends concurrently, each over-fetched and filtered to
	// the domain.
	fetchLimit := topK * e.config.OverFetchFactor
	vectorHits, lexicalHits, bothFailed := e.queryBackends(ctx, vector, domain, query, fetchLimit)

	if len(vectorHits) == 0 && len(lexicalHits) == 0 {
		e.observe(domain, false, 0, start)
		if bothFailed {
			return Result{Unavailable: true}
		}
		return Result{}
	}

	// 4+5. Dedup each list, then fuse. Deduplication precedes feedback
	// re-ranking so the batched lookup sees fewer unique ids.
	vectorCits := Deduplicate(citationsFromHits(vectorHits))
	lexicalCits := Deduplicate(citationsFromHits(lexicalHits))
	fused := Deduplicate(FuseRRF(e.config.Fusion, vectorCits, lexicalCits))

	// 6. Feedback re-rank, one batched lookup.
	if e.reranker != nil {
		fused = e.reranker.Rerank(ctx, fused, domain)
	}

	// 7. Domain lexical overlap boost.
	fused = OverlapBoost(query, fused)

	if len(fused) > topK {
		fused = fused[:topK]
	}

	// 8. Cache ordered chunk ids, not full text.
	e.toCache(ctx, domain, query, topK, fused, vectorHits, lexicalHits)

	e.observe(domain, false, len(fused), start)
	return Result{Citations: fused}
}

// queryBackends fans out to both backends and joins. A failed backend
// degrades to the other; bothFailed reports that neither produced hits
// because every query errored after retries.
func (e *Engine) queryBackends(ctx context.Context, vector []float64, domain, query string, limit int) (vectorHits, lexicalHits []index.Hit, bothFailed bool) {
	var wg sync.WaitGroup
	var vectorErr, lexicalErr error

	if e.vector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorErr = e.retryer.Do(ctx, func() error {
				hits, err := e.vector.Query(ctx, vector, domain, limit)
				if err != nil {
					return err
				}
				vectorHits = hits
				return nil
			})
		}()
	}

	if e.lexical != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexicalErr = e.retryer.Do(ctx, func() error {
				hits, err := e.lexical.Search(ctx, query, domain, limit)
				if err != nil {
					return err
				}
				lexicalHits = hits
				return nil
			})
		}()
	}

	wg.Wait()

	if vectorErr != nil {
		e.logger.Warn("vector backend failed, degrading to lexical only", zap.Error(vectorErr))
		if e.collector != nil {
			e.collector.IncBackendError("vector")
		}
	}
	if lexicalErr != nil {
		e.logger.Warn("lexical backend failed, degrading to vector only", zap.Error(lexicalErr))
		if e.collector != nil {
			e.collector.IncBackendError("lexical")
		}
	}

	vectorDown := vectorErr != nil || e.vector == nil
	return vectorHits, lexicalHits, vectorDown && lexicalErr != nil
}

func (e *Engine) fromCache(ctx context.Context, domain, query string, topK int) ([]types.Citation, bool) {
	if e.resultCache == nil || e.chunks == nil {
		return nil, false
	}

	entry, err := e.resultCache.Get(ctx, domain, query)
	if err != nil {
		if !cache.IsCacheMiss(err) {
			e.logger.Warn("result cache read failed", zap.Error(err))
		}
		if e.collector != nil {
			e.collector.IncCacheMiss("result")
		}
		return nil, false
	}
	if e.collector != nil {
		e.collector.IncCacheHit("result")
	}

	ids := entry.ChunkIDs
	if len(ids) > topK {
		ids = ids[:topK]
	}
	chunks := e.chunks.GetBatch(ids)
	citations := make([]types.Citation, 0, len(chunks))
	for _, c := range chunks {
		citations = append(citations, types.CitationFromChunk(c, placeholderScore))
	}
	return citations, true
}

func (e *Engine) toCache(ctx context.Context, domain, query string, topK int, fused []types.Citation, vectorHits, lexicalHits []index.Hit) {
	if e.resultCache == nil {
		return
	}

	// Map fused doc ids back to chunk ids via the backend hits.
	chunkByDoc := make(map[string]string, len(vectorHits)+len(lexicalHits))
	for _, h := range vectorHits {
		chunkByDoc[h.Chunk.DocID()] = h.ChunkID
	}
	for _, h := range lexicalHits {
		chunkByDoc[h.Chunk.DocID()] = h.ChunkID
	}

	ids := make([]string, 0, len(fused))
	for _, c := range fused {
		if id, ok := chunkByDoc[c.DocID]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	entry := &cache.ResultEntry{
		ChunkIDs: ids,
		Domain:   domain,
		TopK:     topK,
		CachedAt: time.Now(),
	}
	if err := e.resultCache.Put(ctx, domain, query, entry); err != nil {
		e.logger.Warn("result cache write failed", zap.Error(err))
	}
}

func (e *Engine) observe(domain string, cached bool, results int, start time.Time) {
	if e.collector != nil {
		e.collector.ObserveRetrieval(domain, cached, results, time.Since(start))
	}
}

func citationsFromHits(hits []index.Hit) []types.Citation {
	out := make([]types.Citation, len(hits))
	for i, h := range hits {
		out[i] = types.CitationFromChunk(h.Chunk, h.Score)
	}
	return out
}
