package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/types"
)

// VectorIndex wraps a similarity-search backend. Query returns up to limit
// scored nearest chunks filtered to the given domain.
type VectorIndex interface {
	Query(ctx context.Context, vector []float64, domain string, limit int) ([]Hit, error)
	Add(ctx context.Context, chunks []types.Chunk, vectors [][]float64) error
}

type vectorEntry struct {
	chunk  types.Chunk
	vector []float64
}

// MemoryVectorIndex is an in-process cosine-similarity VectorIndex. It serves
// as the default backend and as the fallback when an external store is not
// configured.
type MemoryVectorIndex struct {
	mu      sync.RWMutex
	entries map[string][]vectorEntry // domain -> entries
	logger  *zap.Logger
}

// NewMemoryVectorIndex creates an empty in-memory vector index.
func NewMemoryVectorIndex(logger *zap.Logger) *MemoryVectorIndex {
	return &MemoryVectorIndex{
		entries: make(map[string][]vectorEntry),
		logger:  logger.With(zap.String("component", "vector_index")),
	}
}

// Add appends chunk vectors to their domain partitions. Chunks and vectors
// are matched positionally.
func (v *MemoryVectorIndex) Add(_ context.Context, chunks []types.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return types.NewError(types.ErrInvalidInput, "chunk/vector count mismatch")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for i, c := range chunks {
		v.entries[c.Domain] = append(v.entries[c.Domain], vectorEntry{chunk: c, vector: vectors[i]})
	}
	return nil
}

// Query returns the limit nearest chunks in the domain by cosine similarity.
func (v *MemoryVectorIndex) Query(_ context.Context, vector []float64, domain string, limit int) ([]Hit, error) {
	v.mu.RLock()
	entries := v.entries[domain]
	v.mu.RUnlock()

	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		score := cosineSimilarity(vector, e.vector)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{ChunkID: e.chunk.ChunkID, Score: score, Chunk: e.chunk})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
