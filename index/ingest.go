package index

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/embedding"
	"github.com/BaSui01/queryflow/types"
)

// ChunkStore resolves chunk ids back to chunks, used to rehydrate cached
// retrieval results without caching full text.
type ChunkStore interface {
	Get(chunkID string) (types.Chunk, bool)
	GetBatch(chunkIDs []string) []types.Chunk
}

// MemoryChunkStore is the in-process ChunkStore populated by ingestion.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]types.Chunk
}

// NewMemoryChunkStore creates an empty chunk store.
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{chunks: make(map[string]types.Chunk)}
}

// Put stores a chunk by id, overwriting any previous version.
func (s *MemoryChunkStore) Put(c types.Chunk) {
	s.mu.Lock()
	s.chunks[c.ChunkID] = c
	s.mu.Unlock()
}

// Get returns the chunk for id.
func (s *MemoryChunkStore) Get(chunkID string) (types.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[chunkID]
	return c, ok
}

// GetBatch returns the chunks for the given ids, preserving order and
// skipping unknown ids.
func (s *MemoryChunkStore) GetBatch(chunkIDs []string) []types.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Ingestor populates the lexical index, vector index, and chunk store from a
// chunk batch. Ingestion is serialized: the mutex guarantees it never runs
// concurrently with itself. It must not be called on the query turn path.
type Ingestor struct {
	lexical  *LexicalIndex
	vector   VectorIndex
	store    *MemoryChunkStore
	embedder embedding.Provider
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewIngestor wires the ingestion pipeline.
func NewIngestor(lexical *LexicalIndex, vector VectorIndex, store *MemoryChunkStore, embedder embedding.Provider, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		lexical:  lexical,
		vector:   vector,
		store:    store,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "ingestor")),
	}
}

// Ingest indexes a chunk batch. Chunks sharing a ChunkID collapse to one
// logical chunk regardless of how many source formats carried the same text.
func (ing *Ingestor) Ingest(ctx context.Context, chunks []types.Chunk) error {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	// Deduplicate by logical chunk id, first occurrence wins.
	seen := make(map[string]bool, len(chunks))
	unique := make([]types.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.ChunkID] {
			continue
		}
		seen[c.ChunkID] = true
		unique = append(unique, c)
	}

	ing.lexical.Index(unique)
	for _, c := range unique {
		ing.store.Put(c)
	}

	if ing.vector == nil || ing.embedder == nil {
		ing.logger.Info("ingested without vector index",
			zap.Int("chunks", len(unique)))
		return nil
	}

	texts := make([]string, len(unique))
	for i, c := range unique {
		texts[i] = c.Text
	}

	vectors, err := ing.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		// Lexical search still works; vector coverage degrades for this batch.
		ing.logger.Warn("document embedding failed, vector index not updated", zap.Error(err))
		return nil
	}

	if err := ing.vector.Add(ctx, unique, vectors); err != nil {
		ing.logger.Warn("vector index add failed", zap.Error(err))
		return nil
	}

	ing.logger.Info("ingested",
		zap.Int("chunks", len(unique)),
		zap.Int("dropped_duplicates", len(chunks)-len(unique)))
	return nil
}
