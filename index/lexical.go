package index

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/types"
)

// Hit is a scored chunk returned by a backend query.
type Hit struct {
	ChunkID string
	Score   float64
	Chunk   types.Chunk
}

// LexicalConfig holds BM25 parameters.
type LexicalConfig struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
}

// DefaultLexicalConfig returns the standard BM25 parameters.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{K1: 1.5, B: 0.75}
}

// lexicalDoc holds precomputed term statistics for one chunk.
type lexicalDoc struct {
	chunk    types.Chunk
	termFreq map[string]int
	length   int
}

// domainCorpus is the per-domain posting data.
type domainCorpus struct {
	docs      []lexicalDoc
	idf       map[string]float64
	avgDocLen float64
}

// LexicalIndex is an in-memory BM25 index partitioned by domain.
type LexicalIndex struct {
	config  LexicalConfig
	mu      sync.RWMutex
	domains map[string]*domainCorpus
	logger  *zap.Logger
}

// NewLexicalIndex creates an empty lexical index.
func NewLexicalIndex(config LexicalConfig, logger *zap.Logger) *LexicalIndex {
	if config.K1 <= 0 {
		config.K1 = 1.5
	}
	if config.B <= 0 {
		config.B = 0.75
	}
	return &LexicalIndex{
		config:  config,
		domains: make(map[string]*domainCorpus),
		logger:  logger.With(zap.String("component", "lexical_index")),
	}
}

// Index replaces the posting data for every domain present in chunks.
// Statistics (IDF, average document length) are recomputed per domain.
func (idx *LexicalIndex) Index(chunks []types.Chunk) {
	byDomain := make(map[string][]types.Chunk)
	for _, c := range chunks {
		byDomain[c.Domain] = append(byDomain[c.Domain], c)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for domain, docs := range byDomain {
		corpus := &domainCorpus{idf: make(map[string]float64)}

		totalLen := 0
		termDocCount := make(map[string]int)

		for _, chunk := range docs {
			terms := Tokenize(chunk.Title + " " + chunk.Text)
			tf := make(map[string]int, len(terms))
			seen := make(map[string]bool)
			for _, term := range terms {
				tf[term]++
				if !seen[term] {
					termDocCount[term]++
					seen[term] = true
				}
			}
			corpus.docs = append(corpus.docs, lexicalDoc{chunk: chunk, termFreq: tf, length: len(terms)})
			totalLen += len(terms)
		}

		if len(corpus.docs) > 0 {
			corpus.avgDocLen = float64(totalLen) / float64(len(corpus.docs))
		}

		n := float64(len(corpus.docs))
		for term, df := range termDocCount {
			corpus.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
		}

		idx.domains[domain] = corpus
		idx.logger.Info("domain indexed",
			zap.String("domain", domain),
			zap.Int("chunks", len(corpus.docs)))
	}
}

// Search scores the query against the domain corpus and returns up to limit
// hits in descending score order. Chunks with no matching term are omitted.
func (idx *LexicalIndex) Search(_ context.Context, query, domain string, limit int) ([]Hit, error) {
	idx.mu.RLock()
	corpus, ok := idx.domains[domain]
	idx.mu.RUnlock()
	if !ok || len(corpus.docs) == 0 {
		return nil, nil
	}

	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, limit)
	for _, doc := range corpus.docs {
		score := 0.0
		docLen := float64(doc.length)

		for _, term := range queryTerms {
			tf, ok := doc.termFreq[term]
			if !ok {
				continue
			}
			idf := corpus.idf[term]
			numerator := float64(tf) * (idx.config.K1 + 1.0)
			denominator := float64(tf) + idx.config.K1*(1.0-idx.config.B+idx.config.B*(docLen/corpus.avgDocLen))
			score += idf * (numerator / denominator)
		}

		if score > 0 {
			hits = append(hits, Hit{ChunkID: doc.chunk.ChunkID, Score: score, Chunk: doc.chunk})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Tokenize lowercases text and splits on non-alphanumeric runes.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
