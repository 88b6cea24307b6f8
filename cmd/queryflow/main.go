// queryflow is the interactive entry point: it wires the retrieval pipeline
// and the turn engine from configuration, optionally ingests a knowledge base
// directory, serves prometheus metrics, and answers queries read from stdin.
//
// Usage:
//
//	queryflow -config config.yaml -kb ./docs -metrics-addr :9090
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/cache"
	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/embedding"
	"github.com/BaSui01/queryflow/index"
	"github.com/BaSui01/queryflow/internal/metrics"
	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/memory"
	"github.com/BaSui01/queryflow/retrieval"
	"github.com/BaSui01/queryflow/retry"
	"github.com/BaSui01/queryflow/types"
	"github.com/BaSui01/queryflow/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	kbDir := flag.String("kb", "", "directory of knowledge base files to ingest (*.md, *.txt)")
	domain := flag.String("domain", workflow.DefaultDomain, "domain to ingest the knowledge base under")
	metricsAddr := flag.String("metrics-addr", "", "address for the prometheus metrics endpoint, empty disables")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := config.BuildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(context.Background(), cfg, *kbDir, *domain, *metricsAddr, logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, kbDir, domain, metricsAddr string, logger *zap.Logger) error {
	collector := metrics.NewCollector(cfg.MetricsNamespace, prometheus.DefaultRegisterer, logger)
	if metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	store := buildCacheStore(cfg, logger)
	defer store.Close()

	retryer := retry.NewRetryer(nil, logger)

	provider := embedding.NewOpenAICompatProvider(cfg.Embedding, logger)
	cachedProvider := embedding.NewCachedProvider(
		provider,
		cache.NewEmbeddingCache(store, cfg.EmbeddingCacheTTL),
		retryer,
		logger,
	)

	lexical := index.NewLexicalIndex(index.LexicalConfig{}, logger)
	vector := index.NewMemoryVectorIndex(logger)
	chunks := index.NewMemoryChunkStore()

	if kbDir != "" {
		ingestor := index.NewIngestor(lexical, vector, chunks, cachedProvider, logger)
		batch, err := loadKnowledgeBase(kbDir, domain)
		if err != nil {
			return fmt.Errorf("load knowledge base: %w", err)
		}
		if err := ingestor.Ingest(ctx, batch); err != nil {
			return fmt.Errorf("ingest knowledge base: %w", err)
		}
	}

	// No feedback store is wired here; the capability is absent and the
	// boost stage is skipped.
	engine := retrieval.NewEngine(
		cfg.Retrieval,
		cachedProvider,
		vector,
		lexical,
		chunks,
		cache.NewResultCache(store, cfg.ResultCacheTTL),
		nil,
		retryer,
		collector,
		logger,
	)

	var gateway llm.Gateway = llm.NewOpenAICompatGateway(cfg.LLM, logger)
	if cfg.LLMRateLimit.RPS > 0 {
		gateway = llm.NewRateLimitedGateway(gateway, cfg.LLMRateLimit.RPS, cfg.LLMRateLimit.Burst)
	}
	gateway = llm.NewRetryingGateway(gateway, retryer)

	turns := workflow.NewEngine(
		cfg.Workflow,
		workflow.NewIntentDetector(cfg.IntentKeywords, gateway, logger),
		engine,
		workflow.NewGenerator(cfg.Generator, gateway, logger),
		workflow.NewGuardrail(nil, logger),
		workflow.DraftTicketPlanner{},
		memory.NewCompactor(cfg.Memory, gateway, logger),
		collector,
		logger,
	)

	return repl(ctx, turns, logger)
}

// buildCacheStore returns the tiered store when redis is configured, the
// in-process store otherwise.
func buildCacheStore(cfg config.Config, logger *zap.Logger) cache.Store {
	memStore := cache.NewMemoryStore(cfg.Cache.DefaultTTL)
	if cfg.Cache.Addr == "" {
		return memStore
	}
	redisStore, err := cache.NewRedisStore(cfg.Cache, logger)
	if err != nil {
		logger.Warn("redis unreachable, using in-process cache only", zap.Error(err))
		return memStore
	}
	return cache.NewTieredStore(redisStore, memStore, logger)
}

// loadKnowledgeBase reads *.md and *.txt files under dir, one chunk per
// blank-line-separated block.
func loadKnowledgeBase(dir, domain string) ([]types.Chunk, error) {
	var chunks []types.Chunk
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		docID := strings.TrimSuffix(filepath.Base(path), ext)
		title := docID
		for i, block := range strings.Split(string(raw), "\n\n") {
			text := strings.TrimSpace(block)
			if text == "" {
				continue
			}
			chunks = append(chunks, types.Chunk{
				ChunkID:    fmt.Sprintf("%s-%d", docID, i),
				DocumentID: docID,
				Domain:     domain,
				Title:      title,
				Text:       text,
				SectionID:  fmt.Sprintf("%s#%d", docID, i),
				Index:      i,
			})
		}
		return nil
	})
	return chunks, err
}

// repl reads one query per line and prints the answer with its citations.
func repl(ctx context.Context, turns *workflow.Engine, logger *zap.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var mem types.Memory
	fmt.Println("queryflow ready, enter a query:")
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			break
		}

		result, err := turns.Run(ctx, query, mem, "cli")
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		mem = result.Memory

		fmt.Println(result.Answer)
		for i, c := range result.Citations {
			fmt.Printf("  [S%d] %s (%s)\n", i+1, c.Title, c.DocID)
		}
		logger.Debug("turn complete",
			zap.String("turn_id", result.Telemetry.TurnID),
			zap.Duration("latency", result.Telemetry.Latency),
			zap.Int("retries", result.Telemetry.RetryCount))
	}
	return scanner.Err()
}
