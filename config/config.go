// Package config loads the full service configuration: defaults, then an
// optional YAML file, then environment overrides for credentials and
// addresses.
package config

import (
	"time"

	"github.com/BaSui01/queryflow/cache"
	"github.com/BaSui01/queryflow/embedding"
	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/memory"
	"github.com/BaSui01/queryflow/retrieval"
	"github.com/BaSui01/queryflow/workflow"
)

// Config is the complete service configuration.
type Config struct {
	// Log configures the zap logger.
	Log LogConfig `yaml:"log"`

	// Cache configures the redis tier; empty addr runs in-process only.
	Cache cache.Config `yaml:"cache"`

	// EmbeddingCacheTTL bounds cached query embeddings.
	EmbeddingCacheTTL time.Duration `yaml:"embedding_cache_ttl"`
	// ResultCacheTTL bounds cached retrieval results.
	ResultCacheTTL time.Duration `yaml:"result_cache_ttl"`

	// LLM configures the chat completions endpoint.
	LLM llm.OpenAICompatConfig `yaml:"llm"`
	// LLMRateLimit throttles gateway calls; zero disables the limiter.
	LLMRateLimit RateLimitConfig `yaml:"llm_rate_limit"`

	// Embedding configures the embeddings endpoint.
	Embedding embedding.OpenAICompatConfig `yaml:"embedding"`

	// Retrieval tunes the retrieval pipeline.
	Retrieval retrieval.Config `yaml:"retrieval"`

	// Generator tunes grounded prompt construction.
	Generator workflow.GeneratorConfig `yaml:"generator"`

	// Workflow tunes the turn state machine.
	Workflow workflow.Config `yaml:"workflow"`

	// Agent tunes the tool-use loop.
	Agent workflow.AgentConfig `yaml:"agent"`

	// Memory tunes conversation compaction.
	Memory memory.Config `yaml:"memory"`

	// IntentKeywords maps domain names to keyword lists for the cheap
	// pre-classification pass.
	IntentKeywords map[string][]string `yaml:"intent_keywords"`

	// MetricsNamespace prefixes prometheus metric names.
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// RateLimitConfig is a token-bucket limit.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		Log:               LogConfig{Level: "info", Format: "json"},
		Cache:             cache.DefaultConfig(),
		EmbeddingCacheTTL: time.Hour,
		ResultCacheTTL:    5 * time.Minute,
		Retrieval:         retrieval.DefaultConfig(),
		Generator:         workflow.DefaultGeneratorConfig(),
		Workflow:          workflow.DefaultConfig(),
		Agent:             workflow.DefaultAgentConfig(),
		Memory:            memory.DefaultConfig(),
		MetricsNamespace:  "queryflow",
	}
}
