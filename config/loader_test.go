package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 2, cfg.Workflow.MaxRetries)
	assert.Equal(t, 20, cfg.Agent.MaxIterations)
	assert.Equal(t, 8, cfg.Memory.WindowSize)
	assert.Equal(t, time.Hour, cfg.EmbeddingCacheTTL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
retrieval:
  top_k: 12
intent_keywords:
  billing: [invoice, refund]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.Equal(t, []string{"invoice", "refund"}, cfg.IntentKeywords["billing"])
	// Untouched sections keep their defaults.
	assert.Equal(t, 2, cfg.Workflow.MaxRetries)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  api_key: from-file
`), 0o600))

	t.Setenv("QUERYFLOW_LLM_API_KEY", "from-env")
	t.Setenv("QUERYFLOW_REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "redis:6379", cfg.Cache.Addr)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestBuildLogger(t *testing.T) {
	logger, err := BuildLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1)) // debug

	logger, err = BuildLogger(LogConfig{Level: "bogus"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(0)) // falls back to info
}
