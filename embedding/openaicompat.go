package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/types"
)

// OpenAICompatConfig configures the OpenAI-compatible embedding provider.
type OpenAICompatConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// Dimensions declares the model's output dimensionality.
	Dimensions int `yaml:"dimensions"`
	// EndpointPath defaults to "/v1/embeddings".
	EndpointPath string `yaml:"endpoint_path"`
}

// OpenAICompatProvider implements Provider against an OpenAI-compatible
// /v1/embeddings endpoint.
type OpenAICompatProvider struct {
	config OpenAICompatConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAICompatProvider creates the provider.
func NewOpenAICompatProvider(config OpenAICompatConfig, logger *zap.Logger) *OpenAICompatProvider {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.EndpointPath == "" {
		config.EndpointPath = "/v1/embeddings"
	}
	return &OpenAICompatProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With(zap.String("component", "embedding_provider")),
	}
}

// Name returns the provider name.
func (p *OpenAICompatProvider) Name() string { return "openai-compat" }

// Dimensions returns the configured embedding dimensionality.
func (p *OpenAICompatProvider) Dimensions() int { return p.config.Dimensions }

// EmbedQuery embeds a single query string.
func (p *OpenAICompatProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedDocuments embeds a batch of documents in one call. Vectors come back
// in input order.
func (p *OpenAICompatProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(embeddingRequest{Model: p.config.Model, Input: documents})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal embedding request").WithCause(err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + p.config.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build embedding request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, types.NewError(types.ErrUpstreamTimeout, "embedding request timed out").
				WithCause(err).WithRetryable(true).WithBackend("embedding")
		}
		return nil, types.NewError(types.ErrEmbeddingFailed, "embedding transport failure").
			WithCause(err).WithRetryable(true).WithBackend("embedding")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("embedding request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		e := types.NewError(types.ErrEmbeddingFailed, msg).WithBackend("embedding")
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			e = e.WithRetryable(true)
		}
		return nil, e
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, types.NewError(types.ErrParseFailed, "decode embedding response").WithCause(err)
	}
	if len(decoded.Data) != len(documents) {
		return nil, types.NewError(types.ErrEmbeddingFailed,
			fmt.Sprintf("embedding response has %d vectors for %d inputs", len(decoded.Data), len(documents)))
	}

	vectors := make([][]float64, len(documents))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, types.NewError(types.ErrEmbeddingFailed, "embedding response index out of range")
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
