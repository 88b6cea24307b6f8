package llm

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

// OpenAICompatConfig configures the OpenAI-compatible chat gateway. Any
// endpoint speaking the /v1/chat/completions protocol works.
type OpenAICompatConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string `yaml:"endpoint_path"`
}

// OpenAICompatGateway implements Gateway against an OpenAI-compatible chat
// completions endpoint.
type OpenAICompatGateway struct {
	config OpenAICompatConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAICompatGateway creates the gateway.
func NewOpenAICompatGateway(config OpenAICompatConfig, logger *zap.Logger) *OpenAICompatGateway {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.EndpointPath == "" {
		config.EndpointPath = "/v1/chat/completions"
	}
	return &OpenAICompatGateway{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With(zap.String("component", "llm_gateway")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    float64        `json:"temperature,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends the request and maps transport failures into the typed
// taxonomy so the retry policy can classify them.
func (g *OpenAICompatGateway) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	body := chatRequest{
		Model:       g.config.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.Schema != nil {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal chat request").WithCause(err)
	}

	url := strings.TrimRight(g.config.BaseURL, "/") + g.config.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build chat request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, transportError("chat completion", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("chat completion", resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, types.NewError(types.ErrParseFailed, "decode chat response").WithCause(err)
	}
	if len(decoded.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "chat response has no choices").WithRetryable(true)
	}

	return &Completion{
		Text:         decoded.Choices[0].Message.Content,
		PromptTokens: decoded.Usage.PromptTokens,
		OutputTokens: decoded.Usage.CompletionTokens,
	}, nil
}

// transportError classifies a transport-level failure.
func transportError(op string, err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewError(types.ErrUpstreamTimeout, op+" timed out").WithCause(err).WithRetryable(true)
	}
	return types.NewError(types.ErrUpstreamError, op+" transport failure").WithCause(err).WithRetryable(true)
}

// statusError classifies a non-200 response.
func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimit, msg).WithRetryable(true)
	case resp.StatusCode >= 500:
		return types.NewError(types.ErrUpstreamError, msg).WithRetryable(true)
	default:
		return types.NewError(types.ErrUpstreamError, msg)
	}
}
