// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/config"
)

// APIError is a non-2xx response from a model endpoint. It is returned
// unwrapped so callers can decide retryability; the transport layer itself
// never retries.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm API error: status %d, body: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status indicates a transient condition.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// OpenAIClient implements schemas.LLMClient against any OpenAI-compatible
// chat completions endpoint (a hosted API or a self-managed proxy).
type OpenAIClient struct {
	client    *resty.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// -- Chat Completions Request/Response Structures (Internal to this file) --

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient initializes the client against cfg.Endpoint.
func NewOpenAIClient(cfg config.LLMConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for the openai provider")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json")

	return &OpenAIClient{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger.Named("llm_client.openai"),
	}, nil
}

// Generate sends one chat completion request and returns the assistant
// message content. There is no retry here; each call is a single shot and
// the caller owns any retry policy.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	payload := chatCompletionRequest{
		Model:       c.model,
		Temperature: req.Options.Temperature,
		MaxTokens:   c.maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
	}
	if req.Options.MaxTokens > 0 {
		payload.MaxTokens = req.Options.MaxTokens
	}
	if req.Options.ForceJSONFormat {
		payload.ResponseFormat = &chatResponseFormat{Type: "json_object"}
	}

	var out chatCompletionResponse
	startTime := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post("/chat/completions")
	duration := time.Since(startTime)

	if err != nil {
		return "", fmt.Errorf("failed to execute chat completion request: %w", err)
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Body: truncateBody(resp.Body(), 1024)}
		c.logger.Error("Chat endpoint returned error status",
			zap.Int("status", apiErr.StatusCode),
			zap.String("response", apiErr.Body),
		)
		return "", apiErr
	}

	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat endpoint returned no choices")
	}
	content := out.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("chat endpoint returned an empty completion (finish_reason: %s)", out.Choices[0].FinishReason)
	}

	c.logger.Debug("LLM generation complete (chat completions)",
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", out.Usage.PromptTokens),
		zap.Int("completion_tokens", out.Usage.CompletionTokens),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.String("finish_reason", out.Choices[0].FinishReason),
	)

	return content, nil
}

// Close releases idle connections held by the underlying HTTP client.
func (c *OpenAIClient) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}

// truncateBody keeps error logs bounded when an endpoint returns HTML or a
// dump instead of a JSON error.
func truncateBody(body []byte, maxLen int) string {
	if len(body) <= maxLen {
		return string(body)
	}
	return string(body[:maxLen]) + "..."
}
