// internal/llmclient/anthropic_client.go
package llmclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/config"
)

// AnthropicClient implements schemas.LLMClient on top of the Anthropic SDK.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicClient initializes the SDK client.
func NewAnthropicClient(cfg config.LLMConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		logger:    logger.Named("llm_client.anthropic"),
	}, nil
}

// Generate sends one messages request and concatenates the text blocks of
// the reply. The API has no native JSON response mode, so ForceJSONFormat
// is honored by tightening the system prompt instead.
func (c *AnthropicClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	system := req.SystemPrompt
	if req.Options.ForceJSONFormat {
		system += "\n\nRespond with a single valid JSON document and nothing else. No prose, no markdown fences."
	}

	maxTokens := c.maxTokens
	if req.Options.MaxTokens > 0 {
		maxTokens = req.Options.MaxTokens
	}

	startTime := time.Now()
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Temperature: anthropic.Float(req.Options.Temperature),
	})
	duration := time.Since(startTime)
	if err != nil {
		return "", fmt.Errorf("anthropic generation failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}
	text := sb.String()
	if text == "" {
		return "", fmt.Errorf("anthropic returned no text content (stop reason: %s)", resp.StopReason)
	}

	c.logger.Debug("LLM generation complete (Anthropic)",
		zap.Duration("duration", duration),
		zap.Int64("prompt_tokens", resp.Usage.InputTokens),
		zap.Int64("completion_tokens", resp.Usage.OutputTokens),
	)

	return text, nil
}

// Close releases SDK resources. The SDK client is stateless between calls.
func (c *AnthropicClient) Close() error {
	return nil
}
