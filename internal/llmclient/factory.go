// File: internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/config"
)

// NewClient constructs the provider named by cfg and wraps it in an
// outbound rate limiter. The reviewer and the fix dispatcher share one
// client, so the limiter caps the process's total request rate against
// the model API.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if err := cfg.Require(); err != nil {
		return nil, err
	}

	var (
		client schemas.LLMClient
		err    error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err = NewOpenAIClient(cfg, logger)
	case config.ProviderGemini:
		client, err = NewGeminiClient(ctx, cfg, logger)
	case config.ProviderAnthropic:
		client, err = NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderOpenAI, config.ProviderGemini, config.ProviderAnthropic)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s LLM client (model %s): %w", cfg.Provider, cfg.Model, err)
	}

	return &limitedClient{
		inner:   client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}, nil
}

// limitedClient gates every Generate call through a token-bucket limiter.
// Concurrent fix requests still overlap in flight; only their start times
// are spaced out.
type limitedClient struct {
	inner   schemas.LLMClient
	limiter *rate.Limiter
}

func (c *limitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter interrupted: %w", err)
	}
	return c.inner.Generate(ctx, req)
}

func (c *limitedClient) Close() error {
	return c.inner.Close()
}
