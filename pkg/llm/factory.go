package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ProviderConfig selects and configures the LLM provider.
type ProviderConfig struct {
	Provider       string // "openai" (any OpenAI-compatible endpoint) or "anthropic"
	Endpoint       string
	Model          string
	APIKey         string
	EmbeddingModel string
}

// NewClient creates a Client for the configured provider, wrapped with retry
// and circuit breaker behavior.
func NewClient(cfg *ProviderConfig, logger *zap.Logger) (Client, error) {
	base, err := newBaseClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewResilientClient(base), nil
}

func newBaseClient(cfg *ProviderConfig, logger *zap.Logger) (Client, error) {
	clientCfg := &Config{
		Endpoint:       cfg.Endpoint,
		Model:          cfg.Model,
		APIKey:         cfg.APIKey,
		EmbeddingModel: cfg.EmbeddingModel,
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIClient(clientCfg, logger)
	case "anthropic":
		return NewAnthropicClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
