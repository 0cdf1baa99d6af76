package llm

import (
	"context"
	"errors"

	"github.com/saplens-io/saplens-engine/pkg/retry"
)

// ResilientClient wraps another Client with retry and circuit breaker behavior.
// Transient failures (timeouts, 5xx, rate limits) are retried with backoff;
// sustained failures trip the breaker so pipeline stages fail fast instead of
// queueing behind a dead endpoint.
type ResilientClient struct {
	inner    Client
	breaker  *CircuitBreaker
	retryCfg *retry.Config
}

// NewResilientClient wraps inner with the default LLM retry policy and a
// fresh circuit breaker.
func NewResilientClient(inner Client) *ResilientClient {
	return &ResilientClient{
		inner:    inner,
		breaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		retryCfg: retry.LLMConfig(),
	}
}

// GenerateResponse implements Client with retry and circuit breaking.
func (c *ResilientClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	if ok, err := c.breaker.Allow(); !ok {
		return nil, err
	}

	var result *GenerateResponseResult
	err := retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		r, err := c.inner.GenerateResponse(ctx, prompt, systemMessage, temperature)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}

	c.breaker.RecordSuccess()
	return result, nil
}

// CreateEmbedding implements Client with retry and circuit breaking.
func (c *ResilientClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	embeddings, err := c.CreateEmbeddings(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, errors.New("no embedding in response")
	}
	return embeddings[0], nil
}

// CreateEmbeddings implements Client with retry and circuit breaking.
// ErrEmbeddingsUnsupported passes through without touching breaker state;
// it is a provider capability, not a failure.
func (c *ResilientClient) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if ok, err := c.breaker.Allow(); !ok {
		return nil, err
	}

	var result [][]float32
	err := retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		r, err := c.inner.CreateEmbeddings(ctx, inputs)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmbeddingsUnsupported) {
			c.breaker.RecordSuccess()
			return nil, err
		}
		c.breaker.RecordFailure()
		return nil, err
	}

	c.breaker.RecordSuccess()
	return result, nil
}

// GetModel returns the wrapped client's model name.
func (c *ResilientClient) GetModel() string {
	return c.inner.GetModel()
}

// GetEndpoint returns the wrapped client's endpoint.
func (c *ResilientClient) GetEndpoint() string {
	return c.inner.GetEndpoint()
}

// BreakerState exposes the circuit state for health reporting.
func (c *ResilientClient) BreakerState() CircuitState {
	return c.breaker.State()
}
