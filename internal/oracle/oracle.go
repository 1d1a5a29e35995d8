// Package oracle provides chat completion via langchaingo.
//
// Every language-model collaborator in buyerd (classifier, filter
// generator, compliance verdicts, justifications) goes through one Client
// pointed at an OpenAI-compatible endpoint. The client owns the call
// timeout and an outbound rate limit; callers own prompts and parsing.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

var (
	// ErrEmptyPrompt indicates an empty user prompt.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds configuration for the oracle client.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint, e.g.
	// https://api.groq.com/openai/v1 or https://api.openai.com/v1.
	BaseURL string

	// Model is the chat model to use.
	Model string

	// APIKey is the bearer token. Optional for local endpoints.
	APIKey string

	// Timeout bounds each completion call.
	Timeout time.Duration

	// RatePerSecond bounds outbound calls; 0 disables limiting.
	RatePerSecond float64
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Completer is the narrow surface the adapters consume. Satisfied by
// Client and by test fakes.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts ...Option) (string, error)
}

// Option tunes a single completion call.
type Option func(*callOptions)

type callOptions struct {
	temperature float64
	maxTokens   int
}

// WithTemperature sets the sampling temperature for one call.
func WithTemperature(t float64) Option {
	return func(o *callOptions) { o.temperature = t }
}

// WithMaxTokens caps the completion length for one call.
func WithMaxTokens(n int) Option {
	return func(o *callOptions) { o.maxTokens = n }
}

// Client provides chat completion against one configured model.
type Client struct {
	model   llms.Model
	config  Config
	limiter *rate.Limiter
}

// NewClient creates an oracle client with the given configuration.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for keyless local endpoints.
		apiKey = "placeholder"
	}

	model, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithModel(config.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	var limiter *rate.Limiter
	if config.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), 1)
	}

	return &Client{model: model, config: config, limiter: limiter}, nil
}

// Complete sends one system+user exchange and returns the raw completion
// text. The configured timeout applies to the waiting for a rate slot and
// the model call together, so a saturated limiter surfaces as a deadline
// error instead of an unbounded stall.
func (c *Client) Complete(ctx context.Context, system, user string, opts ...Option) (string, error) {
	if user == "" {
		return "", ErrEmptyPrompt
	}

	options := callOptions{temperature: 0.1, maxTokens: 1024}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("awaiting rate slot: %w", err)
		}
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	resp, err := c.model.GenerateContent(ctx, content,
		llms.WithTemperature(options.temperature),
		llms.WithMaxTokens(options.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: no choices returned")
	}
	return resp.Choices[0].Content, nil
}
