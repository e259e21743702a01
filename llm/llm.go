package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/fabfab/policynth/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

type Options struct {
	Provider  string
	Model     string
	MaxTokens int
	Timeout   time.Duration

	OllamaHost      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
}

// NewClient builds the answer generation client.
func NewClient(cfg config.Config) (Client, error) {
	return build(cfg, cfg.LLM.Provider, cfg.LLM)
}

// NewIntentClient builds the lightweight model used for question classification.
func NewIntentClient(cfg config.Config) (Client, error) {
	return build(cfg, cfg.IntentProvider(), cfg.IntentLLM)
}

func build(cfg config.Config, provider string, model config.LLMConfig) (Client, error) {
	opts := Options{
		Provider:        provider,
		Model:           model.Model,
		MaxTokens:       model.MaxTokens,
		Timeout:         model.Timeout,
		OllamaHost:      cfg.OllamaHost,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
	}

	client, err := newProvider(opts)
	if err != nil {
		return nil, err
	}

	client = WithTimeout(client, opts.Timeout)
	if cfg.RateLimit.RequestsPerSecond > 0 {
		client = NewRateLimited(client, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	return client, nil
}

func newProvider(opts Options) (Client, error) {
	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	case config.ProviderAnthropic:
		if opts.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but ANTHROPIC_API_KEY not set")
		}
		return NewAnthropicClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}

type deadlineClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout bounds every Generate call by timeout. A non-positive timeout
// returns next unchanged.
func WithTimeout(next Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return next
	}
	return &deadlineClient{next: next, timeout: timeout}
}

func (c *deadlineClient) Generate(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.Generate(ctx, messages)
}
