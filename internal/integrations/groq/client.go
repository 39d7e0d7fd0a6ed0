// Package groq is the fallback provider: a single chat completion against
// Groq's OpenAI-compatible API.
package groq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"voice-gateway/internal/domain"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"

	defaultTemperature = 0.7
	defaultMaxTokens   = 100
	defaultTimeout     = 60 * time.Second
)

// KeyResolver supplies the API key for each call.
type KeyResolver interface {
	Resolve(ctx context.Context) (string, error)
}

type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	httpClient  *http.Client
	key         KeyResolver
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(key KeyResolver, cfg Config, opts ...Option) (*Client, error) {
	if key == nil {
		return nil, errors.New("groq: key resolver must not be nil")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	temperature := cfg.Temperature
	if temperature < 0 {
		temperature = defaultTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:     base,
		model:       model,
		temperature: float32(temperature),
		maxTokens:   maxTokens,
		timeout:     timeout,
		httpClient:  &http.Client{},
		key:         key,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Invoke sends messages as one chat completion. Every failure is returned
// as a *domain.ProviderUnavailableError.
func (c *Client) Invoke(ctx context.Context, messages []domain.ChatMessage) (string, domain.ProviderMetadata, error) {
	apiKey, err := c.key.Resolve(ctx)
	if err != nil {
		return "", domain.ProviderMetadata{}, c.unavailable(0, fmt.Errorf("groq: resolve api key: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api(apiKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", domain.ProviderMetadata{}, c.unavailable(1, fmt.Errorf("groq: chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", domain.ProviderMetadata{}, c.unavailable(1, errors.New("groq: no choices in response"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	return text, domain.ProviderMetadata{Provider: domain.ProviderFallback, Model: c.model}, nil
}

func (c *Client) api(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = c.httpClient
	return openai.NewClientWithConfig(cfg)
}

func (c *Client) unavailable(attempts int, err error) error {
	return &domain.ProviderUnavailableError{Provider: domain.ProviderFallback, Attempts: attempts, Err: err}
}

func toOpenAIMessages(messages []domain.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
