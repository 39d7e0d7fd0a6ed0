package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"voice-gateway/internal/domain"
)

const (
	defaultBaseURL     = "https://api.mistral.ai"
	defaultModel       = "mistral-large-latest"
	defaultTemperature = 0.7
	defaultMaxTokens   = 100
	defaultTimeout     = 60 * time.Second
)

// KeyResolver supplies the bearer token for each request.
type KeyResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("mistral: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Config holds the model and sampling settings.
type Config struct {
	BaseURL        string
	Model          string
	AlternateModel string
	Temperature    float64
	MaxTokens      int
	// Timeout bounds each individual attempt.
	Timeout time.Duration
}

// Client calls a Mistral-style endpoint whose request and response layout is
// discovered per call by trying candidate models and endpoint shapes in order.
type Client struct {
	baseURL    string
	model      string
	models     []string
	params     generationParams
	timeout    time.Duration
	httpClient *http.Client
	key        KeyResolver
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client. Empty model, base URL, max tokens and timeout
// fall back to defaults; a negative temperature selects the default.
func NewClient(key KeyResolver, cfg Config, opts ...Option) (*Client, error) {
	if key == nil {
		return nil, errors.New("mistral: key resolver must not be nil")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	base = strings.TrimSuffix(base, "/v1")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	params := generationParams{temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
	if params.temperature < 0 {
		params.temperature = defaultTemperature
	}
	if params.maxTokens <= 0 {
		params.maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:    base,
		model:      model,
		models:     candidateModels(model, cfg.AlternateModel),
		params:     params,
		timeout:    timeout,
		httpClient: &http.Client{},
		key:        key,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Invoke returns the first successful reply. Failures of individual
// attempts are logged and the next candidate is tried; when every candidate
// fails the result is a *domain.ProviderUnavailableError holding the last error.
func (c *Client) Invoke(ctx context.Context, messages []domain.ChatMessage) (string, domain.ProviderMetadata, error) {
	apiKey, err := c.key.Resolve(ctx)
	if err != nil {
		return "", domain.ProviderMetadata{}, &domain.ProviderUnavailableError{
			Provider: domain.ProviderPrimary,
			Err:      fmt.Errorf("mistral: resolve api key: %w", err),
		}
	}

	attempts := 0
	var lastErr error
	try := func(model string, shape endpointShape) (string, bool) {
		attempts++
		text, err := c.attempt(ctx, apiKey, model, shape, messages)
		if err != nil {
			lastErr = err
			c.logger.WarnContext(ctx, "mistral attempt failed",
				"model", model, "shape", shape.name, "attempt", attempts, "err", err)
			return "", false
		}
		return text, true
	}

	if text, ok := try(c.model, fastPathShape); ok {
		return text, c.metadata(c.model), nil
	}
	for _, model := range c.models {
		for _, shape := range endpointShapes {
			if model == c.model && shape.name == fastPathShape.name {
				continue
			}
			if ctx.Err() != nil {
				return "", domain.ProviderMetadata{}, c.unavailable(attempts, ctx.Err())
			}
			if text, ok := try(model, shape); ok {
				c.logger.InfoContext(ctx, "mistral negotiated endpoint",
					"model", model, "shape", shape.name, "attempts", attempts)
				return text, c.metadata(model), nil
			}
		}
	}
	return "", domain.ProviderMetadata{}, c.unavailable(attempts, lastErr)
}

func (c *Client) metadata(model string) domain.ProviderMetadata {
	return domain.ProviderMetadata{Provider: domain.ProviderPrimary, Model: model}
}

func (c *Client) unavailable(attempts int, err error) error {
	return &domain.ProviderUnavailableError{
		Provider: domain.ProviderPrimary,
		Attempts: attempts,
		Err:      err,
	}
}

// attempt issues one request under its own timeout.
func (c *Client) attempt(ctx context.Context, apiKey, model string, shape endpointShape, messages []domain.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(shape.build(model, messages, c.params))
	if err != nil {
		return "", fmt.Errorf("mistral: marshal request: %w", err)
	}

	url := shape.url(c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("mistral: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", err
	}
	text, rule := extractText(raw)
	c.logger.DebugContext(ctx, "mistral response parsed", "model", model, "shape", shape.name, "rule", rule)
	return text, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mistral: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("mistral: read response body: %w", err)
	}
	return buf, nil
}
