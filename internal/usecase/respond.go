package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"voice-gateway/internal/cache"
	"voice-gateway/internal/domain"
)

const defaultCacheTTL = time.Hour

// Provider turns prepared messages into a reply.
type Provider interface {
	Invoke(ctx context.Context, messages []domain.ChatMessage) (string, domain.ProviderMetadata, error)
}

// CacheStore is the response cache. Errors are treated as misses.
type CacheStore interface {
	Get(ctx context.Context, key string) (domain.CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry domain.CacheEntry, ttl time.Duration) error
}

// ResponseGateway answers a conversation from the cache, the primary
// provider or the fallback provider, in that order. It holds no
// conversation state; concurrent calls share only the cache.
type ResponseGateway struct {
	primary  Provider
	fallback Provider
	cache    CacheStore
	ttl      time.Duration
	persona  string
	logger   *slog.Logger
}

type GatewayOption func(*ResponseGateway)

// WithCache enables response caching. Without it every call is a miss.
func WithCache(store CacheStore, ttl time.Duration) GatewayOption {
	return func(g *ResponseGateway) {
		g.cache = store
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

func WithPersonaPrompt(persona string) GatewayOption {
	return func(g *ResponseGateway) {
		if strings.TrimSpace(persona) != "" {
			g.persona = persona
		}
	}
}

func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *ResponseGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

type GenerateInput struct {
	History  []domain.ChatMessage
	UseCache bool
}

type GenerateOutput struct {
	Text     string
	Metadata domain.ProviderMetadata
	CacheHit bool
}

func NewResponseGateway(primary, fallback Provider, opts ...GatewayOption) (*ResponseGateway, error) {
	if primary == nil {
		return nil, errors.New("usecase: primary provider must not be nil")
	}
	if fallback == nil {
		return nil, errors.New("usecase: fallback provider must not be nil")
	}
	g := &ResponseGateway{
		primary:  primary,
		fallback: fallback,
		ttl:      defaultCacheTTL,
		persona:  DefaultPersonaPrompt,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// GenerateResponse returns a reply to the last message of in.History.
func (g *ResponseGateway) GenerateResponse(ctx context.Context, in GenerateInput) (GenerateOutput, error) {
	if len(in.History) == 0 {
		return GenerateOutput{}, newError(ErrorInvalidInput, "empty_history", nil)
	}
	useCache := in.UseCache && g.cache != nil
	key := cache.Key(cache.NamespaceLLM, in.History[len(in.History)-1].Content)

	if useCache {
		if entry, ok := g.lookup(ctx, key); ok {
			g.logger.InfoContext(ctx, "cache hit for llm response",
				"provider", entry.Metadata.Provider, "model", entry.Metadata.Model)
			return GenerateOutput{Text: entry.Response, Metadata: entry.Metadata, CacheHit: true}, nil
		}
	}

	messages := PrepareMessages(g.persona, in.History)

	text, meta, primaryErr := g.primary.Invoke(ctx, messages)
	if primaryErr != nil {
		g.logger.WarnContext(ctx, "primary provider failed, falling back", "err", primaryErr)

		var fallbackErr error
		text, meta, fallbackErr = g.fallback.Invoke(ctx, messages)
		if fallbackErr != nil {
			g.logger.ErrorContext(ctx, "fallback provider also failed", "err", fallbackErr)
			return GenerateOutput{}, allProvidersFailed(primaryErr, fallbackErr)
		}
	}

	g.logger.InfoContext(ctx, "response generated",
		"provider", meta.Provider, "model", meta.Model, "chars", len(text))
	if useCache {
		g.store(ctx, key, domain.CacheEntry{Response: text, Metadata: meta})
	}
	return GenerateOutput{Text: text, Metadata: meta}, nil
}

func (g *ResponseGateway) lookup(ctx context.Context, key string) (domain.CacheEntry, bool) {
	entry, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.WarnContext(ctx, "cache read failed, treating as miss", "err", err)
		return domain.CacheEntry{}, false
	}
	return entry, ok
}

func (g *ResponseGateway) store(ctx context.Context, key string, entry domain.CacheEntry) {
	if err := g.cache.Set(ctx, key, entry, g.ttl); err != nil {
		g.logger.WarnContext(ctx, "cache write failed", "err", err)
	}
}
