package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"voice-gateway/handler"
	"voice-gateway/internal/cache"
	"voice-gateway/internal/config"
	"voice-gateway/internal/integrations/groq"
	"voice-gateway/internal/integrations/mistral"
	"voice-gateway/internal/integrations/paramstore"
	"voice-gateway/internal/repository"
	"voice-gateway/internal/usecase"
)

const redisDialTimeout = 5 * time.Second

type cacheBackend interface {
	usecase.CacheStore
	Close() error
}

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// ---- AWS SDK config (only when SSM or DynamoDB is used) ----
	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
	}

	// ---- API keys ----
	mistralKey, groqKey, err := apiKeys(cfg, awsCfg)
	if err != nil {
		logger.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	// ---- Providers ----
	primary, err := mistral.NewClient(mistralKey, mistral.Config{
		BaseURL:        cfg.MistralBaseURL,
		Model:          cfg.MistralModel,
		AlternateModel: cfg.MistralAlternateModel,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		Timeout:        cfg.ProviderTimeout,
	}, mistral.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create Mistral client", "err", err)
		os.Exit(1)
	}
	fallback, err := groq.NewClient(groqKey, groq.Config{
		BaseURL:     cfg.GroqBaseURL,
		Model:       cfg.GroqModel,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.ProviderTimeout,
	})
	if err != nil {
		logger.Error("failed to create Groq client", "err", err)
		os.Exit(1)
	}

	// ---- Cache ----
	store, err := newCache(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to create cache", "backend", cfg.CacheBackend, "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	opts := []usecase.GatewayOption{
		usecase.WithLogger(logger),
		usecase.WithPersonaPrompt(cfg.PersonaPrompt),
	}
	if store != nil {
		opts = append(opts, usecase.WithCache(store, cfg.CacheTTL))
	}
	gateway, err := usecase.NewResponseGateway(primary, fallback, opts...)
	if err != nil {
		logger.Error("failed to create response gateway", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(gateway, handler.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	logger.Info("voice gateway ready",
		"cache_backend", cfg.CacheBackend, "primary_model", cfg.MistralModel, "fallback_model", cfg.GroqModel)
	lambda.StartWithOptions(h.Handle, lambda.WithEnableSIGTERM(func() {
		if store == nil {
			return
		}
		if err := store.Close(); err != nil {
			logger.Warn("failed to close cache", "err", err)
		}
	}))
}

// apiKeys prefers keys from the environment and falls back to SSM.
func apiKeys(cfg config.Config, awsCfg aws.Config) (*paramstore.Key, *paramstore.Key, error) {
	if cfg.MistralAPIKey != "" && cfg.GroqAPIKey != "" {
		return paramstore.StaticKey(cfg.MistralAPIKey), paramstore.StaticKey(cfg.GroqAPIKey), nil
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, nil, err
	}
	mistralKey := ssmClient.Key(cfg.ParamPrefix, "mistral-api-token")
	if cfg.MistralAPIKey != "" {
		mistralKey = paramstore.StaticKey(cfg.MistralAPIKey)
	}
	groqKey := ssmClient.Key(cfg.ParamPrefix, "groq-api-token")
	if cfg.GroqAPIKey != "" {
		groqKey = paramstore.StaticKey(cfg.GroqAPIKey)
	}
	return mistralKey, groqKey, nil
}

// newCache returns nil when caching is disabled. An unreachable Redis
// degrades to the in-process cache.
func newCache(ctx context.Context, cfg config.Config, awsCfg aws.Config, logger *slog.Logger) (cacheBackend, error) {
	switch cfg.CacheBackend {
	case config.CacheNone:
		return nil, nil
	case config.CacheDynamoDB:
		return repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.CacheTable)
	case config.CacheRedis:
		dialCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
		defer cancel()
		r, err := cache.DialRedis(dialCtx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory cache", "err", err)
			return cache.NewMemory(), nil
		}
		return r, nil
	default:
		return cache.NewMemory(), nil
	}
}
