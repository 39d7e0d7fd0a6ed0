// Package config reads the gateway's environment once at startup.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// CacheBackend selects where responses are cached.
type CacheBackend string

const (
	CacheNone     CacheBackend = "none"
	CacheMemory   CacheBackend = "memory"
	CacheRedis    CacheBackend = "redis"
	CacheDynamoDB CacheBackend = "dynamodb"
)

const (
	defaultMistralBase  = "https://api.mistral.ai"
	defaultMistralModel = "mistral-large-latest"
	defaultGroqBase     = "https://api.groq.com/openai/v1"
	defaultGroqModel    = "llama-3.3-70b-versatile"
	defaultRedisURL     = "redis://localhost:6379/0"
	defaultTemperature  = 0.7
	defaultMaxTokens    = 100
	defaultTimeoutSecs  = 60
	defaultCacheTTLSecs = 3600
)

type Config struct {
	MistralAPIKey         string
	MistralBaseURL        string
	MistralModel          string
	MistralAlternateModel string

	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string

	// ParamPrefix, when set, is where missing API keys are read from in SSM.
	ParamPrefix string

	Temperature     float64
	MaxTokens       int
	ProviderTimeout time.Duration

	CacheBackend CacheBackend
	CacheTTL     time.Duration
	RedisURL     string
	CacheTable   string

	PersonaPrompt string
	LogLevel      slog.Level
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.CacheBackend == CacheDynamoDB ||
		(c.ParamPrefix != "" && (c.MistralAPIKey == "" || c.GroqAPIKey == ""))
}

// Load builds a Config from getenv, typically os.Getenv. All problems are
// reported together.
func Load(getenv func(string) string) (Config, error) {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }
	var errs []error

	cfg := Config{
		MistralAPIKey:         firstNonEmpty(env("MISTRAL_API_KEY"), env("Mirstal")),
		MistralBaseURL:        orDefault(env("MISTRAL_API_BASE"), defaultMistralBase),
		MistralModel:          orDefault(env("MISTRAL_MODEL"), defaultMistralModel),
		MistralAlternateModel: env("MISTRAL_ALTERNATE_MODEL"),
		GroqAPIKey:            env("GROQ_API_KEY"),
		GroqBaseURL:           orDefault(env("GROQ_API_BASE"), defaultGroqBase),
		GroqModel:             orDefault(env("GROQ_MODEL"), defaultGroqModel),
		ParamPrefix:           strings.TrimRight(env("PARAM_PREFIX"), "/"),
		RedisURL:              orDefault(env("REDIS_URL"), defaultRedisURL),
		CacheTable:            env("CACHE_TABLE"),
		PersonaPrompt:         getenv("PERSONA_PROMPT"),
	}

	var err error
	if cfg.Temperature, err = parseFloat(env, "LLM_TEMPERATURE", defaultTemperature); err != nil {
		errs = append(errs, err)
	} else if cfg.Temperature < 0 || cfg.Temperature > 2 {
		errs = append(errs, fmt.Errorf("config: LLM_TEMPERATURE must be between 0 and 2, got %v", cfg.Temperature))
	}
	if cfg.MaxTokens, err = parsePositiveInt(env, "LLM_MAX_TOKENS", defaultMaxTokens); err != nil {
		errs = append(errs, err)
	}
	timeoutSecs, err := parsePositiveInt(env, "PROVIDER_TIMEOUT_SECONDS", defaultTimeoutSecs)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.ProviderTimeout = time.Duration(timeoutSecs) * time.Second

	ttlSecs, err := parsePositiveInt(env, "CACHE_TTL", defaultCacheTTLSecs)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.CacheTTL = time.Duration(ttlSecs) * time.Second

	caching, err := parseBool(env, "ENABLE_CACHING", true)
	if err != nil {
		errs = append(errs, err)
	}
	redisEnabled, err := parseBool(env, "REDIS_ENABLED", false)
	if err != nil {
		errs = append(errs, err)
	}
	switch {
	case !caching:
		cfg.CacheBackend = CacheNone
	case cfg.CacheTable != "":
		cfg.CacheBackend = CacheDynamoDB
	case redisEnabled:
		cfg.CacheBackend = CacheRedis
	default:
		cfg.CacheBackend = CacheMemory
	}

	if cfg.LogLevel, err = parseLevel(env("LOG_LEVEL")); err != nil {
		errs = append(errs, err)
	}

	if cfg.ParamPrefix == "" {
		if cfg.MistralAPIKey == "" {
			errs = append(errs, errors.New("config: MISTRAL_API_KEY is required when PARAM_PREFIX is not set"))
		}
		if cfg.GroqAPIKey == "" {
			errs = append(errs, errors.New("config: GROQ_API_KEY is required when PARAM_PREFIX is not set"))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseFloat(env func(string) string, key string, def float64) (float64, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid number %q", key, v)
	}
	return f, nil
}

func parsePositiveInt(env func(string) string, key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid integer %q", key, v)
	}
	if n <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %d", key, n)
	}
	return n, nil
}

func parseBool(env func(string) string, key string, def bool) (bool, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: invalid boolean %q", key, v)
	}
	return b, nil
}

func parseLevel(v string) (slog.Level, error) {
	if v == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
