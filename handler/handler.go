package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"voice-gateway/internal/domain"
	"voice-gateway/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"

	allProvidersFailedMessage = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
)

// ResponseGenerator is the core the handler delegates to.
type ResponseGenerator interface {
	GenerateResponse(ctx context.Context, in usecase.GenerateInput) (usecase.GenerateOutput, error)
}

type Handler struct {
	gateway ResponseGenerator
	logger  *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(gateway ResponseGenerator, opts ...Option) (*Handler, error) {
	if gateway == nil {
		return nil, errors.New("handler: gateway must not be nil")
	}
	h := &Handler{gateway: gateway, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type respondRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
	UseCache *bool                `json:"useCache,omitempty"`
}

type respondResponse struct {
	Response string                  `json:"response"`
	Metadata domain.ProviderMetadata `json:"metadata"`
	CacheHit bool                    `json:"cacheHit"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID)

	var body respondRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		logger.WarnContext(ctx, "invalid request body", "err", err)
		return h.errorResponse(correlationID, http.StatusBadRequest, string(usecase.ErrorInvalidInput), "request body must be a JSON object with a messages array"), nil
	}

	useCache := true
	if body.UseCache != nil {
		useCache = *body.UseCache
	}

	out, err := h.gateway.GenerateResponse(ctx, usecase.GenerateInput{History: body.Messages, UseCache: useCache})
	if err != nil {
		status, code, message := mapError(err)
		logger.ErrorContext(ctx, "generate response failed", "status", status, "code", code, "err", err)
		return h.errorResponse(correlationID, status, code, message), nil
	}

	logger.InfoContext(ctx, "request served",
		"provider", out.Metadata.Provider, "model", out.Metadata.Model, "cache_hit", out.CacheHit)
	return h.jsonResponse(correlationID, http.StatusOK, respondResponse{
		Response: out.Text,
		Metadata: out.Metadata,
		CacheHit: out.CacheHit,
	}), nil
}

func mapError(err error) (int, string, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal), "internal error"
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(ucErr.Code), "conversation history must contain at least one message"
	case usecase.ErrorAllProvidersFailed:
		return http.StatusBadGateway, string(ucErr.Code), allProvidersFailedMessage
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal), "internal error"
	}
}

func (h *Handler) errorResponse(correlationID string, status int, code, message string) events.APIGatewayProxyResponse {
	return h.jsonResponse(correlationID, status, errorResponse{Error: code, Message: message})
}

func (h *Handler) jsonResponse(correlationID string, status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR","message":"internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

// headerValue looks up name ignoring case; API Gateway preserves client casing.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
