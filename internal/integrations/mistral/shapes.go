package mistral

import (
	"strings"

	"voice-gateway/internal/domain"
)

// generationParams are the sampling settings shared by every shape.
type generationParams struct {
	temperature float64
	maxTokens   int
}

// chatPayload is the request body of the chat-style endpoints.
type chatPayload struct {
	Model       string               `json:"model,omitempty"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

// inputPayload is the request body of the single-string generation endpoints.
type inputPayload struct {
	Model        string  `json:"model,omitempty"`
	Input        string  `json:"input"`
	Temperature  float64 `json:"temperature"`
	MaxNewTokens int     `json:"max_new_tokens"`
}

// endpointShape is one hypothesis about the provider's request contract.
type endpointShape struct {
	name  string
	path  string // "{model}" is replaced by the candidate model
	build func(model string, messages []domain.ChatMessage, p generationParams) any
}

func (s endpointShape) url(base, model string) string {
	return base + strings.ReplaceAll(s.path, "{model}", model)
}

const (
	shapeModelChat    = "model_chat"
	shapeModelOutputs = "model_outputs"
	shapeModelGen     = "model_generate"
	shapeGenerate     = "generate"
	shapeChat         = "chat"
)

// endpointShapes lists candidate shapes in negotiation order.
var endpointShapes = []endpointShape{
	{name: shapeModelChat, path: "/v1/models/{model}/chat/completions", build: modelChatPayload},
	{name: shapeModelOutputs, path: "/v1/models/{model}/outputs", build: modelInputPayload},
	{name: shapeModelGen, path: "/v1/models/{model}/generate", build: modelInputPayload},
	{name: shapeGenerate, path: "/v1/generate", build: inputWithModelPayload},
	{name: shapeChat, path: "/v1/chat/completions", build: chatWithModelPayload},
}

// fastPathShape is tried first with the configured model.
var fastPathShape = endpointShapes[len(endpointShapes)-1]

func modelChatPayload(_ string, messages []domain.ChatMessage, p generationParams) any {
	return chatPayload{Messages: messages, Temperature: p.temperature, MaxTokens: p.maxTokens}
}

func chatWithModelPayload(model string, messages []domain.ChatMessage, p generationParams) any {
	return chatPayload{Model: model, Messages: messages, Temperature: p.temperature, MaxTokens: p.maxTokens}
}

func modelInputPayload(_ string, messages []domain.ChatMessage, p generationParams) any {
	return inputPayload{Input: joinContents(messages), Temperature: p.temperature, MaxNewTokens: p.maxTokens}
}

func inputWithModelPayload(model string, messages []domain.ChatMessage, p generationParams) any {
	return inputPayload{Model: model, Input: joinContents(messages), Temperature: p.temperature, MaxNewTokens: p.maxTokens}
}

func joinContents(messages []domain.ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}

// candidateModels returns the configured model, the alternate and the
// static fallbacks, in that order and without duplicates.
func candidateModels(primary, alternate string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(m string) {
		m = strings.TrimSpace(m)
		if m == "" {
			return
		}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	add(primary)
	add(alternate)
	for _, m := range staticModels {
		add(m)
	}
	return out
}

var staticModels = []string{"mistral-7b-instruct", "mistral-7b", "mistral-large", "mistral-1"}
