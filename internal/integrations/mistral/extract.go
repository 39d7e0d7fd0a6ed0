package mistral

import (
	"encoding/json"
	"strings"
)

// completionBody covers every response layout the endpoints are known to use.
type completionBody struct {
	Choices []struct {
		Message json.RawMessage `json:"message"`
		Text    *string         `json:"text"`
	} `json:"choices"`
	Outputs []map[string]json.RawMessage `json:"outputs"`
	Result  json.RawMessage              `json:"result"`
}

// extractRule pulls the reply text out of a decoded body, or reports false.
type extractRule struct {
	name string
	fn   func(b *completionBody) (string, bool)
}

// extractRules are tried in order; the raw body is used when none match.
var extractRules = []extractRule{
	{name: "choices.message.content", fn: choiceMessageContent},
	{name: "choices.text", fn: choiceText},
	{name: "outputs", fn: outputsText},
	{name: "result", fn: resultText},
}

// extractText returns the reply text and the rule that produced it.
// Bodies that are not JSON objects are returned verbatim.
func extractText(raw []byte) (string, string) {
	var body completionBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw)), "raw"
	}
	for _, rule := range extractRules {
		if text, ok := rule.fn(&body); ok {
			return strings.TrimSpace(text), rule.name
		}
	}
	return strings.TrimSpace(string(raw)), "raw"
}

func choiceMessageContent(b *completionBody) (string, bool) {
	if len(b.Choices) == 0 || len(b.Choices[0].Message) == 0 {
		return "", false
	}
	var msg struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(b.Choices[0].Message, &msg); err != nil || msg.Content == nil || *msg.Content == "" {
		return "", false
	}
	return *msg.Content, true
}

func choiceText(b *completionBody) (string, bool) {
	if len(b.Choices) == 0 {
		return "", false
	}
	ch := b.Choices[0]
	if ch.Text != nil && *ch.Text != "" {
		return *ch.Text, true
	}
	if s, ok := jsonString(ch.Message); ok && s != "" {
		return s, true
	}
	return "", false
}

func outputsText(b *completionBody) (string, bool) {
	if len(b.Outputs) == 0 {
		return "", false
	}
	first := b.Outputs[0]
	for _, key := range []string{"content", "text", "generated_text"} {
		if s, ok := jsonString(first[key]); ok {
			return s, true
		}
	}
	return "", false
}

func resultText(b *completionBody) (string, bool) {
	if len(b.Result) == 0 || string(b.Result) == "null" {
		return "", false
	}
	if s, ok := jsonString(b.Result); ok {
		return s, true
	}
	return string(b.Result), true
}

func jsonString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
