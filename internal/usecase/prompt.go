package usecase

import "voice-gateway/internal/domain"

// DefaultPersonaPrompt establishes the assistant's identity and answer
// constraints for voice conversations.
const DefaultPersonaPrompt = "You are the candidate in a voice interview. Keep responses under 50 words. Be concise and natural.\n" +
	"\n" +
	"When greeted: introduce yourself briefly and ask how you can help.\n" +
	"\n" +
	"Response Rules:\n" +
	"- Keep answers under 50 words.\n" +
	"- Be enthusiastic but brief.\n" +
	"- Do not use markdown formatting such as bold, italics or lists.\n" +
	"- Speak naturally, as in a spoken conversation.\n" +
	"- For other questions give 2-3 sentence answers focused on impact."

// PrepareMessages returns the persona prompt as the only system message
// followed by the user and assistant turns of history, in order. Other roles,
// including any system message in history, are dropped. history is not modified.
func PrepareMessages(persona string, history []domain.ChatMessage) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+1)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: persona})
	for _, m := range history {
		switch m.Role {
		case domain.RoleUser, domain.RoleAssistant:
			messages = append(messages, m)
		}
	}
	return messages
}
