package flow

import (
	"github.com/openai/openai-go"

	"github.com/lexdraft/lexdraft/internal/models"
)

// buildChatMessages converts a system instruction, caller-held history and
// the latest user input into the openai-go message parameter format.
func buildChatMessages(systemPrompt string, history []models.Turn, userInput string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	for _, t := range history {
		switch t.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(t.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		case models.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		}
	}
	if userInput != "" {
		messages = append(messages, openai.UserMessage(userInput))
	}
	return messages
}
