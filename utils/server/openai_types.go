package server

import (
	"strings"

	"github.com/kris-hansen/redbiomctl/utils/models"
	openai "github.com/sashabaranov/go-openai"
)

// Requests, chunks and errors use go-openai's wire types, so any client that
// works against api.openai.com can parse them.

// chatResponse is a chat completion carrying the validated redbiom commands of
// the answer as an extra field
type chatResponse struct {
	openai.ChatCompletionResponse
	Commands []string `json:"redbiom_commands,omitempty"`
}

// modelList is the /v1/models body; go-openai's ModelsList lacks "object"
type modelList struct {
	Object string         `json:"object"`
	Data   []openai.Model `json:"data"`
}

// messageText flattens a message to text. Clients may send content as a list
// of parts; only the text parts are kept.
func messageText(m openai.ChatCompletionMessage) string {
	if len(m.MultiContent) == 0 {
		return m.Content
	}
	var parts []string
	for _, p := range m.MultiContent {
		if p.Type == openai.ChatMessagePartTypeText && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// splitMessages returns the last user message and the user/assistant turns
// before it. System messages are dropped: the assistant has its own.
func splitMessages(messages []openai.ChatCompletionMessage) (string, []models.Message) {
	last := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return "", nil
	}
	var prior []models.Message
	for _, m := range messages[:last] {
		switch m.Role {
		case openai.ChatMessageRoleUser:
			prior = append(prior, models.Message{Role: models.RoleUser, Content: messageText(m)})
		case openai.ChatMessageRoleAssistant:
			prior = append(prior, models.Message{Role: models.RoleAssistant, Content: messageText(m)})
		}
	}
	return strings.TrimSpace(messageText(messages[last])), prior
}
