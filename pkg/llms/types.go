package llms

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Provider is a chat-completion generator. Implementations are safe for
// concurrent use; each call is a single non-streaming completion.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
	ModelName() string
	Close() error
}

// splitSystem separates the leading system messages from the rest, for
// providers that carry the system prompt out of band.
func splitSystem(messages []Message) (system string, rest []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem && len(rest) == 0 {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
