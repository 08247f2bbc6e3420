// Package llm provides the chat-completion port the agents consume, plus the helpers every agent
// shares around it: reply normalization, JSON extraction, retry with backoff, and per-call timeouts.
package llm

import "context"

// Role identifies the author of one chat message.
type Role string

// Role values accepted by every provider.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant builds an assistant message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Response is one chat reply. Raw retains the provider payload when the adapter has one;
// callers should read replies through Text so every shape is handled in one place.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Raw     any    `json:"-"`
}

// Client is the chat capability consumed by agents.
type Client interface {
	Chat(ctx context.Context, messages []Message) (*Response, error)
}

// ClientFunc adapts a function into a Client.
type ClientFunc func(ctx context.Context, messages []Message) (*Response, error)

// Chat calls f.
func (f ClientFunc) Chat(ctx context.Context, messages []Message) (*Response, error) {
	return f(ctx, messages)
}
