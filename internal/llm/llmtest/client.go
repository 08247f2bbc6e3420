// Package llmtest provides a scripted Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/evanschultz/pmforge/internal/llm"
)

// Reply is one scripted answer. Err takes precedence over Content.
type Reply struct {
	Content string
	Err     error
	// Block waits for the call context to end before answering, which simulates a hung provider.
	Block bool
}

// Client is a thread-safe scripted llm.Client.
// Replies are returned in order; once exhausted, Default is returned (or an empty reply).
type Client struct {
	mu      sync.Mutex
	Replies []Reply
	Default *Reply
	// Route, when set, answers instead of the script and can inspect the prompt.
	Route func(messages []llm.Message) (string, bool)

	calls    int
	prompts  [][]llm.Message
	position int
}

// New returns a client answering replies in order.
func New(replies ...string) *Client {
	c := &Client{}
	for _, r := range replies {
		c.Replies = append(c.Replies, Reply{Content: r})
	}
	return c
}

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	c.mu.Lock()
	c.calls++
	c.prompts = append(c.prompts, append([]llm.Message(nil), messages...))
	var reply Reply
	routed := false
	if c.Route != nil {
		if content, ok := c.Route(messages); ok {
			reply = Reply{Content: content}
			routed = true
		}
	}
	if !routed {
		switch {
		case c.position < len(c.Replies):
			reply = c.Replies[c.position]
			c.position++
		case c.Default != nil:
			reply = *c.Default
		}
	}
	c.mu.Unlock()

	if reply.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &llm.Response{Content: reply.Content, Model: "test-model"}, nil
}

// Calls returns the number of Chat invocations.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Prompts returns a copy of every transcript received.
func (c *Client) Prompts() [][]llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]llm.Message, len(c.prompts))
	copy(out, c.prompts)
	return out
}

// LastPrompt returns the user content of the most recent call.
func (c *Client) LastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return ""
	}
	msgs := c.prompts[len(c.prompts)-1]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
