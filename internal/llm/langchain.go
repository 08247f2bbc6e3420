package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider names accepted by New.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// ProviderConfig selects and configures one langchaingo backend.
type ProviderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// LangChainClient adapts a langchaingo model to Client.
type LangChainClient struct {
	model    llms.Model
	provider string
	name     string
}

// New constructs a Client for cfg. Provider "none" (or empty) returns ErrUnavailable.
func New(cfg ProviderConfig) (*LangChainClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	var (
		model llms.Model
		err   error
	)
	switch provider {
	case "", ProviderNone:
		return nil, ErrUnavailable
	case ProviderOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		opts := []openai.Option{openai.WithToken(apiKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderOllama:
		serverURL := cfg.BaseURL
		if serverURL == "" {
			serverURL = "http://localhost:11434"
		}
		opts := []ollama.Option{ollama.WithServerURL(serverURL)}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		model, err = ollama.New(opts...)
	case ProviderAnthropic:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		opts := []anthropic.Option{anthropic.WithToken(apiKey)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", provider, err)
	}
	return NewLangChainClient(provider, cfg.Model, model), nil
}

// NewLangChainClient wraps an already-constructed langchaingo model.
func NewLangChainClient(provider, name string, model llms.Model) *LangChainClient {
	return &LangChainClient{model: model, provider: provider, name: name}
}

// Chat implements Client.
func (c *LangChainClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	resp, err := c.model.GenerateContent(ctx, toMessageContent(messages))
	if err != nil {
		return nil, classify(c.provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, NewTransientError(ErrEmptyReply)
	}
	return &Response{Content: resp.Choices[0].Content, Model: c.name, Raw: resp}, nil
}

func toMessageContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

// classify marks auth and request-shape failures fatal; everything else may succeed on retry.
func classify(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", provider, err)
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(wrapped)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"401", "403", "unauthorized", "invalid api key", "invalid_api_key", "model not found", "400 bad request"} {
		if strings.Contains(msg, marker) {
			return NewFatalError(wrapped)
		}
	}
	return NewTransientError(wrapped)
}
