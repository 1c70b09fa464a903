package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/kris-hansen/redbiomctl/utils/config"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ModelConfig represents configuration options for model calls
type ModelConfig struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// DefaultModelConfig is used by providers that are not given one
var DefaultModelConfig = ModelConfig{
	Temperature: 0.2,
	MaxTokens:   4000,
	TopP:        1.0,
}

// Message is one turn of a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is a system prompt followed by alternating user/assistant turns.
// The last message is the one being answered.
type Conversation struct {
	System   string    `json:"system"`
	Messages []Message `json:"messages"`
}

// Append adds a turn
func (c *Conversation) Append(role, content string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content})
}

// Last returns the final message, or an empty one
func (c Conversation) Last() Message {
	if len(c.Messages) == 0 {
		return Message{}
	}
	return c.Messages[len(c.Messages)-1]
}

// Fingerprint returns a string that identifies the conversation content
func (c Conversation) Fingerprint() string {
	var b strings.Builder
	b.WriteString(c.System)
	for _, m := range c.Messages {
		b.WriteString("\x00")
		b.WriteString(m.Role)
		b.WriteString("\x00")
		b.WriteString(m.Content)
	}
	return b.String()
}

func (c Conversation) validate() error {
	if len(c.Messages) == 0 {
		return fmt.Errorf("conversation has no messages")
	}
	if c.Last().Role != RoleUser {
		return fmt.Errorf("last message must be from the user, got %q", c.Last().Role)
	}
	return nil
}

// Provider represents a model provider (e.g., OpenAI-compatible, Google, Bedrock)
type Provider interface {
	Name() string
	SupportsModel(modelName string) bool
	Complete(ctx context.Context, modelName string, conv Conversation) (string, error)
	Configure(apiKey string) error
	SetVerbose(verbose bool)
}

// DetectProviderFunc is the type for the provider detection function
type DetectProviderFunc func(modelName string) Provider

// DetectProvider determines the appropriate provider based on the model name
var DetectProvider DetectProviderFunc = defaultDetectProvider

// defaultDetectProvider checks the specific providers first and falls back to
// the OpenAI-compatible provider, which serves any model behind a custom base URL
func defaultDetectProvider(modelName string) Provider {
	config.DebugLog("[Provider] Attempting to detect provider for model: %s", modelName)

	providers := []Provider{
		NewGoogleProvider(),
		NewBedrockProvider(),
	}
	for _, provider := range providers {
		if provider.SupportsModel(modelName) {
			config.DebugLog("[Provider] Found provider %s for model %s", provider.Name(), modelName)
			return provider
		}
	}

	config.DebugLog("[Provider] Using OpenAI-compatible provider for model %s", modelName)
	return NewOpenAIProvider()
}

// NewFromConfig detects the provider for the configured model and configures
// it with the matching credentials
func NewFromConfig(cfg *config.EnvConfig) (Provider, error) {
	model := cfg.LLM.Model
	provider := DetectProvider(model)
	if provider == nil {
		return nil, fmt.Errorf("no provider found for model %s", model)
	}
	provider.SetVerbose(config.Verbose || config.Debug)

	pc, _ := cfg.GetProviderConfig(provider.Name())

	switch p := provider.(type) {
	case *OpenAIProvider:
		baseURL := cfg.LLM.BaseURL
		if pc != nil && pc.BaseURL != "" {
			baseURL = pc.BaseURL
		}
		p.SetBaseURL(baseURL)
		p.SetConfig(ModelConfig{Temperature: float64(cfg.LLM.Temperature), MaxTokens: DefaultModelConfig.MaxTokens, TopP: 1})
	case *GoogleProvider:
		p.SetConfig(ModelConfig{Temperature: float64(cfg.LLM.Temperature), MaxTokens: DefaultModelConfig.MaxTokens, TopP: 1})
	case *BedrockProvider:
		if pc != nil && pc.Region != "" {
			p.SetRegion(pc.Region)
		}
		return p, nil
	}

	if pc == nil || pc.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %s; run 'redbiomctl configure' or set the environment variable", provider.Name())
	}
	if err := provider.Configure(pc.APIKey); err != nil {
		return nil, err
	}
	return provider, nil
}
