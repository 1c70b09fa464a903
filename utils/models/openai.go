package models

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/kris-hansen/redbiomctl/utils/retry"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint:
// OpenAI, NRP Nautilus, vLLM or Ollama
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	config  ModelConfig
	verbose bool
	client  *openai.Client
	mu      sync.Mutex
}

// NewOpenAIProvider creates a new OpenAI-compatible provider instance
func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{config: DefaultModelConfig}
}

// Name returns the provider name
func (o *OpenAIProvider) Name() string {
	return "openai"
}

func (o *OpenAIProvider) debugf(format string, args ...interface{}) {
	if o.verbose {
		o.mu.Lock()
		defer o.mu.Unlock()
		log.Printf("[DEBUG][OpenAI] "+format+"\n", args...)
	}
}

// SupportsModel accepts every model: a compatible endpoint decides what it serves
func (o *OpenAIProvider) SupportsModel(modelName string) bool {
	return strings.TrimSpace(modelName) != ""
}

// SetBaseURL points the provider at a compatible endpoint. An empty value
// means api.openai.com.
func (o *OpenAIProvider) SetBaseURL(baseURL string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.baseURL = strings.TrimSpace(baseURL)
	o.client = nil
}

// SetConfig replaces the sampling configuration
func (o *OpenAIProvider) SetConfig(cfg ModelConfig) {
	o.config = cfg
}

// SetVerbose enables or disables verbose mode
func (o *OpenAIProvider) SetVerbose(verbose bool) {
	o.verbose = verbose
}

// Configure sets up the provider with necessary credentials
func (o *OpenAIProvider) Configure(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("API key is required for OpenAI provider")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.apiKey = apiKey
	o.client = nil
	return nil
}

// Client returns the underlying go-openai client
func (o *OpenAIProvider) Client() (*openai.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.apiKey == "" {
		return nil, fmt.Errorf("OpenAI provider not configured: missing API key")
	}
	if o.client == nil {
		cfg := openai.DefaultConfig(o.apiKey)
		if o.baseURL != "" {
			cfg.BaseURL = normalizeBaseURL(o.baseURL)
		}
		o.client = openai.NewClientWithConfig(cfg)
	}
	return o.client, nil
}

// normalizeBaseURL appends /v1 to bare hosts, which is where every
// compatible server mounts the API
func normalizeBaseURL(u string) string {
	u = strings.TrimRight(u, "/")
	if strings.HasSuffix(u, "/v1") {
		return u
	}
	return u + "/v1"
}

func toOpenAIMessages(conv Conversation) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(conv.Messages)+1)
	if conv.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: conv.System,
		})
	}
	for _, m := range conv.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return messages
}

// NewRequest builds a chat completion request for conv with the provider's sampling settings
func (o *OpenAIProvider) NewRequest(modelName string, conv Conversation) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    toOpenAIMessages(conv),
		MaxTokens:   o.config.MaxTokens,
		Temperature: float32(o.config.Temperature),
		TopP:        float32(o.config.TopP),
	}
}

// ChatCompletion sends req with rate-limit retries
func (o *OpenAIProvider) ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	client, err := o.Client()
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	return retry.WithRetry(ctx,
		func(ctx context.Context) (openai.ChatCompletionResponse, error) {
			resp, err := client.CreateChatCompletion(ctx, req)
			if err != nil {
				return resp, fmt.Errorf("OpenAI API error: %w", err)
			}
			if len(resp.Choices) == 0 {
				return resp, fmt.Errorf("no response choices returned from %s", req.Model)
			}
			return resp, nil
		},
		retry.Is429Error,
		retry.DefaultRetryConfig,
	)
}

// Complete sends the conversation and returns the assistant's reply
func (o *OpenAIProvider) Complete(ctx context.Context, modelName string, conv Conversation) (string, error) {
	if err := conv.validate(); err != nil {
		return "", err
	}
	o.debugf("Sending %d messages to model %s", len(conv.Messages), modelName)

	resp, err := o.ChatCompletion(ctx, o.NewRequest(modelName, conv))
	if err != nil {
		return "", err
	}
	content := resp.Choices[0].Message.Content
	o.debugf("Response length: %d characters", len(content))
	return content, nil
}

// Model ids that can never serve chat completions
var unsupportedModelPatterns = []string{
	"dall-e",
	"tts-",
	"whisper-",
	"embedding",
	"moderation",
	"babbage-002",
	"davinci-002",
}

// IsChatModel reports whether a listed model id can be used for chat completions
func IsChatModel(modelName string) bool {
	modelName = strings.ToLower(modelName)
	for _, pattern := range unsupportedModelPatterns {
		if strings.Contains(modelName, pattern) {
			return false
		}
	}
	return true
}

// ListModels returns the sorted chat model ids served by an OpenAI-compatible endpoint
func ListModels(ctx context.Context, baseURL, apiKey string) ([]string, error) {
	p := NewOpenAIProvider()
	p.SetBaseURL(baseURL)
	if err := p.Configure(apiKey); err != nil {
		return nil, err
	}
	client, err := p.Client()
	if err != nil {
		return nil, err
	}
	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching models: %w", err)
	}
	var ids []string
	for _, m := range list.Models {
		if IsChatModel(m.ID) {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
