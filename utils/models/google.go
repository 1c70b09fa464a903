package models

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/kris-hansen/redbiomctl/utils/retry"
	"google.golang.org/api/option"
)

// GoogleProvider handles Gemini models
type GoogleProvider struct {
	apiKey  string
	config  ModelConfig
	verbose bool
	mu      sync.Mutex
}

// NewGoogleProvider creates a new Google provider instance
func NewGoogleProvider() *GoogleProvider {
	return &GoogleProvider{config: DefaultModelConfig}
}

// Name returns the provider name
func (g *GoogleProvider) Name() string {
	return "google"
}

func (g *GoogleProvider) debugf(format string, args ...interface{}) {
	if g.verbose {
		g.mu.Lock()
		defer g.mu.Unlock()
		log.Printf("[DEBUG][Google] "+format+"\n", args...)
	}
}

// SupportsModel checks if the given model name is a Gemini model
func (g *GoogleProvider) SupportsModel(modelName string) bool {
	return GetRegistry().ValidateModel(g.Name(), modelName)
}

// Configure sets up the provider with necessary credentials
func (g *GoogleProvider) Configure(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("API key is required for Google provider")
	}
	g.apiKey = apiKey
	return nil
}

// SetConfig replaces the sampling configuration
func (g *GoogleProvider) SetConfig(cfg ModelConfig) {
	g.config = cfg
}

// SetVerbose enables or disables verbose mode
func (g *GoogleProvider) SetVerbose(verbose bool) {
	g.verbose = verbose
}

func toGeminiHistory(messages []Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return history
}

func geminiText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		// first candidate only
		break
	}
	return b.String()
}

// Complete sends the conversation to Gemini and returns the reply
func (g *GoogleProvider) Complete(ctx context.Context, modelName string, conv Conversation) (string, error) {
	if err := conv.validate(); err != nil {
		return "", err
	}
	if g.apiKey == "" {
		return "", fmt.Errorf("Google provider not configured: missing API key")
	}
	if !g.SupportsModel(modelName) {
		return "", fmt.Errorf("invalid Google model: %s", modelName)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(modelName)
	model.SetTemperature(float32(g.config.Temperature))
	model.SetTopP(float32(g.config.TopP))
	model.SetMaxOutputTokens(int32(g.config.MaxTokens))
	if conv.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(conv.System)}}
	}

	g.debugf("Sending %d messages to model %s", len(conv.Messages), modelName)
	return retry.WithRetry(ctx,
		func(ctx context.Context) (string, error) {
			chat := model.StartChat()
			chat.History = toGeminiHistory(conv.Messages[:len(conv.Messages)-1])
			resp, err := chat.SendMessage(ctx, genai.Text(conv.Last().Content))
			if err != nil {
				return "", fmt.Errorf("Gemini API error: %w", err)
			}
			text := geminiText(resp)
			if text == "" {
				return "", fmt.Errorf("no text returned from %s", modelName)
			}
			return text, nil
		},
		retry.Is429Error,
		retry.DefaultRetryConfig,
	)
}
