package models

import (
	"sort"
	"strings"
	"sync"
)

// ModelRegistry is a centralized registry for all supported models across providers
type ModelRegistry struct {
	// Map of provider name to list of supported models
	models map[string][]string
	// Map of provider name to list of model families (prefixes)
	families map[string][]string
	mu       sync.RWMutex
}

var globalRegistry = NewModelRegistry()

// NewModelRegistry creates a new model registry
func NewModelRegistry() *ModelRegistry {
	registry := &ModelRegistry{
		models:   make(map[string][]string),
		families: make(map[string][]string),
	}
	registry.initializeDefaultModels()
	return registry
}

func (r *ModelRegistry) initializeDefaultModels() {
	// OpenAI-compatible endpoints: OpenAI itself, NRP Nautilus, vLLM, Ollama
	r.RegisterModels("openai", []string{
		"qwen3",
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4.1",
		"gpt-4.1-mini",
		"gpt-5",
		"gpt-5-mini",
		"o3-mini",
		"o4-mini",
		"llama3",
		"deepseek-r1",
	})
	r.RegisterFamilies("openai", []string{
		"gpt-",
		"qwen",
		"llama",
		"o3",
		"o4",
	})

	r.RegisterModels("google", []string{
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.5-flash-lite",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
	})
	r.RegisterFamilies("google", []string{
		"gemini-",
	})

	// Bedrock model ids carry the vendor prefix, optionally a region prefix
	r.RegisterModels("bedrock", []string{
		"anthropic.claude-3-5-sonnet-20240620-v1:0",
		"anthropic.claude-3-haiku-20240307-v1:0",
		"meta.llama3-70b-instruct-v1:0",
		"amazon.nova-pro-v1:0",
	})
	r.RegisterFamilies("bedrock", []string{
		"anthropic.",
		"amazon.",
		"meta.",
		"mistral.",
		"cohere.",
		"us.",
		"eu.",
	})
}

// RegisterModels adds models to the registry for a specific provider
func (r *ModelRegistry) RegisterModels(provider string, models []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[provider] = append(r.models[provider], models...)
}

// RegisterFamilies adds model families (prefixes) to the registry for a specific provider
func (r *ModelRegistry) RegisterFamilies(provider string, families []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[provider] = append(r.families[provider], families...)
}

// GetModels returns the list of models for a specific provider
func (r *ModelRegistry) GetModels(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.models[provider]...)
}

// GetFamilies returns the list of model families for a specific provider
func (r *ModelRegistry) GetFamilies(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.families[provider]...)
}

// ValidateModel checks if a model is valid for a specific provider
func (r *ModelRegistry) ValidateModel(provider string, modelName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modelName = strings.TrimSpace(strings.ToLower(modelName))

	for _, valid := range r.models[provider] {
		if modelName == valid {
			return true
		}
	}
	for _, family := range r.families[provider] {
		if strings.HasPrefix(modelName, family) {
			return true
		}
	}
	return false
}

// Providers returns the registered provider names, sorted
func (r *ModelRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAllModelsList returns a flat list of all models from all providers
func (r *ModelRegistry) GetAllModelsList() []string {
	var all []string
	for _, p := range r.Providers() {
		all = append(all, r.GetModels(p)...)
	}
	return all
}

// GetRegistry returns the global model registry instance
func GetRegistry() *ModelRegistry {
	return globalRegistry
}
