package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Port         int                `yaml:"port" toml:"port"`
	Enabled      bool               `yaml:"enabled" toml:"enabled"`
	BearerToken  string             `yaml:"bearerToken" toml:"bearer_token"`
	RunEnabled   bool               `yaml:"runEnabled" toml:"run_enabled"` // allow POST /v1/run to execute redbiom
	CORS         CORS               `yaml:"cors" toml:"cors"`
	OpenAICompat OpenAICompatConfig `yaml:"openai_compat,omitempty" toml:"openai_compat,omitempty"`
}

// CORS holds Cross-Origin Resource Sharing settings
type CORS struct {
	Enabled        bool     `yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `yaml:"allowedOrigins" toml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowedMethods" toml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowedHeaders" toml:"allowed_headers"`
	MaxAge         int      `yaml:"maxAge" toml:"max_age"`
}

// OpenAICompatConfig holds OpenAI API compatibility settings
type OpenAICompatConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Prefix  string `yaml:"prefix" toml:"prefix"` // API prefix, default: "/v1"
}

// DefaultServerConfig returns the server settings used when none are configured
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    8088,
		Enabled: true,
		CORS: CORS{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         3600,
		},
		OpenAICompat: OpenAICompatConfig{Enabled: true, Prefix: "/v1"},
	}
}

// GetServer returns the configured server settings or the defaults
func (c *EnvConfig) GetServer() *ServerConfig {
	if c.Server == nil {
		c.Server = DefaultServerConfig()
	}
	return c.Server
}

// GenerateBearerToken returns a random 32-byte token, hex encoded
func GenerateBearerToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error generating random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
