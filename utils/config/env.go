package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kris-hansen/redbiomctl/utils/fileutil"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults observed for the public redbiom deployment
const (
	DefaultProgram        = "redbiom"
	DefaultHost           = "http://redbiom.ucsd.edu:7330"
	DefaultContext        = "Woltka-per-genome-WoLr2-3ab352"
	DefaultTimeoutSeconds = 300
	DefaultModel          = "qwen3"
	DefaultBaseURL        = "https://llm.nrp-nautilus.io/"
	DefaultMaxHistory     = 10
	DefaultMaxAttempts    = 2
	DefaultCacheTTL       = 3600
)

// Verbose and Debug are set from the root command flags
var (
	Verbose bool
	Debug   bool
)

// DebugLog logs through the process-wide logger when debug or verbose mode is enabled
func DebugLog(format string, args ...interface{}) {
	if Debug || Verbose {
		logging.L().Debug(fmt.Sprintf(format, args...))
	}
}

// RedbiomConfig describes how to invoke the wrapped tool
type RedbiomConfig struct {
	Program    string `yaml:"program" toml:"program"`
	Host       string `yaml:"host" toml:"host"`
	Context    string `yaml:"context" toml:"context"`
	Timeout    int    `yaml:"timeout" toml:"timeout"` // seconds
	WorkingDir string `yaml:"working_dir,omitempty" toml:"working_dir,omitempty"`
}

// TimeoutDuration returns the timeout as a duration
func (r RedbiomConfig) TimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// LLMConfig selects and tunes the language model
type LLMConfig struct {
	Model       string  `yaml:"model" toml:"model"`
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	Temperature float32 `yaml:"temperature" toml:"temperature"`
	MaxHistory  int     `yaml:"max_history" toml:"max_history"`
	MaxAttempts int     `yaml:"max_attempts" toml:"max_attempts"`
}

// ProviderConfig holds credentials for one model provider
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	Region  string `yaml:"region,omitempty" toml:"region,omitempty"`
}

// HistoryConfig selects the history store
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Driver  string `yaml:"driver" toml:"driver"` // sqlite or postgres
	Path    string `yaml:"path,omitempty" toml:"path,omitempty"`
	DSN     string `yaml:"dsn,omitempty" toml:"dsn,omitempty"`
}

// CacheConfig selects the model response cache
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	TTL           int    `yaml:"ttl" toml:"ttl"` // seconds
	RedisAddr     string `yaml:"redis_addr,omitempty" toml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty" toml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty" toml:"redis_db,omitempty"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file,omitempty" toml:"file,omitempty"`
}

// EnvConfig is the complete persisted configuration
type EnvConfig struct {
	Redbiom   RedbiomConfig              `yaml:"redbiom" toml:"redbiom"`
	LLM       LLMConfig                  `yaml:"llm" toml:"llm"`
	Providers map[string]*ProviderConfig `yaml:"providers,omitempty" toml:"providers,omitempty"`
	History   HistoryConfig              `yaml:"history" toml:"history"`
	Cache     CacheConfig                `yaml:"cache" toml:"cache"`
	Log       LogConfig                  `yaml:"log" toml:"log"`
	Server    *ServerConfig              `yaml:"server,omitempty" toml:"server,omitempty"`
}

// ValidationWarning describes a configuration value that was replaced or looks wrong
type ValidationWarning struct {
	Field   string
	Message string
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// DefaultEnvConfig returns the configuration used when no file exists
func DefaultEnvConfig() *EnvConfig {
	return &EnvConfig{
		Redbiom: RedbiomConfig{
			Program: DefaultProgram,
			Host:    DefaultHost,
			Context: DefaultContext,
			Timeout: DefaultTimeoutSeconds,
		},
		LLM: LLMConfig{
			Model:       DefaultModel,
			BaseURL:     DefaultBaseURL,
			Temperature: 0.2,
			MaxHistory:  DefaultMaxHistory,
			MaxAttempts: DefaultMaxAttempts,
		},
		Providers: map[string]*ProviderConfig{},
		History:   HistoryConfig{Enabled: true, Driver: "sqlite"},
		Cache:     CacheConfig{Enabled: true, TTL: DefaultCacheTTL},
		Log:       LogConfig{Level: "warn"},
	}
}

// ConfigDir returns ~/.redbiomctl
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".redbiomctl"
	}
	return filepath.Join(home, ".redbiomctl")
}

// GetEnvPath returns the config file path from REDBIOMCTL_ENV or the default location
func GetEnvPath() string {
	if p := os.Getenv("REDBIOMCTL_ENV"); p != "" {
		if expanded, err := fileutil.ExpandPath(p); err == nil {
			return expanded
		}
		return p
	}
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LoadDotEnv loads KEY=VALUE pairs from .env files into the process
// environment without overriding variables that are already set
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// LoadEnvConfig reads the config file at path, falling back to defaults when
// it does not exist, then applies environment overrides. TOML is used for
// .toml files, YAML otherwise.
func LoadEnvConfig(path string) (*EnvConfig, error) {
	cfg, err := LoadEnvConfigFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// LoadEnvConfigFile reads the config file without environment overrides. Use
// it for configuration that is edited and saved back, so secrets from the
// environment are never written to disk.
func LoadEnvConfigFile(path string) (*EnvConfig, error) {
	cfg := DefaultEnvConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		DebugLog("[Config] No config file at %s, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("error reading config file: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]*ProviderConfig{}
	}
	cfg.fillDefaults()
	return cfg, nil
}

func decode(path string, data []byte, cfg *EnvConfig) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// SaveEnvConfig writes the configuration to path, creating the directory if needed
func SaveEnvConfig(path string, cfg *EnvConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	// API keys live here
	return os.WriteFile(path, data, 0600)
}

// ApplyEnv overrides configuration values from environment variables
func (c *EnvConfig) ApplyEnv() {
	if v := os.Getenv("REDBIOM_HOST"); v != "" {
		c.Redbiom.Host = v
	}
	if v := os.Getenv("REDBIOM_CONTEXT"); v != "" {
		c.Redbiom.Context = v
	}
	if v := os.Getenv("REDBIOMCTL_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_API_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("REDBIOMCTL_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if c.Providers == nil {
		c.Providers = map[string]*ProviderConfig{}
	}
	for name, env := range map[string]string{
		"openai": "OPENAI_API_KEY",
		"google": "GEMINI_API_KEY",
	} {
		if v := os.Getenv(env); v != "" {
			c.provider(name).APIKey = v
		}
	}
	// NRP Nautilus keys are issued under their own name
	if v := os.Getenv("NRP_API_KEY"); v != "" && os.Getenv("OPENAI_API_KEY") == "" {
		c.provider("openai").APIKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.provider("bedrock").Region = v
	}
}

func (c *EnvConfig) provider(name string) *ProviderConfig {
	p, ok := c.Providers[name]
	if !ok || p == nil {
		p = &ProviderConfig{}
		c.Providers[name] = p
	}
	return p
}

func (c *EnvConfig) fillDefaults() {
	d := DefaultEnvConfig()
	if c.Redbiom.Program == "" {
		c.Redbiom.Program = d.Redbiom.Program
	}
	if c.Redbiom.Host == "" {
		c.Redbiom.Host = d.Redbiom.Host
	}
	if c.Redbiom.Context == "" {
		c.Redbiom.Context = d.Redbiom.Context
	}
	if c.LLM.Model == "" {
		c.LLM.Model = d.LLM.Model
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = d.LLM.BaseURL
	}
	if c.History.Driver == "" {
		c.History.Driver = d.History.Driver
	}
}

// Validate replaces out-of-range values with defaults and reports each replacement
func (c *EnvConfig) Validate() []ValidationWarning {
	var warnings []ValidationWarning
	d := DefaultEnvConfig()

	if c.Redbiom.Timeout <= 0 {
		warnings = append(warnings, ValidationWarning{"redbiom.timeout", fmt.Sprintf("must be positive, using %d", d.Redbiom.Timeout)})
		c.Redbiom.Timeout = d.Redbiom.Timeout
	}
	if c.LLM.MaxHistory < 0 {
		warnings = append(warnings, ValidationWarning{"llm.max_history", fmt.Sprintf("must not be negative, using %d", d.LLM.MaxHistory)})
		c.LLM.MaxHistory = d.LLM.MaxHistory
	}
	if c.LLM.MaxAttempts <= 0 {
		warnings = append(warnings, ValidationWarning{"llm.max_attempts", fmt.Sprintf("must be positive, using %d", d.LLM.MaxAttempts)})
		c.LLM.MaxAttempts = d.LLM.MaxAttempts
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		warnings = append(warnings, ValidationWarning{"llm.temperature", "must be between 0 and 2, using 0.2"})
		c.LLM.Temperature = d.LLM.Temperature
	}
	switch c.History.Driver {
	case "sqlite", "postgres":
	default:
		warnings = append(warnings, ValidationWarning{"history.driver", fmt.Sprintf("unknown driver %q, using sqlite", c.History.Driver)})
		c.History.Driver = "sqlite"
	}
	if c.History.Driver == "postgres" && c.History.DSN == "" {
		warnings = append(warnings, ValidationWarning{"history.dsn", "postgres driver requires a DSN, using sqlite"})
		c.History.Driver = "sqlite"
	}
	if c.Cache.TTL <= 0 {
		warnings = append(warnings, ValidationWarning{"cache.ttl", fmt.Sprintf("must be positive, using %d", d.Cache.TTL)})
		c.Cache.TTL = d.Cache.TTL
	}
	return warnings
}

// HistoryPath returns the SQLite history location
func (c *EnvConfig) HistoryPath() string {
	if c.History.Path != "" {
		if p, err := fileutil.ExpandPath(c.History.Path); err == nil {
			return p
		}
		return c.History.Path
	}
	return filepath.Join(ConfigDir(), "history.db")
}

// GetProviderConfig returns the named provider's configuration
func (c *EnvConfig) GetProviderConfig(name string) (*ProviderConfig, error) {
	p, ok := c.Providers[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("provider %s not found in configuration", name)
	}
	return p, nil
}

// SetProviderAPIKey stores an API key for the named provider
func (c *EnvConfig) SetProviderAPIKey(name, key string) {
	if c.Providers == nil {
		c.Providers = map[string]*ProviderConfig{}
	}
	c.provider(name).APIKey = key
}
