// SPDX-License-Identifier: AGPL-3.0-only

// Package config holds the addon configuration. Configuration is built in
// layers: DefaultConfig, then FromEnv, then any caller overrides, then
// Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// SecretAnthropicAPIKey is the secret key every configuration must carry.
const SecretAnthropicAPIKey = "anthropic_api_key"

// SecretOpenAIAPIKey is required when the OpenAI-compatible provider is selected.
const SecretOpenAIAPIKey = "openai_api_key"

// Config is the root configuration for the addon and its server binary.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	AI        AIConfig
	DB        DBConfig
	Retention RetentionConfig

	// Secrets maps secret names to values. Validate requires the
	// Anthropic API key to be present.
	Secrets map[string]string
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Name          string
	Version       string
	Address       string
	Port          int
	TransportMode string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string
	FilePath string
}

// AIConfig holds model settings.
type AIConfig struct {
	// Provider selects the backend: "anthropic" (default) or "openai"
	// for any OpenAI-compatible endpoint.
	Provider string
	Model    string
	// MaxTokens is the default response budget per round.
	MaxTokens int
	// Temperature is the default sampling temperature.
	Temperature float64
	// BaseURL overrides the endpoint for OpenAI-compatible servers
	// (Ollama, vLLM, Groq, LiteLLM).
	BaseURL string
}

// DBConfig holds the tool run history database settings.
type DBConfig struct {
	// Path is the SQLite database file. Empty disables run history.
	Path string
}

// RetentionConfig controls pruning of aged tool run records.
type RetentionConfig struct {
	Enabled bool
	// Schedule is a cron expression for the prune job.
	Schedule string
	// MaxAge is how long run records are kept.
	MaxAge time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		Server: ServerConfig{
			Name:          "anthropic-rooms",
			Version:       "1.0.0",
			Address:       "localhost",
			Port:          8080,
			TransportMode: "stdio",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		AI: AIConfig{
			Provider:    "anthropic",
			Model:       "claude-3-5-sonnet-20241022",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		DB: DBConfig{
			Path: filepath.Join(home, ".anthropic-rooms", "runs.db"),
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Schedule: "0 3 * * *",
			MaxAge:   30 * 24 * time.Hour,
		},
		Secrets: map[string]string{},
	}
}

// FromEnv overrides configuration values from environment variables.
func FromEnv(cfg *Config) {
	if v := os.Getenv("ROOMS_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ROOMS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ROOMS_TRANSPORT"); v != "" {
		cfg.Server.TransportMode = v
	}
	if v := os.Getenv("ROOMS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ROOMS_LOG_FILE"); v != "" {
		cfg.Logging.FilePath = v
	}
	if v := os.Getenv("ROOMS_AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("ROOMS_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("ROOMS_AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("ROOMS_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AI.MaxTokens = n
		}
	}
	if v := os.Getenv("ROOMS_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.AI.Temperature = f
		}
	}
	if v := os.Getenv("ROOMS_DB_PATH"); v != "" {
		cfg.DB.Path = v
	}
	if v := os.Getenv("ROOMS_RETENTION_SCHEDULE"); v != "" {
		cfg.Retention.Schedule = v
	}
	if v := os.Getenv("ROOMS_RETENTION_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention.MaxAge = d
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Secrets[SecretAnthropicAPIKey] = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Secrets[SecretOpenAIAPIKey] = v
	}
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.Secrets[SecretAnthropicAPIKey] == "" {
		return fmt.Errorf("missing required secret: %s", SecretAnthropicAPIKey)
	}
	if c.AI.Provider == "openai" && c.Secrets[SecretOpenAIAPIKey] == "" {
		return fmt.Errorf("missing required secret: %s", SecretOpenAIAPIKey)
	}

	switch c.AI.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported AI provider: %s", c.AI.Provider)
	}

	if c.AI.Model == "" {
		return fmt.Errorf("AI model must not be empty")
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.AI.MaxTokens)
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", c.AI.Temperature)
	}

	switch c.Server.TransportMode {
	case "stdio", "sse":
	default:
		return fmt.Errorf("unsupported transport mode: %s", c.Server.TransportMode)
	}

	if c.Retention.Enabled {
		if c.Retention.Schedule == "" {
			return fmt.Errorf("retention schedule must not be empty when retention is enabled")
		}
		if c.Retention.MaxAge <= 0 {
			return fmt.Errorf("retention max age must be positive")
		}
	}

	return nil
}
