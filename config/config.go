// Package config provides configuration loading and management for Quill.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/quill/generation"
	"github.com/hupe1980/quill/logging"
	"gopkg.in/yaml.v3"
)

// Supported provider names.
const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Environment variables that override file settings.
const (
	EnvProvider = "QUILL_PROVIDER"
	EnvModel    = "QUILL_MODEL"
	EnvLogLevel = "QUILL_LOG_LEVEL"
)

// Config represents the complete Quill configuration
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Document DocumentConfig `yaml:"document"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ProviderConfig configures the model behind the generation service
type ProviderConfig struct {
	// Name is one of mock, openai, anthropic
	Name string `yaml:"name"`
	// Model is the provider model id (empty = provider default)
	Model string `yaml:"model"`
	// BaseURL overrides the OpenAI endpoint (e.g. a compatible local server)
	BaseURL string `yaml:"base_url,omitempty"`
	// Temperature controls randomness (0.0-2.0)
	Temperature float64 `yaml:"temperature"`
	// MaxTokens caps the length of one continuation
	MaxTokens int64 `yaml:"max_tokens"`
	// Instruction is the system instruction template ({{.Text}}, {{.Words}}, {{.Length}})
	Instruction string `yaml:"instruction"`
	// Stream requests incremental fragments
	Stream bool `yaml:"stream"`
}

// WorkflowConfig configures the workflow controller
type WorkflowConfig struct {
	// RegeneratePartial allows regenerating suggestions kept after a cancel
	RegeneratePartial bool `yaml:"regenerate_partial"`
	// EventBufferSize is the size of the controller event queue
	EventBufferSize int `yaml:"event_buffer_size"`
}

// DocumentConfig configures file-backed documents
type DocumentConfig struct {
	// Watch reloads the document on external edits while idle
	Watch bool `yaml:"watch"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`
	// Format is json or text
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Address to serve /metrics on (empty = disabled)
	Address string `yaml:"address"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:        ProviderMock,
			Temperature: 0.7,
			MaxTokens:   1024,
			Instruction: generation.DefaultInstruction,
			Stream:      true,
		},
		Workflow: WorkflowConfig{
			RegeneratePartial: true,
			EventBufferSize:   100,
		},
		Document: DocumentConfig{
			Watch: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case ProviderMock, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("provider.name %q is not supported", c.Provider.Name)
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		return fmt.Errorf("provider.temperature must be between 0 and 2")
	}
	if c.Provider.MaxTokens <= 0 {
		return fmt.Errorf("provider.max_tokens must be positive")
	}
	if c.Workflow.EventBufferSize <= 0 {
		return fmt.Errorf("workflow.event_buffer_size must be positive")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	return nil
}

// ApplyEnv overrides settings from QUILL_* environment variables.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvProvider)); v != "" {
		c.Provider.Name = strings.ToLower(v)
	}
	if v := strings.TrimSpace(getenv(EnvModel)); v != "" {
		c.Provider.Model = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger() (*logging.QuillLogger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewSlogLogger(level, c.Logging.Format, false), nil
}
