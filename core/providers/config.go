package providers

import (
	"fmt"
	"time"
)

// BaseConfig contains configuration common to all providers
type BaseConfig struct {
	// APIKey is the authentication key for the provider
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the default model when a persona binds none
	Model string `json:"model" yaml:"model"`

	// MaxTokens is the default maximum tokens to generate
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Temperature is the default sampling temperature (0.0-2.0)
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// Timeout for API requests
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries for transient failures, handled by the SDK client
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BaseURL overrides the default API endpoint (proxies, gateways)
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// DefaultBaseConfig returns defaults sized for short spoken replies.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		MaxTokens:   512,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
		MaxRetries:  2,
	}
}

// Validate checks the base configuration
func (c *BaseConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// AnthropicConfig contains Anthropic-specific configuration
type AnthropicConfig struct {
	BaseConfig `json:",inline" yaml:",inline"`
}

// DefaultAnthropicConfig returns Anthropic defaults
func DefaultAnthropicConfig() AnthropicConfig {
	base := DefaultBaseConfig()
	base.Model = string(Haiku)
	return AnthropicConfig{BaseConfig: base}
}

// Validate checks Anthropic-specific configuration
func (c *AnthropicConfig) Validate() error {
	if err := c.BaseConfig.Validate(); err != nil {
		return fmt.Errorf("anthropic config: %w", err)
	}
	return nil
}

// OpenAIConfig contains OpenAI-specific configuration
type OpenAIConfig struct {
	BaseConfig `json:",inline" yaml:",inline"`

	// Organization ID for OpenAI
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`

	// Project ID for OpenAI
	Project string `json:"project,omitempty" yaml:"project,omitempty"`
}

// DefaultOpenAIConfig returns OpenAI defaults
func DefaultOpenAIConfig() OpenAIConfig {
	base := DefaultBaseConfig()
	base.Model = string(GPT4oMini)
	return OpenAIConfig{BaseConfig: base}
}

// Validate checks OpenAI-specific configuration
func (c *OpenAIConfig) Validate() error {
	if err := c.BaseConfig.Validate(); err != nil {
		return fmt.Errorf("openai config: %w", err)
	}
	return nil
}

// ProviderType identifies the provider
type ProviderType string

const (
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOpenAI    ProviderType = "openai"
)

// Config selects and configures one provider.
type Config struct {
	Provider  ProviderType    `json:"provider" yaml:"provider"`
	OpenAI    OpenAIConfig    `json:"openai" yaml:"openai"`
	Anthropic AnthropicConfig `json:"anthropic" yaml:"anthropic"`
}

// DefaultConfig uses OpenAI, as the deployment always has.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderTypeOpenAI,
		OpenAI:    DefaultOpenAIConfig(),
		Anthropic: DefaultAnthropicConfig(),
	}
}
