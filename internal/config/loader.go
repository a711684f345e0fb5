package config

import (
	"fmt"
	"slices"
)

// LoadedConfig holds all configuration loaded from kepoki.jsonc
type LoadedConfig struct {
	Backend     BackendSection
	Anthropic   AnthropicSection
	Bedrock     BedrockSection
	Credentials *CredentialRegistry
	Models      *ModelRegistry
	Registry    RegistrySection
	Logging     LoggingSection
	Serve       ServeSection

	// Path is the file the configuration came from; empty for defaults
	Path      string
	ConfigDir string
}

// Default returns the configuration used when no file exists
func Default() *LoadedConfig {
	cfg, _ := ParseUnifiedConfig(nil, "defaults")
	return cfg.ToLoadedConfig("")
}

// LoadAll finds and loads kepoki.jsonc. explicit is the --config flag value.
func LoadAll(explicit string) (*LoadedConfig, error) {
	configPath, err := FindConfigPath(explicit)
	if err != nil {
		return nil, err
	}
	if configPath == "" {
		return Default(), nil
	}

	unified, err := LoadUnifiedConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg := unified.ToLoadedConfig(configPath)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return cfg, nil
}

// BackendKind resolves "auto": anthropic when an API key is available,
// bedrock otherwise
func (c *LoadedConfig) BackendKind() string {
	if c.Backend.Kind != BackendAuto {
		return c.Backend.Kind
	}
	if c.HasAnthropicKey() {
		return ProviderAnthropic
	}
	return ProviderBedrock
}

// HasAnthropicKey returns true if an Anthropic API key is configured
func (c *LoadedConfig) HasAnthropicKey() bool {
	_, ok := c.Credentials.APIKey(ProviderAnthropic)
	return ok
}

// Model resolves the configured model through the model aliases
func (c *LoadedConfig) Model() string {
	return c.Models.ResolveModel(c.Backend.Model)
}

// MaxTokens returns the per-turn output limit: the model alias limit when
// set, else backend.max_tokens
func (c *LoadedConfig) MaxTokens() int {
	if def, ok := c.Models.GetModel(c.Backend.Model); ok && def.MaxOutputTokens > 0 {
		return def.MaxOutputTokens
	}
	return c.Backend.MaxTokens
}

// Validate checks the configuration for values that cannot work
func (c *LoadedConfig) Validate() error {
	kinds := []string{BackendAuto, ProviderAnthropic, ProviderBedrock}
	if !slices.Contains(kinds, c.Backend.Kind) {
		return fmt.Errorf("backend.kind %q must be one of %v", c.Backend.Kind, kinds)
	}
	if c.Backend.MaxTokens < 0 {
		return fmt.Errorf("backend.max_tokens must not be negative")
	}
	for i, tok := range c.Serve.Tokens {
		if tok.Token == "" {
			return fmt.Errorf("serve.tokens[%d] has an empty token", i)
		}
	}
	if c.Anthropic.RequestsPerSecond < 0 || c.Bedrock.RequestsPerSecond < 0 || c.Serve.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	return nil
}
