package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileName is the configuration file name
const FileName = "kepoki.jsonc"

// Backend kinds
const (
	BackendAuto       = "auto"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// UnifiedConfig is the file format of kepoki.jsonc
type UnifiedConfig struct {
	Backend     BackendSection             `json:"backend"`
	Anthropic   AnthropicSection           `json:"anthropic"`
	Bedrock     BedrockSection             `json:"bedrock"`
	Credentials CredentialsSection         `json:"credentials"`
	Models      map[string]ModelDefinition `json:"models"`
	Registry    RegistrySection            `json:"registry"`
	Logging     LoggingSection             `json:"logging"`
	Serve       ServeSection               `json:"serve"`
}

// BackendSection selects the model backend
type BackendSection struct {
	Kind      string `json:"kind"` // auto, anthropic, bedrock
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

// AnthropicSection configures the HTTP/SSE backend
type AnthropicSection struct {
	BaseURL           string   `json:"base_url"`
	APIVersion        string   `json:"api_version"`
	Betas             []string `json:"betas"`
	RequestsPerSecond float64  `json:"requests_per_second"`
	Burst             int      `json:"burst"`
	HeaderTimeout     Duration `json:"header_timeout"`
}

// BedrockSection configures the binary event-stream backend
type BedrockSection struct {
	Region            string  `json:"region"`
	Profile           string  `json:"profile"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// CredentialsSection contains provider credentials
type CredentialsSection struct {
	Providers ProviderCredentials `json:"providers"`
}

// RegistrySection locates the named agent registry database
type RegistrySection struct {
	Path string `json:"path"`
}

// LoggingSection configures the process logger
type LoggingSection struct {
	Dir   string `json:"dir"`
	JSON  bool   `json:"json"`
	Level string `json:"level"`
}

// ServeSection configures kepo serve
type ServeSection struct {
	Address string       `json:"address"`
	Tokens  []ServeToken `json:"tokens"`

	// RequestsPerSecond limits each caller; 0 disables limiting
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// ServeToken is a bearer token accepted by kepo serve
type ServeToken struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// Duration is a time.Duration written as a string such as "90s"
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %s", data)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// MarshalJSON writes the duration string form
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// HomeDir returns ~/.kepoki, or .kepoki when the home directory is unknown
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kepoki"
	}
	return filepath.Join(home, ".kepoki")
}

// FindConfigPath returns the path to kepoki.jsonc using precedence:
// 1. explicit (a file, or a directory holding kepoki.jsonc)
// 2. ./config/kepoki.jsonc (project-local)
// 3. ~/.kepoki/config/kepoki.jsonc (user global)
//
// An empty path and no error means no file exists and defaults apply.
func FindConfigPath(explicit string) (string, error) {
	if explicit != "" {
		path := explicit
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, FileName)
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%s not found at %s", FileName, explicit)
		}
		return absPath(path), nil
	}

	candidates := []string{
		filepath.Join("config", FileName),
		filepath.Join(HomeDir(), "config", FileName),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return absPath(path), nil
		}
	}
	return "", nil
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// LoadUnifiedConfig loads configuration from a single kepoki.jsonc file
func LoadUnifiedConfig(configPath string) (*UnifiedConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}
	return ParseUnifiedConfig(data, configPath)
}

// ParseUnifiedConfig parses JSONC content; source names it in errors
func ParseUnifiedConfig(data []byte, source string) (*UnifiedConfig, error) {
	var cfg UnifiedConfig
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(StripJSONComments(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", source, err)
		}
	}
	applyUnifiedDefaults(&cfg)
	return &cfg, nil
}

func applyUnifiedDefaults(cfg *UnifiedConfig) {
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = BackendAuto
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-west-2"
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = filepath.Join(HomeDir(), "agents.db")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Serve.Address == "" {
		cfg.Serve.Address = ":8080"
	}
	if cfg.Credentials.Providers.Credentials == nil {
		cfg.Credentials.Providers.Credentials = make(map[string]ProviderCredential)
	}
	if cfg.Models == nil {
		cfg.Models = make(map[string]ModelDefinition)
	}
}

// ToLoadedConfig converts UnifiedConfig to LoadedConfig
func (u *UnifiedConfig) ToLoadedConfig(path string) *LoadedConfig {
	cfg := &LoadedConfig{
		Backend:     u.Backend,
		Anthropic:   u.Anthropic,
		Bedrock:     u.Bedrock,
		Credentials: &CredentialRegistry{Providers: u.Credentials.Providers},
		Models:      &ModelRegistry{Models: u.Models},
		Registry:    u.Registry,
		Logging:     u.Logging,
		Serve:       u.Serve,
		Path:        path,
	}
	if path != "" {
		cfg.ConfigDir = filepath.Dir(path)
	}
	return cfg
}
