package config

import "os"

// CredentialRegistry holds provider credentials
type CredentialRegistry struct {
	Providers ProviderCredentials `json:"providers"`
}

// ProviderCredentials holds named model provider credentials
type ProviderCredentials struct {
	Credentials map[string]ProviderCredential `json:"credentials"`
	Default     string                        `json:"default"`
}

// ProviderCredential is a single provider API key
type ProviderCredential struct {
	Provider    string `json:"provider"` // anthropic
	APIKey      string `json:"api_key"`
	Description string `json:"description"`
}

// GetProviderCredential returns a provider credential by name
func (r *CredentialRegistry) GetProviderCredential(name string) (*ProviderCredential, bool) {
	if cred, ok := r.Providers.Credentials[name]; ok {
		return &cred, true
	}
	return nil, false
}

// GetDefaultProviderCredential returns the default provider credential
func (r *CredentialRegistry) GetDefaultProviderCredential() (*ProviderCredential, bool) {
	if r.Providers.Default == "" {
		return nil, false
	}
	return r.GetProviderCredential(r.Providers.Default)
}

// APIKey returns the key for provider: the default credential when it
// belongs to provider, else the first configured credential for provider,
// else the provider's environment variable
func (r *CredentialRegistry) APIKey(provider string) (string, bool) {
	if cred, ok := r.GetDefaultProviderCredential(); ok && cred.Provider == provider && cred.APIKey != "" {
		return cred.APIKey, true
	}
	for _, name := range sortedKeys(r.Providers.Credentials) {
		cred := r.Providers.Credentials[name]
		if cred.Provider == provider && cred.APIKey != "" {
			return cred.APIKey, true
		}
	}
	if env := ProviderEnvVar(provider); env != "" {
		if key := os.Getenv(env); key != "" {
			return key, true
		}
	}
	return "", false
}

// ProviderCredentialInfo describes a credential without its key
type ProviderCredentialInfo struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default,omitempty"`
}

// ListCredentials returns all credentials without sensitive data, by name
func (r *CredentialRegistry) ListCredentials() []ProviderCredentialInfo {
	result := make([]ProviderCredentialInfo, 0, len(r.Providers.Credentials))
	for _, name := range sortedKeys(r.Providers.Credentials) {
		cred := r.Providers.Credentials[name]
		result = append(result, ProviderCredentialInfo{
			Name:        name,
			Provider:    cred.Provider,
			Description: cred.Description,
			IsDefault:   name == r.Providers.Default,
		})
	}
	return result
}

// ProviderEnvVar returns the environment variable name for a provider
func ProviderEnvVar(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
