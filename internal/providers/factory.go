// Package providers builds model backends from configuration.
//
// factory.go - Backend factory and auto-detection
//
// This file contains:
// - Kind constants (anthropic, bedrock, auto)
// - Resolved: a backend plus the model it should be asked for
// - New, which picks and constructs the backend
// - Auto-detection (Anthropic API key -> anthropic, otherwise bedrock)

package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/backend/anthropic"
	"github.com/HyphaGroup/kepoki/internal/backend/bedrock"
	"github.com/HyphaGroup/kepoki/internal/config"
)

// Kind identifies a backend implementation
type Kind string

const (
	KindAnthropic Kind = config.ProviderAnthropic
	KindBedrock   Kind = config.ProviderBedrock
	KindAuto      Kind = config.BackendAuto
)

// Models used when the configuration names none
const (
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultBedrockModel   = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
)

// Resolved is a constructed backend and the settings turns should use
type Resolved struct {
	Backend   backend.Backend
	Kind      Kind
	Model     string
	MaxTokens int
}

// DetectKind resolves KindAuto from the available credentials
func DetectKind(hasAnthropicKey bool) Kind {
	if hasAnthropicKey {
		return KindAnthropic
	}
	return KindBedrock
}

// New creates the configured backend. Auto picks anthropic when an API
// key is available and bedrock otherwise.
func New(ctx context.Context, cfg *config.LoadedConfig) (*Resolved, error) {
	kind := Kind(cfg.Backend.Kind)
	if kind == KindAuto || kind == "" {
		kind = DetectKind(cfg.HasAnthropicKey())
	}

	out := &Resolved{Kind: kind, Model: cfg.Model(), MaxTokens: cfg.MaxTokens()}
	if out.MaxTokens <= 0 {
		out.MaxTokens = backend.DefaultMaxTokens
	}

	switch kind {
	case KindAnthropic:
		b, err := newAnthropic(cfg)
		if err != nil {
			return nil, err
		}
		out.Backend = b
		if out.Model == "" {
			out.Model = DefaultAnthropicModel
		}
	case KindBedrock:
		b, err := bedrock.New(ctx, bedrock.Options{
			Region:            cfg.Bedrock.Region,
			Profile:           cfg.Bedrock.Profile,
			RequestsPerSecond: cfg.Bedrock.RequestsPerSecond,
			Burst:             cfg.Bedrock.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("creating bedrock backend: %w", err)
		}
		out.Backend = b
		if out.Model == "" {
			out.Model = DefaultBedrockModel
		}
	default:
		return nil, fmt.Errorf("unknown backend kind: %s", kind)
	}
	return out, nil
}

func newAnthropic(cfg *config.LoadedConfig) (*anthropic.Client, error) {
	key, ok := cfg.Credentials.APIKey(config.ProviderAnthropic)
	if !ok {
		return nil, fmt.Errorf("anthropic API key is required: add a credential to %s or set %s",
			config.FileName, config.ProviderEnvVar(config.ProviderAnthropic))
	}
	return anthropic.New(anthropic.Options{
		BaseURL:           cfg.Anthropic.BaseURL,
		APIKey:            key,
		APIVersion:        cfg.Anthropic.APIVersion,
		Betas:             cfg.Anthropic.Betas,
		RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
		Burst:             cfg.Anthropic.Burst,
		HeaderTimeout:     time.Duration(cfg.Anthropic.HeaderTimeout),
	}), nil
}
