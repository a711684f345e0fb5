package config

import (
	"maps"
	"slices"
)

// ModelDefinition maps a shorthand name to a backend model ID
type ModelDefinition struct {
	Model           string `json:"model"`
	DisplayName     string `json:"displayName"`
	Backend         string `json:"backend,omitempty"`
	MaxOutputTokens int    `json:"maxOutputTokens,omitempty"`
}

// ModelRegistry holds model configurations keyed by shorthand name
type ModelRegistry struct {
	Models map[string]ModelDefinition `json:"models"`
}

// ModelInfo is a model entry for listings
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Backend     string `json:"backend,omitempty"`
}

// GetModel returns a model definition by shorthand name
func (r *ModelRegistry) GetModel(name string) (ModelDefinition, bool) {
	model, ok := r.Models[name]
	return model, ok
}

// HasModel checks if a model exists in the registry
func (r *ModelRegistry) HasModel(name string) bool {
	_, ok := r.Models[name]
	return ok
}

// ListModels returns model info for all models, sorted by name
func (r *ModelRegistry) ListModels() []ModelInfo {
	var models []ModelInfo
	for _, name := range sortedKeys(r.Models) {
		def := r.Models[name]
		models = append(models, ModelInfo{
			Name:        name,
			DisplayName: def.DisplayName,
			Backend:     def.Backend,
		})
	}
	return models
}

// ResolveModel resolves a shorthand name to the full model ID.
// Names not in the registry are returned unchanged.
func (r *ModelRegistry) ResolveModel(name string) string {
	if model, ok := r.Models[name]; ok {
		return model.Model
	}
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
