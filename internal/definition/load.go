package definition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var ErrInvalidIdentifier = errors.New("invalid agent identifier")

var namePattern = regexp.MustCompile(`^([a-z][a-z0-9]*)(-[a-z0-9]+)*$`)

// Identifier refers to an agent either by file path or by registered name.
// Exactly one field is set.
type Identifier struct {
	Path string
	Name string
}

// Identify resolves s as a path when the file exists on fs, otherwise as
// an agent name in kebab case
func Identify(fs afero.Fs, s string) (Identifier, error) {
	if info, err := fs.Stat(s); err == nil && !info.IsDir() {
		return Identifier{Path: s}, nil
	}
	if namePattern.MatchString(s) {
		return Identifier{Name: s}, nil
	}
	return Identifier{}, fmt.Errorf("%w: %s", ErrInvalidIdentifier, s)
}

// ValidName reports whether s can name a registered agent
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}

// Load reads a definition file. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON.
func Load(fs afero.Fs, path string) (*Agent, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent definition: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	agent, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return agent, nil
}

// Parse decodes and validates a JSON definition, applying defaults for
// omitted optional fields
func Parse(data []byte) (*Agent, error) {
	agent := &Agent{Temperature: DefaultTemperature}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(agent); err != nil {
		return nil, err
	}
	if err := agent.Validate(); err != nil {
		return nil, err
	}
	return agent, nil
}

// yamlToJSON lets YAML definitions share the JSON decoding and its
// validation of tool names
func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.New("empty document")
	}
	return json.Marshal(v)
}
