package definition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuiltinNamespace holds tools named without a namespace
const BuiltinNamespace = "builtin"

// ToolName is a namespaced tool reference, written "@namespace/name". A
// bare name refers to the builtin namespace. The stored form is always
// the canonical "@namespace/name".
type ToolName string

// ParseToolName parses "@namespace/name" or a bare builtin name
func ParseToolName(s string) (ToolName, error) {
	if s == "" {
		return "", fmt.Errorf("empty tool name")
	}
	namespace, name, ok := strings.Cut(s, "/")
	if !ok {
		return NewToolName(BuiltinNamespace, s), nil
	}
	namespace, ok = strings.CutPrefix(namespace, "@")
	if !ok {
		return "", fmt.Errorf("tool namespace must start with '@': %q", s)
	}
	if namespace == "" || name == "" {
		return "", fmt.Errorf("invalid tool name %q", s)
	}
	return NewToolName(namespace, name), nil
}

// NewToolName builds a canonical tool name
func NewToolName(namespace, name string) ToolName {
	return ToolName("@" + namespace + "/" + name)
}

// Namespace returns the part between '@' and '/'
func (t ToolName) Namespace() string {
	namespace, _, _ := strings.Cut(strings.TrimPrefix(string(t), "@"), "/")
	return namespace
}

// Name returns the part after '/'
func (t ToolName) Name() string {
	_, name, _ := strings.Cut(string(t), "/")
	return name
}

// Matches reports whether t names tool on server. "*" matches every
// tool in the namespace.
func (t ToolName) Matches(server, tool string) bool {
	if t.Namespace() != server {
		return false
	}
	return t.Name() == "*" || t.Name() == tool
}

func (t ToolName) String() string { return string(t) }

// UnmarshalJSON parses and canonicalizes the name
func (t *ToolName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseToolName(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
