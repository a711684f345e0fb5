package definition

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// Schema returns the JSON Schema describing agent definition files
func Schema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[Agent](nil)
	if err != nil {
		return nil, err
	}
	schema.Title = "Agent"
	schema.Description = "A kepoki agent definition"
	return schema, nil
}
