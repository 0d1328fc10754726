package registry

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// CheckInputs validates assembled inputs against the handler's declared input
// schema. Schemas are advisory: a mismatch is reported for logging but never
// blocks execution, and a handler with no schema always passes.
func CheckInputs(h Handler, inputs map[string]interface{}) error {
	schema := h.InputSchema()
	if schema == nil {
		return nil
	}

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("invalid input schema for %s: %w", h.NodeType(), err)
	}
	inputBytes, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("failed to serialize inputs: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(inputBytes),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	return fmt.Errorf("inputs for %s do not match schema: %s (%d issues)",
		h.NodeType(), first.Description(), len(result.Errors()))
}
