package tool

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateArgs validates args against a tool's JSON Schema, returning an
// InvalidArgs classified error on mismatch. Tools call this at the top of
// Execute so the model sees a corrective error message rather than a panic
// on malformed arguments.
func ValidateArgs(schema json.RawMessage, args json.RawMessage) *Error {
	if len(schema) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return InvalidArgs("tool schema is not valid JSON: %v", err)
	}
	var argsDoc any
	if len(args) == 0 {
		argsDoc = map[string]any{}
	} else if err := json.Unmarshal(args, &argsDoc); err != nil {
		return InvalidArgs("arguments are not valid JSON: %v", err)
	}

	c := jsonschema.NewCompiler()
	resourceName := fmt.Sprintf("schema-%p.json", schema)
	if err := c.AddResource(resourceName, schemaDoc); err != nil {
		return InvalidArgs("tool schema rejected: %v", err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return InvalidArgs("tool schema failed to compile: %v", err)
	}
	if err := compiled.Validate(argsDoc); err != nil {
		return InvalidArgs("arguments do not match schema: %v", err)
	}
	return nil
}
