package providers

import (
	"encoding/json"
	"fmt"
)

// ValidateRequired checks that raw, already known to be syntactically valid
// JSON, contains every field schema.JSONSchema's "required" list names with
// a non-null value. It is not a general JSON-schema validator - it doesn't
// check types or nested shapes - only the minimal check needed to catch a
// provider returning an empty or partial object (e.g. "{}") that would
// otherwise pass json.Valid and propagate a zero-value struct downstream.
func ValidateRequired(raw []byte, schema Schema) error {
	required, ok := schema.JSONSchema["required"].([]string)
	if !ok || len(required) == 0 {
		return nil
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("schema %q: %w", schema.Name, err)
	}

	for _, field := range required {
		v, present := parsed[field]
		if !present || v == nil {
			return fmt.Errorf("schema %q: missing required field %q", schema.Name, field)
		}
	}
	return nil
}
