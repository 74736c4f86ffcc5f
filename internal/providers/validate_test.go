package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequired(t *testing.T) {
	schema := Schema{Name: "kb_draft", JSONSchema: map[string]interface{}{
		"required": []string{"title", "body"},
	}}

	t.Run("an empty object fails validation even though it is valid JSON", func(t *testing.T) {
		err := ValidateRequired([]byte(`{}`), schema)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "title")
	})

	t.Run("a null value for a required field is treated as missing", func(t *testing.T) {
		err := ValidateRequired([]byte(`{"title":"t","body":null}`), schema)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "body")
	})

	t.Run("every required field present passes", func(t *testing.T) {
		err := ValidateRequired([]byte(`{"title":"t","body":"b","extra":1}`), schema)

		assert.NoError(t, err)
	})

	t.Run("a schema with no required list is a no-op", func(t *testing.T) {
		err := ValidateRequired([]byte(`{}`), Schema{Name: "no-required", JSONSchema: map[string]interface{}{}})

		assert.NoError(t, err)
	})
}
