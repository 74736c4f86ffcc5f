package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larrycoder123/supportmind/internal/providers"
	"github.com/larrycoder123/supportmind/pkg/circuitbreaker"
	"github.com/larrycoder123/supportmind/pkg/retry"
)

var decisionSchema = providers.Schema{
	Name: "knowledge_decision",
	JSONSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"verdict", "reasoning"},
	},
}

// newTestClient builds a Client that talks to a local mock server instead of
// the real OpenAI API, with the same retry/breaker classification NewClient
// wires in production.
func newTestClient(t *testing.T, content string) *Client {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "chatcmpl-test",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`, content)
	}))
	t.Cleanup(server.Close)

	config := openai.DefaultConfig("test-key")
	config.BaseURL = server.URL

	return &Client{
		client:         openai.NewClientWithConfig(config),
		chatModel:      "gpt-4",
		embeddingModel: "text-embedding-3-small",
		temperature:    0.5,
		maxTokens:      256,
		timeout:        5 * time.Second,
		cb: circuitbreaker.NewCircuitBreaker("test-llm", circuitbreaker.Config{
			MaxRequests:      5,
			FailureThreshold: 100,
			SuccessThreshold: 2,
			IsFailure:        isOpenAIBreakerFailure,
		}),
		retryConfig: retry.Config{
			MaxAttempts: 3,
			IsRetryable: isOpenAIRetryable,
		},
	}
}

func TestClientGenerateStructured(t *testing.T) {
	t.Run("a well-formed response passes straight through", func(t *testing.T) {
		c := newTestClient(t, `{"verdict":"SAME","reasoning":"matches an existing entry"}`)

		raw, usage, err := c.GenerateStructured(context.Background(), []providers.Message{{Role: "user", Content: "q"}}, decisionSchema, 0.2)

		require.NoError(t, err)
		assert.JSONEq(t, `{"verdict":"SAME","reasoning":"matches an existing entry"}`, string(raw))
		assert.Equal(t, 1, usage.PromptTokens)
	})

	t.Run("valid JSON missing required fields is retried and ultimately fails instead of returned as-is", func(t *testing.T) {
		c := newTestClient(t, `{}`)

		_, _, err := c.GenerateStructured(context.Background(), []providers.Message{{Role: "user", Content: "q"}}, decisionSchema, 0.2)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed validation")
	})
}
