// Package llm adapts the OpenAI SDK to the Embedding, Generation, and
// Rerank ports, wrapping every call in the retry and circuit-breaker
// primitives the rest of the module uses for every provider call.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/metrics"
	"github.com/larrycoder123/supportmind/internal/providers"
	"github.com/larrycoder123/supportmind/internal/vectormath"
	"github.com/larrycoder123/supportmind/pkg/circuitbreaker"
	"github.com/larrycoder123/supportmind/pkg/logger"
	"github.com/larrycoder123/supportmind/pkg/retry"
)

// Client implements providers.EmbeddingPort and providers.GenerationPort
// against OpenAI chat/embedding endpoints. Rerank is implemented separately
// in rerank.go, which re-embeds query and candidates through this client.
type Client struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func NewClient(apiKey, chatModel, embeddingModel string, temperature float32, maxTokens, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure:        isOpenAIBreakerFailure,
		Logger:           logger.Log,
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		IsRetryable:    isOpenAIRetryable,
		Logger:         logger.Log,
	}

	logger.Info("llm client initialized",
		zap.String("chat_model", chatModel),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         client,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		timeout:        time.Duration(timeoutSec) * time.Second,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

var _ providers.EmbeddingPort = (*Client)(nil)
var _ providers.GenerationPort = (*Client)(nil)

// isOpenAIRetryable reports whether err is worth a fresh attempt. Rate
// limits and server-side errors are transient; a bad request, an invalid
// API key, or an unknown model will fail identically on every attempt, so
// retrying just burns the attempt budget and delays surfacing the real
// problem. Errors that aren't an *openai.APIError at all - a dropped
// connection, a malformed JSON response - are treated as retryable, since
// those are exactly the cases where a fresh attempt can plausibly help.
func isOpenAIRetryable(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return true
	}

	switch apiErr.HTTPStatusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// isOpenAIBreakerFailure reports whether err should count against the
// circuit breaker's failure threshold. A malformed request or bad
// credentials is a caller/config problem, not evidence the provider is
// unhealthy - tripping the breaker over one would start rejecting every
// other in-flight request that had nothing wrong with it.
func isOpenAIBreakerFailure(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return true
	}

	switch apiErr.HTTPStatusCode {
	case 400, 401, 403, 404, 422:
		return false
	default:
		return true
	}
}

// EmbedBatch embeds every text in a single provider call. Callers must not
// call this once per text — the pipeline's retrieve node relies on one
// round trip covering all query variants.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var embeddings [][]float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: texts,
				Model: openai.EmbeddingModel(c.embeddingModel),
			})
			if err != nil {
				return fmt.Errorf("create embeddings: %w", err)
			}

			embeddings = make([][]float32, len(resp.Data))
			for i, d := range resp.Data {
				v := make([]float32, len(d.Embedding))
				copy(v, d.Embedding)
				embeddings[i] = v
			}
			return nil
		})
	})
	if err != nil {
		return nil, domain.NewProviderError("openai-embedding", err)
	}

	logger.Debug("batch embeddings generated", zap.Int("count", len(embeddings)))
	return embeddings, nil
}

// GenerateStructured asks the chat model for a JSON value matching schema
// via OpenAI's JSON-mode response format, and retries internally on schema
// violation up to MaxAttempts before failing.
func (c *Client) GenerateStructured(ctx context.Context, messages []providers.Message, schema providers.Schema, temperature float32) ([]byte, providers.TokenUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	var raw []byte
	var usage providers.TokenUsage

	attempts := c.retryConfig.MaxAttempts
	if attempts == 0 {
		attempts = 3
	}

	var lastErr error
	lastAttempt := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		lastAttempt = attempt
		err := c.cb.Execute(ctx, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:          c.chatModel,
				Messages:       chatMessages,
				Temperature:    temperature,
				MaxTokens:      c.maxTokens,
				ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
			})
			if err != nil {
				return fmt.Errorf("create chat completion: %w", err)
			}

			content := resp.Choices[0].Message.Content
			if !json.Valid([]byte(content)) {
				return fmt.Errorf("structured response for schema %q is not valid JSON", schema.Name)
			}
			if err := providers.ValidateRequired([]byte(content), schema); err != nil {
				return fmt.Errorf("structured response for schema %q failed validation: %w", schema.Name, err)
			}

			raw = []byte(content)
			usage = providers.TokenUsage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
			return nil
		})

		if err == nil {
			metrics.LLMTokensUsed.WithLabelValues(c.chatModel, "prompt").Add(float64(usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.chatModel, "completion").Add(float64(usage.CompletionTokens))
			return raw, usage, nil
		}

		lastErr = err

		if !isOpenAIRetryable(err) {
			logger.Debug("structured generation failed with a non-retryable error",
				zap.String("schema", schema.Name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			break
		}

		logger.Warn("structured generation attempt failed",
			zap.String("schema", schema.Name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return nil, providers.TokenUsage{}, domain.NewProviderError("openai-chat", fmt.Errorf("structured generation failed after %d attempt(s): %w", lastAttempt, lastErr))
}

// EmbeddingSimilarityRerank scores candidates by cosine similarity against
// the query embedding, re-embedding the query and every candidate in one
// EmbedBatch call.
func (c *Client) EmbeddingSimilarityRerank(ctx context.Context, query string, candidateTexts []string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, append([]string{query}, candidateTexts...))
	if err != nil {
		return nil, err
	}
	queryVec := vectors[0]

	scores := make([]float64, len(candidateTexts))
	for i, v := range vectors[1:] {
		scores[i] = vectormath.CosineSimilarity(queryVec, v)
	}
	return scores, nil
}
