package gap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/pipeline"
	"github.com/larrycoder123/supportmind/internal/providers"
	"github.com/larrycoder123/supportmind/pkg/config"
)

func TestBuildQuery(t *testing.T) {
	t.Run("joins subject, root cause, category, and a truncated resolution excerpt", func(t *testing.T) {
		c := domain.ResolvedCase{Subject: "billing mismatch", RootCause: "duplicate charge", Category: "billing", Resolution: "refunded the customer"}

		got := buildQuery(c)

		assert.Contains(t, got, "billing mismatch")
		assert.Contains(t, got, "duplicate charge")
		assert.Contains(t, got, "billing")
		assert.Contains(t, got, "Resolution: refunded the customer")
	})

	t.Run("falls back to the description when every other field is empty", func(t *testing.T) {
		c := domain.ResolvedCase{Description: "a long description of what happened"}

		got := buildQuery(c)

		assert.Equal(t, "a long description of what happened", got)
	})
}

type stubEmbedding struct{}

func (stubEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

type stubGeneration struct{ raw []byte }

func (s stubGeneration) GenerateStructured(ctx context.Context, messages []providers.Message, schema providers.Schema, temperature float32) ([]byte, providers.TokenUsage, error) {
	return s.raw, providers.TokenUsage{}, nil
}

type stubStore struct {
	entries map[domain.EntryKey]domain.CorpusEntry
	sim     float64
}

func (s stubStore) Search(ctx context.Context, v []float32, filter corpus.Filter) ([]corpus.Hit, error) {
	var out []corpus.Hit
	for _, e := range s.entries {
		out = append(out, corpus.Hit{Entry: e, Similarity: s.sim})
	}
	return out, nil
}
func (s stubStore) AdjustConfidence(ctx context.Context, key domain.EntryKey, delta float64, incrementUsage bool) (float64, int, error) {
	return 0, 0, nil
}
func (s stubStore) BumpUsage(ctx context.Context, key domain.EntryKey) error { return nil }
func (s stubStore) Upsert(ctx context.Context, entry domain.CorpusEntry) error { return nil }
func (s stubStore) Get(ctx context.Context, key domain.EntryKey) (domain.CorpusEntry, error) {
	return domain.CorpusEntry{}, nil
}
func (s stubStore) Remove(ctx context.Context, key domain.EntryKey) error { return nil }

func TestDetectorDetect(t *testing.T) {
	t.Run("below the similarity floor, the verdict is forced to NEW regardless of the classifier text", func(t *testing.T) {
		store := stubStore{
			entries: map[domain.EntryKey]domain.CorpusEntry{
				{SourceKind: domain.SourceArticle, SourceID: "A"}: {SourceKind: domain.SourceArticle, SourceID: "A", Title: "t", Content: "c"},
			},
			sim: 0.1,
		}
		gen := stubGeneration{raw: []byte(`{"queries":["q"],"rationale":"r"}`)}

		d := &Detector{
			Deps: pipeline.Deps{
				Store:                  store,
				Embedding:              stubEmbedding{},
				Generation:             chainedGeneration{planRaw: gen.raw, classifyRaw: []byte(`{"verdict":"SAME","reasoning":"matches"}`)},
				GapSimilarityThreshold: 0.5,
			},
			ScoreWeights: config.ScoreWeights{Similarity: 1},
			TopK:         intPtr(5),
		}

		result := d.Detect(context.Background(), domain.ResolvedCase{CaseID: "CASE-1", Subject: "s", Resolution: "r"}, "EXEC-1", "")

		require.NotNil(t, result.State.Decision)
		assert.Equal(t, domain.VerdictNew, result.State.Decision.Verdict)
	})

	t.Run("an explicit zero top_k fails the run instead of silently defaulting", func(t *testing.T) {
		d := &Detector{
			Deps:         pipeline.Deps{Store: stubStore{}, Embedding: stubEmbedding{}, Generation: stubGeneration{}},
			ScoreWeights: config.ScoreWeights{Similarity: 1},
			TopK:         intPtr(0),
		}

		result := d.Detect(context.Background(), domain.ResolvedCase{CaseID: "CASE-2"}, "EXEC-2", "")

		assert.Equal(t, pipeline.StatusError, result.State.Status)
		assert.Contains(t, result.State.ErrorMessage, "top_k")
	})
}

// chainedGeneration returns planRaw for the retrieval_plan schema
// (plan_query) and classifyRaw for any other schema (classify_knowledge),
// since both nodes share the same GenerationPort within one Detect run.
type chainedGeneration struct {
	planRaw     []byte
	classifyRaw []byte
	calls       int
}

func (c chainedGeneration) GenerateStructured(ctx context.Context, messages []providers.Message, schema providers.Schema, temperature float32) ([]byte, providers.TokenUsage, error) {
	if schema.Name == "retrieval_plan" {
		return c.planRaw, providers.TokenUsage{}, nil
	}
	return c.classifyRaw, providers.TokenUsage{}, nil
}

func intPtr(n int) *int { return &n }
