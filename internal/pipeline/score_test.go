package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/pkg/config"
)

func TestLearningScore(t *testing.T) {
	t.Run("high confidence, heavy usage, fresh entry scores near the top", func(t *testing.T) {
		score := learningScore(0.95, 50, time.Now(), 365)
		assert.Greater(t, score, 0.8)
	})

	t.Run("zero usage still contributes a freshness floor", func(t *testing.T) {
		score := learningScore(0.5, 0, time.Now(), 365)
		assert.Greater(t, score, 0.0)
	})

	t.Run("freshness never drops the blend below its 0.5 floor contribution", func(t *testing.T) {
		ancient := time.Now().Add(-10 * 365 * 24 * time.Hour)
		fresh := learningScore(0.5, 0, time.Now(), 365)
		stale := learningScore(0.5, 0, ancient, 365)
		assert.Less(t, stale, fresh)
		assert.InDelta(t, fresh-stale, 0.1*0.5, 0.01)
	})
}

func TestBlendRerankWithLearning(t *testing.T) {
	t.Run("zero weight leaves the raw score untouched", func(t *testing.T) {
		assert.Equal(t, 0.7, blendRerankWithLearning(0.7, 0.1, 0))
	})

	t.Run("full weight replaces raw entirely with raw*learning", func(t *testing.T) {
		assert.InDelta(t, 0.7*0.9, blendRerankWithLearning(0.7, 0.9, 1.0), 0.0001)
	})

	t.Run("partial weight interpolates", func(t *testing.T) {
		got := blendRerankWithLearning(1.0, 0.5, 0.5)
		assert.InDelta(t, 0.75, got, 0.0001)
	})
}

func TestFreshnessTerm(t *testing.T) {
	t.Run("just-updated entry scores 1", func(t *testing.T) {
		assert.InDelta(t, 1.0, freshnessTerm(time.Now(), 365), 0.01)
	})

	t.Run("entry older than max age clamps to 0", func(t *testing.T) {
		ancient := time.Now().Add(-2 * 365 * 24 * time.Hour)
		assert.Equal(t, 0.0, freshnessTerm(ancient, 365))
	})
}

func TestFinalScore(t *testing.T) {
	weights := config.ScoreWeights{Similarity: 0.4, Rerank: 0.3, Confidence: 0.15, Freshness: 0.1, Learning: 0.05}

	t.Run("falls back to similarity when rerank score is zero", func(t *testing.T) {
		hit := EvidenceHit{
			Similarity:  0.8,
			RerankScore: 0,
			Entry:       domain.CorpusEntry{Confidence: 0.9, UsageCount: 10, UpdatedAt: time.Now()},
		}
		withRerank := finalScore(EvidenceHit{Similarity: 0.8, RerankScore: 0.8, Entry: hit.Entry}, weights, 365)
		withoutRerank := finalScore(hit, weights, 365)
		assert.InDelta(t, withRerank, withoutRerank, 0.0001)
	})

	t.Run("result is clamped to [0,1]", func(t *testing.T) {
		hit := EvidenceHit{
			Similarity:  1.0,
			RerankScore: 1.0,
			Entry:       domain.CorpusEntry{Confidence: 1.0, UsageCount: 1000, UpdatedAt: time.Now()},
		}
		score := finalScore(hit, weights, 365)
		assert.LessOrEqual(t, score, 1.0)
		assert.GreaterOrEqual(t, score, 0.0)
	})

	t.Run("stale low-confidence unused entry scores low", func(t *testing.T) {
		ancient := time.Now().Add(-5 * 365 * 24 * time.Hour)
		hit := EvidenceHit{
			Similarity:  0.1,
			RerankScore: 0.1,
			Entry:       domain.CorpusEntry{Confidence: 0.1, UsageCount: 0, UpdatedAt: ancient},
		}
		score := finalScore(hit, weights, 365)
		assert.Less(t, score, 0.3)
	})
}
