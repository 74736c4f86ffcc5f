package pipeline

import (
	"math"
	"time"

	"github.com/larrycoder123/supportmind/pkg/config"
)

// learningScore blends confidence, usage, and freshness into a single
// [0,1] signal using fixed weights (0.6 confidence / 0.3 usage / 0.1
// freshness); the weights of the broader final-score blend it feeds into
// are configurable via Config.Pipeline.ScoreWeights instead.
func learningScore(confidence float64, usageCount int, updatedAt time.Time, freshnessMaxAgeDays int) float64 {
	usageFactor := math.Min(1.0, math.Log2(1+float64(usageCount))/5.0)

	daysOld := time.Since(updatedAt).Hours() / 24
	freshness := 1.0 - daysOld/float64(freshnessMaxAgeDays)
	if freshness < 0.5 {
		freshness = 0.5
	}
	if freshness > 1.0 {
		freshness = 1.0
	}

	const wConfidence, wUsage, wFreshness = 0.6, 0.3, 0.1
	return wConfidence*confidence + wUsage*usageFactor + wFreshness*freshness
}

// blendRerankWithLearning nudges the raw rerank (or similarity) score by
// the entry's learning score inside the rerank node, before truncation to
// top_k, so evidence selection already reflects confidence/usage/freshness
// and not only semantic rank. blended = raw * (1 - w + w*learningScore).
func blendRerankWithLearning(raw, learning, w float64) float64 {
	return raw * (1.0 - w + w*learning)
}

// freshnessTerm is the final-score freshness component: clamp01(1 - age_days / max_age).
func freshnessTerm(updatedAt time.Time, maxAgeDays int) float64 {
	daysOld := time.Since(updatedAt).Hours() / 24
	v := 1.0 - daysOld/float64(maxAgeDays)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// finalScore computes the authoritative user-facing ranking score: a
// weighted blend of similarity, rerank score (or similarity if absent),
// entry confidence, freshness, and a saturating usage-derived learning
// term. Weights come from Config.Pipeline.ScoreWeights and must sum to 1
// (not enforced here — a misconfiguration just skews ranking).
func finalScore(hit EvidenceHit, weights config.ScoreWeights, freshnessMaxAgeDays int) float64 {
	// hit.RerankScore already carries blendRerankWithLearning's output, so
	// weights.Rerank and weights.Learning both draw on the entry's learning
	// signal here. That's intentional double-counting, not an oversight:
	// the rerank node needs the blended score to pick top_k candidates
	// before this function ever runs, and the final weighted blend still
	// wants its own, separately tunable learning term on top of that.
	rerank := hit.RerankScore
	if rerank == 0 {
		rerank = hit.Similarity
	}

	usageLearning := math.Min(1.0, float64(hit.Entry.UsageCount)/(float64(hit.Entry.UsageCount)+5.0))
	freshness := freshnessTerm(hit.Entry.UpdatedAt, freshnessMaxAgeDays)

	score := weights.Similarity*hit.Similarity +
		weights.Rerank*rerank +
		weights.Confidence*hit.Entry.Confidence +
		weights.Freshness*freshness +
		weights.Learning*usageLearning

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
