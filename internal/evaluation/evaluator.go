// Package evaluation runs suggest against a labeled dataset of
// {query, ground_truth, category} triples and scores each response with an
// LLM judge plus cosine similarity against the ground truth, aggregating
// into a report. It never touches the corpus — only the Generation and
// Embedding Ports and the suggest operation itself.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/core"
	"github.com/larrycoder123/supportmind/internal/providers"
	"github.com/larrycoder123/supportmind/internal/vectormath"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

type Evaluator struct {
	service   *core.Service
	embedding providers.EmbeddingPort
	judge     providers.GenerationPort
}

func NewEvaluator(service *core.Service, embedding providers.EmbeddingPort, judge providers.GenerationPort) *Evaluator {
	return &Evaluator{service: service, embedding: embedding, judge: judge}
}

type EvaluationDataset struct {
	Items []DatasetItem
}

type DatasetItem struct {
	Query       string `json:"query"`
	GroundTruth string `json:"ground_truth"`
	Category    string `json:"category"`
}

type judgeScore struct {
	Relevance      float64 `json:"relevance"`
	Accuracy       float64 `json:"accuracy"`
	Completeness   float64 `json:"completeness"`
	Citations      float64 `json:"citations"`
	Classification string  `json:"classification"`
	Reasoning      string  `json:"reasoning"`
}

var judgeSchema = providers.Schema{
	Name: "response_judgment",
	JSONSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"relevance":      map[string]interface{}{"type": "number"},
			"accuracy":       map[string]interface{}{"type": "number"},
			"completeness":   map[string]interface{}{"type": "number"},
			"citations":      map[string]interface{}{"type": "number"},
			"classification": map[string]interface{}{"type": "string", "enum": []string{"irrelevant", "moderate", "fully_relevant"}},
			"reasoning":      map[string]interface{}{"type": "string"},
		},
		"required": []string{"relevance", "accuracy", "completeness", "citations", "classification"},
	},
}

// Result is one evaluated item's scores.
type Result struct {
	QueryID               string
	RelevanceScore        float64
	AccuracyScore         float64
	CompletenessScore     float64
	CitationScore         float64
	OverallClassification string
	Reasoning             string
	CosineSimilarity      float64
}

type Report struct {
	TotalQueries            int
	IrrelevantCount         int
	ModerateCount           int
	FullyRelevantCount      int
	AvgRelevanceScore       float64
	AvgAccuracyScore        float64
	AvgCompletenessScore    float64
	AvgCitationScore        float64
	AvgCosineSimilarity     float64
	IrrelevantPercentage    float64
	ModeratePercentage      float64
	FullyRelevantPercentage float64
}

// EvaluateQuery runs suggest for query, judges the response against
// groundTruth with the Generation Port, and scores cosine similarity
// between the response and the ground truth.
func (e *Evaluator) EvaluateQuery(ctx context.Context, queryID, query, category, groundTruth string) (Result, error) {
	resp, err := e.service.Suggest(ctx, core.SuggestRequest{Query: query, Category: category})
	if err != nil {
		return Result{}, fmt.Errorf("evaluate %s: suggest: %w", queryID, err)
	}

	score, err := e.judgeResponse(ctx, query, resp.Answer, groundTruth)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate %s: judge response: %w", queryID, err)
	}

	var cosineSim float64
	if groundTruth != "" && resp.Answer != "" {
		cosineSim, err = e.cosineAgainstGroundTruth(ctx, resp.Answer, groundTruth)
		if err != nil {
			logger.Warn("failed to compute cosine similarity against ground truth", zap.String("query_id", queryID), zap.Error(err))
		}
	}

	result := Result{
		QueryID:               queryID,
		RelevanceScore:        score.Relevance,
		AccuracyScore:         score.Accuracy,
		CompletenessScore:     score.Completeness,
		CitationScore:         score.Citations,
		OverallClassification: score.Classification,
		Reasoning:             score.Reasoning,
		CosineSimilarity:      cosineSim,
	}

	logger.Info("query evaluated",
		zap.String("query_id", queryID),
		zap.String("classification", score.Classification),
		zap.Float64("relevance", score.Relevance),
	)

	return result, nil
}

func (e *Evaluator) judgeResponse(ctx context.Context, query, response, groundTruth string) (judgeScore, error) {
	prompt := fmt.Sprintf(
		"Judge a support answer against a reference resolution.\n\nQuery: %s\n\nAnswer given:\n%s\n\nReference resolution:\n%s\n\n"+
			"Score relevance, accuracy, completeness, and citation quality each from 0 to 3, "+
			"and classify the answer overall as irrelevant, moderate, or fully_relevant.",
		query, response, groundTruth,
	)

	raw, _, err := e.judge.GenerateStructured(ctx, []providers.Message{
		{Role: "system", Content: "You are an impartial evaluator of customer-support knowledge responses."},
		{Role: "user", Content: prompt},
	}, judgeSchema, 0)
	if err != nil {
		return judgeScore{}, err
	}

	var score judgeScore
	if err := json.Unmarshal(raw, &score); err != nil {
		return judgeScore{}, fmt.Errorf("unmarshal judgment: %w", err)
	}
	return score, nil
}

func (e *Evaluator) cosineAgainstGroundTruth(ctx context.Context, response, groundTruth string) (float64, error) {
	vectors, err := e.embedding.EmbedBatch(ctx, []string{response, groundTruth})
	if err != nil {
		return 0, err
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(vectors))
	}
	return vectormath.CosineSimilarity(vectors[0], vectors[1]), nil
}

// RunDatasetEvaluation evaluates every item in dataset and aggregates the
// per-item scores into a Report.
func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *EvaluationDataset) (*Report, error) {
	logger.Info("running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{TotalQueries: len(dataset.Items)}
	var totalRelevance, totalAccuracy, totalCompleteness, totalCitation, totalCosineSim float64

	for i, item := range dataset.Items {
		queryID := fmt.Sprintf("eval_%d", i)

		result, err := e.EvaluateQuery(ctx, queryID, item.Query, item.Category, item.GroundTruth)
		if err != nil {
			logger.Error("failed to evaluate dataset item", zap.String("query_id", queryID), zap.Error(err))
			continue
		}

		switch result.OverallClassification {
		case "irrelevant":
			report.IrrelevantCount++
		case "moderate":
			report.ModerateCount++
		case "fully_relevant":
			report.FullyRelevantCount++
		}

		totalRelevance += result.RelevanceScore
		totalAccuracy += result.AccuracyScore
		totalCompleteness += result.CompletenessScore
		totalCitation += result.CitationScore
		totalCosineSim += result.CosineSimilarity
	}

	if report.TotalQueries > 0 {
		n := float64(report.TotalQueries)
		report.AvgRelevanceScore = totalRelevance / n
		report.AvgAccuracyScore = totalAccuracy / n
		report.AvgCompletenessScore = totalCompleteness / n
		report.AvgCitationScore = totalCitation / n
		report.AvgCosineSimilarity = totalCosineSim / n

		report.IrrelevantPercentage = float64(report.IrrelevantCount) / n * 100
		report.ModeratePercentage = float64(report.ModerateCount) / n * 100
		report.FullyRelevantPercentage = float64(report.FullyRelevantCount) / n * 100
	}

	logger.Info("dataset evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("irrelevant", report.IrrelevantCount),
		zap.Int("moderate", report.ModerateCount),
		zap.Int("fully_relevant", report.FullyRelevantCount),
	)

	return report, nil
}

func (e *Evaluator) LoadDatasetFromJSON(jsonData string) (*EvaluationDataset, error) {
	var dataset EvaluationDataset
	if err := json.Unmarshal([]byte(jsonData), &dataset); err != nil {
		return nil, fmt.Errorf("unmarshal dataset: %w", err)
	}
	return &dataset, nil
}

func (e *Evaluator) GenerateReport(report *Report) string {
	return fmt.Sprintf(`
Evaluation Report
=================

Total Queries: %d

Classifications:
- Irrelevant: %d (%.1f%%)
- Moderately Relevant: %d (%.1f%%)
- Fully Relevant: %d (%.1f%%)

Average Scores:
- Relevance: %.2f / 3.0
- Accuracy: %.2f / 3.0
- Completeness: %.2f / 3.0
- Citations: %.2f / 3.0

Cosine Similarity: %.3f
`,
		report.TotalQueries,
		report.IrrelevantCount, report.IrrelevantPercentage,
		report.ModerateCount, report.ModeratePercentage,
		report.FullyRelevantCount, report.FullyRelevantPercentage,
		report.AvgRelevanceScore,
		report.AvgAccuracyScore,
		report.AvgCompletenessScore,
		report.AvgCitationScore,
		report.AvgCosineSimilarity,
	)
}
