package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/metrics"
	"github.com/larrycoder123/supportmind/pkg/config"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// ExecutionRecorder is the narrow persistence seam both graphs write a
// single observability row to on exit.
type ExecutionRecorder interface {
	Insert(ctx context.Context, rec domain.ExecutionRecord) error
}

// Result is what a graph run hands back to its caller: the walked state
// (whose Evidence carries the derived final_score per hit) plus the
// execution record written for the run.
type Result struct {
	State     *State
	ExecutionRecord domain.ExecutionRecord
}

// RunQA walks the QA graph: plan_query -> retrieve -> rerank ->
// enrich_sources -> write_answer -> validate -> [retry once | finish] ->
// log_retrieval.
func RunQA(ctx context.Context, s *State, d Deps, logs LogInserter, exec ExecutionRecorder, weights config.ScoreWeights, freshnessMaxAgeDays int) Result {
	runStart := time.Now()

	if err := planQuery(ctx, s, d); err != nil {
		return finishWithError(ctx, s, exec, runStart, err)
	}

	for {
		if err := retrieve(ctx, s, d); err != nil {
			return finishWithError(ctx, s, exec, runStart, err)
		}
		if err := rerank(ctx, s, d); err != nil {
			return finishWithError(ctx, s, exec, runStart, err)
		}
		if err := enrichSources(ctx, s, d); err != nil {
			return finishWithError(ctx, s, exec, runStart, err)
		}

		if err := writeAnswer(ctx, s, d); err != nil {
			return finishWithError(ctx, s, exec, runStart, err)
		}

		retry := validate(s)
		if !retry {
			break
		}
	}

	applyFinalScores(s, weights, freshnessMaxAgeDays)
	logRetrieval(ctx, s, logs, d.Store)

	return finishOK(s, exec, ctx, runStart)
}

// RunGap walks the Gap Detection graph: plan_query -> retrieve -> rerank ->
// enrich_sources -> classify_knowledge -> log_retrieval. No retry branch and
// no write_answer.
func RunGap(ctx context.Context, s *State, d Deps, resolvedCase domain.ResolvedCase, logs LogInserter, exec ExecutionRecorder, weights config.ScoreWeights, freshnessMaxAgeDays int) Result {
	runStart := time.Now()

	if err := runSharedPrefix(ctx, s, d); err != nil {
		return finishWithError(ctx, s, exec, runStart, err)
	}

	if err := classifyKnowledge(ctx, s, d, resolvedCase); err != nil {
		return finishWithError(ctx, s, exec, runStart, err)
	}

	applyFinalScores(s, weights, freshnessMaxAgeDays)
	logRetrieval(ctx, s, logs, d.Store)

	return finishOK(s, exec, ctx, runStart)
}

// runSharedPrefix walks the four nodes (plan_query, retrieve, rerank,
// enrich_sources) that both graphs run before their terminal step.
func runSharedPrefix(ctx context.Context, s *State, d Deps) error {
	if err := planQuery(ctx, s, d); err != nil {
		return err
	}
	if err := retrieve(ctx, s, d); err != nil {
		return err
	}
	if err := rerank(ctx, s, d); err != nil {
		return err
	}
	if err := enrichSources(ctx, s, d); err != nil {
		return err
	}
	return nil
}

func applyFinalScores(s *State, weights config.ScoreWeights, freshnessMaxAgeDays int) {
	for i := range s.Evidence {
		s.Evidence[i].FinalScore = finalScore(s.Evidence[i], weights, freshnessMaxAgeDays)
	}
}

func finishOK(s *State, exec ExecutionRecorder, ctx context.Context, runStart time.Time) Result {
	if s.Status == StatusRunning {
		s.Status = StatusOK
	}

	rec := buildExecutionRecord(s, runStart)
	recordGraphMetrics(s, rec, runStart)
	if exec != nil {
		if err := exec.Insert(ctx, rec); err != nil {
			logger.Warn("failed to persist execution record", zap.String("execution_id", s.ExecutionID), zap.Error(err))
		}
	}

	return Result{State: s, ExecutionRecord: rec}
}

func finishWithError(ctx context.Context, s *State, exec ExecutionRecorder, runStart time.Time, err error) Result {
	s.Status = StatusError
	s.ErrorMessage = appendErr(s.ErrorMessage, err.Error())
	logger.Error("pipeline run failed", zap.String("execution_id", s.ExecutionID), zap.Error(err))

	rec := buildExecutionRecord(s, runStart)
	recordGraphMetrics(s, rec, runStart)
	if exec != nil {
		if insertErr := exec.Insert(ctx, rec); insertErr != nil {
			logger.Warn("failed to persist execution record after run failure", zap.String("execution_id", s.ExecutionID), zap.Error(insertErr))
		}
	}

	return Result{State: s, ExecutionRecord: rec}
}

// recordGraphMetrics reports one run's Prometheus observations: duration,
// outcome counter, evidence count, top similarity, and (Gap only) the
// classification counter.
func recordGraphMetrics(s *State, rec domain.ExecutionRecord, runStart time.Time) {
	graphKind := string(s.GraphKind)
	metrics.GraphDuration.WithLabelValues(graphKind).Observe(time.Since(runStart).Seconds())
	metrics.GraphTotal.WithLabelValues(graphKind, string(rec.Status)).Inc()
	metrics.RetrievalEvidenceCount.Observe(float64(rec.EvidenceCount))
	if rec.EvidenceCount > 0 {
		metrics.TopSimilarity.WithLabelValues(graphKind).Observe(rec.TopSimilarity)
	}
	if rec.Classification != nil {
		metrics.GapClassifications.WithLabelValues(string(*rec.Classification)).Inc()
	}
}

func buildExecutionRecord(s *State, runStart time.Time) domain.ExecutionRecord {
	var conversationIDPtr, caseIDPtr *string
	if s.ConversationID != "" {
		conversationIDPtr = &s.ConversationID
	}
	if s.CaseID != "" {
		caseIDPtr = &s.CaseID
	}

	var topSimilarity, topRerank float64
	if len(s.Evidence) > 0 {
		topSimilarity = s.Evidence[0].Similarity
		topRerank = s.Evidence[0].RerankScore
	}

	var classification *domain.Verdict
	if s.Decision != nil {
		v := s.Decision.Verdict
		classification = &v
	}

	return domain.ExecutionRecord{
		ExecutionID:      s.ExecutionID,
		GraphKind:        s.GraphKind,
		ConversationID:   conversationIDPtr,
		CaseID:           caseIDPtr,
		Query:            s.Query,
		TotalLatencyMS:   time.Since(runStart).Milliseconds(),
		PerNodeLatencies: s.PerNodeLatencies,
		TokensIn:         s.TokensIn,
		TokensOut:        s.TokensOut,
		EvidenceCount:    len(s.Evidence),
		TopSimilarity:    topSimilarity,
		TopRerankScore:   topRerank,
		Classification:   classification,
		Status:           domain.ExecutionStatus(s.Status),
		ErrorMessage:     s.ErrorMessage,
		CreatedAt:        time.Now(),
	}
}
