// Package core wires the retrieval pipeline, the gap classifier, the
// self-learning coordinator, and the review gateway into the four
// operations the rest of the system calls: suggest, close_case, learn, and
// review.
package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/gap"
	"github.com/larrycoder123/supportmind/internal/learning"
	"github.com/larrycoder123/supportmind/internal/pipeline"
	"github.com/larrycoder123/supportmind/internal/review"
	"github.com/larrycoder123/supportmind/pkg/config"
)

// CaseStore is the narrow case persistence seam the service depends on.
type CaseStore interface {
	Create(ctx context.Context, c domain.ResolvedCase) error
	Get(ctx context.Context, caseID string) (domain.ResolvedCase, error)
}

// SuggestCache is the narrow response-cache seam Suggest consults before
// running the QA graph. A cache miss or error degrades to running the
// graph, never to a failed request.
type SuggestCache interface {
	Key(query, category string, topK int) string
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// Service bundles the pipeline dependencies, the self-learning coordinator,
// and the review gateway behind the four public operations.
type Service struct {
	Deps         pipeline.Deps
	Logs         pipeline.LogInserter
	Exec         pipeline.ExecutionRecorder
	Cases        CaseStore
	Coordinator  *learning.Coordinator
	Detector     *gap.Detector
	Gateway      *review.Gateway
	Cache        SuggestCache
	ScoreWeights config.ScoreWeights

	DefaultTopK         int
	FreshnessMaxAgeDays int
}

// SuggestRequest is the suggest operation's input. TopK is a pointer so a
// caller-omitted top_k (nil, falls back to DefaultTopK) can be told apart
// from a caller-supplied zero, which is rejected rather than defaulted.
type SuggestRequest struct {
	ConversationID string
	Query          string
	Category       string
	SourceKinds    []domain.SourceKind
	TopK           *int
}

// SuggestedEvidence is one ranked, enriched hit returned by suggest.
type SuggestedEvidence struct {
	SourceKind domain.SourceKind       `json:"source_kind"`
	SourceID   string                  `json:"source_id"`
	Title      string                  `json:"title"`
	Category   string                  `json:"category"`
	Similarity float64                 `json:"similarity"`
	RerankScore float64                `json:"rerank_score"`
	FinalScore float64                 `json:"final_score"`
	Confidence float64                 `json:"confidence"`
	Enriched   pipeline.EnrichedDetail `json:"enriched"`
}

// SuggestResponse is the suggest operation's output.
type SuggestResponse struct {
	ExecutionID string              `json:"execution_id"`
	Status      pipeline.Status     `json:"status"`
	Answer      string              `json:"answer"`
	Citations   []pipeline.Citation `json:"citations"`
	Evidence    []SuggestedEvidence `json:"evidence"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// Suggest runs the QA graph for one conversation turn and returns the
// answer, its citations, and the ranked evidence that backed it.
func (s *Service) Suggest(ctx context.Context, req SuggestRequest) (SuggestResponse, error) {
	if req.Query == "" {
		return SuggestResponse{}, fmt.Errorf("suggest: query is required")
	}

	topK := s.DefaultTopK
	if req.TopK != nil {
		if *req.TopK <= 0 {
			return SuggestResponse{}, fmt.Errorf("suggest: top_k must be positive, got %d", *req.TopK)
		}
		topK = *req.TopK
	}

	var cacheKey string
	if s.Cache != nil && req.ConversationID == "" {
		cacheKey = s.Cache.Key(req.Query, req.Category, topK)
		var cached SuggestResponse
		if hit, err := s.Cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	executionID := "EXEC-" + uuid.New().String()
	state := pipeline.NewState(domain.GraphQA, executionID, req.Query, req.Category, req.SourceKinds, topK)
	state.ConversationID = req.ConversationID

	result := pipeline.RunQA(ctx, state, s.Deps, s.Logs, s.Exec, s.ScoreWeights, s.FreshnessMaxAgeDays)

	evidence := make([]SuggestedEvidence, len(result.State.Evidence))
	for i, hit := range result.State.Evidence {
		evidence[i] = SuggestedEvidence{
			SourceKind:  hit.Entry.SourceKind,
			SourceID:    hit.Entry.SourceID,
			Title:       hit.Entry.Title,
			Category:    hit.Entry.Category,
			Similarity:  hit.Similarity,
			RerankScore: hit.RerankScore,
			FinalScore:  hit.FinalScore,
			Confidence:  hit.Entry.Confidence,
			Enriched:    hit.Enriched,
		}
	}
	sort.SliceStable(evidence, func(i, j int) bool {
		if evidence[i].FinalScore != evidence[j].FinalScore {
			return evidence[i].FinalScore > evidence[j].FinalScore
		}
		return evidence[i].SourceID < evidence[j].SourceID
	})

	resp := SuggestResponse{
		ExecutionID:  result.State.ExecutionID,
		Status:       result.State.Status,
		Answer:       result.State.Answer,
		Citations:    result.State.Citations,
		Evidence:     evidence,
		ErrorMessage: result.State.ErrorMessage,
	}

	if cacheKey != "" && result.State.Status == pipeline.StatusOK {
		_ = s.Cache.Set(ctx, cacheKey, resp)
	}

	return resp, nil
}

// CloseCaseRequest is the close_case operation's input: the fields needed
// to persist a resolved case plus the outcome hint the coordinator scores
// retrieval logs against.
type CloseCaseRequest struct {
	ConversationID string
	Subject        string
	Description    string
	Resolution     string
	RootCause      string
	Category       string
	Tags           []string
	ScriptID       string
	ClosureSummary string
	OutcomeHint    domain.RetrievalOutcome
}

// CloseCaseResponse is the close_case operation's output.
type CloseCaseResponse struct {
	TicketNumber   string            `json:"ticket_number"`
	LearningResult learning.Result   `json:"learning_result"`
	Warnings       []string          `json:"warnings"`
}

// CloseCase persists a resolved case and immediately runs the self-learning
// pipeline against it. Case-load failure is fatal; every later stage is
// best-effort and captured into warnings.
func (s *Service) CloseCase(ctx context.Context, req CloseCaseRequest) (CloseCaseResponse, error) {
	caseID := "CASE-" + uuid.New().String()
	resolvedCase := domain.ResolvedCase{
		CaseID:         caseID,
		ConversationID: req.ConversationID,
		Subject:        req.Subject,
		Description:    req.Description,
		Resolution:     req.Resolution,
		RootCause:       req.RootCause,
		Category:       req.Category,
		Tags:           req.Tags,
		ScriptID:       req.ScriptID,
		ClosedAt:       time.Now(),
	}
	if resolvedCase.Description == "" {
		resolvedCase.Description = req.ClosureSummary
	}

	if err := s.Cases.Create(ctx, resolvedCase); err != nil {
		return CloseCaseResponse{}, fmt.Errorf("close_case: persist resolved case: %w", err)
	}

	resolved := req.OutcomeHint == domain.OutcomeResolved || req.OutcomeHint == domain.OutcomePartial
	result := s.Coordinator.Run(ctx, caseID, req.ConversationID, resolved)

	return CloseCaseResponse{
		TicketNumber:   caseID,
		LearningResult: result,
		Warnings:       result.Warnings,
	}, nil
}

// Learn re-runs the self-learning pipeline for an already-closed case,
// e.g. to retry a run whose earlier attempt only partially completed.
func (s *Service) Learn(ctx context.Context, caseID string) (learning.Result, error) {
	resolvedCase, err := s.Cases.Get(ctx, caseID)
	if err != nil {
		return learning.Result{}, fmt.Errorf("learn: load case: %w", err)
	}

	return s.Coordinator.Run(ctx, caseID, resolvedCase.ConversationID, true), nil
}

// Review applies a reviewer's decision to a pending learning event.
func (s *Service) Review(ctx context.Context, decision review.Decision) (domain.LearningEvent, error) {
	return s.Gateway.Apply(ctx, decision)
}
