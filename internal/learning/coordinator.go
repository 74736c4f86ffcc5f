// Package learning implements the Self-Learning Coordinator: the
// post-conversation pipeline that links retrieval logs to a closed case,
// scores outcomes into corpus confidence, runs gap detection, and acts on
// the verdict.
package learning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/gap"
	"github.com/larrycoder123/supportmind/internal/metrics"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// LogStore is the retrieval-log persistence seam the coordinator depends on.
type LogStore interface {
	LinkToCase(ctx context.Context, conversationID, caseID string) (int, error)
	ForCase(ctx context.Context, caseID string) ([]domain.RetrievalLogRow, error)
	SetOutcome(ctx context.Context, logIDs []string, outcome domain.RetrievalOutcome) error
}

// ArticleStore is the article/provenance persistence seam.
type ArticleStore interface {
	Create(ctx context.Context, article domain.Article) error
	CreateProvenance(ctx context.Context, records []domain.ProvenanceRecord) error
	Get(ctx context.Context, articleID string) (domain.Article, error)
}

// EventStore is the learning-event persistence seam.
type EventStore interface {
	Create(ctx context.Context, event domain.LearningEvent) error
}

// ConfidenceDeltas are the per-outcome corpus confidence adjustments,
// configurable via pkg/config.PipelineConfig.
type ConfidenceDeltas struct {
	Resolved  float64
	Partial   float64
	Unhelpful float64
	Confirmed float64
}

// ConfidenceUpdate is one applied confidence adjustment, returned for
// observability.
type ConfidenceUpdate struct {
	Key           domain.EntryKey
	Delta         float64
	NewConfidence float64
	NewUsageCount int
}

// Result is what a coordinator run hands back to its caller.
type Result struct {
	CaseID                 string
	RetrievalLogsProcessed int
	ConfidenceUpdates      []ConfidenceUpdate
	Classification         domain.Verdict
	MatchedArticleID        string
	MatchSimilarity         float64
	LearningEventID         string
	DraftedArticleID        string
	Warnings                []string
}

// Coordinator wires the Corpus Store, the ancillary case/article/event
// stores, and the Gap Detector together into a four-stage post-conversation
// learning pipeline: link logs, score confidence, detect gaps, act on the
// verdict.
type Coordinator struct {
	Logs       LogStore
	Corpus     corpus.Store
	Cases      interface {
		Get(ctx context.Context, caseID string) (domain.ResolvedCase, error)
	}
	Articles ArticleStore
	Events   EventStore
	Detector *gap.Detector
	Drafter  *Drafter

	Deltas ConfidenceDeltas
}

// Run executes stages 0-3 for one closed case. It is best-effort: a failure
// in log linking, confidence scoring, or drafting is captured as a warning
// and the run continues rather than aborting on any non-critical step.
func (c *Coordinator) Run(ctx context.Context, caseID, conversationID string, resolved bool) Result {
	result := Result{CaseID: caseID}

	if conversationID != "" {
		if _, err := c.Logs.LinkToCase(ctx, conversationID, caseID); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("link retrieval logs: %v", err))
			logger.Warn("failed to link retrieval logs to case", zap.String("case_id", caseID), zap.Error(err))
		}
	}

	outcome := domain.OutcomeResolved
	if !resolved {
		outcome = domain.OutcomeUnhelpful
	}
	logs, err := c.Logs.ForCase(ctx, caseID)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("fetch retrieval logs: %v", err))
		logger.Warn("failed to fetch retrieval logs", zap.String("case_id", caseID), zap.Error(err))
	} else {
		ids := make([]string, len(logs))
		for i, l := range logs {
			ids[i] = l.LogID
		}
		if len(ids) > 0 {
			if err := c.Logs.SetOutcome(ctx, ids, outcome); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("set retrieval log outcomes: %v", err))
				logger.Warn("failed to bulk-set retrieval log outcomes", zap.String("case_id", caseID), zap.Error(err))
			}
			for i := range logs {
				logs[i].Outcome = &outcome
			}
		}
	}
	result.RetrievalLogsProcessed = len(logs)

	result.ConfidenceUpdates = c.scoreOutcomes(ctx, logs, &result.Warnings)
	logSummary := buildLogSummary(logs)

	resolvedCase, err := c.Cases.Get(ctx, caseID)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("fetch resolved case: %v", err))
		logger.Error("self-learning run aborted: case not found", zap.String("case_id", caseID), zap.Error(err))
		return result
	}

	executionID := "EXEC-" + uuid.New().String()
	gapResult := c.Detector.Detect(ctx, resolvedCase, executionID, logSummary)
	decision := gapResult.State.Decision
	if decision == nil {
		result.Warnings = append(result.Warnings, "gap detection returned no decision")
		return result
	}

	result.Classification = decision.Verdict
	result.MatchedArticleID = decision.BestMatchSourceID
	result.MatchSimilarity = decision.SimilarityScore

	failedQueries := queryTextsOf(logs)

	switch decision.Verdict {
	case domain.VerdictSame:
		result.LearningEventID = c.handleSameKnowledge(ctx, resolvedCase, decision, &result.Warnings)
	case domain.VerdictContradicts:
		eventID, articleID := c.handleContradiction(ctx, resolvedCase, decision, failedQueries, &result.Warnings)
		result.LearningEventID = eventID
		result.DraftedArticleID = articleID
	case domain.VerdictNew:
		eventID, articleID := c.handleNewKnowledge(ctx, resolvedCase, failedQueries, &result.Warnings)
		result.LearningEventID = eventID
		result.DraftedArticleID = articleID
	}

	return result
}

// scoreOutcomes applies the configured confidence delta for each log row
// with a resolved source and outcome.
func (c *Coordinator) scoreOutcomes(ctx context.Context, logs []domain.RetrievalLogRow, warnings *[]string) []ConfidenceUpdate {
	var updates []ConfidenceUpdate

	for _, l := range logs {
		if l.SourceKind == nil || l.SourceID == nil || l.Outcome == nil {
			continue
		}

		delta, incrementUsage, ok := c.deltaFor(*l.Outcome)
		if !ok {
			continue
		}

		key := domain.EntryKey{SourceKind: *l.SourceKind, SourceID: *l.SourceID}
		newConfidence, newUsage, err := c.Corpus.AdjustConfidence(ctx, key, delta, incrementUsage)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("adjust confidence for %s/%s: %v", key.SourceKind, key.SourceID, err))
			continue
		}

		metrics.ConfidenceDelta.Observe(delta)
		updates = append(updates, ConfidenceUpdate{Key: key, Delta: delta, NewConfidence: newConfidence, NewUsageCount: newUsage})
	}

	return updates
}

func (c *Coordinator) deltaFor(outcome domain.RetrievalOutcome) (delta float64, incrementUsage bool, ok bool) {
	switch outcome {
	case domain.OutcomeResolved:
		return c.Deltas.Resolved, true, true
	case domain.OutcomePartial:
		return c.Deltas.Partial, false, true
	case domain.OutcomeUnhelpful:
		return c.Deltas.Unhelpful, false, true
	default:
		return 0, false, false
	}
}

// handleSameKnowledge logs an auto-approved CONFIRMED event and boosts the
// matched entry's confidence.
func (c *Coordinator) handleSameKnowledge(ctx context.Context, resolvedCase domain.ResolvedCase, decision *domain.KnowledgeDecision, warnings *[]string) string {
	eventID := "LE-" + uuid.New().String()
	now := time.Now()
	approved := domain.StatusApproved

	event := domain.LearningEvent{
		EventID:          eventID,
		TriggeringCaseID: resolvedCase.CaseID,
		EventKind:        domain.EventConfirmed,
		DetectedGapText: fmt.Sprintf(
			"Knowledge confirmed: existing entry %s (similarity=%.3f) covers this case's resolution.",
			decision.BestMatchSourceID, decision.SimilarityScore,
		),
		DraftSummary:  fmt.Sprintf("Existing knowledge validated by case %s", resolvedCase.CaseID),
		FinalStatus:   &approved,
		ReviewerRole:  domain.ReviewerSystem,
		Reason:        "auto-approved: classifier verdict SAME",
		Timestamp:     now,
	}

	if err := c.Events.Create(ctx, event); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("create confirmed event: %v", err))
	}
	metrics.LearningEventsTotal.WithLabelValues(string(domain.EventConfirmed), string(domain.StatusApproved)).Inc()

	if decision.BestMatchSourceID != "" {
		key := domain.EntryKey{SourceKind: domain.SourceArticle, SourceID: decision.BestMatchSourceID}
		for _, kind := range []domain.SourceKind{domain.SourceArticle, domain.SourceScript, domain.SourceCaseResolution} {
			if _, err := c.Corpus.Get(ctx, domain.EntryKey{SourceKind: kind, SourceID: decision.BestMatchSourceID}); err == nil {
				key.SourceKind = kind
				break
			}
		}
		if _, _, err := c.Corpus.AdjustConfidence(ctx, key, c.Deltas.Confirmed, true); err != nil {
			*warnings = append(*warnings, fmt.Sprintf("boost confidence on confirmed match: %v", err))
		}
	}

	logger.Info("gap detection: SAME_KNOWLEDGE",
		zap.String("case_id", resolvedCase.CaseID),
		zap.String("matched", decision.BestMatchSourceID),
		zap.Float64("similarity", decision.SimilarityScore),
	)

	return eventID
}

// handleContradiction drafts a replacement article, flags the existing one
// for review, and records a pending CONTRADICTION event.
func (c *Coordinator) handleContradiction(ctx context.Context, resolvedCase domain.ResolvedCase, decision *domain.KnowledgeDecision, failedQueries []string, warnings *[]string) (eventID, articleID string) {
	existing, err := c.Articles.Get(ctx, decision.BestMatchSourceID)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("fetch flagged article %s: %v", decision.BestMatchSourceID, err))
	}

	draft, records, err := c.Drafter.DraftReplacement(ctx, resolvedCase, existing, failedQueries)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("draft replacement article: %v", err))
		return "", ""
	}

	if err := c.persistDraft(ctx, draft, records, warnings); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("persist draft article: %v", err))
		return "", ""
	}

	eventID = "LE-" + uuid.New().String()
	flagged := decision.BestMatchSourceID
	proposed := draft.ArticleID

	event := domain.LearningEvent{
		EventID:          eventID,
		TriggeringCaseID: resolvedCase.CaseID,
		EventKind:        domain.EventContradiction,
		DetectedGapText: fmt.Sprintf(
			"Contradiction detected: case resolution differs from existing article %s (similarity=%.3f). Reason: %s",
			flagged, decision.SimilarityScore, decision.Reasoning,
		),
		ProposedArticleID: &proposed,
		FlaggedArticleID:  &flagged,
		DraftSummary:      draft.Title,
		ReviewerRole:      domain.ReviewerTier3,
		Timestamp:         time.Now(),
	}

	if err := c.Events.Create(ctx, event); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("create contradiction event: %v", err))
	}
	metrics.LearningEventsTotal.WithLabelValues(string(domain.EventContradiction), "pending").Inc()

	logger.Info("gap detection: CONTRADICTS",
		zap.String("case_id", resolvedCase.CaseID),
		zap.String("flagged", flagged),
		zap.String("draft", draft.ArticleID),
	)

	return eventID, draft.ArticleID
}

// handleNewKnowledge drafts a brand-new article and records a pending GAP
// event.
func (c *Coordinator) handleNewKnowledge(ctx context.Context, resolvedCase domain.ResolvedCase, failedQueries []string, warnings *[]string) (eventID, articleID string) {
	draft, records, err := c.Drafter.DraftNew(ctx, resolvedCase, failedQueries)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("draft new article: %v", err))
		return "", ""
	}

	if err := c.persistDraft(ctx, draft, records, warnings); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("persist draft article: %v", err))
		return "", ""
	}

	eventID = "LE-" + uuid.New().String()
	proposed := draft.ArticleID

	event := domain.LearningEvent{
		EventID:           eventID,
		TriggeringCaseID:  resolvedCase.CaseID,
		EventKind:         domain.EventGap,
		DetectedGapText:   buildGapDescription(failedQueries),
		ProposedArticleID: &proposed,
		DraftSummary:      draft.Title,
		ReviewerRole:      domain.ReviewerTier3,
		Timestamp:         time.Now(),
	}

	if err := c.Events.Create(ctx, event); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("create gap event: %v", err))
	}
	metrics.LearningEventsTotal.WithLabelValues(string(domain.EventGap), "pending").Inc()

	logger.Info("gap detection: NEW_KNOWLEDGE", zap.String("case_id", resolvedCase.CaseID), zap.String("draft", draft.ArticleID))

	return eventID, draft.ArticleID
}

// persistDraft saves the drafted article and its provenance. A DRAFT
// article never enters the Corpus Store — it only becomes retrievable once
// the Review Gateway activates it (see internal/review.Gateway.Apply).
func (c *Coordinator) persistDraft(ctx context.Context, draft domain.Article, records []domain.ProvenanceRecord, warnings *[]string) error {
	if err := c.Articles.Create(ctx, draft); err != nil {
		return fmt.Errorf("create article: %w", err)
	}
	if err := c.Articles.CreateProvenance(ctx, records); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("create provenance for %s: %v", draft.ArticleID, err))
	}

	return nil
}

func buildLogSummary(logs []domain.RetrievalLogRow) string {
	if len(logs) == 0 {
		return ""
	}

	counts := map[domain.RetrievalOutcome]int{}
	for _, l := range logs {
		if l.Outcome != nil {
			counts[*l.Outcome]++
		}
	}
	if len(counts) == 0 {
		return fmt.Sprintf("%d retrieval attempts, no outcomes recorded yet.", len(logs))
	}

	outcomes := make([]domain.RetrievalOutcome, 0, len(counts))
	for outcome := range counts {
		outcomes = append(outcomes, outcome)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i] < outcomes[j] })

	var parts []string
	for _, outcome := range outcomes {
		parts = append(parts, fmt.Sprintf("%d %s", counts[outcome], outcome))
	}

	return fmt.Sprintf("%d retrieval attempts during live support: %s. Queries: %s",
		len(logs), strings.Join(parts, ", "), strings.Join(queryTextsOf(logs)[:min(5, len(logs))], "; "))
}

func buildGapDescription(failedQueries []string) string {
	if len(failedQueries) == 0 {
		return "No retrieval attempts were made during support. Knowledge gap detected via post-close analysis."
	}
	n := min(5, len(failedQueries))
	return fmt.Sprintf("%d retrieval attempts during support. Queries: %s", len(failedQueries), strings.Join(failedQueries[:n], "; "))
}

func queryTextsOf(logs []domain.RetrievalLogRow) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.QueryText
	}
	return out
}

