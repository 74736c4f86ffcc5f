// Package review implements the Review Gateway: the strict two-state
// machine (pending -> finalized) that applies a human reviewer's decision
// to a learning event and its drafted article.
package review

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/metrics"
	"github.com/larrycoder123/supportmind/internal/providers"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// EventStore is the narrow learning-event persistence seam the gateway
// depends on. Finalize is expected to be atomic: it must fail with
// domain.ErrAlreadyReviewed if final_status is already set.
type EventStore interface {
	Get(ctx context.Context, eventID string) (domain.LearningEvent, error)
	Finalize(ctx context.Context, eventID string, status domain.FinalStatus, reviewerRole domain.ReviewerRole, reason string) error
}

// ArticleStore is the narrow article persistence seam the gateway depends on.
type ArticleStore interface {
	Get(ctx context.Context, articleID string) (domain.Article, error)
	UpdateBody(ctx context.Context, articleID, title, body string) error
	SetStatus(ctx context.Context, articleID string, status domain.ArticleStatus) error
}

// Decision is the reviewer's input to Apply.
type Decision struct {
	EventID      string
	Approved     bool
	ReviewerRole domain.ReviewerRole
	Reason       string
}

// CacheInvalidator drops every cached suggest response after a corpus
// mutation. Optional: a nil Cache leaves the gateway working uncached.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Gateway applies review decisions. Exactly one of APPROVED or REJECTED
// ever gets written to a given event; Apply is the only place in the
// module allowed to flip an article's status once it has left DRAFT.
type Gateway struct {
	Events   EventStore
	Articles ArticleStore
	Corpus   corpus.Store
	Embedder providers.EmbeddingPort
	Cache    CacheInvalidator
}

// Apply finalizes a learning event and, on approval, activates or replaces
// the corresponding article; on rejection it archives the draft and removes
// it from the corpus.
func (g *Gateway) Apply(ctx context.Context, d Decision) (domain.LearningEvent, error) {
	event, err := g.Events.Get(ctx, d.EventID)
	if err != nil {
		return domain.LearningEvent{}, fmt.Errorf("fetch learning event: %w", err)
	}

	status := domain.StatusRejected
	if d.Approved {
		status = domain.StatusApproved
	}

	if err := g.Events.Finalize(ctx, d.EventID, status, d.ReviewerRole, d.Reason); err != nil {
		return domain.LearningEvent{}, fmt.Errorf("finalize learning event: %w", err)
	}
	event.FinalStatus = &status
	event.ReviewerRole = d.ReviewerRole
	event.Reason = d.Reason

	if d.Approved {
		g.applyApproval(ctx, event)
		metrics.ReviewDecisions.WithLabelValues("approved").Inc()
	} else {
		g.applyRejection(ctx, event)
		metrics.ReviewDecisions.WithLabelValues("rejected").Inc()
	}

	logger.Info("review decision applied",
		zap.String("event_id", d.EventID),
		zap.String("kind", string(event.EventKind)),
		zap.Bool("approved", d.Approved),
	)

	if g.Cache != nil {
		if err := g.Cache.InvalidateAll(ctx); err != nil {
			logger.Warn("failed to invalidate suggest cache after review decision", zap.Error(err))
		}
	}

	return event, nil
}

// applyApproval activates a GAP draft in place, or, for a CONTRADICTION,
// replaces the flagged article's content with the draft's and archives the
// draft.
func (g *Gateway) applyApproval(ctx context.Context, event domain.LearningEvent) {
	if event.ProposedArticleID == nil {
		return
	}
	proposedID := *event.ProposedArticleID

	if event.EventKind == domain.EventContradiction && event.FlaggedArticleID != nil {
		draft, err := g.Articles.Get(ctx, proposedID)
		if err != nil {
			logger.Error("approved contradiction: draft article missing", zap.String("article_id", proposedID), zap.Error(err))
			return
		}

		flaggedID := *event.FlaggedArticleID
		if err := g.Articles.UpdateBody(ctx, flaggedID, draft.Title, draft.Body); err != nil {
			logger.Error("approved contradiction: failed to update flagged article", zap.String("article_id", flaggedID), zap.Error(err))
		}

		existingKey := domain.EntryKey{SourceKind: domain.SourceArticle, SourceID: flaggedID}
		existingConfidence, existingUsage := 0.75, 0
		if existing, err := g.Corpus.Get(ctx, existingKey); err == nil {
			existingConfidence, existingUsage = existing.Confidence, existing.UsageCount
		}
		if err := g.embedAndUpsert(ctx, flaggedID, draft, existingConfidence, existingUsage); err != nil {
			logger.Warn("approved contradiction: failed to re-embed flagged article", zap.String("article_id", flaggedID), zap.Error(err))
		}

		if err := g.Articles.SetStatus(ctx, proposedID, domain.ArticleArchived); err != nil {
			logger.Error("approved contradiction: failed to archive draft", zap.String("article_id", proposedID), zap.Error(err))
		}
		g.removeFromCorpus(ctx, proposedID)
		return
	}

	if err := g.Articles.SetStatus(ctx, proposedID, domain.ArticleActive); err != nil {
		logger.Error("approved gap: failed to activate article", zap.String("article_id", proposedID), zap.Error(err))
		return
	}

	draft, err := g.Articles.Get(ctx, proposedID)
	if err != nil {
		logger.Error("approved gap: failed to reload activated article", zap.String("article_id", proposedID), zap.Error(err))
		return
	}
	if err := g.embedAndUpsert(ctx, proposedID, draft, 0.75, 0); err != nil {
		logger.Warn("approved gap: failed to embed activated article into corpus", zap.String("article_id", proposedID), zap.Error(err))
	}
}

// applyRejection archives the draft and removes it from the retrievable
// corpus so it stops surfacing in future searches.
func (g *Gateway) applyRejection(ctx context.Context, event domain.LearningEvent) {
	if event.ProposedArticleID == nil {
		return
	}
	proposedID := *event.ProposedArticleID

	if err := g.Articles.SetStatus(ctx, proposedID, domain.ArticleArchived); err != nil {
		logger.Error("rejected draft: failed to archive article", zap.String("article_id", proposedID), zap.Error(err))
	}
	g.removeFromCorpus(ctx, proposedID)
}

func (g *Gateway) removeFromCorpus(ctx context.Context, articleID string) {
	key := domain.EntryKey{SourceKind: domain.SourceArticle, SourceID: articleID}
	if err := g.Corpus.Remove(ctx, key); err != nil {
		logger.Warn("failed to remove archived draft from corpus", zap.String("article_id", articleID), zap.Error(err))
	}
}

// embedAndUpsert embeds article's body through the Embedding Port and
// upserts the corresponding Corpus Entry, carrying confidence/usageCount
// supplied by the caller (0.75/0 for a freshly activated GAP draft, the
// preserved prior values for an in-place CONTRADICTION replacement).
func (g *Gateway) embedAndUpsert(ctx context.Context, articleID string, article domain.Article, confidence float64, usageCount int) error {
	if g.Embedder == nil {
		return nil
	}
	vectors, err := g.Embedder.EmbedBatch(ctx, []string{article.Body})
	if err != nil {
		return fmt.Errorf("embed article body: %w", err)
	}

	entry := domain.CorpusEntry{
		SourceKind: domain.SourceArticle,
		SourceID:   articleID,
		Title:      article.Title,
		Content:    article.Body,
		Category:   article.Category,
		Module:     article.Module,
		Tags:       article.Tags,
		Embedding:  vectors[0],
		Confidence: confidence,
		UsageCount: usageCount,
		UpdatedAt:  time.Now(),
	}
	return g.Corpus.Upsert(ctx, entry)
}
