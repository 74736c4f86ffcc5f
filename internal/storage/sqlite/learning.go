package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// LearningEventStore persists Learning Events. Review terminality is
// enforced here: Finalize only updates a row whose final_status is still
// NULL.
type LearningEventStore struct {
	db *sql.DB
}

func NewLearningEventStore(c *Client) *LearningEventStore {
	return &LearningEventStore{db: c.db}
}

func (s *LearningEventStore) Create(ctx context.Context, e domain.LearningEvent) error {
	var finalStatus interface{}
	if e.FinalStatus != nil {
		finalStatus = string(*e.FinalStatus)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_events (event_id, triggering_case_id, event_kind, detected_gap_text, proposed_article_id, flagged_article_id,
			draft_summary, final_status, reviewer_role, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.EventID, e.TriggeringCaseID, string(e.EventKind), e.DetectedGapText, nullableStr(e.ProposedArticleID), nullableStr(e.FlaggedArticleID),
		e.DraftSummary, finalStatus, string(e.ReviewerRole), e.Reason, e.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create learning event: %w", err)
	}

	logger.Info("learning event created",
		zap.String("event_id", e.EventID),
		zap.String("kind", string(e.EventKind)),
		zap.String("case_id", e.TriggeringCaseID),
	)
	return nil
}

func (s *LearningEventStore) Get(ctx context.Context, eventID string) (domain.LearningEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, triggering_case_id, event_kind, detected_gap_text, proposed_article_id, flagged_article_id,
			draft_summary, final_status, reviewer_role, reason, timestamp
		FROM learning_events WHERE event_id = ?
	`, eventID)

	e, err := scanLearningEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LearningEvent{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.LearningEvent{}, fmt.Errorf("get learning event: %w", err)
	}
	return e, nil
}

// Finalize sets final_status/reviewer_role/reason once. The UPDATE only
// matches a row whose final_status is still NULL, so a second call on an
// already-reviewed event changes nothing and returns ErrAlreadyReviewed.
func (s *LearningEventStore) Finalize(ctx context.Context, eventID string, status domain.FinalStatus, reviewerRole domain.ReviewerRole, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE learning_events SET final_status = ?, reviewer_role = ?, reason = ?
		WHERE event_id = ? AND final_status IS NULL
	`, string(status), string(reviewerRole), reason, eventID)
	if err != nil {
		return fmt.Errorf("finalize learning event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrAlreadyReviewed
	}
	return nil
}

func scanLearningEvent(row rowScanner) (domain.LearningEvent, error) {
	var e domain.LearningEvent
	var eventKind, reviewerRole string
	var proposedArticleID, flaggedArticleID, finalStatus sql.NullString
	var ts int64

	err := row.Scan(&e.EventID, &e.TriggeringCaseID, &eventKind, &e.DetectedGapText, &proposedArticleID, &flaggedArticleID,
		&e.DraftSummary, &finalStatus, &reviewerRole, &e.Reason, &ts)
	if err != nil {
		return domain.LearningEvent{}, err
	}

	e.EventKind = domain.LearningEventKind(eventKind)
	e.ReviewerRole = domain.ReviewerRole(reviewerRole)
	e.Timestamp = time.Unix(ts, 0)
	if proposedArticleID.Valid {
		e.ProposedArticleID = &proposedArticleID.String
	}
	if flaggedArticleID.Valid {
		e.FlaggedArticleID = &flaggedArticleID.String
	}
	if finalStatus.Valid {
		fs := domain.FinalStatus(finalStatus.String)
		e.FinalStatus = &fs
	}

	return e, nil
}
