package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// RetrievalLogStore is append-only except for the two monotonic post-hoc
// stamps (case_id null→value, outcome null→value) applied at case closure
//.
type RetrievalLogStore struct {
	db *sql.DB
}

func NewRetrievalLogStore(c *Client) *RetrievalLogStore {
	return &RetrievalLogStore{db: c.db}
}

func (s *RetrievalLogStore) Insert(ctx context.Context, row domain.RetrievalLogRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retrieval_log (log_id, case_id, conversation_id, attempt_no, query_text, source_kind, source_id, similarity_score, outcome, execution_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.LogID, nullableStr(row.CaseID), nullableStr(row.ConversationID), row.AttemptNo, row.QueryText,
		nullableSourceKind(row.SourceKind), nullableStr(row.SourceID), nullableFloat(row.SimilarityScore),
		nullableOutcome(row.Outcome), row.ExecutionID, row.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert retrieval log row: %w", err)
	}
	return nil
}

// LinkToCase sets case_id on every row for conversationID still missing one
//. Returns the number of rows linked.
func (s *RetrievalLogStore) LinkToCase(ctx context.Context, conversationID, caseID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE retrieval_log SET case_id = ? WHERE conversation_id = ? AND case_id IS NULL
	`, caseID, conversationID)
	if err != nil {
		return 0, fmt.Errorf("link retrieval log to case: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("link retrieval log rows affected: %w", err)
	}

	logger.Info("retrieval log linked to case", zap.String("conversation_id", conversationID), zap.String("case_id", caseID), zap.Int64("rows", affected))
	return int(affected), nil
}

func (s *RetrievalLogStore) ForCase(ctx context.Context, caseID string) ([]domain.RetrievalLogRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, case_id, conversation_id, attempt_no, query_text, source_kind, source_id, similarity_score, outcome, execution_id, created_at
		FROM retrieval_log WHERE case_id = ?
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("fetch retrieval log for case: %w", err)
	}
	defer rows.Close()

	var out []domain.RetrievalLogRow
	for rows.Next() {
		row, err := scanRetrievalLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retrieval log row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SetOutcome bulk-stamps outcome on a set of log rows by log_id.
func (s *RetrievalLogStore) SetOutcome(ctx context.Context, logIDs []string, outcome domain.RetrievalOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outcome tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range logIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE retrieval_log SET outcome = ? WHERE log_id = ?`, string(outcome), id); err != nil {
			return fmt.Errorf("stamp outcome on %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func scanRetrievalLogRow(rows *sql.Rows) (domain.RetrievalLogRow, error) {
	var r domain.RetrievalLogRow
	var caseID, conversationID, sourceKind, sourceID, outcome sql.NullString
	var similarity sql.NullFloat64
	var createdAt int64

	err := rows.Scan(&r.LogID, &caseID, &conversationID, &r.AttemptNo, &r.QueryText, &sourceKind, &sourceID, &similarity, &outcome, &r.ExecutionID, &createdAt)
	if err != nil {
		return domain.RetrievalLogRow{}, err
	}

	if caseID.Valid {
		r.CaseID = &caseID.String
	}
	if conversationID.Valid {
		r.ConversationID = &conversationID.String
	}
	if sourceKind.Valid {
		sk := domain.SourceKind(sourceKind.String)
		r.SourceKind = &sk
	}
	if sourceID.Valid {
		r.SourceID = &sourceID.String
	}
	if similarity.Valid {
		r.SimilarityScore = &similarity.Float64
	}
	if outcome.Valid {
		o := domain.RetrievalOutcome(outcome.String)
		r.Outcome = &o
	}
	r.CreatedAt = time.Unix(createdAt, 0)

	return r, nil
}

func nullableStr(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullableSourceKind(k *domain.SourceKind) interface{} {
	if k == nil {
		return nil
	}
	return string(*k)
}

func nullableOutcome(o *domain.RetrievalOutcome) interface{} {
	if o == nil {
		return nil
	}
	return string(*o)
}
