package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/larrycoder123/supportmind/internal/domain"
)

// ExecutionStore persists one row per end-to-end pipeline run.
type ExecutionStore struct {
	db *sql.DB
}

func NewExecutionStore(c *Client) *ExecutionStore {
	return &ExecutionStore{db: c.db}
}

func (s *ExecutionStore) Insert(ctx context.Context, rec domain.ExecutionRecord) error {
	latenciesJSON, err := json.Marshal(rec.PerNodeLatencies)
	if err != nil {
		return fmt.Errorf("marshal per-node latencies: %w", err)
	}

	var classification interface{}
	if rec.Classification != nil {
		classification = string(*rec.Classification)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_records (execution_id, graph_kind, conversation_id, case_id, query, total_latency_ms, per_node_latencies,
			tokens_in, tokens_out, evidence_count, top_similarity, top_rerank_score, classification, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ExecutionID, string(rec.GraphKind), nullableStr(rec.ConversationID), nullableStr(rec.CaseID), rec.Query,
		rec.TotalLatencyMS, string(latenciesJSON), rec.TokensIn, rec.TokensOut, rec.EvidenceCount,
		rec.TopSimilarity, rec.TopRerankScore, classification, string(rec.Status), rec.ErrorMessage, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}

func (s *ExecutionStore) Get(ctx context.Context, executionID string) (domain.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, graph_kind, conversation_id, case_id, query, total_latency_ms, per_node_latencies,
			tokens_in, tokens_out, evidence_count, top_similarity, top_rerank_score, classification, status, error_message, created_at
		FROM execution_records WHERE execution_id = ?
	`, executionID)

	var rec domain.ExecutionRecord
	var graphKind, status string
	var conversationID, caseID, classification, errorMessage sql.NullString
	var latenciesJSON string
	var createdAt int64

	err := row.Scan(&rec.ExecutionID, &graphKind, &conversationID, &caseID, &rec.Query, &rec.TotalLatencyMS, &latenciesJSON,
		&rec.TokensIn, &rec.TokensOut, &rec.EvidenceCount, &rec.TopSimilarity, &rec.TopRerankScore, &classification, &status, &errorMessage, &createdAt)
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("get execution record: %w", err)
	}

	rec.GraphKind = domain.ExecutionGraphKind(graphKind)
	rec.Status = domain.ExecutionStatus(status)
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.ErrorMessage = errorMessage.String
	if conversationID.Valid {
		rec.ConversationID = &conversationID.String
	}
	if caseID.Valid {
		rec.CaseID = &caseID.String
	}
	if classification.Valid {
		v := domain.Verdict(classification.String)
		rec.Classification = &v
	}
	rec.PerNodeLatencies = map[string]int64{}
	_ = json.Unmarshal([]byte(latenciesJSON), &rec.PerNodeLatencies)

	return rec, nil
}
