package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/larrycoder123/supportmind/internal/domain"
)

// CaseStore persists Resolved Cases. Rows are immutable once closed.
type CaseStore struct {
	db *sql.DB
}

func NewCaseStore(c *Client) *CaseStore {
	return &CaseStore{db: c.db}
}

func (s *CaseStore) Create(ctx context.Context, c domain.ResolvedCase) error {
	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resolved_cases (case_id, conversation_id, subject, description, resolution, root_cause, category, tags, script_id, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.CaseID, c.ConversationID, c.Subject, c.Description, c.Resolution, c.RootCause, c.Category, string(tagsJSON), c.ScriptID, c.ClosedAt.Unix())
	if err != nil {
		return fmt.Errorf("create resolved case: %w", err)
	}
	return nil
}

func (s *CaseStore) Get(ctx context.Context, caseID string) (domain.ResolvedCase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT case_id, conversation_id, subject, description, resolution, root_cause, category, tags, script_id, closed_at
		FROM resolved_cases WHERE case_id = ?
	`, caseID)

	var c domain.ResolvedCase
	var tagsJSON string
	var closedAt int64

	err := row.Scan(&c.CaseID, &c.ConversationID, &c.Subject, &c.Description, &c.Resolution, &c.RootCause, &c.Category, &tagsJSON, &c.ScriptID, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ResolvedCase{}, domain.ErrCaseNotFound
	}
	if err != nil {
		return domain.ResolvedCase{}, fmt.Errorf("get resolved case: %w", err)
	}

	c.ClosedAt = time.Unix(closedAt, 0)
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &c.Tags)
	}

	return c, nil
}

// BatchGet is the batched enrich_sources lookup for CASE_RESOLUTION-kind
// evidence: one query for every hit instead of one query per hit.
func (s *CaseStore) BatchGet(ctx context.Context, caseIDs []string) (map[string]domain.ResolvedCase, error) {
	if len(caseIDs) == 0 {
		return map[string]domain.ResolvedCase{}, nil
	}

	placeholders := make([]string, len(caseIDs))
	args := make([]interface{}, len(caseIDs))
	for i, id := range caseIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT case_id, conversation_id, subject, description, resolution, root_cause, category, tags, script_id, closed_at
		FROM resolved_cases WHERE case_id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("case batch lookup: %w", err)
	}
	defer rows.Close()

	result := make(map[string]domain.ResolvedCase)
	for rows.Next() {
		var c domain.ResolvedCase
		var tagsJSON string
		var closedAt int64

		if err := rows.Scan(&c.CaseID, &c.ConversationID, &c.Subject, &c.Description, &c.Resolution, &c.RootCause, &c.Category, &tagsJSON, &c.ScriptID, &closedAt); err != nil {
			return nil, fmt.Errorf("scan resolved case row: %w", err)
		}
		c.ClosedAt = time.Unix(closedAt, 0)
		if tagsJSON != "" {
			_ = json.Unmarshal([]byte(tagsJSON), &c.Tags)
		}

		result[c.CaseID] = c
	}

	return result, rows.Err()
}
