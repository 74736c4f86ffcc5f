package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ScriptEntry is the ancillary metadata a SCRIPT corpus entry's source_id
// resolves to.
type ScriptEntry struct {
	ScriptID       string
	Purpose        string
	RequiredInputs []string
	Module         string
	UpdatedAt      time.Time
}

// ScriptStore persists the ancillary lineage enrich_sources looks up for
// SCRIPT-kind evidence.
type ScriptStore struct {
	db *sql.DB
}

func NewScriptStore(c *Client) *ScriptStore {
	return &ScriptStore{db: c.db}
}

func (s *ScriptStore) Upsert(ctx context.Context, entry ScriptEntry) error {
	inputsJSON, err := json.Marshal(entry.RequiredInputs)
	if err != nil {
		return fmt.Errorf("marshal required inputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scripts_master (script_id, purpose, required_inputs, module, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (script_id) DO UPDATE SET
			purpose = excluded.purpose, required_inputs = excluded.required_inputs,
			module = excluded.module, updated_at = excluded.updated_at
	`, entry.ScriptID, entry.Purpose, string(inputsJSON), entry.Module, entry.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert script entry: %w", err)
	}
	return nil
}

// BatchGet is the batched enrich_sources lookup: one query for every
// SCRIPT-kind hit in a rerank result, not one query per hit.
func (s *ScriptStore) BatchGet(ctx context.Context, scriptIDs []string) (map[string]ScriptEntry, error) {
	if len(scriptIDs) == 0 {
		return map[string]ScriptEntry{}, nil
	}

	placeholders := make([]string, len(scriptIDs))
	args := make([]interface{}, len(scriptIDs))
	for i, id := range scriptIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT script_id, purpose, required_inputs, module, updated_at
		FROM scripts_master WHERE script_id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("script batch lookup: %w", err)
	}
	defer rows.Close()

	result := make(map[string]ScriptEntry)
	for rows.Next() {
		var e ScriptEntry
		var inputsJSON string
		var updatedAt int64

		if err := rows.Scan(&e.ScriptID, &e.Purpose, &inputsJSON, &e.Module, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan script row: %w", err)
		}
		e.UpdatedAt = time.Unix(updatedAt, 0)
		if inputsJSON != "" {
			_ = json.Unmarshal([]byte(inputsJSON), &e.RequiredInputs)
		}

		result[e.ScriptID] = e
	}

	return result, rows.Err()
}
