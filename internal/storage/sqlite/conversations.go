package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/larrycoder123/supportmind/internal/domain"
)

// ConversationStore persists the raw chat transcript a conversation
// produced, keyed by conversation_id - the same opaque linking string
// Resolved Cases and Retrieval Log rows carry.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(c *Client) *ConversationStore {
	return &ConversationStore{db: c.db}
}

// Upsert records (or replaces) a conversation's transcript.
func (s *ConversationStore) Upsert(ctx context.Context, conversationID, transcript string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, transcript, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET transcript = excluded.transcript, updated_at = excluded.updated_at
	`, conversationID, transcript, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert conversation transcript: %w", err)
	}
	return nil
}

// Transcript returns the stored transcript for a conversation, or
// domain.ErrConversationNotFound if none was recorded.
func (s *ConversationStore) Transcript(ctx context.Context, conversationID string) (string, error) {
	var transcript string
	err := s.db.QueryRowContext(ctx, `SELECT transcript FROM conversations WHERE conversation_id = ?`, conversationID).Scan(&transcript)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrConversationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get conversation transcript: %w", err)
	}
	return transcript, nil
}
