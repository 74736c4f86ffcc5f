// Package sqlite is the sole concrete persistence layer for the Corpus
// Store, Retrieval Log, Execution Records, Learning Events, Articles, and
// Provenance Records.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("sqlite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS corpus_entries (
		source_kind TEXT NOT NULL,
		source_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		category TEXT,
		module TEXT,
		tags TEXT,
		embedding BLOB NOT NULL,
		confidence REAL NOT NULL,
		usage_count INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (source_kind, source_id)
	);
	CREATE INDEX IF NOT EXISTS idx_corpus_category ON corpus_entries(category);

	CREATE TABLE IF NOT EXISTS articles (
		article_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		tags TEXT,
		module TEXT,
		category TEXT,
		status TEXT NOT NULL,
		origin TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);

	CREATE TABLE IF NOT EXISTS provenance_records (
		article_id TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		source_id TEXT NOT NULL,
		relationship TEXT NOT NULL,
		evidence_snippet TEXT,
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (article_id, source_kind, source_id),
		FOREIGN KEY (article_id) REFERENCES articles(article_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS scripts_master (
		script_id TEXT PRIMARY KEY,
		purpose TEXT NOT NULL,
		required_inputs TEXT,
		module TEXT,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		conversation_id TEXT PRIMARY KEY,
		transcript TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resolved_cases (
		case_id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		description TEXT,
		resolution TEXT NOT NULL,
		root_cause TEXT,
		category TEXT,
		tags TEXT,
		script_id TEXT,
		closed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cases_conversation ON resolved_cases(conversation_id);

	CREATE TABLE IF NOT EXISTS retrieval_log (
		log_id TEXT PRIMARY KEY,
		case_id TEXT,
		conversation_id TEXT,
		attempt_no INTEGER NOT NULL,
		query_text TEXT NOT NULL,
		source_kind TEXT,
		source_id TEXT,
		similarity_score REAL,
		outcome TEXT,
		execution_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_log_case ON retrieval_log(case_id);
	CREATE INDEX IF NOT EXISTS idx_log_conversation ON retrieval_log(conversation_id);

	CREATE TABLE IF NOT EXISTS execution_records (
		execution_id TEXT PRIMARY KEY,
		graph_kind TEXT NOT NULL,
		conversation_id TEXT,
		case_id TEXT,
		query TEXT NOT NULL,
		total_latency_ms INTEGER NOT NULL,
		per_node_latencies TEXT,
		tokens_in INTEGER NOT NULL DEFAULT 0,
		tokens_out INTEGER NOT NULL DEFAULT 0,
		evidence_count INTEGER NOT NULL DEFAULT 0,
		top_similarity REAL,
		top_rerank_score REAL,
		classification TEXT,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS learning_events (
		event_id TEXT PRIMARY KEY,
		triggering_case_id TEXT NOT NULL,
		event_kind TEXT NOT NULL,
		detected_gap_text TEXT,
		proposed_article_id TEXT,
		flagged_article_id TEXT,
		draft_summary TEXT,
		final_status TEXT,
		reviewer_role TEXT NOT NULL,
		reason TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON learning_events(event_kind);
	CREATE INDEX IF NOT EXISTS idx_events_status ON learning_events(final_status);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("sqlite schema initialized")
	return nil
}
