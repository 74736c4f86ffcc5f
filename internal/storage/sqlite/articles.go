package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// ArticleStore persists Articles and their Provenance Records. The Review
// Gateway is the only component permitted to mutate an article's status
// after initial drafting; this store does not enforce that by
// itself, it just records whatever its callers write.
type ArticleStore struct {
	db *sql.DB
}

func NewArticleStore(c *Client) *ArticleStore {
	return &ArticleStore{db: c.db}
}

func (s *ArticleStore) Create(ctx context.Context, article domain.Article) error {
	tagsJSON, err := json.Marshal(article.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO articles (article_id, title, body, tags, module, category, status, origin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, article.ArticleID, article.Title, article.Body, string(tagsJSON), article.Module, article.Category,
		string(article.Status), string(article.Origin), article.CreatedAt.Unix(), article.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create article: %w", err)
	}

	logger.Info("article created", zap.String("article_id", article.ArticleID), zap.String("status", string(article.Status)))
	return nil
}

func (s *ArticleStore) Get(ctx context.Context, articleID string) (domain.Article, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT article_id, title, body, tags, module, category, status, origin, created_at, updated_at
		FROM articles WHERE article_id = ?
	`, articleID)

	var a domain.Article
	var tagsJSON string
	var status, origin string
	var createdAt, updatedAt int64

	err := row.Scan(&a.ArticleID, &a.Title, &a.Body, &tagsJSON, &a.Module, &a.Category, &status, &origin, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, fmt.Errorf("article %s: %w", articleID, domain.ErrEntryNotFound)
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("get article: %w", err)
	}

	a.Status = domain.ArticleStatus(status)
	a.Origin = domain.ArticleOrigin(origin)
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &a.Tags)
	}

	return a, nil
}

// UpdateBody replaces an article's title/body — used by the Review Gateway
// when a CONTRADICTION approval rewrites the flagged article in place.
func (s *ArticleStore) UpdateBody(ctx context.Context, articleID, title, body string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles SET title = ?, body = ?, updated_at = ? WHERE article_id = ?
	`, title, body, time.Now().Unix(), articleID)
	if err != nil {
		return fmt.Errorf("update article body: %w", err)
	}
	return nil
}

func (s *ArticleStore) SetStatus(ctx context.Context, articleID string, status domain.ArticleStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles SET status = ?, updated_at = ? WHERE article_id = ?
	`, string(status), time.Now().Unix(), articleID)
	if err != nil {
		return fmt.Errorf("set article status: %w", err)
	}

	logger.Info("article status changed", zap.String("article_id", articleID), zap.String("status", string(status)))
	return nil
}

// CreateProvenance inserts the three (or more) provenance records for a
// synthesized article in one transaction.
func (s *ArticleStore) CreateProvenance(ctx context.Context, records []domain.ProvenanceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin provenance tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO provenance_records (article_id, source_kind, source_id, relationship, evidence_snippet, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ArticleID, string(r.SourceKind), r.SourceID, string(r.Relationship), r.EvidenceSnippet, r.Timestamp.Unix())
		if err != nil {
			return fmt.Errorf("insert provenance record: %w", err)
		}
	}

	return tx.Commit()
}

func (s *ArticleStore) ProvenanceFor(ctx context.Context, articleIDs []string) (map[string][]domain.ProvenanceRecord, error) {
	if len(articleIDs) == 0 {
		return map[string][]domain.ProvenanceRecord{}, nil
	}

	placeholders := make([]string, len(articleIDs))
	args := make([]interface{}, len(articleIDs))
	for i, id := range articleIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT article_id, source_kind, source_id, relationship, evidence_snippet, timestamp
		FROM provenance_records WHERE article_id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("provenance lookup: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.ProvenanceRecord)
	for rows.Next() {
		var r domain.ProvenanceRecord
		var sourceKind, relationship string
		var ts int64

		if err := rows.Scan(&r.ArticleID, &sourceKind, &r.SourceID, &relationship, &r.EvidenceSnippet, &ts); err != nil {
			return nil, fmt.Errorf("scan provenance row: %w", err)
		}
		r.SourceKind = domain.ProvenanceSourceKind(sourceKind)
		r.Relationship = domain.ProvenanceRelationship(relationship)
		r.Timestamp = time.Unix(ts, 0)

		result[r.ArticleID] = append(result[r.ArticleID], r)
	}

	return result, rows.Err()
}
