package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/metrics"
	"github.com/larrycoder123/supportmind/internal/vectormath"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// CorpusStore is the sqlite-backed implementation of corpus.Store. It holds
// the only authority over corpus entry state: similarity search
// runs an in-process cosine scan rather than delegating to a vector
// database, and AdjustConfidence is a single atomic UPDATE so concurrent
// closures compose serializably per row without an in-process lock.
type CorpusStore struct {
	db *sql.DB
}

func NewCorpusStore(c *Client) *CorpusStore {
	return &CorpusStore{db: c.db}
}

var _ corpus.Store = (*CorpusStore)(nil)

func (s *CorpusStore) Search(ctx context.Context, queryVector []float32, filter corpus.Filter) ([]corpus.Hit, error) {
	query := `SELECT source_kind, source_id, title, content, category, module, tags, embedding, confidence, usage_count, updated_at FROM corpus_entries WHERE 1=1`
	var args []interface{}

	if len(filter.SourceKinds) > 0 {
		placeholders := make([]string, len(filter.SourceKinds))
		for i, k := range filter.SourceKinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		query += fmt.Sprintf(" AND source_kind IN (%s)", strings.Join(placeholders, ","))
	}
	if filter.Category != "" {
		query += " AND category LIKE ? COLLATE NOCASE"
		args = append(args, "%"+filter.Category+"%")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("corpus search query: %w", err)
	}
	defer rows.Close()

	var hits []corpus.Hit
	for rows.Next() {
		entry, err := scanCorpusEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("corpus search scan: %w", err)
		}

		sim := vectormath.CosineSimilarity(queryVector, entry.Embedding)
		if sim < filter.MinSimilarity {
			continue
		}
		hits = append(hits, corpus.Hit{Entry: entry, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("corpus search rows: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Entry.SourceID < hits[j].Entry.SourceID
	})

	if filter.TopK > 0 && len(hits) > filter.TopK {
		hits = hits[:filter.TopK]
	}

	return hits, nil
}

// AdjustConfidence performs the read-modify-write as a single SQL statement:
// the new value is computed in the SET clause and clamped with MIN/MAX,
// relying on SQLite's writer serialization instead of an explicit per-row
// mutex to satisfy the "serializable per row" requirement.
func (s *CorpusStore) AdjustConfidence(ctx context.Context, key domain.EntryKey, delta float64, incrementUsage bool) (float64, int, error) {
	usageIncrement := 0
	if incrementUsage {
		usageIncrement = 1
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE corpus_entries
		SET confidence = MIN(1.0, MAX(0.0, confidence + ?)),
		    usage_count = usage_count + ?,
		    updated_at = ?
		WHERE source_kind = ? AND source_id = ?
	`, delta, usageIncrement, time.Now().Unix(), string(key.SourceKind), key.SourceID)
	if err != nil {
		return 0, 0, fmt.Errorf("adjust confidence: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("adjust confidence rows affected: %w", err)
	}
	if affected == 0 {
		return 0, 0, domain.ErrEntryNotFound
	}

	var newConfidence float64
	var newUsage int
	err = s.db.QueryRowContext(ctx, `SELECT confidence, usage_count FROM corpus_entries WHERE source_kind = ? AND source_id = ?`,
		string(key.SourceKind), key.SourceID).Scan(&newConfidence, &newUsage)
	if err != nil {
		return 0, 0, fmt.Errorf("adjust confidence readback: %w", err)
	}

	logger.Debug("confidence adjusted",
		zap.String("source_kind", string(key.SourceKind)),
		zap.String("source_id", key.SourceID),
		zap.Float64("delta", delta),
		zap.Float64("new_confidence", newConfidence),
	)

	return newConfidence, newUsage, nil
}

func (s *CorpusStore) BumpUsage(ctx context.Context, key domain.EntryKey) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE corpus_entries
		SET usage_count = usage_count + 1, updated_at = ?
		WHERE source_kind = ? AND source_id = ?
	`, time.Now().Unix(), string(key.SourceKind), key.SourceID)
	if err != nil {
		return fmt.Errorf("bump usage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("bump usage rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (s *CorpusStore) Upsert(ctx context.Context, entry domain.CorpusEntry) error {
	tagsJSON, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO corpus_entries (source_kind, source_id, title, content, category, module, tags, embedding, confidence, usage_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_kind, source_id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			module = excluded.module,
			tags = excluded.tags,
			embedding = excluded.embedding,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`,
		string(entry.SourceKind), entry.SourceID, entry.Title, entry.Content, entry.Category, entry.Module,
		string(tagsJSON), vectormath.EncodeEmbedding(entry.Embedding), entry.Confidence, entry.UsageCount, entry.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert corpus entry: %w", err)
	}

	logger.Info("corpus entry upserted",
		zap.String("source_kind", string(entry.SourceKind)),
		zap.String("source_id", entry.SourceID),
	)
	s.refreshEntryGauge(ctx, entry.SourceKind)
	return nil
}

// Remove deletes a corpus entry outright, used by the Review Gateway to
// drop a rejected or superseded draft from retrieval entirely.
func (s *CorpusStore) Remove(ctx context.Context, key domain.EntryKey) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM corpus_entries WHERE source_kind = ? AND source_id = ?`,
		string(key.SourceKind), key.SourceID)
	if err != nil {
		return fmt.Errorf("remove corpus entry: %w", err)
	}
	s.refreshEntryGauge(ctx, key.SourceKind)
	return nil
}

// refreshEntryGauge recomputes the corpus_entries_total gauge for one
// source kind. Cheap enough to run on every mutation since the table is
// indexed on source_kind and mutation volume is low relative to search.
func (s *CorpusStore) refreshEntryGauge(ctx context.Context, kind domain.SourceKind) {
	var count float64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM corpus_entries WHERE source_kind = ?`, string(kind)).Scan(&count); err != nil {
		logger.Warn("failed to refresh corpus entry gauge", zap.String("source_kind", string(kind)), zap.Error(err))
		return
	}
	metrics.CorpusEntriesTotal.WithLabelValues(string(kind)).Set(count)
}

func (s *CorpusStore) Get(ctx context.Context, key domain.EntryKey) (domain.CorpusEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_kind, source_id, title, content, category, module, tags, embedding, confidence, usage_count, updated_at
		FROM corpus_entries WHERE source_kind = ? AND source_id = ?
	`, string(key.SourceKind), key.SourceID)

	entry, err := scanCorpusEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CorpusEntry{}, domain.ErrEntryNotFound
	}
	if err != nil {
		return domain.CorpusEntry{}, fmt.Errorf("get corpus entry: %w", err)
	}
	return entry, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCorpusEntry(row rowScanner) (domain.CorpusEntry, error) {
	var entry domain.CorpusEntry
	var sourceKind, category, module, tagsJSON sql.NullString
	var embeddingBlob []byte
	var updatedAt int64

	err := row.Scan(
		&sourceKind, &entry.SourceID, &entry.Title, &entry.Content,
		&category, &module, &tagsJSON, &embeddingBlob,
		&entry.Confidence, &entry.UsageCount, &updatedAt,
	)
	if err != nil {
		return domain.CorpusEntry{}, err
	}

	entry.SourceKind = domain.SourceKind(sourceKind.String)
	entry.Category = category.String
	entry.Module = module.String
	entry.Embedding = vectormath.DecodeEmbedding(embeddingBlob)
	entry.UpdatedAt = time.Unix(updatedAt, 0)

	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &entry.Tags)
	}

	return entry, nil
}
