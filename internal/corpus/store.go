// Package corpus defines the Corpus Store contract: the sole authority over
// corpus entry state (embeddings, confidence, usage). Concrete persistence
// lives in internal/storage/sqlite; this package only describes the shape.
package corpus

import (
	"context"

	"github.com/larrycoder123/supportmind/internal/domain"
)

// Hit is a Corpus Entry returned from a similarity search, carrying the
// similarity computed against the query vector that produced it.
type Hit struct {
	Entry      domain.CorpusEntry
	Similarity float64
}

// Filter narrows a search call. Zero values mean "no filter" except TopK,
// which callers must set explicitly; the pipeline rejects top_k = 0 before
// retrieval starts, not this package.
type Filter struct {
	SourceKinds  []domain.SourceKind
	Category     string
	MinSimilarity float64
	TopK         int
}

// Store is the Corpus Store's public contract. Implementations
// must never silently insert a row from AdjustConfidence or BumpUsage,
// and AdjustConfidence must be a single serializable per-row operation.
type Store interface {
	// Search returns hits ordered by descending similarity, ties broken on
	// SourceID ascending. Category match, when set, is a case-insensitive
	// substring match against the entry's category.
	Search(ctx context.Context, queryVector []float32, filter Filter) ([]Hit, error)

	// AdjustConfidence applies delta to the entry's confidence, clamped to
	// [0,1], and optionally increments usage_count. Returns the resulting
	// confidence and usage count. Fails with domain.ErrEntryNotFound if the
	// key does not exist; never creates the row.
	AdjustConfidence(ctx context.Context, key domain.EntryKey, delta float64, incrementUsage bool) (newConfidence float64, newUsage int, err error)

	// BumpUsage increments usage_count and updates updated_at. Fails with
	// domain.ErrEntryNotFound if the key does not exist.
	BumpUsage(ctx context.Context, key domain.EntryKey) error

	// Upsert inserts or fully replaces a corpus entry's embedding/content.
	// Used by the Review Gateway on article activation and contradiction
	// replacement.
	Upsert(ctx context.Context, entry domain.CorpusEntry) error

	// Get fetches a single entry by key. Returns domain.ErrEntryNotFound if absent.
	Get(ctx context.Context, key domain.EntryKey) (domain.CorpusEntry, error)

	// Remove deletes an entry outright. Used by the Review Gateway to drop a
	// rejected or superseded draft from retrieval entirely.
	Remove(ctx context.Context, key domain.EntryKey) error
}
