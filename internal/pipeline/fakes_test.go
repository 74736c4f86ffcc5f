package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/providers"
)

// fakeEmbedding returns a deterministic vector per text: length 1, value
// equal to the text's length, so cosine-style retrieval fakes downstream can
// compare by index rather than real semantics.
type fakeEmbedding struct {
	err     error
	lastReq []string
	vectors map[string][]float32
}

func (f *fakeEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.lastReq = texts
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

// fakeGeneration returns a fixed raw JSON payload regardless of the prompt.
type fakeGeneration struct {
	raw   []byte
	usage providers.TokenUsage
	err   error
	calls int
}

func (f *fakeGeneration) GenerateStructured(ctx context.Context, messages []providers.Message, schema providers.Schema, temperature float32) ([]byte, providers.TokenUsage, error) {
	f.calls++
	if f.err != nil {
		return nil, providers.TokenUsage{}, f.err
	}
	return f.raw, f.usage, nil
}

// fakeRerank scores candidates len(candidates)-i by input position, so the
// first candidate gets the highest score and input order is kept.
type fakeRerank struct {
	healthy bool
	err     error
}

func (f *fakeRerank) Rerank(ctx context.Context, query string, candidates []providers.RerankCandidate, topK int) ([]providers.RerankResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	results := make([]providers.RerankResult, len(candidates))
	for i, c := range candidates {
		results[i] = providers.RerankResult{ID: c.ID, Score: float64(len(candidates) - i)}
	}
	return results, nil
}

func (f *fakeRerank) Healthy() bool { return f.healthy }

// fakeStore is an in-memory corpus.Store. Search ignores the query vector:
// it filters entries by source kind and category substring and returns
// each entry's fixed similarity from hits, so ordering and dedup logic can
// be exercised directly.
type fakeStore struct {
	entries map[domain.EntryKey]domain.CorpusEntry
	hits    map[domain.EntryKey]float64
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[domain.EntryKey]domain.CorpusEntry{}, hits: map[domain.EntryKey]float64{}}
}

func (f *fakeStore) Search(ctx context.Context, queryVector []float32, filter corpus.Filter) ([]corpus.Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []corpus.Hit
	for key, entry := range f.entries {
		if len(filter.SourceKinds) > 0 && !containsKind(filter.SourceKinds, entry.SourceKind) {
			continue
		}
		if filter.Category != "" && !strings.Contains(strings.ToLower(entry.Category), strings.ToLower(filter.Category)) {
			continue
		}
		out = append(out, corpus.Hit{Entry: entry, Similarity: f.hits[key]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Entry.SourceID < out[j].Entry.SourceID
	})
	return out, nil
}

func containsKind(kinds []domain.SourceKind, k domain.SourceKind) bool {
	for _, sk := range kinds {
		if sk == k {
			return true
		}
	}
	return false
}

func (f *fakeStore) AdjustConfidence(ctx context.Context, key domain.EntryKey, delta float64, incrementUsage bool) (float64, int, error) {
	entry, ok := f.entries[key]
	if !ok {
		return 0, 0, domain.ErrEntryNotFound
	}
	entry.Confidence += delta
	if entry.Confidence < 0 {
		entry.Confidence = 0
	}
	if entry.Confidence > 1 {
		entry.Confidence = 1
	}
	if incrementUsage {
		entry.UsageCount++
	}
	f.entries[key] = entry
	return entry.Confidence, entry.UsageCount, nil
}

func (f *fakeStore) BumpUsage(ctx context.Context, key domain.EntryKey) error {
	entry, ok := f.entries[key]
	if !ok {
		return domain.ErrEntryNotFound
	}
	entry.UsageCount++
	f.entries[key] = entry
	return nil
}

func (f *fakeStore) Upsert(ctx context.Context, entry domain.CorpusEntry) error {
	f.entries[entry.Key()] = entry
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key domain.EntryKey) (domain.CorpusEntry, error) {
	entry, ok := f.entries[key]
	if !ok {
		return domain.CorpusEntry{}, domain.ErrEntryNotFound
	}
	return entry, nil
}

func (f *fakeStore) Remove(ctx context.Context, key domain.EntryKey) error {
	delete(f.entries, key)
	return nil
}

// fakeEnricher echoes back an empty detail per hit, or forces a failure.
type fakeEnricher struct {
	err error
}

func (f *fakeEnricher) Enrich(ctx context.Context, hits []EvidenceHit) (map[domain.EntryKey]EnrichedDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[domain.EntryKey]EnrichedDetail, len(hits))
	for _, h := range hits {
		out[h.Entry.Key()] = EnrichedDetail{CaseSubject: fmt.Sprintf("enriched:%s", h.Entry.SourceID)}
	}
	return out, nil
}

// fakeLogs records inserted rows in memory.
type fakeLogs struct {
	rows []domain.RetrievalLogRow
	err  error
}

func (f *fakeLogs) Insert(ctx context.Context, row domain.RetrievalLogRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

// fakeExec records execution records in memory.
type fakeExec struct {
	records []domain.ExecutionRecord
}

func (f *fakeExec) Insert(ctx context.Context, rec domain.ExecutionRecord) error {
	f.records = append(f.records, rec)
	return nil
}
