package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/gap"
	"github.com/larrycoder123/supportmind/internal/pipeline"
	"github.com/larrycoder123/supportmind/internal/providers"
)

type fakeLogStore struct {
	logs     []domain.RetrievalLogRow
	linkErr  error
	fetchErr error
}

func (f *fakeLogStore) LinkToCase(ctx context.Context, conversationID, caseID string) (int, error) {
	if f.linkErr != nil {
		return 0, f.linkErr
	}
	return len(f.logs), nil
}

func (f *fakeLogStore) ForCase(ctx context.Context, caseID string) ([]domain.RetrievalLogRow, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.logs, nil
}

func (f *fakeLogStore) SetOutcome(ctx context.Context, logIDs []string, outcome domain.RetrievalOutcome) error {
	return nil
}

type fakeArticleStore struct {
	articles    map[string]domain.Article
	provenance  []domain.ProvenanceRecord
	createErr   error
}

func (f *fakeArticleStore) Create(ctx context.Context, article domain.Article) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.articles == nil {
		f.articles = map[string]domain.Article{}
	}
	f.articles[article.ArticleID] = article
	return nil
}

func (f *fakeArticleStore) CreateProvenance(ctx context.Context, records []domain.ProvenanceRecord) error {
	f.provenance = append(f.provenance, records...)
	return nil
}

func (f *fakeArticleStore) Get(ctx context.Context, articleID string) (domain.Article, error) {
	a, ok := f.articles[articleID]
	if !ok {
		return domain.Article{}, domain.ErrEntryNotFound
	}
	return a, nil
}

type fakeEventStore struct {
	events []domain.LearningEvent
}

func (f *fakeEventStore) Create(ctx context.Context, event domain.LearningEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeCaseStore struct {
	cases map[string]domain.ResolvedCase
	err   error
}

func (f *fakeCaseStore) Get(ctx context.Context, caseID string) (domain.ResolvedCase, error) {
	if f.err != nil {
		return domain.ResolvedCase{}, f.err
	}
	c, ok := f.cases[caseID]
	if !ok {
		return domain.ResolvedCase{}, domain.ErrCaseNotFound
	}
	return c, nil
}

type fakeCorpusStore struct {
	entries map[domain.EntryKey]domain.CorpusEntry
	adjustErr error
}

func newFakeCorpusStore() *fakeCorpusStore {
	return &fakeCorpusStore{entries: map[domain.EntryKey]domain.CorpusEntry{}}
}

func (f *fakeCorpusStore) Search(ctx context.Context, v []float32, filter corpus.Filter) ([]corpus.Hit, error) {
	var out []corpus.Hit
	for _, e := range f.entries {
		out = append(out, corpus.Hit{Entry: e, Similarity: 0.9})
	}
	return out, nil
}

func (f *fakeCorpusStore) AdjustConfidence(ctx context.Context, key domain.EntryKey, delta float64, incrementUsage bool) (float64, int, error) {
	if f.adjustErr != nil {
		return 0, 0, f.adjustErr
	}
	e, ok := f.entries[key]
	if !ok {
		return 0, 0, domain.ErrEntryNotFound
	}
	e.Confidence += delta
	if incrementUsage {
		e.UsageCount++
	}
	f.entries[key] = e
	return e.Confidence, e.UsageCount, nil
}

func (f *fakeCorpusStore) BumpUsage(ctx context.Context, key domain.EntryKey) error { return nil }
func (f *fakeCorpusStore) Upsert(ctx context.Context, entry domain.CorpusEntry) error {
	f.entries[entry.Key()] = entry
	return nil
}
func (f *fakeCorpusStore) Get(ctx context.Context, key domain.EntryKey) (domain.CorpusEntry, error) {
	e, ok := f.entries[key]
	if !ok {
		return domain.CorpusEntry{}, domain.ErrEntryNotFound
	}
	return e, nil
}
func (f *fakeCorpusStore) Remove(ctx context.Context, key domain.EntryKey) error {
	delete(f.entries, key)
	return nil
}

type noopEmbedding struct{}

func (noopEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func newDetector(genRaw []byte, corpusStore corpus.Store) *gap.Detector {
	return &gap.Detector{
		Deps: pipeline.Deps{
			Store:                  corpusStore,
			Embedding:              noopEmbedding{},
			Generation:             chainedGeneration{planRaw: []byte(`{"queries":["q"],"rationale":"r"}`), classifyRaw: genRaw},
			GapSimilarityThreshold: 0.5,
		},
		TopK: intPtr(5),
	}
}

func intPtr(n int) *int { return &n }

type chainedGeneration struct {
	planRaw     []byte
	classifyRaw []byte
}

func (c chainedGeneration) GenerateStructured(ctx context.Context, messages []providers.Message, schema providers.Schema, temperature float32) ([]byte, providers.TokenUsage, error) {
	if schema.Name == "retrieval_plan" {
		return c.planRaw, providers.TokenUsage{}, nil
	}
	if schema.Name == "knowledge_decision" {
		return c.classifyRaw, providers.TokenUsage{}, nil
	}
	return []byte(`{"title":"t","body":"b","tags":[],"module":"m","category":"c","resolution_steps":["s"]}`), providers.TokenUsage{}, nil
}

func TestCoordinatorRun(t *testing.T) {
	t.Run("a failed log link is captured as a warning and the run continues", func(t *testing.T) {
		logs := &fakeLogStore{linkErr: assertErr("db unavailable")}
		cases := &fakeCaseStore{cases: map[string]domain.ResolvedCase{"CASE-1": {CaseID: "CASE-1"}}}
		corpusStore := newFakeCorpusStore()
		detector := newDetector([]byte(`{"verdict":"NEW","reasoning":"no match"}`), corpusStore)

		c := &Coordinator{
			Logs: logs, Corpus: corpusStore, Cases: cases,
			Articles: &fakeArticleStore{}, Events: &fakeEventStore{},
			Detector: detector, Drafter: &Drafter{Generation: chainedGeneration{classifyRaw: []byte(`{}`)}},
		}

		result := c.Run(context.Background(), "CASE-1", "CONV-1", true)

		require.NotEmpty(t, result.Warnings)
		assert.Contains(t, result.Warnings[0], "link retrieval logs")
		assert.Equal(t, domain.VerdictNew, result.Classification)
	})

	t.Run("a missing case aborts the run with a warning instead of panicking", func(t *testing.T) {
		logs := &fakeLogStore{}
		cases := &fakeCaseStore{cases: map[string]domain.ResolvedCase{}}
		corpusStore := newFakeCorpusStore()

		c := &Coordinator{
			Logs: logs, Corpus: corpusStore, Cases: cases,
			Articles: &fakeArticleStore{}, Events: &fakeEventStore{},
			Detector: newDetector(nil, corpusStore),
		}

		result := c.Run(context.Background(), "CASE-MISSING", "", true)

		require.NotEmpty(t, result.Warnings)
		assert.Empty(t, result.Classification)
	})

	t.Run("SAME verdict auto-confirms and boosts the matched entry's confidence", func(t *testing.T) {
		logs := &fakeLogStore{}
		cases := &fakeCaseStore{cases: map[string]domain.ResolvedCase{"CASE-2": {CaseID: "CASE-2"}}}
		corpusStore := newFakeCorpusStore()
		matchKey := domain.EntryKey{SourceKind: domain.SourceArticle, SourceID: "A"}
		corpusStore.entries[matchKey] = domain.CorpusEntry{SourceKind: domain.SourceArticle, SourceID: "A", Confidence: 0.5, UpdatedAt: time.Now()}

		events := &fakeEventStore{}
		d := newDetector([]byte(`{"verdict":"SAME","reasoning":"matches","best_match_source_id":"A","similarity_score":0.9}`), corpusStore)

		c := &Coordinator{
			Logs: logs, Corpus: corpusStore, Cases: cases,
			Articles: &fakeArticleStore{}, Events: events,
			Detector: d, Deltas: ConfidenceDeltas{Confirmed: 0.1},
		}

		result := c.Run(context.Background(), "CASE-2", "", true)

		assert.Equal(t, domain.VerdictSame, result.Classification)
		require.Len(t, events.events, 1)
		assert.Equal(t, domain.EventConfirmed, events.events[0].EventKind)
		require.NotNil(t, events.events[0].FinalStatus)
		assert.Equal(t, domain.StatusApproved, *events.events[0].FinalStatus)
		assert.InDelta(t, 0.6, corpusStore.entries[matchKey].Confidence, 1e-9)
	})

	t.Run("NEW verdict drafts an article and records a pending GAP event", func(t *testing.T) {
		logs := &fakeLogStore{}
		cases := &fakeCaseStore{cases: map[string]domain.ResolvedCase{"CASE-3": {CaseID: "CASE-3", Subject: "s", Resolution: "r"}}}
		corpusStore := newFakeCorpusStore()
		events := &fakeEventStore{}
		articles := &fakeArticleStore{}
		d := newDetector([]byte(`{"verdict":"NEW","reasoning":"no match"}`), corpusStore)
		drafter := &Drafter{Generation: chainedGeneration{classifyRaw: []byte(`{"title":"New","body":"b","tags":[],"module":"m","category":"c","resolution_steps":["s"]}`)}}

		c := &Coordinator{
			Logs: logs, Corpus: corpusStore, Cases: cases,
			Articles: articles, Events: events,
			Detector: d, Drafter: drafter,
		}

		result := c.Run(context.Background(), "CASE-3", "", true)

		assert.Equal(t, domain.VerdictNew, result.Classification)
		assert.NotEmpty(t, result.DraftedArticleID)
		require.Len(t, events.events, 1)
		assert.Equal(t, domain.EventGap, events.events[0].EventKind)
		assert.Nil(t, events.events[0].FinalStatus)
		require.Len(t, articles.provenance, 3)
	})
}

var _ corpus.Store = (*fakeCorpusStore)(nil)
