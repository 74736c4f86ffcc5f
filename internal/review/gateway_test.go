package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
)

type fakeEventStore struct {
	events map[string]domain.LearningEvent
}

func newFakeEventStore(events ...domain.LearningEvent) *fakeEventStore {
	m := map[string]domain.LearningEvent{}
	for _, e := range events {
		m[e.EventID] = e
	}
	return &fakeEventStore{events: m}
}

func (f *fakeEventStore) Get(ctx context.Context, eventID string) (domain.LearningEvent, error) {
	e, ok := f.events[eventID]
	if !ok {
		return domain.LearningEvent{}, domain.ErrEventNotFound
	}
	return e, nil
}

func (f *fakeEventStore) Finalize(ctx context.Context, eventID string, status domain.FinalStatus, reviewerRole domain.ReviewerRole, reason string) error {
	e, ok := f.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if e.FinalStatus != nil {
		return domain.ErrAlreadyReviewed
	}
	e.FinalStatus = &status
	e.ReviewerRole = reviewerRole
	e.Reason = reason
	f.events[eventID] = e
	return nil
}

type fakeArticleStore struct {
	articles map[string]domain.Article
}

func newFakeArticleStore(articles ...domain.Article) *fakeArticleStore {
	m := map[string]domain.Article{}
	for _, a := range articles {
		m[a.ArticleID] = a
	}
	return &fakeArticleStore{articles: m}
}

func (f *fakeArticleStore) Get(ctx context.Context, articleID string) (domain.Article, error) {
	a, ok := f.articles[articleID]
	if !ok {
		return domain.Article{}, domain.ErrEntryNotFound
	}
	return a, nil
}

func (f *fakeArticleStore) UpdateBody(ctx context.Context, articleID, title, body string) error {
	a, ok := f.articles[articleID]
	if !ok {
		return domain.ErrEntryNotFound
	}
	a.Title, a.Body = title, body
	f.articles[articleID] = a
	return nil
}

func (f *fakeArticleStore) SetStatus(ctx context.Context, articleID string, status domain.ArticleStatus) error {
	a, ok := f.articles[articleID]
	if !ok {
		return domain.ErrEntryNotFound
	}
	a.Status = status
	f.articles[articleID] = a
	return nil
}

type fakeCorpusStore struct {
	entries map[domain.EntryKey]domain.CorpusEntry
}

func newFakeCorpusStoreReal(entries ...domain.CorpusEntry) *fakeCorpusStore {
	m := map[domain.EntryKey]domain.CorpusEntry{}
	for _, e := range entries {
		m[e.Key()] = e
	}
	return &fakeCorpusStore{entries: m}
}

func (f *fakeCorpusStore) Search(ctx context.Context, v []float32, filter corpus.Filter) ([]corpus.Hit, error) {
	var out []corpus.Hit
	for _, e := range f.entries {
		out = append(out, corpus.Hit{Entry: e, Similarity: 1})
	}
	return out, nil
}

func (f *fakeCorpusStore) Get(ctx context.Context, key domain.EntryKey) (domain.CorpusEntry, error) {
	e, ok := f.entries[key]
	if !ok {
		return domain.CorpusEntry{}, domain.ErrEntryNotFound
	}
	return e, nil
}

func (f *fakeCorpusStore) Upsert(ctx context.Context, entry domain.CorpusEntry) error {
	f.entries[entry.Key()] = entry
	return nil
}

func (f *fakeCorpusStore) Remove(ctx context.Context, key domain.EntryKey) error {
	delete(f.entries, key)
	return nil
}

func (f *fakeCorpusStore) AdjustConfidence(ctx context.Context, key domain.EntryKey, delta float64, incrementUsage bool) (float64, int, error) {
	return 0, 0, nil
}

func (f *fakeCorpusStore) BumpUsage(ctx context.Context, key domain.EntryKey) error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

type fakeCacheInvalidator struct {
	calls int
}

func (f *fakeCacheInvalidator) InvalidateAll(ctx context.Context) error {
	f.calls++
	return nil
}

func TestGatewayApplyGapApproval(t *testing.T) {
	t.Run("approving a GAP draft activates it and upserts it into the corpus at 0.75 confidence", func(t *testing.T) {
		draftID := "ART-SYN-1"
		events := newFakeEventStore(domain.LearningEvent{EventID: "LE-1", EventKind: domain.EventGap, ProposedArticleID: &draftID})
		articles := newFakeArticleStore(domain.Article{ArticleID: draftID, Title: "t", Body: "b", Status: domain.ArticleDraft})
		corpusStore := newFakeCorpusStoreReal()
		cache := &fakeCacheInvalidator{}

		g := &Gateway{Events: events, Articles: articles, Corpus: corpusStore, Embedder: fakeEmbedder{}, Cache: cache}

		event, err := g.Apply(context.Background(), Decision{EventID: "LE-1", Approved: true, ReviewerRole: domain.ReviewerOps})

		require.NoError(t, err)
		require.NotNil(t, event.FinalStatus)
		assert.Equal(t, domain.StatusApproved, *event.FinalStatus)
		assert.Equal(t, domain.ArticleActive, articles.articles[draftID].Status)

		entry, err := corpusStore.Get(context.Background(), domain.EntryKey{SourceKind: domain.SourceArticle, SourceID: draftID})
		require.NoError(t, err)
		assert.Equal(t, 0.75, entry.Confidence)
		assert.Equal(t, 0, entry.UsageCount)
		assert.Equal(t, 1, cache.calls)
	})
}

func TestGatewayApplyContradictionApproval(t *testing.T) {
	t.Run("approving a CONTRADICTION replaces the flagged article's content while preserving confidence and usage", func(t *testing.T) {
		draftID := "ART-SYN-2"
		flaggedID := "KB-OLD-1"
		events := newFakeEventStore(domain.LearningEvent{EventID: "LE-2", EventKind: domain.EventContradiction, ProposedArticleID: &draftID, FlaggedArticleID: &flaggedID})
		articles := newFakeArticleStore(
			domain.Article{ArticleID: draftID, Title: "new title", Body: "new body", Status: domain.ArticleDraft},
			domain.Article{ArticleID: flaggedID, Title: "old title", Body: "old body", Status: domain.ArticleActive},
		)
		corpusStore := newFakeCorpusStoreReal()
		corpusStore.entries[domain.EntryKey{SourceKind: domain.SourceArticle, SourceID: flaggedID}] = domain.CorpusEntry{
			SourceKind: domain.SourceArticle, SourceID: flaggedID, Confidence: 0.92, UsageCount: 37, UpdatedAt: time.Now(),
		}

		g := &Gateway{Events: events, Articles: articles, Corpus: corpusStore, Embedder: fakeEmbedder{}}

		_, err := g.Apply(context.Background(), Decision{EventID: "LE-2", Approved: true, ReviewerRole: domain.ReviewerTier3})

		require.NoError(t, err)
		assert.Equal(t, "new title", articles.articles[flaggedID].Title)
		assert.Equal(t, "new body", articles.articles[flaggedID].Body)
		assert.Equal(t, domain.ArticleArchived, articles.articles[draftID].Status)

		entry, err := corpusStore.Get(context.Background(), domain.EntryKey{SourceKind: domain.SourceArticle, SourceID: flaggedID})
		require.NoError(t, err)
		assert.Equal(t, 0.92, entry.Confidence)
		assert.Equal(t, 37, entry.UsageCount)

		_, err = corpusStore.Get(context.Background(), domain.EntryKey{SourceKind: domain.SourceArticle, SourceID: draftID})
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	})
}

func TestGatewayApplyRejection(t *testing.T) {
	t.Run("rejecting a draft archives it and removes it from the corpus", func(t *testing.T) {
		draftID := "ART-SYN-3"
		events := newFakeEventStore(domain.LearningEvent{EventID: "LE-3", EventKind: domain.EventGap, ProposedArticleID: &draftID})
		articles := newFakeArticleStore(domain.Article{ArticleID: draftID, Status: domain.ArticleDraft})
		corpusStore := newFakeCorpusStoreReal()

		g := &Gateway{Events: events, Articles: articles, Corpus: corpusStore}

		event, err := g.Apply(context.Background(), Decision{EventID: "LE-3", Approved: false, Reason: "low quality draft"})

		require.NoError(t, err)
		require.NotNil(t, event.FinalStatus)
		assert.Equal(t, domain.StatusRejected, *event.FinalStatus)
		assert.Equal(t, domain.ArticleArchived, articles.articles[draftID].Status)
	})
}

func TestGatewayApplyTerminality(t *testing.T) {
	t.Run("a second review decision on the same event fails with already-reviewed", func(t *testing.T) {
		draftID := "ART-SYN-4"
		events := newFakeEventStore(domain.LearningEvent{EventID: "LE-4", EventKind: domain.EventGap, ProposedArticleID: &draftID})
		articles := newFakeArticleStore(domain.Article{ArticleID: draftID, Status: domain.ArticleDraft})
		corpusStore := newFakeCorpusStoreReal()

		g := &Gateway{Events: events, Articles: articles, Corpus: corpusStore}

		_, err := g.Apply(context.Background(), Decision{EventID: "LE-4", Approved: true})
		require.NoError(t, err)

		_, err = g.Apply(context.Background(), Decision{EventID: "LE-4", Approved: false})
		assert.ErrorIs(t, err, domain.ErrAlreadyReviewed)
	})
}

var _ corpus.Store = (*fakeCorpusStore)(nil)
