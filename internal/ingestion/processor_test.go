package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
)

type fakeArticleStore struct {
	articles []domain.Article
	err      error
}

func (f *fakeArticleStore) Create(ctx context.Context, article domain.Article) error {
	if f.err != nil {
		return f.err
	}
	f.articles = append(f.articles, article)
	return nil
}

type fakeCorpusStore struct {
	entries map[domain.EntryKey]domain.CorpusEntry
	err     error
}

func newFakeCorpusStore() *fakeCorpusStore {
	return &fakeCorpusStore{entries: map[domain.EntryKey]domain.CorpusEntry{}}
}

func (f *fakeCorpusStore) Search(ctx context.Context, v []float32, filter corpus.Filter) ([]corpus.Hit, error) {
	return nil, nil
}
func (f *fakeCorpusStore) AdjustConfidence(ctx context.Context, key domain.EntryKey, delta float64, incrementUsage bool) (float64, int, error) {
	return 0, 0, nil
}
func (f *fakeCorpusStore) BumpUsage(ctx context.Context, key domain.EntryKey) error { return nil }
func (f *fakeCorpusStore) Upsert(ctx context.Context, entry domain.CorpusEntry) error {
	if f.err != nil {
		return f.err
	}
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

type fakeEmbedding struct {
	err error
}

func (f fakeEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
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

const sampleHTML = `
<html>
<head><title>Resetting your password</title></head>
<body>
<nav>skip this nav</nav>
<h1>Resetting your password</h1>
<p>If you forgot your password, use the login reset flow to regain access to your account.</p>
<footer>skip this footer</footer>
</body>
</html>
`

func TestIngesterIngestHTML(t *testing.T) {
	t.Run("cleans HTML, infers module/category, and persists article plus corpus entry", func(t *testing.T) {
		articles := &fakeArticleStore{}
		store := newFakeCorpusStore()
		cache := &fakeCacheInvalidator{}
		ing := &Ingester{Articles: articles, Corpus: store, Embedding: fakeEmbedding{}, Cache: cache}

		article, err := ing.IngestHTML(context.Background(), "https://support.example.com/troubleshoot/password", sampleHTML)

		require.NoError(t, err)
		assert.Equal(t, "Resetting your password", article.Title)
		assert.Equal(t, "Authentication", article.Module)
		assert.Equal(t, "troubleshooting", article.Category)
		assert.Equal(t, domain.ArticleActive, article.Status)
		assert.Equal(t, domain.OriginSeed, article.Origin)
		assert.NotContains(t, article.Body, "skip this nav")
		assert.NotContains(t, article.Body, "skip this footer")

		require.Len(t, articles.articles, 1)
		entry, err := store.Get(context.Background(), domain.EntryKey{SourceKind: domain.SourceArticle, SourceID: article.ArticleID})
		require.NoError(t, err)
		assert.Equal(t, 0.9, entry.Confidence)
		assert.Equal(t, 1, cache.calls)
	})

	t.Run("fails when no content can be extracted from the HTML", func(t *testing.T) {
		ing := &Ingester{Articles: &fakeArticleStore{}, Corpus: newFakeCorpusStore(), Embedding: fakeEmbedding{}}

		_, err := ing.IngestHTML(context.Background(), "https://support.example.com/empty", "<html><body></body></html>")

		assert.Error(t, err)
	})

	t.Run("propagates an embedding failure without persisting a corpus entry", func(t *testing.T) {
		articles := &fakeArticleStore{}
		store := newFakeCorpusStore()
		ing := &Ingester{Articles: articles, Corpus: store, Embedding: fakeEmbedding{err: assertErr("provider down")}}

		_, err := ing.IngestHTML(context.Background(), "https://support.example.com/guide/sync", sampleHTML)

		assert.Error(t, err)
		assert.Empty(t, store.entries)
	})

	t.Run("defaults to the General module and documentation category", func(t *testing.T) {
		ing := &Ingester{Articles: &fakeArticleStore{}, Corpus: newFakeCorpusStore(), Embedding: fakeEmbedding{}}

		article, err := ing.IngestHTML(context.Background(), "https://support.example.com/misc", "<html><body><p>general information about the product</p></body></html>")

		require.NoError(t, err)
		assert.Equal(t, "General", article.Module)
		assert.Equal(t, "documentation", article.Category)
	})
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

var _ corpus.Store = (*fakeCorpusStore)(nil)
