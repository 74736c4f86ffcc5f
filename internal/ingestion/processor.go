// Package ingestion normalizes scraped HTML knowledge-base pages into seed
// Articles and embeds them directly into the Corpus Store. Unlike the
// draft pipeline, seed content is ingested whole — one corpus entry per
// article, no chunking — since the Corpus Store's authority is keyed by
// (source_kind, source_id), not by chunk offset.
package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/metrics"
	"github.com/larrycoder123/supportmind/internal/providers"
	"github.com/larrycoder123/supportmind/pkg/logger"
	"github.com/larrycoder123/supportmind/pkg/utils"
)

// ArticleStore is the narrow article persistence seam the ingester depends on.
type ArticleStore interface {
	Create(ctx context.Context, article domain.Article) error
}

// CacheInvalidator drops every cached suggest response after a seed
// ingestion. Optional: a nil Cache leaves the ingester working uncached.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Ingester turns scraped HTML into a seed Article plus its Corpus Entry.
type Ingester struct {
	Articles  ArticleStore
	Corpus    corpus.Store
	Embedding providers.EmbeddingPort
	Cache     CacheInvalidator
}

func NewIngester(articles ArticleStore, store corpus.Store, embedding providers.EmbeddingPort) *Ingester {
	return &Ingester{Articles: articles, Corpus: store, Embedding: embedding}
}

// IngestHTML cleans htmlContent, classifies it, embeds the cleaned body,
// and persists both the Article and its Corpus Entry.
func (p *Ingester) IngestHTML(ctx context.Context, sourceURL, htmlContent string) (domain.Article, error) {
	cleaned := cleanHTML(htmlContent)
	if cleaned == "" {
		return domain.Article{}, fmt.Errorf("ingest %s: no content extracted from HTML", sourceURL)
	}

	articleID := "ART-" + utils.HashString(sourceURL)
	now := time.Now()

	article := domain.Article{
		ArticleID: articleID,
		Title:     extractTitle(htmlContent),
		Body:      cleaned,
		Module:    inferModule(cleaned),
		Category:  inferCategory(sourceURL),
		Status:    domain.ArticleActive,
		Origin:    domain.OriginSeed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := p.Articles.Create(ctx, article); err != nil {
		return domain.Article{}, fmt.Errorf("ingest %s: persist article: %w", sourceURL, err)
	}

	vectors, err := p.Embedding.EmbedBatch(ctx, []string{cleaned})
	if err != nil {
		return domain.Article{}, fmt.Errorf("ingest %s: embed body: %w", sourceURL, err)
	}

	entry := domain.CorpusEntry{
		SourceKind: domain.SourceArticle,
		SourceID:   articleID,
		Title:      article.Title,
		Content:    cleaned,
		Category:   article.Category,
		Module:     article.Module,
		Confidence: 0.9,
		UsageCount: 0,
		Embedding:  vectors[0],
		UpdatedAt:  now,
	}
	if err := p.Corpus.Upsert(ctx, entry); err != nil {
		return domain.Article{}, fmt.Errorf("ingest %s: upsert corpus entry: %w", sourceURL, err)
	}
	metrics.ArticlesIngested.Inc()

	if p.Cache != nil {
		if err := p.Cache.InvalidateAll(ctx); err != nil {
			logger.Warn("failed to invalidate suggest cache after ingestion", zap.String("article_id", articleID), zap.Error(err))
		}
	}

	logger.Info("ingested seed article", zap.String("article_id", articleID), zap.String("url", sourceURL))
	return article, nil
}

var whitespacePattern = regexp.MustCompile(`\s+`)

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(_ int, sel *goquery.Selection) {
		sel.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "Untitled"
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = "Untitled"
	}
	return title
}

var moduleKeywords = map[string]string{
	"billing":        "Billing",
	"invoice":        "Billing",
	"payment":        "Billing",
	"login":          "Authentication",
	"password":       "Authentication",
	"sso":            "Authentication",
	"account":        "Account Management",
	"subscription":   "Account Management",
	"api":            "API",
	"integration":    "Integrations",
	"webhook":        "Integrations",
	"network":        "Connectivity",
	"connection":     "Connectivity",
	"sync":           "Data Sync",
	"export":         "Data Sync",
}

// moduleKeywordOrder is the order keywords are tried in, so a body that
// mentions several of them always maps to the same module.
var moduleKeywordOrder = []string{
	"billing", "invoice", "payment", "login", "password", "sso",
	"account", "subscription", "api", "integration", "webhook",
	"network", "connection", "sync", "export",
}

func inferModule(body string) string {
	lower := strings.ToLower(body)
	for _, keyword := range moduleKeywordOrder {
		if strings.Contains(lower, keyword) {
			return moduleKeywords[keyword]
		}
	}
	return "General"
}

func inferCategory(sourceURL string) string {
	lower := strings.ToLower(sourceURL)
	switch {
	case strings.Contains(lower, "troubleshoot"):
		return "troubleshooting"
	case strings.Contains(lower, "guide"):
		return "guide"
	case strings.Contains(lower, "reference"):
		return "reference"
	case strings.Contains(lower, "tutorial"):
		return "tutorial"
	default:
		return "documentation"
	}
}
