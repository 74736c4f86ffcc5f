package llm

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/larrycoder123/supportmind/internal/providers"
)

// EmbeddingRerankPort implements providers.RerankPort on top of the same
// OpenAI embedding endpoint Client already wraps in retry+circuit-breaker.
// No dedicated rerank-model SDK is available in this module's dependency
// set (see DESIGN.md); re-embedding the query and candidates and scoring by
// cosine similarity gives a provider-backed, non-trivial reordering without
// introducing a new external dependency.
type EmbeddingRerankPort struct {
	client  *Client
	healthy atomic.Bool
}

func NewEmbeddingRerankPort(client *Client) *EmbeddingRerankPort {
	p := &EmbeddingRerankPort{client: client}
	p.healthy.Store(true)
	return p
}

var _ providers.RerankPort = (*EmbeddingRerankPort)(nil)

func (p *EmbeddingRerankPort) Rerank(ctx context.Context, query string, candidates []providers.RerankCandidate, topK int) ([]providers.RerankResult, error) {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	scores, err := p.client.EmbeddingSimilarityRerank(ctx, query, texts)
	if err != nil {
		p.healthy.Store(false)
		return nil, err
	}
	p.healthy.Store(true)

	results := make([]providers.RerankResult, len(candidates))
	for i, c := range candidates {
		results[i] = providers.RerankResult{ID: c.ID, Score: scores[i]}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

func (p *EmbeddingRerankPort) Healthy() bool {
	return p.healthy.Load()
}
