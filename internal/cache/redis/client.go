// Package redis wraps go-redis into two thin caches used by the core
// service: an embedding cache sitting in front of the Embedding Port, and a
// response cache in front of suggest. Both are best-effort — a cache miss or
// a Redis outage degrades to the uncached path rather than failing the call.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/metrics"
	"github.com/larrycoder123/supportmind/internal/providers"
	"github.com/larrycoder123/supportmind/pkg/logger"
	"github.com/larrycoder123/supportmind/pkg/utils"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EmbeddingCache decorates a providers.EmbeddingPort with a content-hash
// keyed cache. A cache hit skips the provider call entirely; a miss falls
// through to the wrapped port and populates the cache for next time.
type EmbeddingCache struct {
	client *Client
	inner  providers.EmbeddingPort
	ttl    time.Duration
}

func NewEmbeddingCache(client *Client, inner providers.EmbeddingPort, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{client: client, inner: inner, ttl: ttl}
}

var _ providers.EmbeddingPort = (*EmbeddingCache)(nil)

func (e *EmbeddingCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		v, ok, err := e.get(ctx, text)
		if err != nil {
			logger.Warn("embedding cache read failed", zap.Error(err))
		}
		if ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			results[i] = v
			continue
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		results[idx] = fresh[j]
		if err := e.set(ctx, missTexts[j], fresh[j]); err != nil {
			logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}

	return results, nil
}

func (e *EmbeddingCache) get(ctx context.Context, text string) ([]float32, bool, error) {
	key := "embedding:" + utils.HashString(text)
	data, err := e.client.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (e *EmbeddingCache) set(ctx context.Context, text string, v []float32) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := "embedding:" + utils.HashString(text)
	return e.client.client.Set(ctx, key, data, e.ttl).Err()
}

// SuggestCache caches a full suggest response keyed by query+category+topK.
// InvalidateAll drops every entry after a seed ingestion or a review
// decision; confidence adjustments at case closure do not invalidate it, so
// those entries live until their TTL runs out.
type SuggestCache struct {
	client *Client
	ttl    time.Duration
}

func NewSuggestCache(client *Client, ttl time.Duration) *SuggestCache {
	return &SuggestCache{client: client, ttl: ttl}
}

func (c *SuggestCache) Key(query, category string, topK int) string {
	return "suggest:" + utils.HashString(fmt.Sprintf("%s|%s|%d", query, category, topK))
}

func (c *SuggestCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := c.client.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("suggest").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get suggest cache: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("unmarshal suggest cache: %w", err)
	}
	metrics.CacheHits.WithLabelValues("suggest").Inc()
	return true, nil
}

func (c *SuggestCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal suggest cache: %w", err)
	}
	if err := c.client.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set suggest cache: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached suggest response. Called after any
// corpus-mutating operation (ingestion, review approval/rejection).
func (c *SuggestCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.client.Scan(ctx, 0, "suggest:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("failed to delete suggest cache key", zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan suggest cache keys: %w", err)
	}
	return nil
}
