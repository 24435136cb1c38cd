package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"ai-memory-agent-be/internal/pkg/logger"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "embedding:"

// CachedProvider memoizes embeddings in process (go-cache) and, when a Redis
// client is configured, across instances. Cache failures never fail a call.
type CachedProvider struct {
	inner  EmbeddingProvider
	local  *cache.Cache
	rdb    *redis.Client
	ttl    time.Duration
	logger logger.ILogger
}

func NewCachedProvider(inner EmbeddingProvider, rdb *redis.Client, ttl time.Duration, log logger.ILogger) *CachedProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedProvider{
		inner:  inner,
		local:  cache.New(ttl, 10*time.Minute),
		rdb:    rdb,
		ttl:    ttl,
		logger: log,
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (p *CachedProvider) Generate(ctx context.Context, text string) (*EmbeddingResponse, error) {
	key := cacheKey(text)

	if x, found := p.local.Get(key); found {
		return x.(*EmbeddingResponse), nil
	}

	if p.rdb != nil {
		raw, err := p.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var resp EmbeddingResponse
			if jsonErr := json.Unmarshal(raw, &resp); jsonErr == nil {
				p.local.Set(key, &resp, cache.DefaultExpiration)
				return &resp, nil
			}
		} else if err != redis.Nil {
			p.logger.Warn("EMBEDDING", "Redis cache read failed", map[string]interface{}{"error": err.Error()})
		}
	}

	resp, err := p.inner.Generate(ctx, text)
	if err != nil {
		return nil, err
	}

	p.local.Set(key, resp, cache.DefaultExpiration)
	if p.rdb != nil {
		if payload, err := json.Marshal(resp); err == nil {
			if err := p.rdb.Set(ctx, key, payload, p.ttl).Err(); err != nil {
				p.logger.Warn("EMBEDDING", "Redis cache write failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	return resp, nil
}
