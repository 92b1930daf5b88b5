package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rpattn/contentql/internal/domain"
	"github.com/rpattn/contentql/internal/search"
)

const keyPrefix = "contentql:search:"

// client captures the subset of go-redis commands the cache relies on.
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// SearchCache serves repeated searches from Redis. It sits in front of the
// orchestrator at the transport edge; entries expire after ttl and partial
// fan-out results are never stored.
type SearchCache struct {
	next   search.Service
	client client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSearchCache wraps next with rdb.
func NewSearchCache(next search.Service, rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *SearchCache {
	return newSearchCache(next, rdb, ttl, logger)
}

func newSearchCache(next search.Service, c client, ttl time.Duration, logger *zap.Logger) *SearchCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SearchCache{next: next, client: c, ttl: ttl, logger: logger}
}

// Search implements search.Service.
func (c *SearchCache) Search(ctx context.Context, tenant uuid.UUID, scope *search.Scope, req domain.SearchRequest) (domain.SearchResult, error) {
	key, err := cacheKey(tenant, scope, req)
	if err != nil {
		return c.next.Search(ctx, tenant, scope, req)
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached domain.SearchResult
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if decodeErr := dec.Decode(&cached); decodeErr == nil {
			return cached, nil
		}
		c.logger.Warn("[CACHE] discarding undecodable entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("[CACHE] lookup failed", zap.String("key", key), zap.Error(err))
	}

	result, err := c.next.Search(ctx, tenant, scope, req)
	if err != nil || result.Partial() {
		return result, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return result, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("[CACHE] store failed", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

// cacheKey hashes everything that can change a result: tenant, scope and the
// canonical request.
func cacheKey(tenant uuid.UUID, scope *search.Scope, req domain.SearchRequest) (string, error) {
	payload, err := json.Marshal(struct {
		Scope   *search.Scope        `json:"scope"`
		Request domain.SearchRequest `json:"request"`
	}{scope, req})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return keyPrefix + tenant.String() + ":" + hex.EncodeToString(sum[:]), nil
}
