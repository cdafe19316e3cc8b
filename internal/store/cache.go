package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/simplers/recsys/internal/domain"
)

const (
	candidateKeyPrefix = "recsys:cand:"
	curatedKey         = "recsys:fallback"
)

// NewRedisClient builds the shared Redis client with the pool and timeout
// settings the online path expects.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
}

// CandidateCache is a read-through Redis layer over a CandidateStore.
// Cache failures never fail a request; they fall through to the inner
// store. Saves invalidate the affected keys.
type CandidateCache struct {
	inner CandidateStore
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCandidateCache wraps inner with Redis caching.
func NewCandidateCache(inner CandidateStore, rdb *redis.Client, ttl time.Duration) *CandidateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CandidateCache{inner: inner, rdb: rdb, ttl: ttl}
}

func candidateKey(custNo int64) string {
	return fmt.Sprintf("%s%d", candidateKeyPrefix, custNo)
}

func (c *CandidateCache) GetCandidates(ctx context.Context, custNo int64) (domain.CandidateDoc, error) {
	key := candidateKey(custNo)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var doc domain.CandidateDoc
		if err := json.Unmarshal(raw, &doc); err == nil {
			return doc, nil
		}
		log.Warn().Str("key", key).Msg("corrupt cached candidate doc, refetching")
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("key", key).Msg("candidate cache read failed")
	}

	doc, err := c.inner.GetCandidates(ctx, custNo)
	if err != nil {
		return domain.CandidateDoc{}, err
	}
	if raw, err := json.Marshal(doc); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("candidate cache write failed")
		}
	}
	return doc, nil
}

func (c *CandidateCache) SaveCandidates(ctx context.Context, docs []domain.CandidateDoc) error {
	if err := c.inner.SaveCandidates(ctx, docs); err != nil {
		return err
	}
	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		keys = append(keys, candidateKey(doc.CustNo))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Int("keys", len(keys)).Msg("candidate cache invalidation failed")
	}
	return nil
}

// CuratedCache caches the curated fallback list under a single key.
type CuratedCache struct {
	inner FallbackSource
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCuratedCache wraps inner with Redis caching.
func NewCuratedCache(inner FallbackSource, rdb *redis.Client, ttl time.Duration) *CuratedCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CuratedCache{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CuratedCache) Curated(ctx context.Context, limit int) ([]domain.ScoredItem, error) {
	if raw, err := c.rdb.Get(ctx, curatedKey).Bytes(); err == nil {
		var items []domain.ScoredItem
		if err := json.Unmarshal(raw, &items); err == nil {
			if limit > 0 && len(items) > limit {
				items = items[:limit]
			}
			return items, nil
		}
		log.Warn().Str("key", curatedKey).Msg("corrupt cached curated list, refetching")
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("key", curatedKey).Msg("curated cache read failed")
	}

	items, err := c.inner.Curated(ctx, limit)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(items); err == nil {
		if err := c.rdb.Set(ctx, curatedKey, raw, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", curatedKey).Msg("curated cache write failed")
		}
	}
	return items, nil
}
