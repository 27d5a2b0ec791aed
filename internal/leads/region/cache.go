package region

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/logger"
)

const (
	cacheKeyPrefix = "areacode:"
	missMarker     = "-"
)

// CachedLookup is a Redis read-through cache in front of another Lookup.
// Redis failures fall through to next and are only logged.
type CachedLookup struct {
	client *redis.Client
	next   Lookup
	ttl    time.Duration
	log    *logger.Logger
}

// NewCachedLookup wraps next with a Redis cache.
func NewCachedLookup(client *redis.Client, next Lookup, ttl time.Duration, log *logger.Logger) *CachedLookup {
	return &CachedLookup{client: client, next: next, ttl: ttl, log: log}
}

func cacheKey(areaCode int) string {
	return fmt.Sprintf("%s%d", cacheKeyPrefix, areaCode)
}

// LookupAreaCode implements Lookup.
func (c *CachedLookup) LookupAreaCode(ctx context.Context, areaCode int) (domain.AreaCodeRecord, bool, error) {
	key := cacheKey(areaCode)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == missMarker {
			return domain.AreaCodeRecord{}, false, nil
		}
		var rec domain.AreaCodeRecord
		if jsonErr := json.Unmarshal([]byte(cached), &rec); jsonErr == nil {
			return rec, true, nil
		}
		c.log.Warn("region: dropping corrupt cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("region: cache read failed", "key", key, "error", err)
	}

	rec, found, err := c.next.LookupAreaCode(ctx, areaCode)
	if err != nil {
		return domain.AreaCodeRecord{}, false, err
	}

	value := missMarker
	if found {
		encoded, encErr := json.Marshal(rec)
		if encErr != nil {
			return rec, found, nil
		}
		value = string(encoded)
	}
	if setErr := c.client.Set(ctx, key, value, c.ttl).Err(); setErr != nil {
		c.log.Warn("region: cache write failed", "key", key, "error", setErr)
	}
	return rec, found, nil
}

// Invalidate drops the cached entries for the given codes, used after reseeding.
func (c *CachedLookup) Invalidate(ctx context.Context, areaCodes ...int) error {
	if len(areaCodes) == 0 {
		return nil
	}
	keys := make([]string, len(areaCodes))
	for i, code := range areaCodes {
		keys[i] = cacheKey(code)
	}
	return c.client.Del(ctx, keys...).Err()
}

// NewRedisClient parses redisURL and opens a go-redis client.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}
