package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
)

const (
	summaryPrefix     = "support:sessions:"
	DefaultSummaryTTL = 30 * time.Second
)

// SummaryCache stores session summaries per contact.
type SummaryCache interface {
	Get(ctx context.Context, contact support.Contact) ([]support.SessionSummary, bool, error)
	Set(ctx context.Context, contact support.Contact, summaries []support.SessionSummary) error
	Delete(ctx context.Context, contact support.Contact) error
}

// RedisCache keeps summaries in Redis with a short TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache returns a cache backed by rdb. A non-positive ttl uses
// DefaultSummaryTTL.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, contact support.Contact) ([]support.SessionSummary, bool, error) {
	data, err := c.rdb.Get(ctx, summaryKey(contact)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load summaries: %w", err)
	}

	summaries := []support.SessionSummary{}
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal summaries: %w", err)
	}
	return summaries, true, nil
}

func (c *RedisCache) Set(ctx context.Context, contact support.Contact, summaries []support.SessionSummary) error {
	data, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("failed to marshal summaries: %w", err)
	}
	if err := c.rdb.Set(ctx, summaryKey(contact), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save summaries: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, contact support.Contact) error {
	if err := c.rdb.Del(ctx, summaryKey(contact)).Err(); err != nil {
		return fmt.Errorf("failed to delete summaries: %w", err)
	}
	return nil
}

func summaryKey(contact support.Contact) string {
	return fmt.Sprintf("%s%s", summaryPrefix, contact)
}
