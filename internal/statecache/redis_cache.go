// Package statecache keeps a read-through copy of planner documents in Redis.
package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

// Entry is the cached form of one stored planner.
type Entry struct {
	PlannerID string          `json:"planner_id"`
	State     json.RawMessage `json:"state"`
	Revision  int64           `json:"revision"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// storedEntry keeps State as a JSON string so the document bytes come back
// unchanged.
type storedEntry struct {
	PlannerID string    `json:"planner_id"`
	State     string    `json:"state"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisCache stores entries under planner:<user id> with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache parses redisURL, connects and pings.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: "planner:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + userID
}

// Get reports ok=false on a miss. A corrupt entry is deleted and reported as
// a miss.
func (c *RedisCache) Get(ctx context.Context, userID string) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read planner cache: %w", err)
	}

	var stored storedEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		_ = c.client.Del(ctx, c.key(userID)).Err()
		return Entry{}, false, nil
	}
	return Entry{
		PlannerID: stored.PlannerID,
		State:     json.RawMessage(stored.State),
		Revision:  stored.Revision,
		UpdatedAt: stored.UpdatedAt,
	}, true, nil
}

func (c *RedisCache) Put(ctx context.Context, userID string, entry Entry) error {
	payload, err := json.Marshal(storedEntry{
		PlannerID: entry.PlannerID,
		State:     string(entry.State),
		Revision:  entry.Revision,
		UpdatedAt: entry.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal planner cache: %w", err)
	}
	if err := c.client.Set(ctx, c.key(userID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("write planner cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate planner cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
