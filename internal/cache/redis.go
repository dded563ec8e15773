package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oddscollector/ingestion/internal/metrics"
	"oddscollector/ingestion/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const oddsSummaryKeyPrefix = "oddscollector:odds_summary:"

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache stores odds summaries of ended events.
// Pre-match odds of a finished event do not change, so repeated backfills
// over the same window can skip the upstream call.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("Connected to Redis")
	return &RedisCache{client: client}, nil
}

func oddsSummaryKey(eventID int64) string {
	return fmt.Sprintf("%s%d", oddsSummaryKeyPrefix, eventID)
}

// GetOddsSummary returns a cached summary; ok is false on a miss
func (c *RedisCache) GetOddsSummary(ctx context.Context, eventID int64) (models.OddsSummary, bool, error) {
	start := time.Now()
	data, err := c.client.Get(ctx, oddsSummaryKey(eventID)).Bytes()
	metrics.RecordCacheOperation("get", time.Since(start).Seconds())

	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read odds summary %d from cache: %w", eventID, err)
	}

	var summary models.OddsSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached odds summary %d: %w", eventID, err)
	}

	return summary, true, nil
}

// SetOddsSummary stores a summary for ttl
func (c *RedisCache) SetOddsSummary(ctx context.Context, eventID int64, summary models.OddsSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode odds summary %d: %w", eventID, err)
	}

	start := time.Now()
	err = c.client.Set(ctx, oddsSummaryKey(eventID), data, ttl).Err()
	metrics.RecordCacheOperation("set", time.Since(start).Seconds())

	if err != nil {
		return fmt.Errorf("failed to write odds summary %d to cache: %w", eventID, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
