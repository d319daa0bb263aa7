// Package redicache caches the computed ranking snapshot in Redis so the
// web-facing ranking read does not recompute the aggregation on every
// request.
package redicache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openquiz/quizmaster-api/internal/domain"
)

// rankingKey is the cache key of the current ranking snapshot.
const rankingKey = "ranking:top"

// RankingCache stores the most recent ranking with a TTL. A cold or
// unreachable cache degrades to a recompute, never to an error for the
// caller's read path.
type RankingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a RankingCache against the given Redis address.
func New(addr string, ttl time.Duration) *RankingCache {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr}), ttl)
}

// NewWithClient creates a RankingCache over an existing client. Tests use
// this with a miniredis-backed client.
func NewWithClient(client *redis.Client, ttl time.Duration) *RankingCache {
	return &RankingCache{client: client, ttl: ttl}
}

// Get returns the cached ranking and whether it was present.
func (c *RankingCache) Get(ctx context.Context) ([]domain.RankedPerformanceEntry, bool, error) {
	data, err := c.client.Get(ctx, rankingKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read ranking cache: %w", err)
	}

	var entries []domain.RankedPerformanceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt entry behaves like a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return entries, true, nil
}

// Set stores the ranking snapshot under the configured TTL.
func (c *RankingCache) Set(ctx context.Context, entries []domain.RankedPerformanceEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal ranking for cache: %w", err)
	}
	if err := c.client.Set(ctx, rankingKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write ranking cache: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *RankingCache) Close() error {
	return c.client.Close()
}
