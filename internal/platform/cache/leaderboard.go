package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/greenquest/internal/leaderboard"
)

// LeaderboardCache stores ranked rows per scope as JSON strings with a TTL.
//
// Row keys carry a generation number. Invalidate bumps the generation with a
// single INCR, so rows computed before a write land under a generation no
// reader asks for again and simply expire.
type LeaderboardCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewLeaderboardCache creates a leaderboard cache on top of c.
func NewLeaderboardCache(c *Cache, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{cache: c, ttl: ttl}
}

func (lc *LeaderboardCache) rowsKey(gen int64, scope string) string {
	if scope == "" {
		scope = "all"
	}
	return lc.cache.Key("leaderboard", "rows", strconv.FormatInt(gen, 10), scope)
}

func (lc *LeaderboardCache) generationKey() string {
	return lc.cache.Key("leaderboard", "generation")
}

// Generation returns the current generation. Read it before computing rows
// and pass it to Set.
func (lc *LeaderboardCache) Generation(ctx context.Context) (int64, error) {
	gen, err := lc.cache.Client.Get(ctx, lc.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("leaderboard cache generation: %w", err)
	}
	return gen, nil
}

// Get returns cached rows for a scope. A miss is (nil, false, nil).
func (lc *LeaderboardCache) Get(ctx context.Context, gen int64, scope string) ([]leaderboard.Row, bool, error) {
	data, err := lc.cache.Client.Get(ctx, lc.rowsKey(gen, scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("leaderboard cache get: %w", err)
	}

	var rows []leaderboard.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("leaderboard cache decode: %w", err)
	}
	return rows, true, nil
}

// Set stores rows for a scope under gen.
func (lc *LeaderboardCache) Set(ctx context.Context, gen int64, scope string, rows []leaderboard.Row) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("leaderboard cache encode: %w", err)
	}
	if err := lc.cache.Client.Set(ctx, lc.rowsKey(gen, scope), data, lc.ttl).Err(); err != nil {
		return fmt.Errorf("leaderboard cache set: %w", err)
	}
	return nil
}

// Invalidate retires every cached scope at once.
func (lc *LeaderboardCache) Invalidate(ctx context.Context) error {
	if err := lc.cache.Client.Incr(ctx, lc.generationKey()).Err(); err != nil {
		return fmt.Errorf("leaderboard cache invalidate: %w", err)
	}
	return nil
}
