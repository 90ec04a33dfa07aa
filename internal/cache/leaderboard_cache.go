package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// LeaderboardCache handles Redis ZSET operations for per-session rankings
type LeaderboardCache interface {
	UpdateScore(ctx context.Context, sessionCode, userID string, score int) error
	GetTop(ctx context.Context, sessionCode string, limit int) ([]LeaderboardEntry, error)
	GetRank(ctx context.Context, sessionCode, userID string) (int64, error)
}

// LeaderboardEntry represents a single leaderboard entry
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
}

type leaderboardCache struct {
	client *redis.Client
}

// NewLeaderboardCache creates a new leaderboard cache
func NewLeaderboardCache(client *redis.Client) LeaderboardCache {
	return &leaderboardCache{
		client: client,
	}
}

func (c *leaderboardCache) key(sessionCode string) string {
	return fmt.Sprintf("arena:session:%s:lb", sessionCode)
}

func (c *leaderboardCache) UpdateScore(ctx context.Context, sessionCode, userID string, score int) error {
	return c.client.ZAdd(ctx, c.key(sessionCode), redis.Z{
		Score:  float64(score),
		Member: userID,
	}).Err()
}

func (c *leaderboardCache) GetTop(ctx context.Context, sessionCode string, limit int) ([]LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, c.key(sessionCode), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(results))
	for i, z := range results {
		entries = append(entries, LeaderboardEntry{
			UserID: z.Member.(string),
			Score:  int(z.Score),
			Rank:   i + 1,
		})
	}
	return entries, nil
}

func (c *leaderboardCache) GetRank(ctx context.Context, sessionCode, userID string) (int64, error) {
	rank, err := c.client.ZRevRank(ctx, c.key(sessionCode), userID).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return rank + 1, nil
}
