package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codepilot/internal/logger"
	"codepilot/internal/models"
	"codepilot/internal/redis"
)

const statsKeyPrefix = "stats:user:"

type statsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newStatsCache(client *redis.Client, ttl time.Duration) *statsCache {
	if !client.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &statsCache{client: client, ttl: ttl}
}

func (c *statsCache) load(ctx context.Context, userID string) (*models.UserStats, bool) {
	if c == nil {
		return nil, false
	}
	var stats models.UserStats
	if err := c.client.GetJSON(ctx, statsKeyPrefix+userID, &stats); err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			logger.WarnWithFields("stats cache load failed", logger.Fields{"user_id": userID, "err": err.Error()})
		}
		return nil, false
	}
	return &stats, true
}

func (c *statsCache) store(ctx context.Context, userID string, stats *models.UserStats) {
	if c == nil || stats == nil {
		return
	}
	if err := c.client.SetJSON(ctx, statsKeyPrefix+userID, stats, c.ttl); err != nil {
		logger.WarnWithFields("stats cache store failed", logger.Fields{"user_id": userID, "err": err.Error()})
	}
}

func (c *statsCache) invalidate(ctx context.Context, userID string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, statsKeyPrefix+userID); err != nil {
		logger.WarnWithFields("stats cache invalidate failed", logger.Fields{"user_id": userID, "err": err.Error()})
	}
}

// UserStats returns the dashboard counters for userID.
func (s *Service) UserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	if cached, ok := s.stats.load(ctx, userID); ok {
		return cached, nil
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := &models.UserStats{
		TokensUsed:  user.TokensUsed,
		TokensLimit: user.TokensLimit,
		Plan:        user.Plan,
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE user_id = ?`, userID).Scan(&stats.ProjectCount); err != nil {
		return nil, fmt.Errorf("count projects: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_sessions WHERE user_id = ?`, userID).Scan(&stats.SessionCount); err != nil {
		return nil, fmt.Errorf("count ai sessions: %w", err)
	}
	s.stats.store(ctx, userID, stats)
	return stats, nil
}

// InvalidateStats drops any cached counters for userID.
func (s *Service) InvalidateStats(ctx context.Context, userID string) {
	s.stats.invalidate(ctx, userID)
}
