package auth

import (
	"context"
	"fmt"
	"time"

	"codepilot/internal/logger"
)

const DefaultTokenSweepInterval = time.Hour

// StartTokenSweeper purges expired tokens every interval until ctx is done.
func (s *Service) StartTokenSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTokenSweepInterval
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Service) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpiredTokens(ctx)
			if err != nil {
				logger.ErrorWithFields("purge expired tokens failed", logger.Fields{"err": err.Error()})
				continue
			}
			if n > 0 {
				logger.DebugWithFields("purged expired tokens", logger.Fields{"count": n})
			}
		}
	}
}

// PurgeExpiredTokens deletes every token past its expiry and reports how many were removed.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purged rows affected: %w", err)
	}
	return n, nil
}
