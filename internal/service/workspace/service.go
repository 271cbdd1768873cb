package workspace

import (
	"database/sql"
	"errors"
	"time"

	"codepilot/internal/redis"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied is returned when the caller does not own the row.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidInput is returned for requests missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBudgetExhausted is returned by RecordExchange when the conditional debit matched no row.
	ErrBudgetExhausted = errors.New("token budget exhausted")
)

// Service persists users, projects, chat transcripts, plans and subscriptions.
type Service struct {
	db    *sql.DB
	stats *statsCache
	now   func() time.Time
}

type Option func(*Service)

// WithStatsCache caches UserStats results in redis for ttl.
func WithStatsCache(client *redis.Client, ttl time.Duration) Option {
	return func(s *Service) {
		s.stats = newStatsCache(client, ttl)
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a new workspace service.
func NewService(db *sql.DB, opts ...Option) *Service {
	s := &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for health checks.
func (s *Service) DB() *sql.DB {
	return s.db
}
