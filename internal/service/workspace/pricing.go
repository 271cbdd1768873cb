package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"codepilot/internal/models"
)

const pricingColumns = `id, name, price, tokens_limit, features, is_active`

func scanPricingPlan(row rowScanner) (*models.PricingPlan, error) {
	var (
		p        models.PricingPlan
		features string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.TokensLimit, &features, &p.IsActive); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return nil, fmt.Errorf("decode features of plan %d: %w", p.ID, err)
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	return &p, nil
}

// ListPricingPlans returns the active plans, cheapest first.
func (s *Service) ListPricingPlans(ctx context.Context) ([]models.PricingPlan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pricingColumns+` FROM pricing_plans WHERE is_active = ? ORDER BY price ASC, id ASC`, true,
	)
	if err != nil {
		return nil, fmt.Errorf("list pricing plans: %w", err)
	}
	defer rows.Close()

	plans := make([]models.PricingPlan, 0)
	for rows.Next() {
		p, err := scanPricingPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pricing plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// GetPricingPlan loads a plan by id, active or not.
func (s *Service) GetPricingPlan(ctx context.Context, id int64) (*models.PricingPlan, error) {
	p, err := scanPricingPlan(s.db.QueryRowContext(ctx, `SELECT `+pricingColumns+` FROM pricing_plans WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pricing plan: %w", err)
	}
	return p, nil
}

// GetPricingPlanByName loads a plan by its case-insensitive name.
func (s *Service) GetPricingPlanByName(ctx context.Context, name string) (*models.PricingPlan, error) {
	p, err := scanPricingPlan(s.db.QueryRowContext(ctx,
		`SELECT `+pricingColumns+` FROM pricing_plans WHERE LOWER(name) = LOWER(?)`, strings.TrimSpace(name),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pricing plan: %w", err)
	}
	return p, nil
}

// CreatePricingPlan stores a new plan.
func (s *Service) CreatePricingPlan(ctx context.Context, in models.PricingPlan) (*models.PricingPlan, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("create pricing plan: %w: name is required", ErrInvalidInput)
	}
	if in.Price < 0 || in.TokensLimit < 0 {
		return nil, fmt.Errorf("create pricing plan: %w: price and tokens limit must not be negative", ErrInvalidInput)
	}
	if in.Features == nil {
		in.Features = []string{}
	}
	features, err := json.Marshal(in.Features)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pricing_plans (name, price, tokens_limit, features, is_active) VALUES (?, ?, ?, ?, ?)`,
		in.Name, in.Price, in.TokensLimit, string(features), in.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("create pricing plan: %w", err)
	}
	if in.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("pricing plan id: %w", err)
	}
	return &in, nil
}

// SeedPricingPlans inserts the default tiers that are not present yet and
// returns the active plans.
func (s *Service) SeedPricingPlans(ctx context.Context) ([]models.PricingPlan, error) {
	for _, plan := range models.DefaultPricingPlans() {
		_, err := s.GetPricingPlanByName(ctx, plan.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if _, err := s.CreatePricingPlan(ctx, plan); err != nil {
			return nil, err
		}
	}
	return s.ListPricingPlans(ctx)
}

const subscriptionColumns = `id, user_id, plan_id, status, current_period_start, current_period_end, created_at, updated_at`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub        models.Subscription
		start, end sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &start, &end,
		&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	if start.Valid {
		sub.CurrentPeriodStart = &start.Time
	}
	if end.Valid {
		sub.CurrentPeriodEnd = &end.Time
	}
	return &sub, nil
}

// GetActiveSubscription returns the user's current active subscription.
func (s *Service) GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? AND status = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID, models.SubscriptionActive,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// Subscribe cancels the user's active subscriptions, starts a new monthly
// period on planID and applies the plan's token limit to the user.
func (s *Service) Subscribe(ctx context.Context, userID string, planID int64) (*models.Subscription, error) {
	plan, err := s.GetPricingPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	end := now.AddDate(0, 1, 0)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE user_id = ? AND status = ?`,
		models.SubscriptionCancelled, now, userID, models.SubscriptionActive,
	); err != nil {
		return nil, fmt.Errorf("cancel subscriptions: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan_id, status, current_period_start, current_period_end, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, planID, models.SubscriptionActive, now, end, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("subscription id: %w", err)
	}

	tier := models.Plan(strings.ToLower(plan.Name))
	if !tier.Valid() {
		tier = models.PlanFree
	}
	if err := s.setUserPlan(ctx, tx, userID, tier, plan.TokensLimit); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit subscription: %w", err)
	}
	s.InvalidateStats(ctx, userID)
	return &models.Subscription{
		ID:                 id,
		UserID:             userID,
		PlanID:             planID,
		Status:             models.SubscriptionActive,
		CurrentPeriodStart: timePtr(now),
		CurrentPeriodEnd:   timePtr(end),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
