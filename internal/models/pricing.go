package models

import "time"

// PricingPlan is a purchasable tier; Price is in cents.
type PricingPlan struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Price       int      `json:"price"`
	TokensLimit int      `json:"tokensLimit"`
	Features    []string `json:"features"`
	IsActive    bool     `json:"isActive"`
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

type Subscription struct {
	ID                 int64              `json:"id"`
	UserID             string             `json:"userId"`
	PlanID             int64              `json:"planId"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart *time.Time         `json:"currentPeriodStart"`
	CurrentPeriodEnd   *time.Time         `json:"currentPeriodEnd"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// DefaultPricingPlans are the tiers seeded by the init-pricing operation.
func DefaultPricingPlans() []PricingPlan {
	return []PricingPlan{
		{
			Name:        "Free",
			Price:       0,
			TokensLimit: PlanFree.TokenLimit(),
			Features:    []string{"1,000 AI tokens/month", "Up to 5 projects", "Basic code assistance"},
			IsActive:    true,
		},
		{
			Name:        "Pro",
			Price:       599,
			TokensLimit: PlanPro.TokenLimit(),
			Features:    []string{"10,000 AI tokens/month", "Unlimited projects", "Advanced code assistance", "Priority support"},
			IsActive:    true,
		},
		{
			Name:        "Team",
			Price:       1499,
			TokensLimit: PlanTeam.TokenLimit(),
			Features:    []string{"50,000 AI tokens/month", "Team collaboration", "Advanced features", "24/7 support"},
			IsActive:    true,
		},
	}
}
