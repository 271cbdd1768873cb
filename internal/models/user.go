package models

import "time"

// Plan is a subscription tier. The set is closed.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
	PlanTeam Plan = "team"
)

// TokenLimit reports the monthly token allowance granted by the plan.
func (p Plan) TokenLimit() int {
	switch p {
	case PlanPro:
		return 10000
	case PlanTeam:
		return 50000
	default:
		return 1000
	}
}

// Valid reports whether p is one of the known tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanTeam:
		return true
	}
	return false
}

// User is an identity known to the service together with its token budget.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email,omitempty"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	Plan            Plan      `json:"plan"`
	TokensUsed      int       `json:"tokensUsed"`
	TokensLimit     int       `json:"tokensLimit"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// UserStats summarises a user's dashboard counters.
type UserStats struct {
	TokensUsed   int  `json:"tokensUsed"`
	TokensLimit  int  `json:"tokensLimit"`
	ProjectCount int  `json:"projectCount"`
	SessionCount int  `json:"sessionCount"`
	Plan         Plan `json:"plan"`
}
