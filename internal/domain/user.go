// Package domain contains core domain types for the AI gateway.
package domain

import (
	"time"
)

// Tier is a subscription level controlling rate ceilings.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ParseTier normalizes a stored tier value. Anything that is not
// explicitly "pro" is treated as free.
func ParseTier(s string) Tier {
	if s == string(TierPro) {
		return TierPro
	}
	return TierFree
}

// User represents an account as written by the external billing system.
// The gateway only ever reads these records.
type User struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email,omitempty"`
	SubscriptionTier Tier      `json:"subscription_tier"`
	CurrentBalance   float64   `json:"current_balance"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsPro returns true if the user is on the pro subscription tier.
func (u *User) IsPro() bool {
	return u.SubscriptionTier == TierPro
}
