package services

import (
	"time"

	"vip-bot/internal/models"
)

const dayMillis = 24 * 60 * 60 * 1000

// IsEntitled is the single source of truth for access decisions: a user is
// entitled iff their stored subscription_end is strictly in the future.
func IsEntitled(sub *models.Subscriber, now time.Time) bool {
	return sub != nil && sub.SubscriptionEnd > now.UnixMilli()
}

// DaysRemaining rounds up, so 1ms of remaining access reports as 1 day rather
// than "0 days but still active". Only meaningful while IsEntitled is true.
func DaysRemaining(sub *models.Subscriber, now time.Time) int {
	left := sub.SubscriptionEnd - now.UnixMilli()
	return int((left + dayMillis - 1) / dayMillis)
}
