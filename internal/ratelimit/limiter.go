// Package ratelimit enforces per-user, per-tier request quotas backed by a
// shared counter store.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/surgefin/ai-gateway/internal/config"
	"github.com/surgefin/ai-gateway/internal/counter"
	"github.com/surgefin/ai-gateway/internal/domain"
	"github.com/surgefin/ai-gateway/internal/metrics"
)

const (
	dailyWindow  = 24 * time.Hour
	minuteWindow = 60 * time.Second
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed       bool
	Message       string
	RetryAfter    int // seconds
	UpgradePrompt bool

	// Usage snapshot for response headers.
	Tier      domain.Tier
	Limit     int
	Remaining int
}

// Usage is the read-only usage snapshot behind GET /usage.
type Usage struct {
	Tier      domain.Tier `json:"tier"`
	Limit     int         `json:"dailyLimit"`
	Remaining int         `json:"dailyRemaining"`
	Used      int         `json:"dailyUsed"`
}

// Limiter gates requests against daily and per-minute ceilings.
type Limiter struct {
	counters counter.Store
	limits   config.RateLimitConfig
	metrics  metrics.Recorder
}

// New creates a Limiter on the given counter store.
func New(counters counter.Store, limits config.RateLimitConfig, rec metrics.Recorder) *Limiter {
	return &Limiter{counters: counters, limits: limits, metrics: rec}
}

func dailyKey(userID string) string  { return "rate:daily:" + userID }
func minuteKey(userID string) string { return "rate:minute:" + userID }

func (l *Limiter) tierLimits(tier domain.Tier) config.TierLimits {
	if tier == domain.TierPro {
		return l.limits.Pro
	}
	return l.limits.Free
}

// Admit checks both windows for the user and, when admitted, increments the
// counters and refreshes their expirations. If the counter store is
// unreachable the request is admitted anyway: availability over strictness.
func (l *Limiter) Admit(ctx context.Context, userID string, tier domain.Tier) Decision {
	limits := l.tierLimits(tier)

	dailyCount, err := l.counters.Get(ctx, dailyKey(userID))
	if err != nil {
		return l.failOpen(tier, limits, err)
	}

	if dailyCount >= int64(limits.Daily) {
		ttl, err := l.counters.TTL(ctx, dailyKey(userID))
		if err != nil {
			return l.failOpen(tier, limits, err)
		}
		retryAfter := int(ttl / time.Second)
		hours := int(math.Ceil(ttl.Hours()))

		message := fmt.Sprintf("Daily limit reached. Try again in %d hours.", hours)
		upgrade := false
		if tier != domain.TierPro {
			message = fmt.Sprintf("You've used all %d AI chats today. Upgrade to Pro for unlimited conversations! 🚀", limits.Daily)
			upgrade = true
		}

		return Decision{
			Allowed:       false,
			Message:       message,
			RetryAfter:    retryAfter,
			UpgradePrompt: upgrade,
			Tier:          tier,
			Limit:         limits.Daily,
			Remaining:     0,
		}
	}

	minuteCount, err := l.counters.Get(ctx, minuteKey(userID))
	if err != nil {
		return l.failOpen(tier, limits, err)
	}

	if minuteCount >= int64(limits.PerMinute) {
		return Decision{
			Allowed:    false,
			Message:    "Too many requests. Please wait a moment.",
			RetryAfter: int(minuteWindow / time.Second),
			Tier:       tier,
			Limit:      limits.Daily,
			Remaining:  remaining(limits.Daily, dailyCount),
		}
	}

	// Increment-then-expire is two operations, not a transaction. A racing
	// request can overcount, which only denies earlier; it never lets a
	// user past the ceiling.
	if _, err := l.counters.Increment(ctx, dailyKey(userID)); err != nil {
		return l.failOpen(tier, limits, err)
	}
	if err := l.counters.Expire(ctx, dailyKey(userID), dailyWindow); err != nil {
		return l.failOpen(tier, limits, err)
	}
	if _, err := l.counters.Increment(ctx, minuteKey(userID)); err != nil {
		return l.failOpen(tier, limits, err)
	}
	if err := l.counters.Expire(ctx, minuteKey(userID), minuteWindow); err != nil {
		return l.failOpen(tier, limits, err)
	}

	return Decision{
		Allowed:   true,
		Tier:      tier,
		Limit:     limits.Daily,
		Remaining: remaining(limits.Daily, dailyCount+1),
	}
}

// failOpen admits the request when the counter store cannot be consulted.
// Deliberate tradeoff; surfaced through logs and the fail-open metric so it
// does not go unnoticed.
func (l *Limiter) failOpen(tier domain.Tier, limits config.TierLimits, err error) Decision {
	slog.Warn("Rate limiter counter store unavailable, failing open", "error", err)
	if l.metrics != nil {
		l.metrics.RecordRateLimitFailOpen()
	}
	return Decision{
		Allowed:   true,
		Tier:      tier,
		Limit:     limits.Daily,
		Remaining: limits.Daily,
	}
}

// CurrentUsage reports the user's daily window standing for GET /usage.
// Counter-store failures degrade to a zero-usage snapshot.
func (l *Limiter) CurrentUsage(ctx context.Context, userID string, tier domain.Tier) Usage {
	limits := l.tierLimits(tier)

	count, err := l.counters.Get(ctx, dailyKey(userID))
	if err != nil {
		slog.Warn("Rate limiter usage read failed", "error", err)
		count = 0
	}

	used := int(count)
	if used > limits.Daily {
		used = limits.Daily
	}
	return Usage{
		Tier:      tier,
		Limit:     limits.Daily,
		Remaining: remaining(limits.Daily, count),
		Used:      used,
	}
}

func remaining(limit int, count int64) int {
	r := limit - int(count)
	if r < 0 {
		return 0
	}
	return r
}
