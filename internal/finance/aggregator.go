// Package finance reads a user's balance and current-month transactions and
// derives the metrics the chat pipeline works from.
package finance

import (
	"context"
	"log/slog"
	"time"

	"github.com/surgefin/ai-gateway/internal/domain"
	"github.com/surgefin/ai-gateway/internal/privacy"
	"github.com/surgefin/ai-gateway/internal/store"
)

// Aggregator computes a fresh financial context per request. It never fails
// a request: any read problem degrades to an empty context so context
// unavailability can't block a chat reply.
type Aggregator struct {
	repo store.Repository
	now  func() time.Time
}

// New creates an Aggregator over the document store.
func New(repo store.Repository) *Aggregator {
	return &Aggregator{repo: repo, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// FetchContext builds the raw financial context for a user: current balance
// plus current-month transactions and metrics derived from them. Returns an
// empty context for unknown users and on any read failure.
func (a *Aggregator) FetchContext(ctx context.Context, userID string) map[string]any {
	user, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		slog.Warn("Financial context user read failed", "error", err, "user_id", userID)
		return map[string]any{}
	}
	if user == nil {
		return map[string]any{}
	}

	now := a.now()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	txs, err := a.repo.TransactionsSince(ctx, userID, firstOfMonth)
	if err != nil {
		slog.Warn("Financial context transaction read failed", "error", err, "user_id", userID)
		return map[string]any{}
	}

	var totalSpending float64
	for i := range txs {
		totalSpending += txs[i].Amount
	}

	daysElapsed := now.Day()
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()

	dailyAverage := 0.0
	if daysElapsed > 0 {
		dailyAverage = totalSpending / float64(daysElapsed)
	}

	raw := map[string]any{
		"currentBalance":       user.CurrentBalance,
		"monthlySpending":      totalSpending,
		"dailyAverage":         dailyAverage,
		"daysRemaining":        daysInMonth - daysElapsed,
		privacy.TransactionsKey: txs,
	}

	if top := topCategory(txs); top != "" {
		raw["topCategory"] = top
	}
	if ratio, ok := weekendRatio(txs, firstOfMonth, now); ok {
		raw["weekendRatio"] = ratio
	}

	return raw
}

// topCategory returns the category with the highest spend this month, or ""
// when there are no transactions.
func topCategory(txs []domain.Transaction) string {
	totals := make(map[string]float64)
	for i := range txs {
		totals[txs[i].CategoryOrDefault()] += txs[i].Amount
	}

	var top string
	var topAmount float64
	for category, amount := range totals {
		if top == "" || amount > topAmount || (amount == topAmount && category < top) {
			top = category
			topAmount = amount
		}
	}
	return top
}

// weekendRatio compares average weekend spend per weekend day against the
// weekday equivalent over the elapsed part of the month. Reported only when
// both sides are computable and weekday spending is non-zero.
func weekendRatio(txs []domain.Transaction, firstOfMonth, now time.Time) (float64, bool) {
	var weekendSpend, weekdaySpend float64
	for i := range txs {
		switch txs[i].CreatedAt.Weekday() {
		case time.Saturday, time.Sunday:
			weekendSpend += txs[i].Amount
		default:
			weekdaySpend += txs[i].Amount
		}
	}

	var weekendDays, weekdayDays int
	for d := firstOfMonth; !d.After(now); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			weekendDays++
		default:
			weekdayDays++
		}
	}

	if weekendDays == 0 || weekdayDays == 0 || weekdaySpend <= 0 {
		return 0, false
	}

	weekendAvg := weekendSpend / float64(weekendDays)
	weekdayAvg := weekdaySpend / float64(weekdayDays)
	return weekendAvg / weekdayAvg, true
}
