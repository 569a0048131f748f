// Package privacy converts raw financial data into aggregated, anonymized
// summaries. Nothing leaves this package carrying PII or raw transaction
// records.
package privacy

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/surgefin/ai-gateway/internal/domain"
)

// ErrPIIDetected is returned when the post-sanitization scan finds a value
// that still looks like personal data.
var ErrPIIDetected = errors.New("pii detected in ai payload")

// TransactionsKey is the context key carrying raw transaction records into
// SanitizeForAI. It never survives sanitization.
const TransactionsKey = "transactions"

// CategoryStat is one entry of the sanitized category breakdown.
type CategoryStat struct {
	Percentage int     `json:"percentage"`
	Amount     float64 `json:"amount"`
}

// piiFields are removed from the context unconditionally.
var piiFields = []string{"userId", "deviceId", "email", "phone", "address", "name"}

// safeFields is the allow-list of aggregate fields that may reach the model.
var safeFields = []string{
	"currentBalance",
	"monthlySpending",
	"categoryBreakdown",
	"weekendRatio",
	"daysRemaining",
	"dailyAverage",
	"topCategory",
	"transactionCount",
}

// SanitizeForAI converts a raw financial context into a privacy-safe
// aggregate. PII fields are dropped, raw transactions are collapsed into
// per-category totals, and only allow-listed fields are retained. The input
// map is not modified.
func SanitizeForAI(raw map[string]any) map[string]any {
	sanitized := make(map[string]any)
	if raw == nil {
		return sanitized
	}

	// Work on a shallow copy so the caller's map is left alone.
	working := make(map[string]any, len(raw))
	for k, v := range raw {
		working[k] = v
	}

	// Strip PII unconditionally; absence is not an error. The allow-list
	// below would drop these anyway, but the contract is explicit.
	for _, field := range piiFields {
		delete(working, field)
	}

	if txs, ok := working[TransactionsKey].([]domain.Transaction); ok {
		aggregateTransactions(sanitized, txs)
		delete(working, TransactionsKey)
	}

	for _, field := range safeFields {
		if _, set := sanitized[field]; set {
			// Aggregates computed here win over whatever the caller
			// put in the raw context.
			continue
		}
		if v, ok := working[field]; ok && v != nil {
			sanitized[field] = v
		}
	}

	return sanitized
}

func aggregateTransactions(sanitized map[string]any, txs []domain.Transaction) {
	categoryTotals := make(map[string]float64)
	var totalSpending float64

	for i := range txs {
		category := txs[i].CategoryOrDefault()
		categoryTotals[category] += txs[i].Amount
		totalSpending += txs[i].Amount
	}

	breakdown := make(map[string]CategoryStat, len(categoryTotals))
	for category, amount := range categoryTotals {
		pct := 0
		if totalSpending > 0 {
			pct = int(math.Round(amount / totalSpending * 100))
		}
		breakdown[category] = CategoryStat{
			Percentage: pct,
			Amount:     math.Round(amount),
		}
	}

	sanitized["monthlySpending"] = math.Round(totalSpending)
	sanitized["categoryBreakdown"] = breakdown
	sanitized["transactionCount"] = len(txs)
}

var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`@`),                       // email addresses
	regexp.MustCompile(`\d{10,}`),                 // phone-like digit runs
	regexp.MustCompile(`\d{4}-\d{4}-\d{4}-\d{4}`), // card-like patterns
}

// ValidateNoPII scans a sanitized context for residual PII markers. It runs
// strictly after SanitizeForAI as a defense-in-depth check; the patterns are
// heuristic and may false-positive on large numeric aggregates.
func ValidateNoPII(safe map[string]any) error {
	data, err := json.Marshal(safe)
	if err != nil {
		return ErrPIIDetected
	}
	payload := strings.ToLower(string(data))

	for _, pattern := range piiPatterns {
		if pattern.MatchString(payload) {
			return ErrPIIDetected
		}
	}
	return nil
}
