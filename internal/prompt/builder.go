// Package prompt renders the model prompts. Templates are server-side only
// and never exposed to the mobile client.
package prompt

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/surgefin/ai-gateway/internal/privacy"
)

// SystemPrompt is the fixed instruction set sent with every request. It is
// static configuration, not derived from request data.
const SystemPrompt = `You are Surge, a helpful financial assistant for an expense tracking app.

Your role:
- Provide concise, actionable financial advice
- Be conversational and friendly
- Keep responses under 100 words
- Never ask for personal information
- Focus on spending patterns and budgeting tips

Guidelines:
- Use Indian Rupee (₹) for all amounts
- Provide specific, actionable recommendations
- Be encouraging and supportive
- Avoid technical jargon`

// weekendNoteThreshold is the weekend/weekday spending ratio above which the
// prompt calls out weekend spending.
const weekendNoteThreshold = 1.5

// topCategoryCount caps how many spending categories the prompt lists.
const topCategoryCount = 3

// Prompt is a system instruction plus a rendered user turn.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the user's question together with whichever sanitized
// context fields are present.
func BuildPrompt(userMessage string, ctx map[string]any) Prompt {
	user := fmt.Sprintf(`User question: %q

Financial context:
%s

Provide a helpful, conversational response in under 100 words.`, userMessage, formatContext(ctx))

	return Prompt{System: SystemPrompt, User: user}
}

// BuildGreetingPrompt renders a context-free prompt for first-contact flows.
func BuildGreetingPrompt() Prompt {
	return Prompt{
		System: SystemPrompt,
		User:   "Hi! I need help with my finances.",
	}
}

// formatContext renders the context bullet list in a fixed order: balance,
// monthly spend, top categories, daily average, days remaining, weekend note.
// Absent fields are omitted.
func formatContext(ctx map[string]any) string {
	var parts []string

	if balance, ok := numberField(ctx, "currentBalance"); ok {
		parts = append(parts, "- Current balance: ₹"+formatINR(balance))
	}

	if spend, ok := numberField(ctx, "monthlySpending"); ok {
		parts = append(parts, "- Monthly spending: ₹"+formatINR(spend))
	}

	if top := topCategories(ctx); top != "" {
		parts = append(parts, "- Top spending categories: "+top)
	}

	if avg, ok := numberField(ctx, "dailyAverage"); ok {
		parts = append(parts, "- Daily average spend: ₹"+formatINR(avg))
	}

	if days, ok := numberField(ctx, "daysRemaining"); ok {
		parts = append(parts, fmt.Sprintf("- Days remaining in month: %d", int(days)))
	}

	if ratio, ok := numberField(ctx, "weekendRatio"); ok && ratio > weekendNoteThreshold {
		parts = append(parts, fmt.Sprintf("- Note: Weekend spending is %.1fx higher than weekdays", ratio))
	}

	if len(parts) == 0 {
		return "- No financial data available yet"
	}
	return strings.Join(parts, "\n")
}

func topCategories(ctx map[string]any) string {
	breakdown, ok := ctx["categoryBreakdown"].(map[string]privacy.CategoryStat)
	if !ok || len(breakdown) == 0 {
		return ""
	}

	type entry struct {
		name string
		stat privacy.CategoryStat
	}
	entries := make([]entry, 0, len(breakdown))
	for name, stat := range breakdown {
		entries = append(entries, entry{name, stat})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].stat.Percentage != entries[j].stat.Percentage {
			return entries[i].stat.Percentage > entries[j].stat.Percentage
		}
		return entries[i].name < entries[j].name
	})

	if len(entries) > topCategoryCount {
		entries = entries[:topCategoryCount]
	}

	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = fmt.Sprintf("%s (%d%%)", e.name, e.stat.Percentage)
	}
	return strings.Join(labels, ", ")
}

// numberField reads a numeric context field regardless of the concrete type
// the aggregation produced.
func numberField(ctx map[string]any, key string) (float64, bool) {
	switch v := ctx[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// formatINR renders a rounded amount with Indian digit grouping: the last
// three digits form one group, the rest group in twos (12,34,567).
func formatINR(v float64) string {
	n := int64(math.Round(v))
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}

	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return sign + s
	}

	head, tail := s[:len(s)-3], s[len(s)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return sign + strings.Join(groups, ",") + "," + tail
}
