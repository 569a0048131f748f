// Package llm abstracts over the language-model backends. Callers see one
// Client contract and a closed error taxonomy; backend-specific failure
// detail never escapes this package.
package llm

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"
	"syscall"
)

// Failure taxonomy. Every backend error maps to exactly one of these.
var (
	// ErrUnavailable means the backend is down or refusing connections.
	ErrUnavailable = errors.New("ai service unavailable")
	// ErrTimeout means the request exceeded its deadline.
	ErrTimeout = errors.New("ai service timeout")
	// ErrQuota means the backend's billing or quota limit was hit.
	ErrQuota = errors.New("ai service quota exceeded")
	// ErrRateLimited means the backend itself throttled the call.
	ErrRateLimited = errors.New("ai service rate limited")
	// ErrAuth means the backend rejected our credentials.
	ErrAuth = errors.New("ai service auth error")
	// ErrService covers everything else, including empty or malformed
	// completions.
	ErrService = errors.New("ai service error")
)

// maxResponseLength caps the reply returned to callers; longer completions
// are truncated with a marker.
const maxResponseLength = 500

// Client is the contract both model backends implement. Generate issues a
// single completion call with bounded tokens and fixed sampling parameters.
type Client interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	HealthCheck(ctx context.Context) bool
}

// roleLabelPattern matches a leading assistant-name artifact some models
// prepend to completions.
var roleLabelPattern = regexp.MustCompile(`(?i)^(assistant|ai|surge):\s*`)

// sanitizeResponse trims the completion, strips a leading role label, and
// truncates to the maximum reply length. The cap counts characters, not
// bytes: replies carry ₹ amounts, and slicing bytes could split a rune.
func sanitizeResponse(response string) string {
	sanitized := strings.TrimSpace(response)
	sanitized = roleLabelPattern.ReplaceAllString(sanitized, "")

	if runes := []rune(sanitized); len(runes) > maxResponseLength {
		sanitized = string(runes[:maxResponseLength]) + "..."
	}
	return sanitized
}

// classifyTransport maps a transport-level error onto the taxonomy.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrUnavailable
	}
	return ErrService
}
