package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/surgefin/ai-gateway/internal/domain"
	"github.com/surgefin/ai-gateway/internal/identity"
	"github.com/surgefin/ai-gateway/internal/ratelimit"
	"github.com/surgefin/ai-gateway/internal/store"
)

// rateLimitError is the 429 response body. upgradePrompt is always present
// so pro-tier clients see an explicit false.
type rateLimitError struct {
	Error         string `json:"error"`
	RetryAfter    int    `json:"retryAfter"`
	UpgradePrompt bool   `json:"upgradePrompt"`
}

// RateLimit gates requests through the limiter. The caller's tier comes from
// the user record; unknown users are limited as free tier. Usage headers are
// set on every admitted response.
func RateLimit(limiter *ratelimit.Limiter, repo store.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := identity.UserIDFromContext(r.Context())
			if userID == "" {
				// Identity middleware runs first; this is a wiring bug,
				// not a client error.
				http.Error(w, `{"error":"An error occurred. Please try again."}`, http.StatusInternalServerError)
				return
			}

			tier := lookupTier(r, repo, userID)
			decision := limiter.Admit(r.Context(), userID, tier)

			w.Header().Set("X-RateLimit-Limit-Daily", fmt.Sprintf("%d", decision.Limit))
			w.Header().Set("X-RateLimit-Remaining-Daily", fmt.Sprintf("%d", decision.Remaining))
			w.Header().Set("X-RateLimit-Tier", string(decision.Tier))

			if !decision.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", decision.RetryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(rateLimitError{
					Error:         decision.Message,
					RetryAfter:    decision.RetryAfter,
					UpgradePrompt: decision.UpgradePrompt,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// lookupTier resolves the caller's subscription tier. Store failures fall
// back to free rather than blocking the request.
func lookupTier(r *http.Request, repo store.Repository, userID string) domain.Tier {
	user, err := repo.GetUser(r.Context(), userID)
	if err != nil {
		slog.Warn("Tier lookup failed, assuming free", "error", err, "user_id", userID)
		return domain.TierFree
	}
	if user == nil {
		return domain.TierFree
	}
	return user.SubscriptionTier
}
