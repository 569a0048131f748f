package api

import (
	"log/slog"
	"net/http"

	"github.com/surgefin/ai-gateway/internal/domain"
	"github.com/surgefin/ai-gateway/internal/identity"
)

// HandleUsage responds to GET /usage with the caller's daily quota standing.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "Authentication required. Please sign in.")
		return
	}

	tier := domain.TierFree
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		slog.Warn("Usage tier lookup failed, assuming free", "error", err, "user_id", userID)
	} else if user != nil {
		tier = user.SubscriptionTier
	}

	usage := h.limiter.CurrentUsage(r.Context(), userID, tier)
	JSON(w, http.StatusOK, usage)
}
