// Package api provides HTTP handlers for the gateway API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/surgefin/ai-gateway/internal/gateway"
	"github.com/surgefin/ai-gateway/internal/ratelimit"
	"github.com/surgefin/ai-gateway/internal/store"
)

// ServiceName identifies the gateway in health and root responses.
const ServiceName = "surge-ai-gateway"

// Handler holds the dependencies the HTTP layer needs.
type Handler struct {
	gateway *gateway.Service
	limiter *ratelimit.Limiter
	repo    store.Repository
	isDev   bool
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(gw *gateway.Service, limiter *ratelimit.Limiter, repo store.Repository, isDev bool) *Handler {
	return &Handler{
		gateway: gw,
		limiter: limiter,
		repo:    repo,
		isDev:   isDev,
	}
}

// RegisterRoutes mounts the gateway endpoints. Auth and rate-limit
// middleware are supplied by the caller so tests can swap them out.
func (h *Handler) RegisterRoutes(r chi.Router, auth, rateLimit func(http.Handler) http.Handler) {
	r.Get("/health", h.HandleHealth)

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.With(rateLimit).Post("/chat", h.HandleChat)
		r.Get("/usage", h.HandleUsage)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// errorWithTimestamp is the body for pipeline failures.
type errorWithTimestamp struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleHealth responds to GET /health. No auth required.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"service":   ServiceName,
	})
}

// HandleRoot responds to GET / with a service descriptor.
func (h *Handler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"service": "Surge AI Gateway",
		"version": "1.0.0",
		"status":  "running",
		"endpoints": map[string]string{
			"chat":   "POST /api/v1/surge-ai/chat",
			"health": "GET /api/v1/surge-ai/health",
			"usage":  "GET /api/v1/surge-ai/usage",
		},
	})
}

// HandleNotFound responds to unknown routes with a JSON 404.
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusNotFound, map[string]string{
		"error": "Endpoint not found",
		"path":  r.URL.Path,
	})
}
