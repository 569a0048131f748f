// Surge AI Gateway - privacy-preserving chat backend for the expense tracker.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/surgefin/ai-gateway/internal/api"
	"github.com/surgefin/ai-gateway/internal/config"
	"github.com/surgefin/ai-gateway/internal/counter"
	"github.com/surgefin/ai-gateway/internal/finance"
	"github.com/surgefin/ai-gateway/internal/gateway"
	"github.com/surgefin/ai-gateway/internal/identity"
	"github.com/surgefin/ai-gateway/internal/llm"
	"github.com/surgefin/ai-gateway/internal/metrics"
	"github.com/surgefin/ai-gateway/internal/middleware"
	"github.com/surgefin/ai-gateway/internal/ratelimit"
	"github.com/surgefin/ai-gateway/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "env", cfg.AppEnv, "provider", cfg.Provider)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	counters := newCounterStore(cfg)
	defer func() {
		if closeErr := counters.Close(); closeErr != nil {
			slog.Error("Failed to close counter store", "error", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	limiter := ratelimit.New(counters, cfg.RateLimits, collector)
	verifier := identity.NewJWTVerifier(cfg.JWTSecret)
	aggregator := finance.New(repo)

	model := newModelClient(cfg)
	if model.HealthCheck(context.Background()) {
		slog.Info("Model backend reachable", "provider", cfg.Provider)
	} else {
		slog.Warn("Model backend is not accessible; chats will fail until it recovers", "provider", cfg.Provider)
	}

	gw := gateway.New(aggregator, model, repo, collector)
	handler := api.NewHandler(gw, limiter, repo, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{cfg.CORSOrigin}))
	if cfg.IsDevelopment() {
		r.Use(chiMiddleware.Logger)
	}

	authMw := identity.Middleware(verifier)
	rateMw := middleware.RateLimit(limiter, repo)

	r.Get("/", handler.HandleRoot)
	r.Handle("/metrics", metrics.Handler(registry))
	r.Route("/api/v1/surge-ai", func(r chi.Router) {
		handler.RegisterRoutes(r, authMw, rateMw)
	})
	r.NotFound(api.HandleNotFound)

	// Create server. The model call dominates request latency, so the
	// write timeout sits well above the model deadline.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// newCounterStore connects to Redis, or falls back to per-process counters
// when no REDIS_URL is configured.
func newCounterStore(cfg *config.Config) counter.Store {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, using in-process rate counters")
		return counter.NewMemory()
	}

	counters, err := counter.NewRedis(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to configure Redis counter store", "error", err)
		os.Exit(1)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := counters.Ping(pingCtx); err != nil {
		// The limiter fails open on counter errors, so a cold Redis only
		// costs enforcement, not availability.
		slog.Warn("Redis not reachable at startup", "error", err)
	} else {
		slog.Info("Redis connected")
	}
	return counters
}

// newModelClient selects the backend implementation by configuration.
func newModelClient(cfg *config.Config) llm.Client {
	switch cfg.Provider {
	case config.ProviderOllama:
		return llm.NewOllamaClient(cfg.Ollama)
	default:
		return llm.NewOpenAIClient(cfg.OpenAI)
	}
}
