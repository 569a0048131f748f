// Package gateway coordinates the request pipeline: context aggregation,
// privacy filtering, prompt construction, model invocation, and audit
// persistence.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/surgefin/ai-gateway/internal/domain"
	"github.com/surgefin/ai-gateway/internal/finance"
	"github.com/surgefin/ai-gateway/internal/llm"
	"github.com/surgefin/ai-gateway/internal/metrics"
	"github.com/surgefin/ai-gateway/internal/privacy"
	"github.com/surgefin/ai-gateway/internal/prompt"
	"github.com/surgefin/ai-gateway/internal/store"
)

// Reply is the successful terminal output of one chat request.
type Reply struct {
	Reply     string    `json:"reply"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
}

// Service is the orchestrator. All dependencies are injected; there is no
// shared mutable state across requests.
type Service struct {
	aggregator *finance.Aggregator
	model      llm.Client
	repo       store.Repository
	metrics    metrics.Recorder
}

// New creates the gateway service.
func New(aggregator *finance.Aggregator, model llm.Client, repo store.Repository, rec metrics.Recorder) *Service {
	return &Service{
		aggregator: aggregator,
		model:      model,
		repo:       repo,
		metrics:    rec,
	}
}

// ProcessMessage runs one message through the pipeline. The sequence is
// strictly linear: fetch context, sanitize, validate, build prompt, invoke
// model, persist, reply. Context fetch never fails the request; persistence
// failure is audit-only and swallowed.
func (s *Service) ProcessMessage(ctx context.Context, userID, message, sessionID string) (*Reply, error) {
	raw := s.aggregator.FetchContext(ctx, userID)

	safe := privacy.SanitizeForAI(raw)

	if err := privacy.ValidateNoPII(safe); err != nil {
		slog.Error("Sanitized context failed PII validation", "user_id", userID)
		s.record("pii_blocked")
		return nil, err
	}

	p := prompt.BuildPrompt(message, safe)

	reply, err := s.model.Generate(ctx, p.System, p.User)
	if err != nil {
		s.record("model_error")
		if s.metrics != nil {
			s.metrics.RecordModelFailure(failureKind(err))
		}
		return nil, err
	}

	s.persistExchange(ctx, userID, sessionID, message, reply)

	s.record("ok")
	return &Reply{
		Reply:     reply,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
	}, nil
}

// persistExchange appends the exchange to the audit trail. Best effort: a
// failed write is logged and counted, never surfaced to the caller.
func (s *Service) persistExchange(ctx context.Context, userID, sessionID, message, reply string) {
	exchange := &domain.ChatExchange{
		UserID:      userID,
		SessionID:   sessionID,
		UserMessage: message,
		AIResponse:  reply,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.repo.AppendChatExchange(ctx, exchange); err != nil {
		slog.Error("Failed to save chat exchange", "error", err, "user_id", userID)
		if s.metrics != nil {
			s.metrics.RecordPersistenceFailure()
		}
	}
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordChatOutcome(outcome)
	}
}

// failureKind names a taxonomy kind for metrics labels.
func failureKind(err error) string {
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, llm.ErrTimeout):
		return "timeout"
	case errors.Is(err, llm.ErrQuota):
		return "quota"
	case errors.Is(err, llm.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, llm.ErrAuth):
		return "auth"
	default:
		return "service"
	}
}

// UserMessage maps a pipeline error to the fixed user-facing string for its
// taxonomy kind. The switch is total: every kind has a message and anything
// unrecognized falls through to a generic one. Raw error detail never
// reaches the caller.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, privacy.ErrPIIDetected):
		return "Unable to process request due to privacy constraints."
	case errors.Is(err, llm.ErrUnavailable):
		return "AI service is temporarily unavailable. Please try again in a moment."
	case errors.Is(err, llm.ErrTimeout):
		return "Request timed out. Please try again."
	case errors.Is(err, llm.ErrQuota):
		return "AI service quota exceeded. Please contact support."
	case errors.Is(err, llm.ErrRateLimited):
		return "Too many AI requests. Please try again in a moment."
	case errors.Is(err, llm.ErrAuth):
		return "AI service authentication error. Please contact support."
	case errors.Is(err, llm.ErrService):
		return "Something went wrong. Please try again."
	default:
		return "An error occurred. Please try again."
	}
}
