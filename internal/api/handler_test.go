package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/surgefin/ai-gateway/internal/config"
	"github.com/surgefin/ai-gateway/internal/counter"
	"github.com/surgefin/ai-gateway/internal/domain"
	"github.com/surgefin/ai-gateway/internal/finance"
	"github.com/surgefin/ai-gateway/internal/gateway"
	"github.com/surgefin/ai-gateway/internal/identity"
	"github.com/surgefin/ai-gateway/internal/llm"
	"github.com/surgefin/ai-gateway/internal/metrics"
	"github.com/surgefin/ai-gateway/internal/middleware"
	"github.com/surgefin/ai-gateway/internal/ratelimit"
)

const testSecret = "test-secret"

type fakeRepo struct {
	user      *domain.User
	txs       []domain.Transaction
	appendErr error
	saved     []*domain.ChatExchange
}

func (f *fakeRepo) GetUser(_ context.Context, _ string) (*domain.User, error) {
	return f.user, nil
}

func (f *fakeRepo) GetUserByEmail(_ context.Context, _ string) (*domain.User, error) {
	return f.user, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, _ *domain.User) error { return nil }

func (f *fakeRepo) AddTransaction(_ context.Context, _ *domain.Transaction) error { return nil }

func (f *fakeRepo) TransactionsSince(_ context.Context, _ string, _ time.Time) ([]domain.Transaction, error) {
	return f.txs, nil
}

func (f *fakeRepo) AppendChatExchange(_ context.Context, ex *domain.ChatExchange) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.saved = append(f.saved, ex)
	return nil
}

func (f *fakeRepo) DeleteUserTransactions(_ context.Context, _ string, _ int) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) DeleteUserChats(_ context.Context, _ string, _ int) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return nil }
func (f *fakeRepo) Close() error                 { return nil }

type fakeModel struct {
	reply string
	err   error
}

func (f *fakeModel) Generate(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeModel) HealthCheck(_ context.Context) bool { return f.err == nil }

func signToken(t *testing.T, sub string) string {
	t.Helper()
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"sub":   sub,
		"email": "test@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func testLimits() config.RateLimitConfig {
	return config.RateLimitConfig{
		Free: config.TierLimits{Daily: 5, PerMinute: 100},
		Pro:  config.TierLimits{Daily: 100, PerMinute: 100},
	}
}

func newTestRouter(repo *fakeRepo, model llm.Client) chi.Router {
	agg := finance.New(repo)
	gw := gateway.New(agg, model, repo, metrics.Nop{})
	limiter := ratelimit.New(counter.NewMemory(), testLimits(), metrics.Nop{})
	h := NewHandler(gw, limiter, repo, false)

	r := chi.NewRouter()
	auth := identity.Middleware(identity.NewJWTVerifier(testSecret))
	rl := middleware.RateLimit(limiter, repo)
	h.RegisterRoutes(r, auth, rl)
	return r
}

func postChat(t *testing.T, r http.Handler, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestChatEndToEnd(t *testing.T) {
	repo := &fakeRepo{
		user: &domain.User{UserID: "u1", CurrentBalance: 5000, SubscriptionTier: domain.TierFree},
	}
	r := newTestRouter(repo, &fakeModel{reply: "You're doing fine."})
	token := signToken(t, "u1")

	rec := postChat(t, r, token, `{"message":"How am I doing?","sessionId":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Reply     string    `json:"reply"`
		Timestamp time.Time `json:"timestamp"`
		SessionID string    `json:"sessionId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Reply != "You're doing fine." {
		t.Errorf("Unexpected reply: %q", resp.Reply)
	}
	if resp.SessionID != "s1" {
		t.Errorf("Expected sessionId s1, got %q", resp.SessionID)
	}
	if resp.Timestamp.IsZero() {
		t.Error("Expected a timestamp")
	}

	if got := rec.Header().Get("X-RateLimit-Limit-Daily"); got != "5" {
		t.Errorf("Expected X-RateLimit-Limit-Daily 5, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining-Daily"); got != "4" {
		t.Errorf("Expected X-RateLimit-Remaining-Daily 4, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Tier"); got != "free" {
		t.Errorf("Expected X-RateLimit-Tier free, got %q", got)
	}

	if len(repo.saved) != 1 {
		t.Errorf("Expected one persisted exchange, got %d", len(repo.saved))
	}
}

func TestChatGeneratesSessionID(t *testing.T) {
	repo := &fakeRepo{user: &domain.User{UserID: "u1"}}
	r := newTestRouter(repo, &fakeModel{reply: "ok"})

	rec := postChat(t, r, signToken(t, "u1"), `{"message":"Hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("Expected a generated session ID")
	}
}

func TestChatValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"malformed json", `{not json`, "Message is required and must be a string."},
		{"wrong type", `{"message":42}`, "Message is required and must be a string."},
		{"empty message", `{"message":""}`, "Message cannot be empty."},
		{"whitespace only", `{"message":"   "}`, "Message cannot be empty."},
		{"too long", fmt.Sprintf(`{"message":%q}`, strings.Repeat("x", 501)), "Message is too long. Please keep it under 500 characters."},
	}

	repo := &fakeRepo{user: &domain.User{UserID: "u1"}}
	r := newTestRouter(repo, &fakeModel{reply: "ok"})
	token := signToken(t, "u1")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postChat(t, r, token, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rec.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode error body: %v", err)
			}
			if resp["error"] != tt.wantErr {
				t.Errorf("Expected %q, got %q", tt.wantErr, resp["error"])
			}
		})
	}
}

func TestChatMessageAtLimitAccepted(t *testing.T) {
	repo := &fakeRepo{user: &domain.User{UserID: "u1"}}
	r := newTestRouter(repo, &fakeModel{reply: "ok"})

	body := fmt.Sprintf(`{"message":%q}`, strings.Repeat("x", 500))
	rec := postChat(t, r, signToken(t, "u1"), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for 500-char message, got %d", rec.Code)
	}
}

func TestChatOversizedBodyRejected(t *testing.T) {
	repo := &fakeRepo{user: &domain.User{UserID: "u1"}}
	r := newTestRouter(repo, &fakeModel{reply: "ok"})

	var buf bytes.Buffer
	buf.WriteString(`{"filler":"`)
	buf.WriteString(strings.Repeat("x", 11<<10))
	buf.WriteString(`","message":"Hi"}`)

	rec := postChat(t, r, signToken(t, "u1"), buf.String())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for oversized body, got %d", rec.Code)
	}
}

func TestChatRequiresAuth(t *testing.T) {
	repo := &fakeRepo{user: &domain.User{UserID: "u1"}}
	r := newTestRouter(repo, &fakeModel{reply: "ok"})

	rec := postChat(t, r, "", `{"message":"Hi"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Authentication required. Please sign in.") {
		t.Errorf("Unexpected 401 body: %s", rec.Body.String())
	}

	rec = postChat(t, r, "not-a-jwt", `{"message":"Hi"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 with bad token, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Authentication failed. Please sign in again.") {
		t.Errorf("Unexpected 401 body: %s", rec.Body.String())
	}
}

func TestChatRateLimitExhaustion(t *testing.T) {
	repo := &fakeRepo{user: &domain.User{UserID: "u1", SubscriptionTier: domain.TierFree}}
	r := newTestRouter(repo, &fakeModel{reply: "ok"})
	token := signToken(t, "u1")

	for i := 0; i < 5; i++ {
		rec := postChat(t, r, token, `{"message":"Hi"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := postChat(t, r, token, `{"message":"Hi"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 on sixth request, got %d", rec.Code)
	}

	var resp struct {
		Error         string `json:"error"`
		RetryAfter    int    `json:"retryAfter"`
		UpgradePrompt bool   `json:"upgradePrompt"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode 429 body: %v", err)
	}
	if !resp.UpgradePrompt {
		t.Error("Expected upgradePrompt for free tier denial")
	}
	if resp.RetryAfter <= 0 {
		t.Errorf("Expected positive retryAfter, got %d", resp.RetryAfter)
	}
	if !strings.Contains(resp.Error, "Upgrade to Pro") {
		t.Errorf("Unexpected denial message: %q", resp.Error)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	if got := rec.Header().Get("X-RateLimit-Remaining-Daily"); got != "0" {
		t.Errorf("Expected zero remaining, got %q", got)
	}
}

func TestChatPipelineErrorMapped(t *testing.T) {
	repo := &fakeRepo{user: &domain.User{UserID: "u1"}}
	r := newTestRouter(repo, &fakeModel{err: llm.ErrUnavailable})

	rec := postChat(t, r, signToken(t, "u1"), `{"message":"Hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}

	var resp struct {
		Error     string    `json:"error"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if resp.Error != "AI service is temporarily unavailable. Please try again in a moment." {
		t.Errorf("Unexpected error message: %q", resp.Error)
	}
	if resp.Timestamp.IsZero() {
		t.Error("Expected error timestamp")
	}
}

func TestChatPersistenceFailureStill200(t *testing.T) {
	repo := &fakeRepo{
		user:      &domain.User{UserID: "u1"},
		appendErr: errors.New("disk full"),
	}
	r := newTestRouter(repo, &fakeModel{reply: "ok"})

	rec := postChat(t, r, signToken(t, "u1"), `{"message":"Hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Persistence failure must not fail the request, got %d", rec.Code)
	}
}

func TestUsageEndpoint(t *testing.T) {
	repo := &fakeRepo{user: &domain.User{UserID: "u1", SubscriptionTier: domain.TierFree}}
	r := newTestRouter(repo, &fakeModel{reply: "ok"})
	token := signToken(t, "u1")

	// Two chats consume two daily slots.
	for i := 0; i < 2; i++ {
		if rec := postChat(t, r, token, `{"message":"Hi"}`); rec.Code != http.StatusOK {
			t.Fatalf("Chat %d failed with %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/usage", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var usage struct {
		Tier      string `json:"tier"`
		Limit     int    `json:"dailyLimit"`
		Remaining int    `json:"dailyRemaining"`
		Used      int    `json:"dailyUsed"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&usage); err != nil {
		t.Fatalf("Failed to decode usage: %v", err)
	}
	if usage.Tier != "free" || usage.Limit != 5 || usage.Used != 2 || usage.Remaining != 3 {
		t.Errorf("Unexpected usage snapshot: %+v", usage)
	}
}

func TestUsageDoesNotConsumeQuota(t *testing.T) {
	repo := &fakeRepo{user: &domain.User{UserID: "u1"}}
	r := newTestRouter(repo, &fakeModel{reply: "ok"})
	token := signToken(t, "u1")

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/usage", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Usage read %d failed with %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/usage", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var usage struct {
		Used int `json:"dailyUsed"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&usage); err != nil {
		t.Fatalf("Failed to decode usage: %v", err)
	}
	if usage.Used != 0 {
		t.Errorf("Usage reads must not consume quota, used = %d", usage.Used)
	}
}

func TestHealthIsPublic(t *testing.T) {
	repo := &fakeRepo{}
	r := newTestRouter(repo, &fakeModel{reply: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 without auth, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode health body: %v", err)
	}
	if resp["status"] != "ok" || resp["service"] != ServiceName {
		t.Errorf("Unexpected health body: %v", resp)
	}
}

func TestHandleNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	HandleNotFound(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode 404 body: %v", err)
	}
	if resp["error"] != "Endpoint not found" || resp["path"] != "/nope" {
		t.Errorf("Unexpected 404 body: %v", resp)
	}
}
