package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/surgefin/ai-gateway/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestUserRoundtrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	user := &domain.User{
		UserID:           "u1",
		Email:            "user@example.com",
		SubscriptionTier: domain.TierPro,
		CurrentBalance:   5000.50,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	got, err := repo.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected user, got nil")
	}
	if got.Email != "user@example.com" || got.SubscriptionTier != domain.TierPro || got.CurrentBalance != 5000.50 {
		t.Errorf("Unexpected user: %+v", got)
	}

	byEmail, err := repo.GetUserByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail == nil || byEmail.UserID != "u1" {
		t.Errorf("Unexpected user by email: %+v", byEmail)
	}
}

func TestGetUserMissing(t *testing.T) {
	repo := newTestStore(t)

	user, err := repo.GetUser(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user != nil {
		t.Errorf("Expected nil for missing user, got %+v", user)
	}
}

func TestUpsertUserUpdatesExisting(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := &domain.User{UserID: "u1", SubscriptionTier: domain.TierFree, CurrentBalance: 100, CreatedAt: now, UpdatedAt: now}
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("Initial upsert failed: %v", err)
	}

	user.SubscriptionTier = domain.TierPro
	user.CurrentBalance = 250
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := repo.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.SubscriptionTier != domain.TierPro || got.CurrentBalance != 250 {
		t.Errorf("Upsert did not update: %+v", got)
	}
}

func TestTransactionsSinceWindow(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, tx := range []*domain.Transaction{
		{UserID: "u1", Amount: 100, Category: "food", CreatedAt: base.AddDate(0, 0, -2)},
		{UserID: "u1", Amount: 200, Category: "travel", CreatedAt: base},
		{UserID: "u1", Amount: 300, Category: "shopping", CreatedAt: base.AddDate(0, 0, 5)},
		{UserID: "other", Amount: 999, Category: "food", CreatedAt: base.AddDate(0, 0, 5)},
	} {
		if err := repo.AddTransaction(ctx, tx); err != nil {
			t.Fatalf("AddTransaction %d failed: %v", i, err)
		}
	}

	txs, err := repo.TransactionsSince(ctx, "u1", base)
	if err != nil {
		t.Fatalf("TransactionsSince failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("Expected 2 transactions in window, got %d", len(txs))
	}
	// Ascending by creation time; boundary timestamp included.
	if txs[0].Amount != 200 || txs[1].Amount != 300 {
		t.Errorf("Unexpected ordering: %+v", txs)
	}
	for _, tx := range txs {
		if tx.UserID != "u1" {
			t.Errorf("Foreign user's transaction leaked: %+v", tx)
		}
	}
}

func TestAddTransactionDefaultsCategory(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	tx := &domain.Transaction{UserID: "u1", Amount: 50, CreatedAt: time.Now().UTC()}
	if err := repo.AddTransaction(ctx, tx); err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	if tx.ID == 0 {
		t.Error("Expected assigned transaction ID")
	}

	txs, err := repo.TransactionsSince(ctx, "u1", time.Time{})
	if err != nil {
		t.Fatalf("TransactionsSince failed: %v", err)
	}
	if len(txs) != 1 || txs[0].Category != domain.DefaultCategory {
		t.Errorf("Expected default category, got %+v", txs)
	}
}

func TestChatExchangePersisted(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	ex := &domain.ChatExchange{
		UserID:      "u1",
		SessionID:   "s1",
		UserMessage: "How am I doing?",
		AIResponse:  "Fine.",
		Timestamp:   time.Now().UTC(),
	}
	if err := repo.AppendChatExchange(ctx, ex); err != nil {
		t.Fatalf("AppendChatExchange failed: %v", err)
	}

	// Exchanges are deletable per user, which doubles as a readback check.
	n, err := repo.DeleteUserChats(ctx, "u1", MaxDeleteBatchSize)
	if err != nil {
		t.Fatalf("DeleteUserChats failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 deleted chat, got %d", n)
	}
}

func TestBatchDeleteLoopsUntilEmpty(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const total = 7
	for i := 0; i < total; i++ {
		tx := &domain.Transaction{UserID: "u1", Amount: float64(i + 1), Category: "food", CreatedAt: now}
		if err := repo.AddTransaction(ctx, tx); err != nil {
			t.Fatalf("AddTransaction %d failed: %v", i, err)
		}
	}
	keep := &domain.Transaction{UserID: "other", Amount: 1, Category: "food", CreatedAt: now}
	if err := repo.AddTransaction(ctx, keep); err != nil {
		t.Fatalf("AddTransaction for other user failed: %v", err)
	}

	// Batch size smaller than the row count forces multiple passes.
	n, err := repo.DeleteUserTransactions(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("DeleteUserTransactions failed: %v", err)
	}
	if n != total {
		t.Errorf("Expected %d deleted, got %d", total, n)
	}

	left, err := repo.TransactionsSince(ctx, "u1", time.Time{})
	if err != nil {
		t.Fatalf("TransactionsSince failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("Expected no transactions left for u1, got %d", len(left))
	}

	others, err := repo.TransactionsSince(ctx, "other", time.Time{})
	if err != nil {
		t.Fatalf("TransactionsSince failed: %v", err)
	}
	if len(others) != 1 {
		t.Errorf("Other user's rows must survive, got %d", len(others))
	}
}

func TestBatchDeleteClampsBatchSize(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	for _, size := range []int{0, -5, MaxDeleteBatchSize * 10} {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			n, err := repo.DeleteUserTransactions(ctx, "u1", size)
			if err != nil {
				t.Fatalf("DeleteUserTransactions(%d) failed: %v", size, err)
			}
			if n != 0 {
				t.Errorf("Expected 0 deleted on empty table, got %d", n)
			}
		})
	}
}

func TestPing(t *testing.T) {
	repo := newTestStore(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
