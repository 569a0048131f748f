// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/surgefin/ai-gateway/internal/domain"
)

// MaxDeleteBatchSize is the largest number of documents removed per batched
// delete. Mirrors the backing store's batch write ceiling.
const MaxDeleteBatchSize = 500

// Repository defines the document-store contract the gateway depends on:
// get-by-id, query-by-range, append, and batch-delete. The gateway never
// mutates user or transaction records.
type Repository interface {
	// GetUser retrieves a user by ID. Returns (nil, nil) when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// GetUserByEmail retrieves a user by email. Returns (nil, nil) when absent.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpsertUser creates or updates a user record. Used by account tooling
	// and tests; the request path is read-only.
	UpsertUser(ctx context.Context, user *domain.User) error

	// AddTransaction appends an expense record for a user.
	AddTransaction(ctx context.Context, tx *domain.Transaction) error

	// TransactionsSince retrieves a user's transactions created at or after
	// the given time, oldest first.
	TransactionsSince(ctx context.Context, userID string, since time.Time) ([]domain.Transaction, error)

	// AppendChatExchange persists one chat request/response pair.
	AppendChatExchange(ctx context.Context, exchange *domain.ChatExchange) error

	// DeleteUserTransactions removes all of a user's transactions in chunks
	// of at most batchSize, returning the number deleted.
	DeleteUserTransactions(ctx context.Context, userID string, batchSize int) (int64, error)

	// DeleteUserChats removes all of a user's chat history in chunks of at
	// most batchSize, returning the number deleted.
	DeleteUserChats(ctx context.Context, userID string, batchSize int) (int64, error)

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying connection.
	Close() error
}
