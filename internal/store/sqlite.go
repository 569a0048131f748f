package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/surgefin/ai-gateway/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT,
		subscription_tier TEXT NOT NULL DEFAULT 'free',
		current_balance REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		amount REAL NOT NULL,
		category TEXT NOT NULL DEFAULT 'other',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS ai_chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		ai_response TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ai_chats_user ON ai_chats(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, email, subscription_tier, current_balance, created_at, updated_at
		FROM users WHERE user_id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT user_id, email, subscription_tier, current_balance, created_at, updated_at
		FROM users WHERE email = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	var email sql.NullString
	var tier string
	var createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &email, &tier, &user.CurrentBalance, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Email = email.String
	user.SubscriptionTier = domain.ParseTier(tier)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (user_id, email, subscription_tier, current_balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			subscription_tier = excluded.subscription_tier,
			current_balance = excluded.current_balance,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Email, string(user.SubscriptionTier), user.CurrentBalance,
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// AddTransaction appends an expense record.
func (s *SQLiteStore) AddTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (user_id, amount, category, created_at)
		VALUES (?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		tx.UserID, tx.Amount, tx.CategoryOrDefault(), tx.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		tx.ID = id
	}
	return nil
}

// TransactionsSince retrieves a user's transactions created at or after since.
func (s *SQLiteStore) TransactionsSince(ctx context.Context, userID string, since time.Time) ([]domain.Transaction, error) {
	query := `
		SELECT id, user_id, amount, category, created_at
		FROM transactions
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var createdAt int64
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Category, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		tx.CreatedAt = time.Unix(createdAt, 0)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txs, nil
}

// AppendChatExchange persists one chat request/response pair.
func (s *SQLiteStore) AppendChatExchange(ctx context.Context, exchange *domain.ChatExchange) error {
	query := `
		INSERT INTO ai_chats (user_id, session_id, user_message, ai_response, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		exchange.UserID, exchange.SessionID, exchange.UserMessage,
		exchange.AIResponse, exchange.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("insert chat exchange: %w", err)
	}
	return nil
}

// DeleteUserTransactions removes all of a user's transactions batch by batch.
func (s *SQLiteStore) DeleteUserTransactions(ctx context.Context, userID string, batchSize int) (int64, error) {
	return s.batchDelete(ctx, "transactions", userID, batchSize)
}

// DeleteUserChats removes all of a user's chat history batch by batch.
func (s *SQLiteStore) DeleteUserChats(ctx context.Context, userID string, batchSize int) (int64, error) {
	return s.batchDelete(ctx, "ai_chats", userID, batchSize)
}

// batchDelete removes rows in chunks of at most batchSize, sequentially,
// until no rows for the user remain.
func (s *SQLiteStore) batchDelete(ctx context.Context, table, userID string, batchSize int) (int64, error) {
	if batchSize <= 0 || batchSize > MaxDeleteBatchSize {
		batchSize = MaxDeleteBatchSize
	}

	query := fmt.Sprintf(`
		DELETE FROM %s WHERE id IN (
			SELECT id FROM %s WHERE user_id = ? LIMIT ?
		)`, table, table)

	var total int64
	for {
		res, err := s.db.ExecContext(ctx, query, userID, batchSize)
		if err != nil {
			return total, fmt.Errorf("batch delete from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("batch delete rows affected: %w", err)
		}
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
