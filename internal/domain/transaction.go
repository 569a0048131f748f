package domain

import (
	"time"
)

// DefaultCategory is assigned to transactions recorded without a category.
const DefaultCategory = "other"

// Transaction is a single expense record. Transactions are immutable once
// created; the gateway only reads them within the current calendar month.
type Transaction struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// CategoryOrDefault returns the transaction category, falling back to
// DefaultCategory when none was recorded.
func (t *Transaction) CategoryOrDefault() string {
	if t.Category == "" {
		return DefaultCategory
	}
	return t.Category
}
