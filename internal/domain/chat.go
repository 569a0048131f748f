package domain

import (
	"time"
)

// ChatExchange is one persisted request/response pair. Exchanges are
// append-only: the gateway writes them for auditing and never reads them
// back into prompts.
type ChatExchange struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	Timestamp   time.Time `json:"timestamp"`
}
