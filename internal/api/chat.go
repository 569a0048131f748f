package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/surgefin/ai-gateway/internal/gateway"
	"github.com/surgefin/ai-gateway/internal/identity"
)

// maxMessageLength caps a chat message; longer inputs are rejected.
const maxMessageLength = 500

// maxChatBodySize bounds the request body (10KB).
const maxChatBodySize = 10 << 10

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// HandleChat processes POST /chat. The request is validated, routed through
// the gateway pipeline, and answered with {reply, timestamp, sessionId}.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "Message is required and must be a string.")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		Error(w, http.StatusBadRequest, "Message cannot be empty.")
		return
	}
	if len([]rune(req.Message)) > maxMessageLength {
		Error(w, http.StatusBadRequest, "Message is too long. Please keep it under 500 characters.")
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	userID := identity.UserIDFromContext(r.Context())

	// A disconnected caller's in-flight model call and persistence still
	// run to completion; only the explicit model deadline applies.
	ctx := context.WithoutCancel(r.Context())

	reply, err := h.gateway.ProcessMessage(ctx, userID, message, sessionID)
	if err != nil {
		JSON(w, http.StatusInternalServerError, errorWithTimestamp{
			Error:     gateway.UserMessage(err),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	JSON(w, http.StatusOK, reply)
}
