package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole is a chat message role in the upstream API's sense.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is one message in a career-guidance conversation. Content is
// mutable only while an assistant message is being streamed; once the stream
// finishes the message is final.
type ChatMessage struct {
	ID        string      `json:"id"`
	UserID    string      `json:"-"`
	SessionID string      `json:"-"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewChatMessage creates a finalized message with a fresh ID.
func NewChatMessage(userID, sessionID string, role MessageRole, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
