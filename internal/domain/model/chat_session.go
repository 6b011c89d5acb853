package model

import (
	"time"

	"expert-assistant/internal/domain"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusLoading   SessionStatus = "loading"
	StatusSucceeded SessionStatus = "succeeded"
	StatusFailed    SessionStatus = "failed"
)

// ChatMessage represents one message within a chat session. It is a value;
// nothing mutates a message once it has been appended.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChatMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:        domain.NewULID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// SessionSnapshot is a point-in-time copy of a session, used for rendering
// and for persistence.
type SessionSnapshot struct {
	ID        string           `json:"id"`
	OwnerID   string           `json:"owner_id"`
	Mode      Mode             `json:"mode"`
	Status    SessionStatus    `json:"status"`
	History   []ChatMessage    `json:"history"`
	LastError string           `json:"last_error,omitempty"`
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`
	Epoch     uint64           `json:"epoch"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Transcript returns the user-visible messages, i.e. everything but the system prompt.
func (s *SessionSnapshot) Transcript() []ChatMessage {
	out := make([]ChatMessage, 0, len(s.History))
	for _, m := range s.History {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ValidateHistory checks the history invariants: known roles, and at most one
// system message which must come first.
func ValidateHistory(history []ChatMessage) error {
	for i, m := range history {
		switch m.Role {
		case RoleSystem:
			if i != 0 {
				return domain.Validationf("system message at index %d", i)
			}
		case RoleUser, RoleAssistant:
		default:
			return domain.Validationf("unknown role %q at index %d", m.Role, i)
		}
	}
	return nil
}

// CloneHistory copies h so callers can't alias session state.
func CloneHistory(h []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(h))
	copy(out, h)
	return out
}
