// Package session provides conversation history persistence on PostgreSQL.
//
// A session owns an append-only, ordered list of messages. Appends are
// transactional and serialized per session, so a reader never observes a
// turn that a concurrent writer is still producing.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role constants define valid message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session represents a conversation session.
type Session struct {
	ID           uuid.UUID
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// Message represents a single conversation turn.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           string // "system" | "user" | "assistant"
	Content        string
	SequenceNumber int
	CreatedAt      time.Time
}

// ValidRole reports whether role is a member of the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
