package session

import "errors"

// History load limits.
const (
	// DefaultHistoryLimit is the number of messages loaded per session.
	DefaultHistoryLimit int32 = 1000

	// MaxListLimit bounds session listing to prevent unbounded queries.
	MaxListLimit int32 = 500
)

// Sentinel errors for session operations. Check with errors.Is().
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRole indicates a message carries a role outside the
	// closed {system, user, assistant} set.
	ErrInvalidRole = errors.New("invalid message role")
)
