package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragline/ragline/internal/log"
)

// Store manages session persistence with a PostgreSQL backend.
// It is safe for concurrent use by multiple goroutines; appends to the
// same session are serialized with a row lock.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a Store backed by the given connection pool.
func New(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		pool:   pool,
		logger: logger.With("component", "session"),
	}
}

// History returns the ordered message list for a session. A session with
// no stored messages (including one that does not exist yet) yields an
// empty slice, not an error.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, sequence_number, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY sequence_number ASC
		LIMIT $2`,
		sessionID, DefaultHistoryLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history rows: %w", err)
	}

	s.logger.Debug("loaded history", "session_id", sessionID, "count", len(messages))
	return messages, nil
}

// Append adds messages to a session in order, creating the session row on
// first use. The whole operation runs in one transaction: the session row
// is locked (SELECT ... FOR UPDATE) so concurrent appends to the same
// session cannot interleave sequence numbers.
func (s *Store) Append(ctx context.Context, sessionID uuid.UUID, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	for i, m := range messages {
		if !ValidRole(m.Role) {
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidRole, i, m.Role)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	// Create the session lazily, then lock it for the duration of the append.
	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING`,
		sessionID,
	); err != nil {
		return fmt.Errorf("ensuring session %s: %w", sessionID, err)
	}

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `
		SELECT id FROM sessions WHERE id = $1 FOR UPDATE`,
		sessionID,
	).Scan(&locked); err != nil {
		return fmt.Errorf("locking session %s: %w", sessionID, err)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE session_id = $1`,
		sessionID,
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("reading max sequence number: %w", err)
	}

	for i, m := range messages {
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (session_id, role, content, sequence_number)
			VALUES ($1, $2, $3, $4)`,
			sessionID, m.Role, m.Content, maxSeq+i+1,
		); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sessions
		SET message_count = $2, updated_at = now()
		WHERE id = $1`,
		sessionID, maxSeq+len(messages),
	); err != nil {
		return fmt.Errorf("updating session metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("appended messages", "session_id", sessionID, "count", len(messages))
	return nil
}

// Get retrieves a session by ID.
func (s *Store) Get(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(title, ''), created_at, updated_at, message_count
		FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// List returns sessions ordered by most recent activity.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]Session, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(title, ''), created_at, updated_at, message_count
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading session rows: %w", err)
	}
	return sessions, nil
}

// Delete removes a session and all its messages (CASCADE). This is an
// administrative operation; the serving pipeline never deletes history.
func (s *Store) Delete(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.logger.Debug("deleted session", "session_id", sessionID)
	return nil
}
