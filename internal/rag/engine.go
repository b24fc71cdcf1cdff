// Package rag implements the retrieval-augmented chat pipeline: query
// classification, retrieval routing across the vector index and the
// knowledge graph, strategy selection and the turn engine that streams
// answers and commits them to session history.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/llm"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/session"
)

// ErrInvalidSession reports a session id that is not a valid UUID.
var ErrInvalidSession = errors.New("invalid session id")

// HistoryStore is the session persistence the engine needs. Satisfied
// by session.Store.
type HistoryStore interface {
	History(ctx context.Context, sessionID uuid.UUID) ([]session.Message, error)
	Append(ctx context.Context, sessionID uuid.UUID, messages []session.Message) error
}

// Streamer is the streaming generation call. Satisfied by llm.Client.
type Streamer interface {
	Stream(ctx context.Context, msgs []*ai.Message, maxTokens int, cb llm.TokenFunc) (string, error)
}

// Request is one chat turn.
type Request struct {
	Question  string
	SessionID string // empty mints a new session
	Strategy  string // empty resolves to DefaultStrategy
}

// Event is one streamed token, tagged with the session it belongs to so
// first-turn clients learn their minted session id.
type Event struct {
	Token     string
	SessionID string
}

// EmitFunc delivers one Event to the client. Returning an error aborts
// the stream; the turn is then not committed to history.
type EmitFunc func(ctx context.Context, ev Event) error

// Result summarizes a completed turn.
type Result struct {
	SessionID  uuid.UUID
	Answer     string
	NewSession bool
	Truncated  bool // answer cut short by a mid-stream backend failure
}

// Engine orchestrates one chat turn: resolve the session, retrieve
// context through the requested strategy, stream the answer and commit
// the turn to history exactly once.
type Engine struct {
	registry *Registry
	history  HistoryStore
	streamer Streamer

	topK      int
	maxTokens int
	logger    log.Logger
}

func NewEngine(registry *Registry, history HistoryStore, streamer Streamer, topK, maxTokens int, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		registry:  registry,
		history:   history,
		streamer:  streamer,
		topK:      topK,
		maxTokens: maxTokens,
		logger:    logger.With("component", "engine"),
	}
}

// Strategies exposes the registry for request validation upstream.
func (e *Engine) Strategies() *Registry { return e.registry }

// Respond runs one turn. Tokens are delivered through emit as they
// arrive; the returned Result reflects what was committed.
//
// Commit policy: the turn is appended to history only if at least the
// full or a truncated answer was delivered. Client cancellation, a
// failed token delivery and zero-token generation failures leave
// history untouched. A failed
// append after delivery is logged, not surfaced; the client already has
// its answer.
func (e *Engine) Respond(ctx context.Context, req Request, emit EmitFunc) (*Result, error) {
	strategy, err := e.registry.Lookup(req.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownStrategy, req.Strategy, e.registry.Names())
	}

	sessionID, history, isNew, err := e.resolveSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	retrieved := strategy.Retrieve(ctx, req.Question, e.topK)

	msgs := make([]*ai.Message, 0, len(history)+2)
	if isNew {
		msgs = append(msgs, ai.NewSystemTextMessage(GenerationSystemPrompt))
	}
	msgs = append(msgs, toModelMessages(history)...)
	msgs = append(msgs, ai.NewUserTextMessage(fmt.Sprintf(generationPrompt, retrieved, req.Question)))

	var partial strings.Builder
	tokens := 0
	var emitErr error
	answer, streamErr := e.streamer.Stream(ctx, msgs, e.maxTokens, func(ctx context.Context, token string) error {
		if err := emit(ctx, Event{Token: token, SessionID: sessionID.String()}); err != nil {
			// Remembered here because the streamer may re-wrap the
			// callback error on its way back out.
			emitErr = err
			return err
		}
		partial.WriteString(token)
		tokens++
		return nil
	})

	truncated := false
	if streamErr != nil {
		// A failed delivery means the client stopped receiving: the
		// conversation did not advance, so history stays untouched.
		if emitErr != nil {
			return nil, fmt.Errorf("deliver token: %w", emitErr)
		}
		// Same for client cancellation or a stream that produced nothing.
		if ctx.Err() != nil || tokens == 0 {
			return nil, streamErr
		}
		// Tokens already reached the client. Commit what was delivered
		// so the session history matches what the user saw.
		e.logger.Warn("generation truncated mid-stream, committing partial answer",
			"session_id", sessionID, "tokens", tokens, "error", streamErr)
		answer = partial.String()
		truncated = true
	}

	turn := make([]session.Message, 0, 3)
	if isNew {
		turn = append(turn, session.Message{Role: session.RoleSystem, Content: GenerationSystemPrompt})
	}
	turn = append(turn,
		session.Message{Role: session.RoleUser, Content: req.Question},
		session.Message{Role: session.RoleAssistant, Content: answer},
	)
	if err := e.history.Append(ctx, sessionID, turn); err != nil {
		e.logger.Warn("failed to persist chat turn, answer already delivered",
			"session_id", sessionID, "error", err)
	}

	return &Result{
		SessionID:  sessionID,
		Answer:     answer,
		NewSession: isNew,
		Truncated:  truncated,
	}, nil
}

// resolveSession maps the request's session id to a UUID and loads its
// history. An empty id mints a fresh session; an id with no stored
// history is also treated as a first turn.
func (e *Engine) resolveSession(ctx context.Context, id string) (uuid.UUID, []session.Message, bool, error) {
	if id == "" {
		return uuid.New(), nil, true, nil
	}
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, nil, false, fmt.Errorf("%w: %q", ErrInvalidSession, id)
	}
	history, err := e.history.History(ctx, sessionID)
	if err != nil {
		// The session store being down on read does not block the turn.
		// The answer just loses its conversational memory.
		e.logger.Warn("failed to load session history, continuing without it",
			"session_id", sessionID, "error", err)
		history = nil
	}
	return sessionID, history, len(history) == 0, nil
}

// toModelMessages converts stored history into model messages. Stored
// assistant turns map to the model role.
func toModelMessages(history []session.Message) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case session.RoleSystem:
			msgs = append(msgs, ai.NewSystemTextMessage(m.Content))
		case session.RoleAssistant:
			msgs = append(msgs, ai.NewModelTextMessage(m.Content))
		default:
			msgs = append(msgs, ai.NewUserTextMessage(m.Content))
		}
	}
	return msgs
}
