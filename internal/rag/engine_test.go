package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/llm"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/session"
)

// mockHistoryStore implements HistoryStore.
type mockHistoryStore struct {
	history    []session.Message
	historyErr error
	appendErr  error

	historyCalls  int
	appendCalls   int
	lastSessionID uuid.UUID
	appended      []session.Message
}

func (m *mockHistoryStore) History(_ context.Context, sessionID uuid.UUID) ([]session.Message, error) {
	m.historyCalls++
	m.lastSessionID = sessionID
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history, nil
}

func (m *mockHistoryStore) Append(_ context.Context, sessionID uuid.UUID, messages []session.Message) error {
	m.appendCalls++
	m.lastSessionID = sessionID
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, messages...)
	return nil
}

// mockStreamer implements Streamer. It feeds the configured tokens to
// the callback, then either returns the joined text or the configured
// error. Callback errors come back re-wrapped as ErrModelUnavailable,
// matching what the real client does.
type mockStreamer struct {
	tokens []string
	err    error

	calls    int
	lastMsgs []*ai.Message
}

func (m *mockStreamer) Stream(ctx context.Context, msgs []*ai.Message, _ int, cb llm.TokenFunc) (string, error) {
	m.calls++
	m.lastMsgs = msgs
	for _, tok := range m.tokens {
		if cb != nil {
			if err := cb(ctx, tok); err != nil {
				return "", fmt.Errorf("%w: %w", llm.ErrModelUnavailable, err)
			}
		}
	}
	if m.err != nil {
		return "", m.err
	}
	return strings.Join(m.tokens, ""), nil
}

func newTestEngine(history *mockHistoryStore, streamer *mockStreamer, vector *mockSearcher, graph *mockGraphSearcher, llmMock *mockCompleter) *Engine {
	registry := newTestRegistry(vector, graph, llmMock)
	return NewEngine(registry, history, streamer, 5, 500, log.NewNop())
}

func collectEvents(events *[]Event) EmitFunc {
	return func(_ context.Context, ev Event) error {
		*events = append(*events, ev)
		return nil
	}
}

// A first turn with no session id streams every token, mints a session
// and commits system, user and assistant entries.
func TestEngine_Respond_NewSession(t *testing.T) {
	history := &mockHistoryStore{}
	streamer := &mockStreamer{tokens: []string{"Returns", " are", " accepted", " within", " 30 days."}}
	e := newTestEngine(history, streamer, &mockSearcher{result: "policy docs"}, &mockGraphSearcher{}, &mockCompleter{response: "Relevant"})

	var events []Event
	result, err := e.Respond(context.Background(), Request{Question: "What is the return policy?"}, collectEvents(&events))
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}

	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	if result.SessionID == uuid.Nil {
		t.Error("session id was not minted")
	}
	if !result.NewSession {
		t.Error("NewSession = false, want true")
	}
	for i, ev := range events {
		if ev.SessionID != result.SessionID.String() {
			t.Errorf("event %d session id = %q, want %q", i, ev.SessionID, result.SessionID)
		}
	}
	if result.Answer != "Returns are accepted within 30 days." {
		t.Errorf("Answer = %q", result.Answer)
	}

	if len(history.appended) != 3 {
		t.Fatalf("committed %d messages, want system + user + assistant", len(history.appended))
	}
	if history.appended[0].Role != session.RoleSystem {
		t.Errorf("first committed role = %q, want system", history.appended[0].Role)
	}
	if history.appended[1].Role != session.RoleUser || history.appended[1].Content != "What is the return policy?" {
		t.Errorf("user turn = %+v, want the original question", history.appended[1])
	}
	if history.appended[2].Role != session.RoleAssistant || history.appended[2].Content != result.Answer {
		t.Errorf("assistant turn = %+v", history.appended[2])
	}
}

// The persisted user turn is the raw question; the prompt sent to the
// model is the rendered template carrying the retrieved context.
func TestEngine_Respond_PromptCarriesContextButHistoryDoesNot(t *testing.T) {
	history := &mockHistoryStore{}
	streamer := &mockStreamer{tokens: []string{"answer"}}
	e := newTestEngine(history, streamer, &mockSearcher{result: "ctx docs"}, &mockGraphSearcher{}, &mockCompleter{response: "Relevant"})

	_, err := e.Respond(context.Background(), Request{Question: "list jobs"}, collectEvents(&[]Event{}))
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}

	last := streamer.lastMsgs[len(streamer.lastMsgs)-1]
	prompt := last.Content[0].Text
	if !strings.Contains(prompt, "ctx docs") {
		t.Errorf("generation prompt missing retrieved context: %q", prompt)
	}
	if !strings.Contains(prompt, "list jobs") {
		t.Errorf("generation prompt missing question: %q", prompt)
	}
	for _, m := range history.appended {
		if strings.Contains(m.Content, "ctx docs") {
			t.Errorf("retrieved context leaked into history: %q", m.Content)
		}
	}
}

func TestEngine_Respond_ExistingSessionKeepsHistoryOrder(t *testing.T) {
	id := uuid.New()
	history := &mockHistoryStore{history: []session.Message{
		{Role: session.RoleSystem, Content: GenerationSystemPrompt},
		{Role: session.RoleUser, Content: "first question"},
		{Role: session.RoleAssistant, Content: "first answer"},
	}}
	streamer := &mockStreamer{tokens: []string{"second answer"}}
	e := newTestEngine(history, streamer, &mockSearcher{}, &mockGraphSearcher{}, &mockCompleter{response: "Relevant"})

	result, err := e.Respond(context.Background(), Request{
		Question:  "second question",
		SessionID: id.String(),
	}, collectEvents(&[]Event{}))
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}
	if result.NewSession {
		t.Error("NewSession = true for a session with history")
	}
	if result.SessionID != id {
		t.Errorf("session id = %v, want %v", result.SessionID, id)
	}

	// History plus the rendered prompt turn.
	if len(streamer.lastMsgs) != 4 {
		t.Fatalf("model got %d messages, want 4", len(streamer.lastMsgs))
	}
	if streamer.lastMsgs[0].Role != ai.RoleSystem {
		t.Errorf("first model role = %q, want system", streamer.lastMsgs[0].Role)
	}
	if streamer.lastMsgs[2].Role != ai.RoleModel {
		t.Errorf("assistant history role = %q, want model", streamer.lastMsgs[2].Role)
	}

	// No system prompt re-committed on later turns.
	if len(history.appended) != 2 {
		t.Fatalf("committed %d messages, want user + assistant", len(history.appended))
	}
}

func TestEngine_Respond_InvalidSessionID(t *testing.T) {
	e := newTestEngine(&mockHistoryStore{}, &mockStreamer{}, &mockSearcher{}, &mockGraphSearcher{}, &mockCompleter{})

	_, err := e.Respond(context.Background(), Request{
		Question:  "q",
		SessionID: "not-a-uuid",
	}, collectEvents(&[]Event{}))
	if !errors.Is(err, ErrInvalidSession) {
		t.Errorf("error = %v, want ErrInvalidSession", err)
	}
}

func TestEngine_Respond_UnknownStrategy(t *testing.T) {
	history := &mockHistoryStore{}
	e := newTestEngine(history, &mockStreamer{}, &mockSearcher{}, &mockGraphSearcher{}, &mockCompleter{})

	_, err := e.Respond(context.Background(), Request{
		Question: "q",
		Strategy: "vector",
	}, collectEvents(&[]Event{}))
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("error = %v, want ErrUnknownStrategy", err)
	}
	if history.historyCalls != 0 {
		t.Error("unknown strategy should fail before touching the session store")
	}
}

// A generation failure before any token leaves history untouched: the
// conversation did not advance.
func TestEngine_Respond_GenerationFailureNoCommit(t *testing.T) {
	history := &mockHistoryStore{}
	streamer := &mockStreamer{err: llm.ErrModelUnavailable}
	e := newTestEngine(history, streamer, &mockSearcher{}, &mockGraphSearcher{}, &mockCompleter{response: "Relevant"})

	_, err := e.Respond(context.Background(), Request{Question: "q"}, collectEvents(&[]Event{}))
	if !errors.Is(err, llm.ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
	if history.appendCalls != 0 {
		t.Error("failed generation must not commit to history")
	}
}

// A backend failure after tokens were delivered commits the truncated
// answer so history matches what the user saw.
func TestEngine_Respond_MidStreamFailureCommitsPartial(t *testing.T) {
	history := &mockHistoryStore{}
	streamer := &mockStreamer{tokens: []string{"partial ", "answer"}, err: llm.ErrModelUnavailable}
	e := newTestEngine(history, streamer, &mockSearcher{}, &mockGraphSearcher{}, &mockCompleter{response: "Relevant"})

	var events []Event
	result, err := e.Respond(context.Background(), Request{Question: "q"}, collectEvents(&events))
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}
	if !result.Truncated {
		t.Error("Truncated = false, want true")
	}
	if result.Answer != "partial answer" {
		t.Errorf("Answer = %q, want the delivered tokens", result.Answer)
	}
	if len(history.appended) == 0 {
		t.Fatal("truncated answer was not committed")
	}
	last := history.appended[len(history.appended)-1]
	if last.Content != "partial answer" {
		t.Errorf("committed assistant content = %q", last.Content)
	}
}

// Client cancellation mid-stream aborts without committing.
func TestEngine_Respond_EmitErrorNoCommit(t *testing.T) {
	history := &mockHistoryStore{}
	streamer := &mockStreamer{tokens: []string{"a", "b", "c"}}
	e := newTestEngine(history, streamer, &mockSearcher{}, &mockGraphSearcher{}, &mockCompleter{response: "Relevant"})

	clientGone := errors.New("client disconnected")
	count := 0
	_, err := e.Respond(context.Background(), Request{Question: "q"}, func(_ context.Context, _ Event) error {
		count++
		if count == 2 {
			return clientGone
		}
		return nil
	})
	if !errors.Is(err, clientGone) {
		t.Errorf("error = %v, want the emit error", err)
	}
	if history.appendCalls != 0 {
		t.Error("aborted stream must not commit to history")
	}
}

// Retrieval failure is not fatal: generation proceeds without context.
func TestEngine_Respond_RetrievalFailureProceeds(t *testing.T) {
	history := &mockHistoryStore{}
	streamer := &mockStreamer{tokens: []string{"answer"}}
	vector := &mockSearcher{err: errors.New("index down")}
	e := newTestEngine(history, streamer, vector, &mockGraphSearcher{}, &mockCompleter{response: "Relevant"})

	result, err := e.Respond(context.Background(), Request{Question: "q"}, collectEvents(&[]Event{}))
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}
	if result.Answer != "answer" {
		t.Errorf("Answer = %q", result.Answer)
	}
}

// A failed commit after delivery is absorbed: the client already has
// the full answer.
func TestEngine_Respond_AppendFailureStillSucceeds(t *testing.T) {
	history := &mockHistoryStore{appendErr: errors.New("db down")}
	streamer := &mockStreamer{tokens: []string{"answer"}}
	e := newTestEngine(history, streamer, &mockSearcher{}, &mockGraphSearcher{}, &mockCompleter{response: "Relevant"})

	result, err := e.Respond(context.Background(), Request{Question: "q"}, collectEvents(&[]Event{}))
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}
	if result.Answer != "answer" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if history.appendCalls != 1 {
		t.Errorf("append calls = %d, want 1", history.appendCalls)
	}
}

// A session store outage on read degrades to an empty history instead
// of failing the turn.
func TestEngine_Respond_HistoryLoadFailure(t *testing.T) {
	history := &mockHistoryStore{historyErr: errors.New("db down")}
	streamer := &mockStreamer{tokens: []string{"answer"}}
	e := newTestEngine(history, streamer, &mockSearcher{}, &mockGraphSearcher{}, &mockCompleter{response: "Relevant"})

	result, err := e.Respond(context.Background(), Request{
		Question:  "q",
		SessionID: uuid.New().String(),
	}, collectEvents(&[]Event{}))
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}
	if result.Answer != "answer" {
		t.Errorf("Answer = %q, want %q", result.Answer, "answer")
	}
	if !result.NewSession {
		t.Error("NewSession = false, want true when history is unreadable")
	}
}
