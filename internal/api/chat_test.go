package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/llm"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/rag"
)

// fakeResponder implements Responder. It emits the configured tokens
// and returns the configured result or error.
type fakeResponder struct {
	tokens    []string
	sessionID uuid.UUID
	err       error

	calls   int
	lastReq rag.Request
}

func (f *fakeResponder) Respond(ctx context.Context, req rag.Request, emit rag.EmitFunc) (*rag.Result, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	for _, tok := range f.tokens {
		if err := emit(ctx, rag.Event{Token: tok, SessionID: f.sessionID.String()}); err != nil {
			return nil, err
		}
	}
	return &rag.Result{SessionID: f.sessionID, Answer: strings.Join(f.tokens, "")}, nil
}

func postChat(t *testing.T, h *chatHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.serve(rec, req)
	return rec
}

// parseSSE decodes every data: line of an SSE body.
func parseSSE(t *testing.T, body string) []tokenEvent {
	t.Helper()
	var events []tokenEvent
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev tokenEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("invalid SSE event %q: %v", data, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestChatHandler_StreamsTokensAndTerminalEvent(t *testing.T) {
	sessionID := uuid.New()
	responder := &fakeResponder{tokens: []string{"Hello", " world"}, sessionID: sessionID}
	h := &chatHandler{engine: responder, logger: log.NewNop()}

	rec := postChat(t, h, `{"question":"hi"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("got %d events, want 2 tokens + terminal", len(events))
	}
	if events[0].Token != "Hello" || events[1].Token != " world" {
		t.Errorf("token events = %+v", events[:2])
	}
	if events[2].Token != "" {
		t.Errorf("terminal event token = %q, want empty", events[2].Token)
	}
	for i, ev := range events {
		if ev.SessionID != sessionID.String() {
			t.Errorf("event %d session id = %q, want %q", i, ev.SessionID, sessionID)
		}
	}
}

// Every frame is "data: <json>" followed by a blank line.
func TestChatHandler_SSEWireFormat(t *testing.T) {
	responder := &fakeResponder{tokens: []string{"x"}, sessionID: uuid.New()}
	h := &chatHandler{engine: responder, logger: log.NewNop()}

	rec := postChat(t, h, `{"question":"hi"}`)

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Errorf("body does not start with a data frame: %q", body)
	}
	for _, frame := range strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n") {
		if !strings.HasPrefix(frame, "data: ") {
			t.Errorf("frame %q missing data: prefix", frame)
		}
	}
}

func TestChatHandler_ForwardsRequestFields(t *testing.T) {
	responder := &fakeResponder{sessionID: uuid.New()}
	h := &chatHandler{engine: responder, logger: log.NewNop()}

	sid := uuid.New().String()
	postChat(t, h, `{"question":"q","session_id":"`+sid+`","strategy":"graph"}`)

	if responder.lastReq.Question != "q" {
		t.Errorf("question = %q", responder.lastReq.Question)
	}
	if responder.lastReq.SessionID != sid {
		t.Errorf("session id = %q", responder.lastReq.SessionID)
	}
	if responder.lastReq.Strategy != "graph" {
		t.Errorf("strategy = %q", responder.lastReq.Strategy)
	}
}

func TestChatHandler_MissingQuestion(t *testing.T) {
	responder := &fakeResponder{}
	h := &chatHandler{engine: responder, logger: log.NewNop()}

	rec := postChat(t, h, `{"session_id":"abc"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if responder.calls != 0 {
		t.Error("engine called despite missing question")
	}
}

func TestChatHandler_InvalidBody(t *testing.T) {
	h := &chatHandler{engine: &fakeResponder{}, logger: log.NewNop()}

	rec := postChat(t, h, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"unknown strategy", rag.ErrUnknownStrategy, http.StatusBadRequest, "unknown_strategy"},
		{"invalid session", rag.ErrInvalidSession, http.StatusBadRequest, "invalid_session"},
		{"model unavailable", llm.ErrModelUnavailable, http.StatusServiceUnavailable, "generation_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &chatHandler{engine: &fakeResponder{err: tt.err}, logger: log.NewNop()}

			rec := postChat(t, h, `{"question":"q"}`)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestChatHandler_ErrorAfterStreamStartLeavesStatusIntact(t *testing.T) {
	sessionID := uuid.New()
	// Respond emits one token, then fails.
	responder := respondFunc(func(ctx context.Context, req rag.Request, emit rag.EmitFunc) (*rag.Result, error) {
		_ = emit(ctx, rag.Event{Token: "partial", SessionID: sessionID.String()})
		return nil, llm.ErrModelUnavailable
	})
	h := &chatHandler{engine: responder, logger: log.NewNop()}

	rec := postChat(t, h, `{"question":"q"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 once streaming has begun", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "generation_unavailable") {
		t.Error("JSON error payload was written into an SSE stream")
	}
}

// respondFunc adapts a function to the Responder interface.
type respondFunc func(ctx context.Context, req rag.Request, emit rag.EmitFunc) (*rag.Result, error)

func (f respondFunc) Respond(ctx context.Context, req rag.Request, emit rag.EmitFunc) (*rag.Result, error) {
	return f(ctx, req, emit)
}
