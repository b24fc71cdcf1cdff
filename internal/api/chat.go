package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ragline/ragline/internal/llm"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/rag"
)

// maxChatBodyBytes caps the chat request body.
const maxChatBodyBytes = 1 << 20

// Responder runs one chat turn, delivering tokens through the emit
// callback. Satisfied by rag.Engine.
type Responder interface {
	Respond(ctx context.Context, req rag.Request, emit rag.EmitFunc) (*rag.Result, error)
}

// chatHandler serves the streaming chat endpoint.
type chatHandler struct {
	engine Responder
	logger log.Logger
}

// chatRequest is the POST /chat request body.
type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
}

// tokenEvent is the SSE data payload. Every event carries the session
// id so first-turn clients learn their minted session; the terminal
// event has an empty token.
type tokenEvent struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
}

// sseWriter writes token events in SSE wire format, setting the stream
// headers on the first write so pre-stream failures can still produce a
// plain JSON error response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseWriter) writeEvent(ev tokenEvent) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	buf := new(bytes.Buffer)
	buf.WriteString("data: ")
	if err := json.NewEncoder(buf).Encode(ev); err != nil {
		return fmt.Errorf("encode sse event: %w", err)
	}
	// Encode appends one newline; the SSE frame needs a blank line.
	buf.WriteByte('\n')

	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// serve handles POST /chat. Tokens stream as SSE events as the model
// produces them; request validation failures and a completely
// unavailable backend are reported as JSON errors before any event is
// sent.
func (h *chatHandler) serve(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "missing_question", "question is required", h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}
	sse := &sseWriter{w: w, flusher: flusher}

	result, err := h.engine.Respond(r.Context(), rag.Request{
		Question:  req.Question,
		SessionID: req.SessionID,
		Strategy:  req.Strategy,
	}, func(ctx context.Context, ev rag.Event) error {
		return sse.writeEvent(tokenEvent{Token: ev.Token, SessionID: ev.SessionID})
	})
	if err != nil {
		h.handleRespondErr(w, r, sse, err)
		return
	}

	// Terminal event: empty token signals end of stream.
	if err := sse.writeEvent(tokenEvent{Token: "", SessionID: result.SessionID.String()}); err != nil {
		h.logger.Debug("failed to write terminal event", "error", err)
	}
}

func (h *chatHandler) handleRespondErr(w http.ResponseWriter, r *http.Request, sse *sseWriter, err error) {
	if sse.started || r.Context().Err() != nil {
		// Mid-stream failure or client gone: the status line is already
		// out, nothing more to send.
		h.logger.Debug("chat stream aborted", "error", err)
		return
	}

	switch {
	case errors.Is(err, rag.ErrUnknownStrategy):
		writeError(w, http.StatusBadRequest, "unknown_strategy", err.Error(), h.logger)
	case errors.Is(err, rag.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, "invalid_session", err.Error(), h.logger)
	case errors.Is(err, llm.ErrModelUnavailable):
		h.logger.Error("generation backend unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "generation_unavailable", "generation backend unavailable", h.logger)
	default:
		h.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}
