// Package llm provides the generation backend client on top of Genkit.
//
// All model calls in ragline — answer generation, query classification and
// entity extraction — go through one Client so retry-free request shaping
// (model name, temperature, token budget) lives in a single place.
// Consumers depend on their own narrow interfaces (a Complete method, a
// Stream method); *Client satisfies all of them.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/ragline/ragline/internal/log"
)

// ErrModelUnavailable indicates the generation backend could not be
// reached or refused the request. Callers treat this as fatal for the
// current request.
var ErrModelUnavailable = errors.New("model unavailable")

// TokenFunc receives one streamed token. Returning an error aborts the
// stream; the error is propagated out of Stream.
type TokenFunc func(ctx context.Context, token string) error

// Client is a thin generation client bound to one model.
// It is safe for concurrent use.
type Client struct {
	g           *genkit.Genkit
	modelName   string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	temperature float32
	logger      log.Logger
}

// New creates a Client. modelName must be provider-qualified.
func New(g *genkit.Genkit, modelName string, temperature float32, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		g:           g,
		modelName:   modelName,
		temperature: temperature,
		logger:      logger.With("component", "llm"),
	}
}

// Complete runs a non-streaming generation over the given messages and
// returns the trimmed response text.
func (c *Client) Complete(ctx context.Context, msgs []*ai.Message, maxTokens int) (string, error) {
	resp, err := genkit.Generate(ctx, c.g, c.options(msgs, maxTokens)...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Stream runs a streaming generation. cb is invoked once per text token in
// generation order; the final full text is returned after the stream is
// drained. A cb error aborts the stream and is returned unwrapped so
// callers can detect their own sentinel (or context) errors.
func (c *Client) Stream(ctx context.Context, msgs []*ai.Message, maxTokens int, cb TokenFunc) (string, error) {
	opts := c.options(msgs, maxTokens)
	if cb != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if chunk == nil {
				return nil
			}
			for _, part := range chunk.Content {
				if part == nil || part.Text == "" {
					continue
				}
				if err := cb(ctx, part.Text); err != nil {
					return err
				}
			}
			return nil
		}))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		// Context errors and callback errors pass through; everything else
		// is a backend failure.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return resp.Text(), nil
}

// options assembles the per-request generate options.
func (c *Client) options(msgs []*ai.Message, maxTokens int) []ai.GenerateOption {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens) // #nosec G115 -- bounded by config validation
	}

	opts := []ai.GenerateOption{
		ai.WithMessages(msgs...),
		ai.WithConfig(cfg),
	}
	if c.modelName != "" {
		opts = append(opts, ai.WithModelName(c.modelName))
	}
	return opts
}
