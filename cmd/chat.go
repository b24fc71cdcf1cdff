package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// chatClient is a minimal terminal client for a running ragline server.
// It keeps the session id returned by the first turn so the whole
// conversation shares one history.
type chatClient struct {
	baseURL   string
	strategy  string
	sessionID string
	client    *http.Client
}

// runChat starts the interactive chat loop.
func runChat() error {
	baseURL, strategy, err := parseChatArgs()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &chatClient{
		baseURL:  baseURL,
		strategy: strategy,
		// No overall timeout: SSE responses stay open while tokens
		// stream. Cancellation comes from ctx.
		client: &http.Client{},
	}

	fmt.Println("ragline chat. Type a question, or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := c.send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func parseChatArgs() (baseURL, strategy string, err error) {
	baseURL = "http://127.0.0.1:8000"
	strategy = ""

	args := os.Args[2:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		baseURL = args[0]
		args = args[1:]
	}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--strategy", "-strategy":
			if i+1 >= len(args) {
				return "", "", fmt.Errorf("--strategy requires a value")
			}
			i++
			strategy = args[i]
		default:
			return "", "", fmt.Errorf("unknown chat flag: %s", args[i])
		}
	}
	return strings.TrimRight(baseURL, "/"), strategy, nil
}

// send posts one question and prints tokens as they stream back.
func (c *chatClient) send(ctx context.Context, question string) error {
	body, err := json.Marshal(map[string]string{
		"question":   question,
		"session_id": c.sessionID,
		"strategy":   c.strategy,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := c.printStream(resp.Body); err != nil {
		return err
	}
	fmt.Printf("\n(%.1fs)\n", time.Since(start).Seconds())
	return nil
}

// printStream consumes SSE events until the terminal empty-token event
// or EOF, printing tokens as they arrive.
func (c *chatClient) printStream(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var ev struct {
			Token     string `json:"token"`
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}
		if ev.SessionID != "" {
			c.sessionID = ev.SessionID
		}
		if ev.Token == "" {
			return nil
		}
		fmt.Print(ev.Token)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}
