// Package cmd provides the ragline CLI commands.
//
// Commands:
//   - serve: HTTP API server with SSE streaming chat
//   - chat: interactive terminal chat against a running server
//
// Signal handling and graceful shutdown are implemented for all
// commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ragline/ragline/internal/log"
)

// Execute is the main entry point for the ragline CLI.
func Execute() error {
	logger := log.New(log.Config{
		Level: logLevel(),
		JSON:  os.Getenv("RAGLINE_LOG_JSON") != "",
	})

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "chat":
		return runChat()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("ragline - adaptive retrieval-augmented chat service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ragline serve [addr]  Start HTTP API server (default: 127.0.0.1:8000)")
	fmt.Println("  ragline chat [url]    Interactive chat against a running server")
	fmt.Println("  ragline --version     Show version information")
	fmt.Println("  ragline --help        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY        Required for the gemini provider")
	fmt.Println("  DATABASE_URL          Optional: overrides postgres settings")
	fmt.Println("  DEBUG                 Optional: enable debug logging")
}
