// Package cmd provides the CLI commands for arclight.
//
// Commands:
//   - serve: HTTP API server with WebSocket chat transport
//   - mcp: Model Context Protocol server exposing the tool registry
//
// Signal handling and graceful shutdown are implemented for all
// commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the arclight binary.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "mcp":
		return runMCP()
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

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Arclight - agent orchestration core")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  arclight serve [addr] Start the HTTP API server (default: 127.0.0.1:4800)")
	fmt.Println("  arclight mcp          Start the MCP server on stdio")
	fmt.Println("  arclight --version    Show version information")
	fmt.Println("  arclight --help       Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  ANTHROPIC_API_KEY  API key for the anthropic provider")
	fmt.Println("  OPENAI_API_KEY     API key for the openai provider")
	fmt.Println("  DATABASE_URL       PostgreSQL connection URL (optional)")
	fmt.Println("  DEBUG              Enable debug logging")
}
