// Package main provides the CLI entry point for the Nexus task
// orchestrator.
//
// Nexus turns a natural-language request into a classified, decomposed,
// and executed multi-step task against an LLM backend and a set of local
// tools (filesystem, shell, git, search), streaming progress as it goes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/observability"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

// Exit codes per spec §6.
const (
	exitSuccess      = 0
	exitRuntimeError = 1
	exitInvalidUsage = 2
	exitPolicy       = 3
)

// main is the entry point for the Nexus CLI.
func main() {
	level := os.Getenv("NEXUS_LOG_LEVEL")
	format := os.Getenv("NEXUS_LOG_FORMAT")
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: observability.LogLevelFromString(level),
	}))
	slog.SetDefault(logger)

	// obsLogger redacts secrets from the final failure line even when the
	// underlying error wraps raw provider output (e.g. a leaked API key in
	// an HTTP error body).
	obsLogger := observability.NewLogger(observability.LogConfig{Level: level, Format: format, Output: os.Stderr})

	// Cancel in-flight LLM/tool calls at their next suspension point if the
	// user interrupts the process (spec §5 cancellation contract).
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := buildRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		obsLogger.Error(ctx, "command failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nexus",
		Short: "Nexus - agentic task orchestrator",
		Long: `Nexus classifies a natural-language request into a workflow domain,
decomposes it into a bounded plan/execute/reflect loop (spawning
parallel sub-agents for complex tasks), and streams progress as it runs.

Every filesystem and shell operation is checked against policy before
execution, and every LLM call fails over across configured endpoints.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&workspacePath, "workspace", "w", "", "Workspace root for this invocation (defaults to config's workspace.root)")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildChatCmd(),
		buildStatusCmd(),
		buildHistoryCmd(),
		buildClearCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}

// configPath and workspacePath are bound by the root command's persistent
// flags and read by every subcommand's handler.
var (
	configPath    string
	workspacePath string
)

func defaultConfigPath() string {
	if v := os.Getenv("NEXUS_CONFIG"); v != "" {
		return v
	}
	return "nexus.yaml"
}

// exitCodeFor maps a returned error to spec §6's exit codes. usageError and
// policyError are sentinel wrappers set by the handlers below; anything
// else is treated as a generic runtime failure.
func exitCodeFor(err error) int {
	switch {
	case asUsageError(err):
		return exitInvalidUsage
	case asPolicyError(err):
		return exitPolicy
	default:
		return exitRuntimeError
	}
}
