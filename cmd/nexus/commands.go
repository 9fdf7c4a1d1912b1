// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder wires its flags to a RunE handler
// defined in handlers.go.
package main

import (
	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/intent"
)

// =============================================================================
// Run Command
// =============================================================================

func buildRunCmd() *cobra.Command {
	var (
		maxIterations int
		domain        string
	)

	cmd := &cobra.Command{
		Use:   "run <task description>",
		Short: "Execute a single task non-interactively and print the result",
		Long: `Classify, plan, and execute a single natural-language task, streaming
progress events to stderr as it runs and printing the final result to
stdout.`,
		Example: `  nexus run "fix the off-by-one error in cmd/nexus/handlers.go"
  nexus run --domain research "summarize the docs in ./docs"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, maxIterations, domain)
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Override the workflow's max iterations (0 = engine default)")
	cmd.Flags().StringVar(&domain, "domain", "", "Override intent classification: coding, research, data, or general")
	return cmd
}

// =============================================================================
// Chat Command
// =============================================================================

func buildChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive read-task-execute loop over stdin/stdout",
		Long: `Read one task per line from stdin, execute it, print the result, and
repeat until stdin is closed or the user types "exit" or "quit".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
	}
	return cmd
}

// =============================================================================
// Status Command
// =============================================================================

func buildStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show LLM endpoint health and sub-agent pool configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}
	return cmd
}

// =============================================================================
// History Command
// =============================================================================

func buildHistoryCmd() *cobra.Command {
	var (
		search string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently executed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, search, limit)
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Only show entries whose task description contains this substring")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries to show (most recent first)")
	return cmd
}

// =============================================================================
// Clear Command
// =============================================================================

func buildClearCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the local task history log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return usageError("clear requires --confirm")
			}
			return runClear(cmd)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm deletion of the history log")
	return cmd
}

// =============================================================================
// Config Command
// =============================================================================

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd)
		},
	}
	return cmd
}

// parseDomainOverride maps a --domain flag value to intent.Domain, returning
// the zero value (no override) for an empty string.
func parseDomainOverride(value string) (intent.Domain, error) {
	switch value {
	case "":
		return "", nil
	case string(intent.DomainCoding), string(intent.DomainResearch), string(intent.DomainData), string(intent.DomainGeneral):
		return intent.Domain(value), nil
	default:
		return "", usageError("invalid --domain " + value + " (want coding, research, data, or general)")
	}
}
