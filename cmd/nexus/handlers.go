// handlers.go contains the RunE handler functions for all CLI commands.
package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/gate"
	"github.com/haasonsaas/nexus/internal/intent"
	"github.com/haasonsaas/nexus/internal/orchestrator"
)

// loadConfig resolves the effective config for this invocation, applying
// the --workspace override on top of whatever config.LoadOrDefault found.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if strings.TrimSpace(workspacePath) != "" {
		cfg.Workspace.Root = workspacePath
	}
	return cfg, nil
}

func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, *eventbus.Bus, error) {
	bus := eventbus.New(256)
	orch, err := orchestrator.New(cfg, bus)
	if err != nil {
		return nil, nil, fmt.Errorf("building orchestrator: %w", err)
	}
	return orch, bus, nil
}

// =============================================================================
// Run Command Handler
// =============================================================================

func runRun(cmd *cobra.Command, args []string, maxIterations int, domain string) error {
	task := strings.Join(args, " ")

	domainOverride, err := parseDomainOverride(domain)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, bus, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	orch.Start(ctx)
	defer orch.Stop()

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		streamEvents(bus.Events(), cmd.ErrOrStderr())
	}()

	result, execErr := orch.ExecuteTask(ctx, orchestrator.Request{
		Task:           task,
		Workspace:      workspacePath,
		MaxIterations:  maxIterations,
		DomainOverride: domainOverride,
	})
	bus.Close()
	<-streamDone

	if recErr := appendHistory(cfg.Workspace.Root, historyEntry{
		TaskID: result.TaskID, Task: task, Success: result.Success,
		Output: result.Output, Error: result.Error, Iterations: result.Iterations,
	}); recErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to record history: %v\n", recErr)
	}

	if execErr != nil {
		return execErr
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Output)
	if !result.Success {
		if isPolicyFailure(result.Error) {
			return wrapPolicyError(fmt.Errorf("task %s failed: %s", result.TaskID, result.Error))
		}
		return fmt.Errorf("task %s failed: %s", result.TaskID, result.Error)
	}
	return nil
}

// isPolicyFailure reports whether a terminal Result.Error string names one
// of the Gate's violation kinds, for exit-code classification (spec §6/§7).
func isPolicyFailure(msg string) bool {
	for _, kind := range []gate.ViolationKind{
		gate.ViolationPathEscape, gate.ViolationProtectedPath,
		gate.ViolationDeniedCommand, gate.ViolationNotAllowlisted,
	} {
		if strings.Contains(msg, string(kind)) {
			return true
		}
	}
	return false
}

// streamEvents drains events until the channel closes, printing a one-line
// summary of each to w.
func streamEvents(events <-chan eventbus.Event, w io.Writer) {
	for ev := range events {
		fmt.Fprintf(w, "[%s] %s %v\n", ev.Type, ev.TaskID, ev.Data)
	}
}

// =============================================================================
// Chat Command Handler
// =============================================================================

func runChat(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, bus, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	orch.Start(ctx)
	defer orch.Stop()
	defer bus.Close()

	go func() {
		for ev := range bus.Events() {
			if ev.Type == eventbus.TypeToolExecuted || ev.Type == eventbus.TypeActionDecided {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %v\n", ev.Type, ev.Data)
			}
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Nexus interactive session. Type a task, or \"exit\"/\"quit\" to leave.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		result, execErr := orch.ExecuteTask(ctx, orchestrator.Request{Task: line, Workspace: workspacePath})
		if recErr := appendHistory(cfg.Workspace.Root, historyEntry{
			TaskID: result.TaskID, Task: line, Success: result.Success,
			Output: result.Output, Error: result.Error, Iterations: result.Iterations,
		}); recErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to record history: %v\n", recErr)
		}
		if execErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", execErr)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Output)
		if !result.Success {
			fmt.Fprintf(cmd.ErrOrStderr(), "task failed: %s\n", result.Error)
		}
	}
	return scanner.Err()
}

// =============================================================================
// Status Command Handler
// =============================================================================

func runStatus(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, _, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	status := orch.Status(cmd.Context())
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "LLM endpoints:")
	if len(status.Endpoints) == 0 {
		fmt.Fprintln(w, "  (none configured)")
	}
	for _, ep := range status.Endpoints {
		fmt.Fprintf(w, "  %-20s %-20s %s\n", ep.ID, ep.Name, ep.Health)
	}
	fmt.Fprintf(w, "Sub-agent pool max_parallel: %d\n", status.MaxParallel)

	counters := orch.Counters()
	domains := make([]string, 0, len(counters))
	for domain := range counters {
		domains = append(domains, string(domain))
	}
	sort.Strings(domains)
	for _, domain := range domains {
		c := counters[intent.Domain(domain)]
		fmt.Fprintf(w, "Domain %-10s total=%d succeeded=%d failed=%d\n", domain, c.Total, c.Succeeded, c.Failed)
	}
	return nil
}

// =============================================================================
// History Command Handler
// =============================================================================

func runHistory(cmd *cobra.Command, search string, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := readHistory(cfg.Workspace.Root, search, limit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "(no history)")
		return nil
	}
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		fmt.Fprintf(w, "%s  [%s]  iterations=%d  %s\n", e.TaskID, status, e.Iterations, e.Task)
	}
	return nil
}

// =============================================================================
// Clear Command Handler
// =============================================================================

func runClear(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := clearHistory(cfg.Workspace.Root); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
	return nil
}

// =============================================================================
// Config Command Handler
// =============================================================================

func runConfig(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
