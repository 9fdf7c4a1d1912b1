package toolset

import (
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/gate"
	"github.com/haasonsaas/nexus/internal/tools/exec"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/internal/tools/sandbox"
)

// Build assembles the full tool catalog for a workspace, wiring every tool
// through a shared Gate and, when enabled, a sandbox executor.
func Build(cfg *config.Config) (*Registry, error) {
	workspace := cfg.Workspace.Root
	policy := gate.Policy{
		Enabled:           cfg.Tools.Policy.Enabled,
		CommandAllowlist:  cfg.Tools.Policy.CommandAllowlist,
		CommandDenylist:   cfg.Tools.Policy.CommandDenylist,
		ProtectedFiles:    append(append([]string{}, cfg.Tools.Policy.ProtectedFiles...), cfg.Workspace.ProtectedFiles...),
		ProtectedPatterns: append(append([]string{}, cfg.Tools.Policy.ProtectedPatterns...), cfg.Workspace.ProtectedGlobs...),
	}
	g := gate.New(workspace, policy)
	resolver := files.Resolver{Root: workspace}
	manager := exec.NewManager(workspace)

	reg := NewRegistry()
	reg.Register(NewReadFileTool(resolver, g))
	reg.Register(NewWriteFileTool(resolver, g))
	reg.Register(NewListDirectoryTool(resolver, g))
	reg.Register(NewSearchFilesTool(resolver, g))
	reg.Register(NewGrepTool(resolver, g))
	reg.Register(NewExecuteCommandTool(manager, g))
	reg.Register(NewExecutePythonTool(manager, g))
	reg.Register(NewGitStatusTool(manager))
	reg.Register(NewGitDiffTool(manager))
	reg.Register(NewGitLogTool(manager))
	reg.Register(NewGitBranchTool(manager))
	reg.Register(NewGitCommitTool(manager))

	if cfg.Tools.Sandbox.Enabled {
		executor, err := sandbox.NewExecutor(
			sandbox.WithWorkspaceRoot(workspace),
			sandbox.WithDefaultTimeout(cfg.Tools.Sandbox.Timeout),
			sandbox.WithNetworkEnabled(cfg.Tools.Sandbox.NetworkEnabled),
			sandbox.WithMaxPoolSize(cfg.Tools.Sandbox.MaxPoolSize),
			sandbox.WithDefaultWorkspaceAccess(sandbox.ParseWorkspaceAccess(cfg.Tools.Sandbox.WorkspaceAccess)),
			sandbox.WithDefaultCPU(cfg.Tools.Sandbox.CPUMillicores),
			sandbox.WithDefaultMemory(cfg.Tools.Sandbox.MemoryMB),
		)
		if err != nil {
			return nil, err
		}
		reg.Register(NewSandboxExecuteTool(executor))
	}

	return reg, nil
}
