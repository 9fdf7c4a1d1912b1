package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/tools/exec"
)

const gitTimeout = 30 * time.Second

// NewGitStatusTool reports the porcelain status of the workspace. No Gate
// command check applies to any git_* tool: the argument surface is
// constrained to git's own vocabulary and git never touches files outside
// the repository it is invoked in.
func NewGitStatusTool(manager *exec.Manager) Tool {
	return &funcTool{
		name: "git_status", description: "Show the working tree status.",
		category: CategoryGit, network: NetworkLocal,
		schema: json.RawMessage(`{"type":"object","properties":{}}`),
		exec: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			return gitRun(ctx, manager, "git status --porcelain=v1 -b")
		},
	}
}

// NewGitDiffTool shows unstaged (or, with staged=true, staged) changes.
func NewGitDiffTool(manager *exec.Manager) Tool {
	return &funcTool{
		name: "git_diff", description: "Show changes between the working tree and the index.",
		category: CategoryGit, network: NetworkLocal,
		schema: json.RawMessage(`{"type":"object","properties":{"staged":{"type":"boolean"},"path":{"type":"string"}}}`),
		exec: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct {
				Staged bool   `json:"staged"`
				Path   string `json:"path"`
			}
			_ = json.Unmarshal(params, &in)
			cmd := "git diff"
			if in.Staged {
				cmd += " --staged"
			}
			if in.Path != "" {
				cmd += " -- " + quoteArg(in.Path)
			}
			return gitRun(ctx, manager, cmd)
		},
	}
}

// NewGitLogTool shows recent commit history.
func NewGitLogTool(manager *exec.Manager) Tool {
	return &funcTool{
		name: "git_log", description: "Show recent commit history.",
		category: CategoryGit, network: NetworkLocal,
		schema: json.RawMessage(`{"type":"object","properties":{"max_count":{"type":"integer","minimum":1}}}`),
		exec: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct {
				MaxCount int `json:"max_count"`
			}
			_ = json.Unmarshal(params, &in)
			if in.MaxCount <= 0 {
				in.MaxCount = 20
			}
			cmd := fmt.Sprintf("git log --max-count=%d --pretty=format:%%H%%x09%%an%%x09%%ad%%x09%%s", in.MaxCount)
			return gitRun(ctx, manager, cmd)
		},
	}
}

// NewGitBranchTool lists or creates branches.
func NewGitBranchTool(manager *exec.Manager) Tool {
	return &funcTool{
		name: "git_branch", description: "List branches, or create one.",
		category: CategoryGit, network: NetworkLocal,
		schema: json.RawMessage(`{"type":"object","properties":{"create":{"type":"string"}}}`),
		exec: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct {
				Create string `json:"create"`
			}
			_ = json.Unmarshal(params, &in)
			cmd := "git branch"
			if in.Create != "" {
				cmd += " " + quoteArg(in.Create)
			} else {
				cmd += " -vv"
			}
			return gitRun(ctx, manager, cmd)
		},
	}
}

// NewGitCommitTool commits staged changes. It rejects an empty staging area
// unless add_all is set, in which case it stages everything first.
func NewGitCommitTool(manager *exec.Manager) Tool {
	return &funcTool{
		name: "git_commit", description: "Commit staged changes.",
		category: CategoryGit, network: NetworkLocal,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"message": {"type": "string"},
				"add_all": {"type": "boolean"}
			},
			"required": ["message"]
		}`),
		exec: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct {
				Message string `json:"message"`
				AddAll  bool   `json:"add_all"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return fail(fmt.Sprintf("invalid parameters: %v", err), nil), nil
			}
			if in.AddAll {
				if res, err := gitRun(ctx, manager, "git add -A"); err != nil || !res.Success {
					return res, err
				}
			}
			status, err := gitRun(ctx, manager, "git diff --staged --name-only")
			if err != nil {
				return status, err
			}
			if strings.TrimSpace(status.Output) == "" {
				return fail("nothing staged to commit (set add_all to stage everything)", nil), nil
			}
			cmd := "git commit -m " + quoteArg(in.Message)
			return gitRun(ctx, manager, cmd)
		},
	}
}

func gitRun(ctx context.Context, manager *exec.Manager, command string) (*Result, error) {
	res, err := manager.RunCommand(ctx, command, "", nil, "", gitTimeout)
	if err != nil {
		return fail(err.Error(), nil), nil
	}
	meta := map[string]any{"return_code": res.ExitCode}
	if res.ExitCode != 0 {
		return &Result{Success: false, Output: res.Stdout, Error: strings.TrimSpace(res.Stderr), Metadata: meta}, nil
	}
	return &Result{Success: true, Output: res.Stdout, Metadata: meta}, nil
}

func quoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// funcTool adapts a plain function into the Tool interface; used for the
// git subcommands where the schema and handler are more naturally written
// inline than as dedicated named types.
type funcTool struct {
	name        string
	description string
	category    Category
	network     NetworkRequirement
	schema      json.RawMessage
	exec        func(ctx context.Context, params json.RawMessage) (*Result, error)
}

func (t *funcTool) Name() string                          { return t.name }
func (t *funcTool) Description() string                   { return t.description }
func (t *funcTool) Category() Category                    { return t.category }
func (t *funcTool) NetworkRequirement() NetworkRequirement { return t.network }
func (t *funcTool) Schema() json.RawMessage                { return t.schema }
func (t *funcTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	return t.exec(ctx, params)
}
