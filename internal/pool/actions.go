package pool

// actionTools maps the execute-node action vocabulary (spec §4.G) to the
// underlying toolset tool name a sub-agent invokes to perform it. COMPLETE
// is handled directly by the loop and has no backing tool.
var actionTools = map[string]string{
	"READ_FILE":       "read_file",
	"WRITE_FILE":      "write_file",
	"LIST_DIRECTORY":  "list_directory",
	"SEARCH_FILES":    "search_files",
	"SEARCH_CODE":     "grep",
	"RUN_COMMAND":     "execute_command",
	"RUN_PYTHON":      "execute_python",
	"GIT_STATUS":      "git_status",
	"GIT_DIFF":        "git_diff",
	"GIT_LOG":         "git_log",
	"GIT_BRANCH":      "git_branch",
	"GIT_COMMIT":      "git_commit",
	"SANDBOX_EXECUTE": "sandbox_execute",
}

const completeAction = "COMPLETE"
