package toolset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"unicode/utf8"

	"github.com/haasonsaas/nexus/internal/gate"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/tools/files"
)

const defaultMaxReadBytes = 10 * 1024 * 1024 // 10 MiB

// ReadFileTool reads a text file from the workspace, refusing binary
// content and anything over max_size.
type ReadFileTool struct {
	resolver files.Resolver
	gate     *gate.Gate
}

func NewReadFileTool(resolver files.Resolver, g *gate.Gate) *ReadFileTool {
	return &ReadFileTool{resolver: resolver, gate: g}
}

func (t *ReadFileTool) Name() string                            { return "read_file" }
func (t *ReadFileTool) Description() string                     { return "Read a text file from the workspace." }
func (t *ReadFileTool) Category() Category                      { return CategoryFile }
func (t *ReadFileTool) NetworkRequirement() NetworkRequirement   { return NetworkLocal }
func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"max_size": {"type": "integer", "minimum": 1}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Path    string `json:"path"`
		MaxSize int64  `json:"max_size"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail(fmt.Sprintf("invalid parameters: %v", err), nil), nil
	}
	if err := t.gate.CheckFileAccess(in.Path, gate.ModeRead); err != nil {
		return fail(err.Error(), map[string]any{"violation": violationKind(err)}), nil
	}
	maxSize := int64(defaultMaxReadBytes)
	if in.MaxSize > 0 && in.MaxSize < maxSize {
		maxSize = in.MaxSize
	}

	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return fail(err.Error(), nil), nil
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return fail(err.Error(), nil), nil
	}
	if info.Size() > maxSize {
		return fail(fmt.Sprintf("file is %d bytes, exceeds max_size %d", info.Size(), maxSize), nil), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fail(err.Error(), nil), nil
	}
	if isBinary(data) {
		return fail("file appears to be binary", nil), nil
	}
	return ok(string(data), map[string]any{"path": in.Path, "bytes": len(data)}), nil
}

func isBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if !utf8.Valid(data) {
		return true
	}
	for _, b := range data {
		if b == 0 {
			return true
		}
	}
	return false
}

// WriteFileTool writes content to a file under the workspace, through the
// Gate's protected-path checks.
type WriteFileTool struct {
	resolver files.Resolver
	gate     *gate.Gate
}

func NewWriteFileTool(resolver files.Resolver, g *gate.Gate) *WriteFileTool {
	return &WriteFileTool{resolver: resolver, gate: g}
}

func (t *WriteFileTool) Name() string                          { return "write_file" }
func (t *WriteFileTool) Description() string                   { return "Write content to a file in the workspace." }
func (t *WriteFileTool) Category() Category                    { return CategoryFile }
func (t *WriteFileTool) NetworkRequirement() NetworkRequirement { return NetworkLocal }
func (t *WriteFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"content": {"type": "string"},
			"create_dirs": {"type": "boolean"}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFileTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Path       string `json:"path"`
		Content    string `json:"content"`
		CreateDirs bool   `json:"create_dirs"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail(fmt.Sprintf("invalid parameters: %v", err), nil), nil
	}
	if err := t.gate.CheckFileAccess(in.Path, gate.ModeWrite); err != nil {
		return fail(err.Error(), map[string]any{"violation": violationKind(err)}), nil
	}

	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return fail(err.Error(), nil), nil
	}
	dir := filepath.Dir(resolved)
	if _, statErr := os.Stat(dir); statErr != nil {
		if !in.CreateDirs {
			return fail(fmt.Sprintf("parent directory does not exist: %s", dir), nil), nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fail(err.Error(), nil), nil
		}
	}
	if err := os.WriteFile(resolved, []byte(in.Content), 0o644); err != nil {
		return fail(err.Error(), nil), nil
	}
	return ok(jsonResult(map[string]any{"path": in.Path, "bytes_written": len(in.Content)}),
		map[string]any{"bytes_written": len(in.Content)}), nil
}

// ListDirectoryTool lists directory entries, optionally recursively, up to
// max_depth, skipping any entry whose stat fails.
type ListDirectoryTool struct {
	resolver files.Resolver
	gate     *gate.Gate
}

func NewListDirectoryTool(resolver files.Resolver, g *gate.Gate) *ListDirectoryTool {
	return &ListDirectoryTool{resolver: resolver, gate: g}
}

func (t *ListDirectoryTool) Name() string                          { return "list_directory" }
func (t *ListDirectoryTool) Description() string                   { return "List entries in a workspace directory." }
func (t *ListDirectoryTool) Category() Category                    { return CategoryFile }
func (t *ListDirectoryTool) NetworkRequirement() NetworkRequirement { return NetworkLocal }
func (t *ListDirectoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"recursive": {"type": "boolean"},
			"max_depth": {"type": "integer", "minimum": 1}
		},
		"required": ["path"]
	}`)
}

type dirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

func (t *ListDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
		MaxDepth  int    `json:"max_depth"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail(fmt.Sprintf("invalid parameters: %v", err), nil), nil
	}
	if err := t.gate.CheckFileAccess(in.Path, gate.ModeRead); err != nil {
		return fail(err.Error(), map[string]any{"violation": violationKind(err)}), nil
	}
	maxDepth := in.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	root, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return fail(err.Error(), nil), nil
	}

	var entries []dirEntry
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		items, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, item := range items {
			info, err := item.Info()
			if err != nil {
				continue // skip entries whose stat fails
			}
			entryType := "file"
			if info.IsDir() {
				entryType = "directory"
			}
			rel, _ := filepath.Rel(root, filepath.Join(dir, item.Name()))
			entries = append(entries, dirEntry{Name: rel, Type: entryType, Size: info.Size()})
			if info.IsDir() && in.Recursive && depth < maxDepth {
				_ = walk(filepath.Join(dir, item.Name()), depth+1)
			}
		}
		return nil
	}
	if err := walk(root, 1); err != nil {
		return fail(err.Error(), nil), nil
	}
	return ok(jsonResult(map[string]any{"entries": entries}), map[string]any{"count": len(entries)}), nil
}

// SearchFilesTool finds workspace paths matching a glob pattern.
type SearchFilesTool struct {
	resolver files.Resolver
	gate     *gate.Gate
}

func NewSearchFilesTool(resolver files.Resolver, g *gate.Gate) *SearchFilesTool {
	return &SearchFilesTool{resolver: resolver, gate: g}
}

func (t *SearchFilesTool) Name() string                          { return "search_files" }
func (t *SearchFilesTool) Description() string                   { return "Find workspace files matching a glob pattern." }
func (t *SearchFilesTool) Category() Category                    { return CategorySearch }
func (t *SearchFilesTool) NetworkRequirement() NetworkRequirement { return NetworkLocal }
func (t *SearchFilesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string"},
			"path": {"type": "string"},
			"max_results": {"type": "integer", "minimum": 1}
		},
		"required": ["pattern"]
	}`)
}

func (t *SearchFilesTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Pattern    string `json:"pattern"`
		Path       string `json:"path"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail(fmt.Sprintf("invalid parameters: %v", err), nil), nil
	}
	searchPath := in.Path
	if searchPath == "" {
		searchPath = "."
	}
	if err := t.gate.CheckFileAccess(searchPath, gate.ModeRead); err != nil {
		return fail(err.Error(), map[string]any{"violation": violationKind(err)}), nil
	}
	maxResults := in.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}
	root, err := t.resolver.Resolve(searchPath)
	if err != nil {
		return fail(err.Error(), nil), nil
	}

	var matches []string
	truncated := false
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if len(matches) >= maxResults {
			truncated = true
			return filepath.SkipAll
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		matched, matchErr := filepath.Match(in.Pattern, filepath.Base(rel))
		if matchErr == nil && matched {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return fail(err.Error(), nil), nil
	}
	return ok(jsonResult(map[string]any{"matches": matches, "truncated": truncated}),
		map[string]any{"count": len(matches), "truncated": truncated}), nil
}

// GrepTool searches file contents for a pattern, literal or regex.
type GrepTool struct {
	resolver files.Resolver
	gate     *gate.Gate
}

func NewGrepTool(resolver files.Resolver, g *gate.Gate) *GrepTool {
	return &GrepTool{resolver: resolver, gate: g}
}

func (t *GrepTool) Name() string                          { return "grep" }
func (t *GrepTool) Description() string                   { return "Search file contents for a pattern." }
func (t *GrepTool) Category() Category                    { return CategorySearch }
func (t *GrepTool) NetworkRequirement() NetworkRequirement { return NetworkLocal }
func (t *GrepTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string"},
			"file_glob": {"type": "string"},
			"case_sensitive": {"type": "boolean"},
			"regex": {"type": "boolean"},
			"max_matches": {"type": "integer", "minimum": 1},
			"context_lines": {"type": "integer", "minimum": 0}
		},
		"required": ["pattern"]
	}`)
}

type grepMatch struct {
	File    string   `json:"file"`
	Line    int      `json:"line"`
	Content string   `json:"content"`
	Start   int      `json:"start"`
	End     int      `json:"end"`
	Before  []string `json:"before,omitempty"`
	After   []string `json:"after,omitempty"`
}

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Pattern       string `json:"pattern"`
		FileGlob      string `json:"file_glob"`
		CaseSensitive bool   `json:"case_sensitive"`
		Regex         bool   `json:"regex"`
		MaxMatches    int    `json:"max_matches"`
		ContextLines  int    `json:"context_lines"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail(fmt.Sprintf("invalid parameters: %v", err), nil), nil
	}
	if err := t.gate.CheckFileAccess(".", gate.ModeRead); err != nil {
		return fail(err.Error(), map[string]any{"violation": violationKind(err)}), nil
	}
	maxMatches := in.MaxMatches
	if maxMatches <= 0 {
		maxMatches = 100
	}
	glob := in.FileGlob
	if glob == "" {
		glob = "*"
	}

	pattern := in.Pattern
	if !in.Regex {
		pattern = regexp.QuoteMeta(pattern)
	}
	if !in.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fail(fmt.Sprintf("invalid pattern: %v", err), nil), nil
	}

	root, err := t.resolver.Resolve(".")
	if err != nil {
		return fail(err.Error(), nil), nil
	}

	var matches []grepMatch
	truncated := false
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || len(matches) >= maxMatches {
			if len(matches) >= maxMatches {
				truncated = true
				return filepath.SkipAll
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if matched, _ := filepath.Match(glob, filepath.Base(rel)); !matched {
			return nil
		}
		lines, err := readLines(path)
		if err != nil {
			return nil // skip unreadable files
		}
		for i, line := range lines {
			if len(matches) >= maxMatches {
				truncated = true
				break
			}
			loc := re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			m := grepMatch{File: rel, Line: i + 1, Content: line, Start: loc[0], End: loc[1]}
			if in.ContextLines > 0 {
				m.Before = contextSlice(lines, i-in.ContextLines, i)
				m.After = contextSlice(lines, i+1, i+1+in.ContextLines)
			}
			matches = append(matches, m)
		}
		return nil
	})
	if walkErr != nil {
		return fail(walkErr.Error(), nil), nil
	}
	return ok(jsonResult(map[string]any{"matches": matches, "truncated": truncated}),
		map[string]any{"count": len(matches), "truncated": truncated}), nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	return lines, nil
}

func contextSlice(lines []string, from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from >= to {
		return nil
	}
	out := make([]string, to-from)
	copy(out, lines[from:to])
	return out
}

func violationKind(err error) string {
	if v, ok := gate.AsViolation(err); ok {
		observability.NewMetrics().RecordGateViolation(string(v.Kind))
		return string(v.Kind)
	}
	return ""
}
