package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the orchestrator.
type Config struct {
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	LLM           LLMConfig           `yaml:"llm"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Tools         ToolsConfig         `yaml:"tools"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig controls distributed tracing export. Metrics are
// always collected in-process; tracing is exported only when Endpoint is
// set, per observability.TraceConfig's no-op-when-empty default.
type ObservabilityConfig struct {
	TracingEndpoint string  `yaml:"tracing_endpoint"`
	SamplingRate    float64 `yaml:"sampling_rate"`
	Insecure        bool    `yaml:"insecure"`
}

// WorkspaceConfig controls the root directory tool execution is confined to.
type WorkspaceConfig struct {
	Root           string   `yaml:"root"`
	CreateIfMissing bool    `yaml:"create_if_missing"`
	ProtectedFiles []string `yaml:"protected_files"`
	ProtectedGlobs []string `yaml:"protected_globs"`
}

// WorkflowConfig controls iteration limits and recursion backstop for the
// plan/check_complexity/execute/reflect state machine.
type WorkflowConfig struct {
	// SoftLimitSimple/HardLimitSimple etc. override the heuristic-derived
	// soft/hard iteration limits per complexity bucket. Zero means use the
	// built-in heuristic (simple 5/10, complex 15/25, default 10/20).
	SoftLimitSimple   int `yaml:"soft_limit_simple"`
	HardLimitSimple   int `yaml:"hard_limit_simple"`
	SoftLimitComplex  int `yaml:"soft_limit_complex"`
	HardLimitComplex  int `yaml:"hard_limit_complex"`
	SoftLimitDefault  int `yaml:"soft_limit_default"`
	HardLimitDefault  int `yaml:"hard_limit_default"`

	// RecursionLimit bounds total plan->reflect re-entries, independent of
	// max_iterations. Default 100.
	RecursionLimit int `yaml:"recursion_limit"`

	// MaxRetriesOnReject bounds how many times a rejected plan may be
	// retried with a fresh workflow state. Default 3.
	MaxRetriesOnReject int `yaml:"max_retries_on_reject"`

	// ComplexityThreshold is the check_complexity node's routing cutoff:
	// complexity_estimate(task) >= this value routes to spawn_sub_agents
	// instead of execute. Default 0.7.
	ComplexityThreshold float64 `yaml:"complexity_threshold"`

	// SubAgentsEnabled gates the complex? predicate: even a task estimated
	// as complex routes to execute instead of spawn_sub_agents when false.
	SubAgentsEnabled bool `yaml:"sub_agents_enabled"`

	// AggregationStrategy selects how spawn_sub_agents combines sub-agent
	// pool results: concatenate, summarize, merge_json, or list. Default
	// concatenate.
	AggregationStrategy string `yaml:"aggregation_strategy"`
}

// ToolsConfig controls the tool set and the safety gate in front of it.
type ToolsConfig struct {
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Policy   PolicyConfig   `yaml:"policy"`
	Pool     PoolConfig     `yaml:"pool"`
}

// PoolConfig controls the sub-agent pool's bounded concurrency.
type PoolConfig struct {
	MaxParallel int           `yaml:"max_parallel"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// SandboxConfig controls the isolated-container execution backend.
type SandboxConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Image          string        `yaml:"image"`
	Timeout        time.Duration `yaml:"timeout"`
	NetworkEnabled bool          `yaml:"network_enabled"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
	CPUMillicores  int           `yaml:"cpu_millicores"`
	MemoryMB       int           `yaml:"memory_mb"`
	// WorkspaceAccess is one of "none", "ro", "rw"; parsed by
	// sandbox.ParseWorkspaceAccess. Defaults to read-only.
	WorkspaceAccess string `yaml:"workspace_access"`
	// Mode is one of "off", "all", "non-main": which sub-agents the Sub-Agent
	// Pool grants the sandbox_execute tool to. Resolved by
	// sandbox.ResolveModeConfig.
	Mode string `yaml:"mode"`
	// Scope is one of "agent", "session", "shared": the sandbox reuse key
	// granularity, per sandbox.ModeConfig.SandboxKey.
	Scope string `yaml:"scope"`
}

// PolicyConfig mirrors the safety gate's policy document.
type PolicyConfig struct {
	Enabled           bool     `yaml:"enabled"`
	CommandAllowlist  []string `yaml:"command_allowlist"`
	CommandDenylist   []string `yaml:"command_denylist"`
	ProtectedFiles    []string `yaml:"protected_files"`
	ProtectedPatterns []string `yaml:"protected_patterns"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file, expanding $include
// directives and environment variables, then applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists; otherwise it builds a config from
// defaults and the environment variables alone (§6: LLM_ENDPOINTS,
// LLM_MODEL, LLM_API_KEY, SANDBOX_IMAGE), so the CLI can run without a
// config file present.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyWorkspaceDefaults(&cfg.Workspace)
	applyLLMDefaults(&cfg.LLM)
	applyWorkflowDefaults(&cfg.Workflow)
	applyToolsDefaults(&cfg.Tools)
	applyLoggingDefaults(&cfg.Logging)
	applyObservabilityDefaults(&cfg.Observability)
}

func applyWorkspaceDefaults(cfg *WorkspaceConfig) {
	if cfg.Root == "" {
		cfg.Root = "./workspaces"
	}
}

func applyWorkflowDefaults(cfg *WorkflowConfig) {
	if cfg.SoftLimitSimple == 0 {
		cfg.SoftLimitSimple = 5
	}
	if cfg.HardLimitSimple == 0 {
		cfg.HardLimitSimple = 10
	}
	if cfg.SoftLimitComplex == 0 {
		cfg.SoftLimitComplex = 15
	}
	if cfg.HardLimitComplex == 0 {
		cfg.HardLimitComplex = 25
	}
	if cfg.SoftLimitDefault == 0 {
		cfg.SoftLimitDefault = 10
	}
	if cfg.HardLimitDefault == 0 {
		cfg.HardLimitDefault = 20
	}
	if cfg.RecursionLimit == 0 {
		cfg.RecursionLimit = 100
	}
	if cfg.MaxRetriesOnReject == 0 {
		cfg.MaxRetriesOnReject = 3
	}
	if cfg.ComplexityThreshold == 0 {
		cfg.ComplexityThreshold = 0.7
	}
	if cfg.AggregationStrategy == "" {
		cfg.AggregationStrategy = "concatenate"
	}
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.Pool.MaxParallel == 0 {
		cfg.Pool.MaxParallel = 4
	}
	if cfg.Pool.TaskTimeout == 0 {
		cfg.Pool.TaskTimeout = 5 * time.Minute
	}
	if cfg.Sandbox.Image == "" {
		cfg.Sandbox.Image = "nexus-sandbox:latest"
	}
	if cfg.Sandbox.Timeout == 0 {
		cfg.Sandbox.Timeout = 300 * time.Second
	}
	if cfg.Sandbox.MaxPoolSize == 0 {
		cfg.Sandbox.MaxPoolSize = 4
	}
	if cfg.Sandbox.WorkspaceAccess == "" {
		cfg.Sandbox.WorkspaceAccess = "ro"
	}
	if cfg.Sandbox.Mode == "" {
		cfg.Sandbox.Mode = "all"
	}
	if cfg.Sandbox.Scope == "" {
		cfg.Sandbox.Scope = "agent"
	}
	cfg.Policy.Enabled = true
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyObservabilityDefaults(cfg *ObservabilityConfig) {
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if value := strings.TrimSpace(os.Getenv("NEXUS_WORKSPACE_ROOT")); value != "" {
		cfg.Workspace.Root = value
	}
	if value := strings.TrimSpace(os.Getenv("NEXUS_LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); value != "" {
		cfg.Observability.TracingEndpoint = value
	}
	if value := strings.TrimSpace(os.Getenv("NEXUS_POOL_MAX_PARALLEL")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Tools.Pool.MaxParallel = parsed
		}
	}

	// §6's documented environment surface: LLM_ENDPOINTS seeds the
	// endpoint map itself (not just API keys) so the CLI can run against a
	// bare environment with no config file at all.
	if len(cfg.LLM.Endpoints) == 0 {
		if raw := strings.TrimSpace(os.Getenv("LLM_ENDPOINTS")); raw != "" {
			cfg.LLM.Endpoints = map[string]LLMEndpointConfig{}
			for i, url := range strings.Split(raw, ",") {
				url = strings.TrimSpace(url)
				if url == "" {
					continue
				}
				id := fmt.Sprintf("endpoint-%d", i)
				cfg.LLM.Endpoints[id] = LLMEndpointConfig{Name: id, BaseURL: url}
				if cfg.LLM.Primary == "" {
					cfg.LLM.Primary = id
				}
			}
		}
	}
	if model := strings.TrimSpace(os.Getenv("LLM_MODEL")); model != "" {
		for id, ep := range cfg.LLM.Endpoints {
			if ep.DefaultModel == "" {
				ep.DefaultModel = model
				cfg.LLM.Endpoints[id] = ep
			}
		}
	}
	if apiKey := strings.TrimSpace(os.Getenv("LLM_API_KEY")); apiKey != "" {
		for id, ep := range cfg.LLM.Endpoints {
			if ep.APIKey == "" {
				ep.APIKey = apiKey
				cfg.LLM.Endpoints[id] = ep
			}
		}
	}
	if image := strings.TrimSpace(os.Getenv("SANDBOX_IMAGE")); image != "" {
		cfg.Tools.Sandbox.Image = image
	}
	if mem := strings.TrimSpace(os.Getenv("SANDBOX_MEMORY")); mem != "" {
		if parsed, err := strconv.Atoi(mem); err == nil {
			cfg.Tools.Sandbox.MemoryMB = parsed
		}
	}
	if cpu := strings.TrimSpace(os.Getenv("SANDBOX_CPU")); cpu != "" {
		if parsed, err := strconv.Atoi(cpu); err == nil {
			cfg.Tools.Sandbox.CPUMillicores = parsed
		}
	}
	// SANDBOX_PORT is part of §6's documented environment surface for hosts
	// that run the sandbox backend as a separate daemon; this Docker-exec
	// backend has no such port to bind, so the variable is accepted by the
	// CLI's env documentation but has nothing to apply to here.

	for id, pcfg := range cfg.LLM.Endpoints {
		if pcfg.APIKey != "" {
			continue
		}
		envKey := "NEXUS_LLM_" + strings.ToUpper(strings.ReplaceAll(id, "-", "_")) + "_API_KEY"
		if value := strings.TrimSpace(os.Getenv(envKey)); value != "" {
			pcfg.APIKey = value
			cfg.LLM.Endpoints[id] = pcfg
		}
	}
}

type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if cfg.Tools.Pool.MaxParallel < 1 {
		issues = append(issues, "tools.pool.max_parallel must be >= 1")
	}
	if cfg.Workflow.RecursionLimit < 1 {
		issues = append(issues, "workflow.recursion_limit must be >= 1")
	}
	if cfg.LLM.Primary != "" {
		if _, ok := cfg.LLM.Endpoints[cfg.LLM.Primary]; !ok {
			issues = append(issues, fmt.Sprintf("llm.endpoints missing entry for primary %q", cfg.LLM.Primary))
		}
	}
	for id, pcfg := range cfg.LLM.Endpoints {
		if strings.TrimSpace(pcfg.BaseURL) == "" {
			issues = append(issues, fmt.Sprintf("llm.endpoints[%s].base_url is required", id))
		}
	}
	if cfg.LLM.Cache.TTL < 0 {
		issues = append(issues, "llm.cache.ttl must be >= 0")
	}
	if cfg.LLM.Retry.MaxAttempts < 0 {
		issues = append(issues, "llm.retry.max_attempts must be >= 0")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
