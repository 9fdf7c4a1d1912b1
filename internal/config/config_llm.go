package config

import "time"

// LLMConfig configures the failover LLM client: a set of named endpoints,
// which one to prefer, and the retry/cache/health-probe policy shared
// across all of them.
type LLMConfig struct {
	// Primary is the endpoint ID tried first when healthy.
	Primary string `yaml:"primary"`

	Endpoints map[string]LLMEndpointConfig `yaml:"endpoints"`

	Retry  LLMRetryConfig  `yaml:"retry"`
	Cache  LLMCacheConfig  `yaml:"cache"`
	Health LLMHealthConfig `yaml:"health"`
}

// LLMEndpointConfig describes one OpenAI-compatible wire endpoint.
type LLMEndpointConfig struct {
	Name         string        `yaml:"name"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	Timeout      time.Duration `yaml:"timeout"`

	// Adapter selects response post-processing: "openai" (default),
	// "deepseek-r1" (strips <think> chain-of-thought), "qwen", "gpt-oss".
	Adapter string `yaml:"adapter"`
}

// LLMRetryConfig controls the retry/backoff formula:
// backoff_base * 2^attempt * (0.5 + rand()).
type LLMRetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
}

// LLMCacheConfig controls the response cache keyed on
// (hash(messages), temperature, max_tokens). Only entries requested with
// temperature < TemperatureCeiling are eligible.
type LLMCacheConfig struct {
	Enabled            bool          `yaml:"enabled"`
	TTL                time.Duration `yaml:"ttl"`
	MaxEntries         int           `yaml:"max_entries"`
	TemperatureCeiling float64       `yaml:"temperature_ceiling"`
}

// LLMHealthConfig controls the background endpoint health prober.
type LLMHealthConfig struct {
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	DegradedAfter  int           `yaml:"degraded_after_failures"`
	UnhealthyAfter int           `yaml:"unhealthy_after_failures"`
	RecoveryAfter  int           `yaml:"recovery_after_successes"`
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BackoffBase == 0 {
		cfg.Retry.BackoffBase = 250 * time.Millisecond
	}
	if cfg.Retry.BackoffCap == 0 {
		cfg.Retry.BackoffCap = 10 * time.Second
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 512
	}
	if cfg.Cache.TemperatureCeiling == 0 {
		cfg.Cache.TemperatureCeiling = 0.5
	}
	if cfg.Health.ProbeInterval == 0 {
		cfg.Health.ProbeInterval = 30 * time.Second
	}
	if cfg.Health.DegradedAfter == 0 {
		cfg.Health.DegradedAfter = 1
	}
	if cfg.Health.UnhealthyAfter == 0 {
		cfg.Health.UnhealthyAfter = 3
	}
	if cfg.Health.RecoveryAfter == 0 {
		cfg.Health.RecoveryAfter = 2
	}
	for id, ep := range cfg.Endpoints {
		if ep.Adapter == "" {
			ep.Adapter = "openai"
			cfg.Endpoints[id] = ep
		}
	}
}
