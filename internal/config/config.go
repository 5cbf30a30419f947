// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/xonecas/agentcore/internal/agent"
	"github.com/xonecas/agentcore/internal/cachebreak"
	"github.com/xonecas/agentcore/internal/compact"
	"github.com/xonecas/agentcore/internal/llmprovider"
	"github.com/xonecas/agentcore/internal/retry"
	"github.com/xonecas/agentcore/internal/schedule"
	"github.com/xonecas/agentcore/internal/tracker"
)

// Config is the root configuration structure.
type Config struct {
	DefaultProvider string                    `toml:"default_provider"`
	Providers       map[string]ProviderConfig `toml:"providers"`
	Context         ContextConfig             `toml:"context"`
	Limits          LimitsConfig              `toml:"limits"`
	Retry           RetryConfig               `toml:"retry"`
	Scheduler       SchedulerConfig           `toml:"scheduler"`
	Steering        SteeringConfig            `toml:"steering"`
	Cache           CacheConfig               `toml:"cache"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	// Kind selects the adapter: "anthropic", "openai" (also used for any
	// OpenAI Chat Completions-compatible backend), or "zen".
	Kind          string  `toml:"kind"`
	Endpoint      string  `toml:"endpoint"`
	Model         string  `toml:"model"`
	Temperature   float64 `toml:"temperature"`
	ThinkingLevel string  `toml:"thinking_level"`
}

// ContextConfig controls compaction thresholds.
type ContextConfig struct {
	MaxContextTokens    int `toml:"max_context_tokens"`
	SystemPromptTokens  int `toml:"system_prompt_tokens"`
	KeepRecent          int `toml:"keep_recent"`
	KeepFirst           int `toml:"keep_first"`
	ToolOutputMaxLines  int `toml:"tool_output_max_lines"`
}

// LimitsConfig bounds a single invocation.
type LimitsConfig struct {
	MaxTurns         int `toml:"max_turns"`
	MaxTotalTokens   int `toml:"max_total_tokens"`
	MaxDurationSecs  int `toml:"max_duration_secs"`
}

// RetryConfig configures the provider-call retry schedule.
type RetryConfig struct {
	MaxRetries        int     `toml:"max_retries"`
	InitialDelayMs    int     `toml:"initial_delay_ms"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	MaxDelayMs        int     `toml:"max_delay_ms"`
	// TokensPerMinute seeds the adaptive rate limiter guarding provider
	// calls. Each rate-limit response halves the budget, never below 10%
	// of this, and it recovers gradually on success, up to this ceiling.
	// 0 uses 60000.
	TokensPerMinute int `toml:"tokens_per_minute"`
}

// SchedulerConfig selects the tool-execution strategy.
type SchedulerConfig struct {
	// Strategy is one of "sequential", "parallel" (default), "batched".
	Strategy string `toml:"strategy"`
	// BatchSize is used only when Strategy is "batched".
	BatchSize int `toml:"batch_size"`
}

// SteeringConfig selects injection-queue drain policy. Steering and
// follow-up are independently configurable: a caller may want mid-turn
// steering hints delivered one at a time while queued follow-ups all land
// together, or vice versa.
type SteeringConfig struct {
	// SteeringMode is one of "one_at_a_time" (default) or "all", applied to
	// the steering queue.
	SteeringMode string `toml:"steering_mode"`
	// FollowUpMode is one of "one_at_a_time" (default) or "all", applied to
	// the follow-up queue.
	FollowUpMode string `toml:"follow_up_mode"`
}

// CacheConfig holds web-fetch cache settings.
type CacheConfig struct {
	TTLHours int `toml:"ttl_hours"`
}

// CacheTTLOrDefault returns the configured TTL or 24 hours if unset.
func (c CacheConfig) CacheTTLOrDefault() time.Duration {
	if c.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TTLHours) * time.Hour
}

// Load reads configuration from a TOML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Providers: make(map[string]ProviderConfig),
	}

	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("providers: at least one provider must be configured"))
	} else {
		for name, providerCfg := range c.Providers {
			errs = append(errs, validateProviderConfig(name, providerCfg)...)
		}
	}

	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			errs = append(errs, fmt.Errorf("default_provider=%q does not exist in providers", c.DefaultProvider))
		}
	}

	switch c.Scheduler.Strategy {
	case "", "sequential", "parallel", "batched":
	default:
		errs = append(errs, fmt.Errorf("scheduler.strategy=%q must be one of sequential, parallel, batched", c.Scheduler.Strategy))
	}

	switch c.Steering.SteeringMode {
	case "", "one_at_a_time", "all":
	default:
		errs = append(errs, fmt.Errorf("steering.steering_mode=%q must be one of one_at_a_time, all", c.Steering.SteeringMode))
	}

	switch c.Steering.FollowUpMode {
	case "", "one_at_a_time", "all":
	default:
		errs = append(errs, fmt.Errorf("steering.follow_up_mode=%q must be one of one_at_a_time, all", c.Steering.FollowUpMode))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateProviderConfig(name string, cfg ProviderConfig) []error {
	var errs []error
	switch cfg.Kind {
	case "", "anthropic", "openai", "zen":
	default:
		errs = append(errs, fmt.Errorf("providers.%s.kind=%q must be one of anthropic, openai, zen", name, cfg.Kind))
	}
	if cfg.Endpoint == "" {
		errs = append(errs, fmt.Errorf("providers.%s.endpoint is required", name))
	} else if err := validateEndpoint(cfg.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("providers.%s.endpoint=%q is invalid: %v", name, cfg.Endpoint, err))
	}

	if cfg.Model == "" {
		errs = append(errs, fmt.Errorf("providers.%s.model is required", name))
	}

	if cfg.Temperature < 0.0 || cfg.Temperature > 2.0 {
		errs = append(errs, fmt.Errorf("providers.%s.temperature=%v must be between 0.0 and 2.0", name, cfg.Temperature))
	}

	switch cfg.ThinkingLevel {
	case "", "off", "minimal", "low", "medium", "high":
	default:
		errs = append(errs, fmt.Errorf("providers.%s.thinking_level=%q must be one of off, minimal, low, medium, high", name, cfg.ThinkingLevel))
	}

	return errs
}

func validateEndpoint(value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("missing scheme or host")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	for _, setter := range []struct {
		env   string
		apply func(string)
	}{
		{"AGENTCORE_DEFAULT_PROVIDER", func(v string) {
			if v != "" {
				cfg.DefaultProvider = v
			}
		}},
	} {
		setter.apply(os.Getenv(setter.env))
	}
}

// DataDir returns the path to the agentcore data directory (~/.config/agentcore).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "agentcore"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	return dir, nil
}

// BuildPolicy translates one provider's configuration plus the shared
// context/limits/retry/scheduler/steering settings into an agent.Policy.
// estimate and summarizer plug in the running tracker/compactor behavior a
// caller has already wired up (tracker.Tracker.Estimate and a model-backed
// Summarizer, typically).
func (c *Config) BuildPolicy(provider string, estimate compact.EstimateFunc, summarizer compact.Summarizer) (agent.Policy, error) {
	providerCfg, ok := c.Providers[provider]
	if !ok {
		return agent.Policy{}, fmt.Errorf("unknown provider %q", provider)
	}

	ctx := c.Context
	if ctx.MaxContextTokens <= 0 {
		ctx.MaxContextTokens = 100000
	}
	if ctx.SystemPromptTokens <= 0 {
		ctx.SystemPromptTokens = 4000
	}
	if ctx.KeepRecent <= 0 {
		ctx.KeepRecent = 10
	}
	if ctx.KeepFirst <= 0 {
		ctx.KeepFirst = 2
	}
	if ctx.ToolOutputMaxLines <= 0 {
		ctx.ToolOutputMaxLines = 50
	}

	lim := c.Limits
	if lim.MaxTurns <= 0 {
		lim.MaxTurns = 50
	}
	if lim.MaxTotalTokens <= 0 {
		lim.MaxTotalTokens = 1000000
	}
	if lim.MaxDurationSecs <= 0 {
		lim.MaxDurationSecs = 600
	}

	r := c.Retry
	if r.MaxRetries <= 0 {
		r.MaxRetries = 3
	}
	if r.InitialDelayMs <= 0 {
		r.InitialDelayMs = 1000
	}
	if r.BackoffMultiplier <= 0 {
		r.BackoffMultiplier = 2.0
	}
	if r.MaxDelayMs <= 0 {
		r.MaxDelayMs = 30000
	}
	if r.TokensPerMinute <= 0 {
		r.TokensPerMinute = 60000
	}

	compactor := compact.New(estimate, summarizer)
	compactor.KeepRecentTurns = ctx.KeepRecent
	compactor.KeepFirstTurns = ctx.KeepFirst
	compactor.ToolOutputMaxLines = ctx.ToolOutputMaxLines

	policy := agent.Policy{
		Retry: retry.Policy{
			MaxAttempts: r.MaxRetries + 1,
			BaseDelay:   time.Duration(r.InitialDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(r.MaxDelayMs) * time.Millisecond,
			Multiplier:  r.BackoffMultiplier,
			RateLimiter: retry.NewLimiter(float64(r.TokensPerMinute), float64(r.TokensPerMinute)),
		},
		Tracker:       tracker.New(ctx.MaxContextTokens),
		Compactor:     compactor,
		ContextBudget: ctx.MaxContextTokens - ctx.SystemPromptTokens,
		Cache:         cachebreak.AutoPlacer(),
		Scheduler:     schedulerFor(c.Scheduler),
		SteeringMode:  deliveryModeFor(c.Steering.SteeringMode),
		FollowUpMode:  deliveryModeFor(c.Steering.FollowUpMode),
		Limits: agent.Limits{
			MaxTurns:            lim.MaxTurns,
			MaxCumulativeTokens: lim.MaxTotalTokens,
			MaxWallClock:        time.Duration(lim.MaxDurationSecs) * time.Second,
		},
		GenOptions: llmprovider.GenOptions{
			Temperature:   providerCfg.Temperature,
			ThinkingLevel: llmprovider.ThinkingLevel(thinkingLevelOrDefault(providerCfg.ThinkingLevel)),
		},
	}

	return policy, nil
}

func thinkingLevelOrDefault(level string) string {
	if level == "" {
		return string(llmprovider.ThinkingOff)
	}
	return level
}

func schedulerFor(cfg SchedulerConfig) *schedule.Scheduler {
	switch cfg.Strategy {
	case "sequential":
		return schedule.New(schedule.SequentialStrategy{})
	case "batched":
		size := cfg.BatchSize
		if size <= 0 {
			size = 1
		}
		return schedule.New(schedule.BatchedStrategy{Size: size})
	default:
		return schedule.New(schedule.ParallelStrategy{})
	}
}

func deliveryModeFor(mode string) agent.DeliveryMode {
	if mode == "all" {
		return agent.All
	}
	return agent.OneAtATime
}
