// Package config loads insightmesh settings from an optional YAML file and
// INSIGHTMESH_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/engine"
	"github.com/hupe1980/insightmesh/logging"
)

// Supported generator providers.
const (
	ProviderMock      = "mock"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config holds all application configuration.
type Config struct {
	// Provider settings.
	Provider        string `yaml:"provider"` // "mock", "anthropic" or "openai"
	Model           string `yaml:"model"`    // Provider model id; empty selects the adapter default.
	MaxTokens       int64  `yaml:"max_tokens"`
	Stream          bool   `yaml:"stream"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`

	// Engine settings.
	MaxConcurrentRuns    int           `yaml:"max_concurrent_runs"`
	RunTimeout           time.Duration `yaml:"run_timeout"`
	InvocationTimeout    time.Duration `yaml:"invocation_timeout"`
	MaxInvocationsPerRun int           `yaml:"max_invocations_per_run"`
	RetainFinished       int           `yaml:"retain_finished"`

	// Run defaults applied when a caller leaves a field empty.
	Depth        int      `yaml:"depth"`
	Circuit      string   `yaml:"circuit"`
	EnhancedMode bool     `yaml:"enhanced_mode"`
	OutputStyle  string   `yaml:"output_style"`
	Domain       string   `yaml:"domain"`
	Archetypes   []string `yaml:"archetypes"`

	// ArchetypePack is an optional YAML file merged into the default registry.
	ArchetypePack string `yaml:"archetype_pack"`

	// LearningDB is the SQLite file of the learning store. Empty keeps
	// history in memory for the lifetime of the process.
	LearningDB string `yaml:"learning_db"`

	// Logging settings.
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "text"

	// OTEL settings. An empty endpoint disables export.
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	ec := engine.DefaultConfig
	return Config{
		Provider:             ProviderMock,
		MaxTokens:            512,
		MaxConcurrentRuns:    ec.MaxConcurrentRuns,
		RunTimeout:           ec.RunTimeout,
		InvocationTimeout:    ec.InvocationTimeout,
		MaxInvocationsPerRun: ec.MaxInvocationsPerRun,
		RetainFinished:       ec.RetainFinished,
		Depth:                3,
		Circuit:              string(core.CircuitSequential),
		OutputStyle:          string(core.OutputConcise),
		Domain:               core.DefaultDomain,
		LogLevel:             "info",
		LogFormat:            "text",
		ServiceName:          "insightmesh",
	}
}

// Load reads path (when not empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	c.Provider = envStr("INSIGHTMESH_PROVIDER", c.Provider)
	c.Model = envStr("INSIGHTMESH_MODEL", c.Model)
	c.OpenAIBaseURL = envStr("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.AnthropicAPIKey = envStr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.OpenAIAPIKey = envStr("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.Circuit = envStr("INSIGHTMESH_CIRCUIT", c.Circuit)
	c.OutputStyle = envStr("INSIGHTMESH_OUTPUT_STYLE", c.OutputStyle)
	c.Domain = envStr("INSIGHTMESH_DOMAIN", c.Domain)
	c.ArchetypePack = envStr("INSIGHTMESH_ARCHETYPE_PACK", c.ArchetypePack)
	c.LearningDB = envStr("INSIGHTMESH_LEARNING_DB", c.LearningDB)
	c.LogLevel = envStr("INSIGHTMESH_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("INSIGHTMESH_LOG_FORMAT", c.LogFormat)
	c.OTELEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTELEndpoint)
	c.ServiceName = envStr("OTEL_SERVICE_NAME", c.ServiceName)
	if v := envStr("INSIGHTMESH_ARCHETYPES", ""); v != "" {
		c.Archetypes = splitList(v)
	}

	var maxTokens int
	maxTokens, err = envInt("INSIGHTMESH_MAX_TOKENS", int(c.MaxTokens))
	collect(err)
	c.MaxTokens = int64(maxTokens)
	c.Stream, err = envBool("INSIGHTMESH_STREAM", c.Stream)
	collect(err)
	c.MaxConcurrentRuns, err = envInt("INSIGHTMESH_MAX_CONCURRENT_RUNS", c.MaxConcurrentRuns)
	collect(err)
	c.RunTimeout, err = envDuration("INSIGHTMESH_RUN_TIMEOUT", c.RunTimeout)
	collect(err)
	c.InvocationTimeout, err = envDuration("INSIGHTMESH_INVOCATION_TIMEOUT", c.InvocationTimeout)
	collect(err)
	c.MaxInvocationsPerRun, err = envInt("INSIGHTMESH_MAX_INVOCATIONS_PER_RUN", c.MaxInvocationsPerRun)
	collect(err)
	c.RetainFinished, err = envInt("INSIGHTMESH_RETAIN_FINISHED", c.RetainFinished)
	collect(err)
	c.Depth, err = envInt("INSIGHTMESH_DEPTH", c.Depth)
	collect(err)
	c.EnhancedMode, err = envBool("INSIGHTMESH_ENHANCED", c.EnhancedMode)
	collect(err)
	c.OTELInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", c.OTELInsecure)
	collect(err)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Validate checks bounds that would otherwise surface only at run time.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderMock:
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("config: ANTHROPIC_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			return fmt.Errorf("config: OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	if c.Depth < core.MinDepth || c.Depth > core.MaxDepth {
		return fmt.Errorf("config: depth must be within [%d,%d], got %d", core.MinDepth, core.MaxDepth, c.Depth)
	}
	if _, err := core.ParseCircuitType(c.Circuit); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch core.OutputStyle(c.OutputStyle) {
	case "", core.OutputConcise, core.OutputDetailed, core.OutputNarrative:
	default:
		return fmt.Errorf("config: unknown output style %q", c.OutputStyle)
	}
	if c.MaxConcurrentRuns < 0 || c.MaxInvocationsPerRun < 0 || c.RetainFinished < 0 {
		return fmt.Errorf("config: run limits must not be negative")
	}
	if c.RunTimeout < 0 || c.InvocationTimeout < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("config: log format must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// Engine returns the engine settings.
func (c Config) Engine() engine.Config {
	ec := engine.DefaultConfig
	ec.MaxConcurrentRuns = c.MaxConcurrentRuns
	ec.RunTimeout = c.RunTimeout
	ec.InvocationTimeout = c.InvocationTimeout
	ec.MaxInvocationsPerRun = c.MaxInvocationsPerRun
	ec.RetainFinished = c.RetainFinished
	return ec
}

// RunDefaults returns a run configuration carrying the configured defaults
// for question. Archetypes are left for the caller to resolve.
func (c Config) RunDefaults(question string) core.RunConfiguration {
	return core.RunConfiguration{
		Question:     question,
		Depth:        c.Depth,
		Circuit:      core.CircuitType(c.Circuit),
		EnhancedMode: c.EnhancedMode,
		OutputStyle:  core.OutputStyle(c.OutputStyle),
		Domain:       c.Domain,
	}
}

// Logger builds the process logger.
func (c Config) Logger() *logging.InsightLogger {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		level = logging.LogLevelInfo
	}
	return logging.NewSlogLogger(level, c.LogFormat, false)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
