package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/insightmesh/core"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	require.EqualError(t, err, `TEST_INT_BAD="abc" is not a valid integer`)
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	require.EqualError(t, err, `TEST_BOOL_BAD="maybe" is not a valid boolean`)
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "750ms")
	d, err := envDuration("TEST_DURATION", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, d)

	t.Setenv("TEST_DURATION", "soon")
	_, err = envDuration("TEST_DURATION", time.Second)
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderMock, cfg.Provider)
	assert.Equal(t, 3, cfg.Depth)
	assert.Equal(t, string(core.CircuitSequential), cfg.Circuit)
	assert.Equal(t, 5*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 30*time.Second, cfg.InvocationTimeout)
	assert.Empty(t, cfg.LearningDB)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insightmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
depth: 5
circuit: parallel
run_timeout: 2m
archetypes: [visionary, skeptic, empath]
learning_db: /tmp/history.db
`), 0o600))

	t.Setenv("INSIGHTMESH_DEPTH", "7")
	t.Setenv("INSIGHTMESH_ARCHETYPES", "historian, contrarian")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Depth)
	assert.Equal(t, "parallel", cfg.Circuit)
	assert.Equal(t, 2*time.Minute, cfg.RunTimeout)
	assert.Equal(t, []string{"historian", "contrarian"}, cfg.Archetypes)
	assert.Equal(t, "/tmp/history.db", cfg.LearningDB)

	ec := cfg.Engine()
	assert.Equal(t, 2*time.Minute, ec.RunTimeout)

	rc := cfg.RunDefaults("What should we build next quarter?")
	assert.Equal(t, 7, rc.Depth)
	assert.Equal(t, core.CircuitParallel, rc.Circuit)
}

func TestLoad_CollectsEnvErrors(t *testing.T) {
	t.Setenv("INSIGHTMESH_DEPTH", "deep")
	t.Setenv("INSIGHTMESH_RUN_TIMEOUT", "forever")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INSIGHTMESH_DEPTH")
	assert.Contains(t, err.Error(), "INSIGHTMESH_RUN_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"unknown provider", func(c *Config) { c.Provider = "llama" }, "unknown provider"},
		{"anthropic without key", func(c *Config) { c.Provider = ProviderAnthropic }, "ANTHROPIC_API_KEY"},
		{"openai without key", func(c *Config) { c.Provider = ProviderOpenAI }, "OPENAI_API_KEY"},
		{"depth out of range", func(c *Config) { c.Depth = 11 }, "depth"},
		{"unknown circuit", func(c *Config) { c.Circuit = "spiral" }, "circuit"},
		{"unknown style", func(c *Config) { c.OutputStyle = "haiku" }, "output style"},
		{"negative limit", func(c *Config) { c.MaxConcurrentRuns = -1 }, "negative"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	cfg := Default()
	cfg.Provider = ProviderAnthropic
	cfg.AnthropicAPIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}
