package modloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, DefaultModuleTimeout, cfg.DefaultTimeout.Std())
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay.Std())
	assert.Equal(t, DefaultMaxRetryDelay, cfg.MaxRetryDelay.Std())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFileYAML(t *testing.T) {
	path := writeConfigFile(t, "modloader.yaml", `
default_timeout: 10s
max_retries: 5
retry_delay: 50ms
max_retry_delay: 1s
health_check_schedule: "@every 15s"
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.DefaultTimeout.Std())
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryDelay.Std())
	assert.Equal(t, time.Second, cfg.MaxRetryDelay.Std())
	assert.Equal(t, "@every 15s", cfg.HealthCheckSchedule)
}

func TestLoadConfigFileTOML(t *testing.T) {
	path := writeConfigFile(t, "modloader.toml", `
default_timeout = "2s"
max_retries = 2
retry_delay = "10ms"
max_retry_delay = "500ms"
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.DefaultTimeout.Std())
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.RetryDelay.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.MaxRetryDelay.Std())
}

func TestLoadConfigFilePartialKeepsDefaults(t *testing.T) {
	path := writeConfigFile(t, "partial.yaml", "max_retries: 7\n")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, DefaultModuleTimeout, cfg.DefaultTimeout.Std())
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay.Std())
}

func TestLoadConfigFileUnsupportedExtension(t *testing.T) {
	path := writeConfigFile(t, "modloader.ini", "max_retries=2\n")

	_, err := LoadConfigFile(path)
	assert.ErrorIs(t, err, ErrUnsupportedConfigFormat)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	path := writeConfigFile(t, "modloader.yaml", "max_retries: 2\nretry_delay: 50ms\n")

	t.Setenv("MODLOADER_MAX_RETRIES", "9")
	t.Setenv("MODLOADER_RETRY_DELAY", "250ms")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay.Std())
}

func TestEnvOverrideInvalidValue(t *testing.T) {
	path := writeConfigFile(t, "modloader.yaml", "max_retries: 2\n")
	t.Setenv("MODLOADER_MAX_RETRIES", "not-a-number")

	_, err := LoadConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MODLOADER_MAX_RETRIES")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"zero timeout", func(c *Config) { c.DefaultTimeout = 0 }},
		{"negative delay", func(c *Config) { c.RetryDelay = Duration(-time.Second) }},
		{"delay above cap", func(c *Config) {
			c.RetryDelay = Duration(5 * time.Second)
			c.MaxRetryDelay = Duration(time.Second)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
		})
	}
}

func TestWithConfigAppliesToOrchestrator(t *testing.T) {
	cfg := NewConfig()
	cfg.MaxRetries = 6
	cfg.RetryDelay = Duration(30 * time.Millisecond)
	cfg.MaxRetryDelay = Duration(time.Second)
	cfg.DefaultTimeout = Duration(5 * time.Second)

	orch := NewOrchestrator(NewRegistry(), &testLogger{}, WithConfig(cfg))
	assert.Equal(t, 6, orch.maxRetries)
	assert.Equal(t, 30*time.Millisecond, orch.retryDelay)
	assert.Equal(t, time.Second, orch.maxRetryDelay)
	assert.Equal(t, 5*time.Second, orch.defaultTimeout)
}

func TestDurationMarshalText(t *testing.T) {
	text, err := Duration(1500 * time.Millisecond).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", string(text))

	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("750ms")))
	assert.Equal(t, 750*time.Millisecond, d.Std())

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
