package modloader

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to the env tag of every Config field when applying
// environment overrides, e.g. MODLOADER_MAX_RETRIES.
const EnvPrefix = "MODLOADER"

// Duration wraps time.Duration so config files can use human-readable
// values like "100ms" or "30s" in both YAML and TOML.
type Duration time.Duration

// UnmarshalText parses a duration from its textual form. BurntSushi/toml
// and yaml.v3 both route scalar values through this method.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("cannot parse duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML parses a duration scalar from a YAML document. yaml.v3 does
// not route through encoding.TextUnmarshaler, so the hook is explicit.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string scalar: %w", err)
	}
	return d.UnmarshalText([]byte(raw))
}

// MarshalText renders the duration in time.Duration syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the orchestrator's tunable settings. Values can come from a
// YAML or TOML file, with environment variables taking precedence over both.
type Config struct {
	// DefaultTimeout bounds a single load attempt for descriptors that do
	// not set their own timeout.
	DefaultTimeout Duration `yaml:"default_timeout" toml:"default_timeout" env:"DEFAULT_TIMEOUT"`

	// MaxRetries is the attempt budget for transient failures.
	MaxRetries int `yaml:"max_retries" toml:"max_retries" env:"MAX_RETRIES"`

	// RetryDelay is the base exponential backoff delay.
	RetryDelay Duration `yaml:"retry_delay" toml:"retry_delay" env:"RETRY_DELAY"`

	// MaxRetryDelay caps the backoff delay.
	MaxRetryDelay Duration `yaml:"max_retry_delay" toml:"max_retry_delay" env:"MAX_RETRY_DELAY"`

	// HealthCheckSchedule is the cron expression used by the periodic
	// health monitor. Empty disables scheduled evaluation.
	HealthCheckSchedule string `yaml:"health_check_schedule" toml:"health_check_schedule" env:"HEALTH_CHECK_SCHEDULE"`
}

// NewConfig returns the default orchestrator configuration.
func NewConfig() Config {
	return Config{
		DefaultTimeout: Duration(DefaultModuleTimeout),
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     Duration(DefaultRetryDelay),
		MaxRetryDelay:  Duration(DefaultMaxRetryDelay),
	}
}

// Validate checks the configuration for values the orchestrator cannot run
// with.
func (c *Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1, got %d", ErrConfigInvalid, c.MaxRetries)
	}
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("%w: default_timeout must be positive, got %s", ErrConfigInvalid, c.DefaultTimeout.Std())
	}
	if c.RetryDelay < 0 || c.MaxRetryDelay < 0 {
		return fmt.Errorf("%w: retry delays must not be negative", ErrConfigInvalid)
	}
	if c.RetryDelay > c.MaxRetryDelay {
		return fmt.Errorf("%w: retry_delay %s exceeds max_retry_delay %s",
			ErrConfigInvalid, c.RetryDelay.Std(), c.MaxRetryDelay.Std())
	}
	return nil
}

// LoadConfigFile reads a YAML or TOML config file (chosen by extension),
// applies environment overrides, and validates the result. Fields absent
// from the file keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return cfg, fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, filepath.Ext(path))
	}

	if err := cfg.ApplyEnvOverrides(EnvPrefix); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overwrites config fields from environment variables
// named prefix + "_" + the field's env tag. Unset variables leave the field
// untouched.
func (c *Config) ApplyEnvOverrides(prefix string) error {
	value := reflect.ValueOf(c).Elem()
	structType := value.Type()

	for i := 0; i < structType.NumField(); i++ {
		envTag := structType.Field(i).Tag.Get("env")
		if envTag == "" {
			continue
		}
		envName := strings.ToUpper(envTag)
		if prefix != "" {
			envName = prefix + "_" + envName
		}
		envValue, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}
		if err := setFieldValue(value.Field(i), envValue); err != nil {
			return fmt.Errorf("invalid value for %s: %w", envName, err)
		}
	}
	return nil
}

// setFieldValue converts an environment string to the field's type and sets
// it. Durations accept time.ParseDuration syntax; everything else goes
// through golobby/cast.
func setFieldValue(field reflect.Value, strValue string) error {
	if field.Type() == reflect.TypeOf(Duration(0)) {
		var duration Duration
		if err := duration.UnmarshalText([]byte(strValue)); err != nil {
			return err
		}
		field.Set(reflect.ValueOf(duration))
		return nil
	}

	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(convertedValue))
	return nil
}
