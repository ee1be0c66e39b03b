// ABOUTME: voicectl configuration loaded from YAML with environment overrides
// ABOUTME: Precedence is defaults, then the YAML file, then VOICE_* variables
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/ducking"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "VOICE"

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete voicectl configuration.
// Struct fields tagged env:",inline" contribute their variables without a prefix.
type Config struct {
	Audio        audio.Config  `yaml:"audio" env:",inline"`
	Ducking      DuckingConfig `yaml:"ducking" env:",inline"`
	Log          LogConfig     `yaml:"log" env:"LOG"`
	Metrics      MetricsConfig `yaml:"metrics" env:"METRICS"`
	DrainTimeout time.Duration `yaml:"drain_timeout" env:"DRAIN_TIMEOUT"`
}

// DuckingConfig selects the initial ducking strategy
type DuckingConfig struct {
	Strategy ducking.Strategy `yaml:"strategy" env:"DUCKING_STRATEGY"`
	Level    float64          `yaml:"level" env:"DUCK_LEVEL"`
}

// LogConfig controls log verbosity and destination
type LogConfig struct {
	// Level: trace, debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// File receives logs instead of stderr when set
	File string `yaml:"file" env:"FILE"`
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Audio: audio.DefaultConfig(),
		Ducking: DuckingConfig{
			Strategy: ducking.DefaultStrategy,
			Level:    ducking.DefaultDuckLevel,
		},
		Log:          LogConfig{Level: "info"},
		DrainTimeout: stream.DefaultDrainTimeout,
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), EnvPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.Audio = cfg.Audio.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return err
	}
	strategy, err := ducking.ParseStrategy(string(c.Ducking.Strategy))
	if err != nil {
		return err
	}
	c.Ducking.Strategy = strategy
	if c.Ducking.Level < 0 || c.Ducking.Level > 1 {
		return fmt.Errorf("%w: duck level must be within [0, 1], got %g", ErrInvalid, c.Ducking.Level)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.Log.Level)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("%w: drain timeout must not be negative, got %s", ErrInvalid, c.DrainTimeout)
	}
	return nil
}

// setFieldsFromEnv walks v and assigns every env-tagged field whose variable is set
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}

		if field.Kind() == reflect.Struct {
			next := prefix + "_" + tag
			if tag == ",inline" {
				next = prefix
			}
			if err := setFieldsFromEnv(field, next); err != nil {
				return err
			}
			continue
		}

		key := prefix + "_" + tag
		value, ok := os.LookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}
