package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete process configuration.
type Config struct {
	// Group sets the process-group identity and defaults.
	Group GroupConfig `yaml:"group" env:"GROUP"`

	// Store selects and configures the bootstrap rendezvous store.
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Pool bounds the backend's collective executor.
	Pool PoolConfig `yaml:"pool" env:"POOL"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures tracing and metrics export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// GroupConfig carries the per-group defaults handed to group.New.
type GroupConfig struct {
	// Rank is this process's identity, in [0, size).
	Rank int `yaml:"rank" env:"RANK"`
	// Size is the group cardinality.
	Size int `yaml:"size" env:"SIZE"`
	// Backend is the default backend name, e.g. "gloo".
	Backend string `yaml:"backend" env:"BACKEND"`
	// Timeout is the default collective timeout.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Name and Desc seed the group identity metadata.
	Name string `yaml:"name" env:"NAME"`
	Desc string `yaml:"desc" env:"DESC"`
}

// StoreConfig selects the rendezvous store. Kind is "memory" or "redis".
type StoreConfig struct {
	Kind  string      `yaml:"kind" env:"KIND"`
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig configures the redis-backed store.
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	Prefix       string        `yaml:"prefix" env:"PREFIX"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// PoolConfig bounds the collective executor.
type PoolConfig struct {
	MaxWorkers int `yaml:"max_workers" env:"MAX_WORKERS"`
	QueueSize  int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// LogConfig configures zap.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths lists zap sinks.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	// Enabled turns on OTLP export of dispatch spans and runtime
	// metrics. When false the global providers stay noop.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// EnableMetrics registers prometheus collectors for collective
	// dispatch.
	EnableMetrics bool `yaml:"enable_metrics" env:"ENABLE_METRICS"`
	// OTLPEndpoint is the gRPC collector endpoint.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// ServiceName labels exported telemetry.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader builds a Config. Precedence: defaults, YAML file, environment.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the COMMFLOW env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "COMMFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file falls back to defaults.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
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
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

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

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration or panics.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads the configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks structural invariants the loader can catch before the
// group sees the values.
func (c *Config) Validate() error {
	var errs []string

	if c.Group.Size <= 0 {
		errs = append(errs, "group size must be positive")
	}
	if c.Group.Rank < 0 || c.Group.Rank >= c.Group.Size {
		errs = append(errs, fmt.Sprintf("rank %d outside group of size %d", c.Group.Rank, c.Group.Size))
	}
	if c.Group.Timeout <= 0 {
		errs = append(errs, "group timeout must be positive")
	}
	switch c.Store.Kind {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown store kind %q", c.Store.Kind))
	}
	if c.Store.Kind == "redis" && c.Store.Redis.Addr == "" {
		errs = append(errs, "redis store requires an address")
	}
	if c.Pool.MaxWorkers <= 0 {
		errs = append(errs, "pool max_workers must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
