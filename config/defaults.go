package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/commflow/types"
)

// DefaultConfig returns the default configuration: a single-process group
// over the in-memory store.
func DefaultConfig() *Config {
	return &Config{
		Group:     DefaultGroupConfig(),
		Store:     DefaultStoreConfig(),
		Pool:      DefaultPoolConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultGroupConfig returns a rank-0 group of size 1 on the gloo-kind
// backend with the standard collective timeout.
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		Rank:    0,
		Size:    1,
		Backend: "gloo",
		Timeout: types.DefaultTimeout,
	}
}

// DefaultStoreConfig returns the in-memory store.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Kind: "memory",
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Prefix:       "commflow",
			PollInterval: 50 * time.Millisecond,
		},
	}
}

// DefaultPoolConfig returns the default executor bounds.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxWorkers: 32,
		QueueSize:  256,
	}
}

// DefaultLogConfig returns JSON logging at info level to stderr.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stderr"},
	}
}

// DefaultTelemetryConfig returns telemetry disabled.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "commflow",
		SampleRate:   1.0,
	}
}

// BuildLogger constructs a zap logger from the log configuration.
func (c LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	var zc zap.Config
	switch c.Format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	case "json", "":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q", c.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(c.OutputPaths) > 0 {
		zc.OutputPaths = c.OutputPaths
	}
	return zc.Build()
}
