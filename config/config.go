// Package config loads the bridge configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/mcp-bridge-go/internal/logging"
	"github.com/hashicorp/go-multierror"
	"github.com/joeshaw/envdecode"
)

// Config for the bridge. Defaults are provided via struct tags.
type Config struct {
	// Host the MCP listener binds to. ENV: MCP_HOST
	Host string `env:"MCP_HOST,default=127.0.0.1"`
	// Port of the MCP listener. ENV: MCP_PORT
	Port int `env:"MCP_PORT,default=7000"`
	// Path the MCP endpoint is mounted on. ENV: MCP_PATH
	Path string `env:"MCP_PATH,default=/mcp/"`

	// TickInterval between two drains of the dispatch queue. ENV: MCP_TICK_INTERVAL
	TickInterval time.Duration `env:"MCP_TICK_INTERVAL,default=10ms"`
	// StreamPollInterval between liveness checks of GET streams. ENV: MCP_STREAM_POLL_INTERVAL
	StreamPollInterval time.Duration `env:"MCP_STREAM_POLL_INTERVAL,default=1s"`
	// ToolTimeout bounds long-running tools such as test runs. ENV: MCP_TOOL_TIMEOUT
	ToolTimeout time.Duration `env:"MCP_TOOL_TIMEOUT,default=5m"`

	// Workspace is the Go module the host tools operate on. ENV: MCP_WORKSPACE
	Workspace string `env:"MCP_WORKSPACE,default=."`

	// RedisAddr like "localhost:6379". Empty keeps console logs in memory. ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR"`
	// ConsoleLogKey is the Redis list holding console logs. ENV: CONSOLE_LOG_REDIS_KEY
	ConsoleLogKey string `env:"CONSOLE_LOG_REDIS_KEY,default=mcp-bridge:console"`
	// ConsoleLogCapacity is the number of console entries retained. ENV: CONSOLE_LOG_CAPACITY
	ConsoleLogCapacity int `env:"CONSOLE_LOG_CAPACITY,default=1000"`

	// MetricsAddr for the Prometheus listener. Empty disables it. ENV: METRICS_ADDR
	MetricsAddr string `env:"METRICS_ADDR,default=127.0.0.1:7001"`

	LogFormat string `env:"LOG_FORMAT,default=text"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
}

// FromEnv decodes a Config from the environment and validates it.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Port <= 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("MCP_PORT must be between 1 and 65535, got %d", c.Port))
	}
	if !strings.HasPrefix(c.Path, "/") {
		result = multierror.Append(result, fmt.Errorf("MCP_PATH must start with '/', got %q", c.Path))
	}
	if c.TickInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("MCP_TICK_INTERVAL must be positive, got %s", c.TickInterval))
	}
	if c.StreamPollInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("MCP_STREAM_POLL_INTERVAL must be positive, got %s", c.StreamPollInterval))
	}
	if c.ToolTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("MCP_TOOL_TIMEOUT must be positive, got %s", c.ToolTimeout))
	}
	if c.Workspace == "" {
		result = multierror.Append(result, errors.New("MCP_WORKSPACE must not be empty"))
	}
	if c.ConsoleLogCapacity <= 0 {
		result = multierror.Append(result, fmt.Errorf("CONSOLE_LOG_CAPACITY must be positive, got %d", c.ConsoleLogCapacity))
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		result = multierror.Append(result, fmt.Errorf("LOG_FORMAT: %w", err))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	return result.ErrorOrNil()
}

// ListenAddr is the host:port of the MCP listener.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Endpoint is the URL clients use to reach the MCP endpoint.
func (c Config) Endpoint() string {
	return "http://" + c.ListenAddr() + c.Path
}
