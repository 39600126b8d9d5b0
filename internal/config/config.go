// Package config provides Viper-based configuration loading for the lobby server.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host" yaml:"host"`
	// Port is the TCP port for the HTTP listener. Zero picks a free port.
	Port int `mapstructure:"port" yaml:"port"`
	// Path is the URL path that is upgraded to a WebSocket connection.
	Path string `mapstructure:"path" yaml:"path"`
	// ReadHeaderTimeout bounds how long the server waits for request headers.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WebSocketConfig holds per-connection WebSocket settings.
type WebSocketConfig struct {
	// ReadTimeout is how long a connection may stay silent (no frame, no pong).
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	// WriteTimeout is the deadline applied to each outbound frame.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// PingInterval is the keepalive ping period; must be shorter than ReadTimeout.
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	// MaxMessageSize caps inbound frame size in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size" yaml:"max_message_size"`
	// SendBuffer is the number of outbound frames queued per session before it is evicted.
	SendBuffer int `mapstructure:"send_buffer" yaml:"send_buffer"`
	// AllowedOrigins lists accepted Origin headers; "*" accepts any.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// HealthConfig holds the gRPC health service settings.
type HealthConfig struct {
	GRPCHost string `mapstructure:"grpc_host" yaml:"grpc_host"`
	// GRPCPort is the health service port. Zero disables the service.
	GRPCPort int `mapstructure:"grpc_port" yaml:"grpc_port"`
}

// Enabled reports whether the gRPC health service should be started.
func (h HealthConfig) Enabled() bool {
	return h.GRPCPort > 0
}

// Addr returns the "host:port" gRPC address.
func (h HealthConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.GRPCHost, h.GRPCPort)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level" yaml:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWebSocket(c.WebSocket); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateHealth(c.Health); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", s.Port))
	}
	if !strings.HasPrefix(s.Path, "/") {
		errs = append(errs, fmt.Sprintf("server.path must start with '/', got %q", s.Path))
	}
	if s.ReadHeaderTimeout < 0 {
		errs = append(errs, "server.read_header_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	var errs []string
	if w.ReadTimeout <= 0 {
		errs = append(errs, "websocket.read_timeout must be positive")
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if w.PingInterval <= 0 {
		errs = append(errs, "websocket.ping_interval must be positive")
	} else if w.ReadTimeout > 0 && w.PingInterval >= w.ReadTimeout {
		errs = append(errs, "websocket.ping_interval must be shorter than websocket.read_timeout")
	}
	if w.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("websocket.max_message_size must be >= 1, got %d", w.MaxMessageSize))
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	if len(w.AllowedOrigins) == 0 {
		errs = append(errs, "websocket.allowed_origins must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHealth(h HealthConfig) error {
	if h.GRPCPort < 0 || h.GRPCPort > 65535 {
		return fmt.Errorf("health.grpc_port must be 0-65535, got %d", h.GRPCPort)
	}
	if h.Enabled() && h.GRPCHost == "" {
		return errors.New("health.grpc_host must not be empty when health.grpc_port is set")
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path skips the file and uses
// defaults plus environment overrides only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with LOBBY_ prefix
	v.SetEnvPrefix("LOBBY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return cfg
}

// WriteYAML writes the effective configuration to w as YAML.
func (c Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.path", "/ws")
	v.SetDefault("server.read_header_timeout", "5s")

	v.SetDefault("websocket.read_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.max_message_size", 64*1024)
	v.SetDefault("websocket.send_buffer", 64)
	v.SetDefault("websocket.allowed_origins", []string{"*"})

	v.SetDefault("health.grpc_host", "127.0.0.1")
	v.SetDefault("health.grpc_port", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
