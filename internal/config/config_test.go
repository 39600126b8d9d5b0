package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8765,
			Path:              "/ws",
			ReadHeaderTimeout: 5 * time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadTimeout:    time.Minute,
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 65536,
			SendBuffer:     64,
			AllowedOrigins: []string{"*"},
		},
		Health: HealthConfig{
			GRPCHost: "127.0.0.1",
			GRPCPort: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestServerAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "0.0.0.0:8765", cfg.Server.Addr())
}

func TestHealthEnabled(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.Health.Enabled())
	cfg.Health.GRPCPort = 50051
	assert.True(t, cfg.Health.Enabled())
	assert.Equal(t, "127.0.0.1:50051", cfg.Health.Addr())
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "/ws", cfg.Server.Path)
	assert.Equal(t, time.Minute, cfg.WebSocket.ReadTimeout)
	assert.Equal(t, []string{"*"}, cfg.WebSocket.AllowedOrigins)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 9000
  path: /lobby
websocket:
  read_timeout: 20s
  write_timeout: 5s
  ping_interval: 10s
  max_message_size: 1024
  send_buffer: 8
  allowed_origins:
    - http://localhost:3000
logging:
  level: debug
  format: console
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/lobby", cfg.Server.Path)
	assert.Equal(t, 20*time.Second, cfg.WebSocket.ReadTimeout)
	assert.Equal(t, 8, cfg.WebSocket.SendBuffer)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset keys fall back to defaults.
	assert.Equal(t, 5*time.Second, cfg.Server.ReadHeaderTimeout)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LOBBY_SERVER_PORT", "9100")
	t.Setenv("LOBBY_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidateServerPath(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Path = "ws"
	assert.Error(t, cfg.Validate())
}

func TestValidatePingShorterThanRead(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.PingInterval = cfg.WebSocket.ReadTimeout
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping_interval")
}

func TestValidateSendBuffer(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.SendBuffer = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateAllowedOriginsEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.AllowedOrigins = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateHealthHostRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Health.GRPCPort = 50051
	cfg.Health.GRPCHost = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateLogging(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateReportsAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = -1
	cfg.WebSocket.SendBuffer = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "websocket.send_buffer")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, validConfig().WriteYAML(&buf))

	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 8765, decoded["server"]["port"])
	assert.Equal(t, "/ws", decoded["server"]["path"])
	assert.Equal(t, "info", decoded["logging"]["level"])
}

func TestPropertyServerPortValidation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(-1000, 70000).Draw(t, "port")
		cfg := validConfig()
		cfg.Server.Port = port
		err := cfg.Validate()
		if port >= 0 && port <= 65535 {
			if err != nil {
				t.Fatalf("port %d should be valid: %v", port, err)
			}
		} else if err == nil {
			t.Fatalf("port %d should be invalid", port)
		}
	})
}
