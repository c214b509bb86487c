package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testJWTSecret satisfies the 32 character minimum.
const testJWTSecret = "0123456789abcdef0123456789abcdef"

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfigFile(t, `
audio:
  hub:
    host: 192.168.1.40
security:
  jwt:
    secret: "`+testJWTSecret+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT broker port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Audio.Hub.Port != 1255 {
		t.Errorf("hub port = %d, want default 1255", cfg.Audio.Hub.Port)
	}
	if cfg.Audio.Hub.Host != "192.168.1.40" {
		t.Errorf("hub host = %q, want 192.168.1.40", cfg.Audio.Hub.Host)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
database:
  path: /tmp/test.db
audio:
  hub:
    host: hub.local
    port: 9000
  heartbeat: 30
security:
  jwt:
    secret: "`+testJWTSecret+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("database path = %q, want /tmp/test.db", cfg.Database.Path)
	}
	if cfg.Audio.Hub.Port != 9000 {
		t.Errorf("hub port = %d, want 9000", cfg.Audio.Hub.Port)
	}
	if cfg.GetHeartbeatInterval().Seconds() != 30 {
		t.Errorf("heartbeat = %v, want 30s", cfg.GetHeartbeatInterval())
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
audio:
  hub:
    host: from-file
security:
  jwt:
    secret: "`+testJWTSecret+`"
`)

	t.Setenv("SOUNDWEAVE_HUB_HOST", "from-env")
	t.Setenv("SOUNDWEAVE_HUB_PORT", "1300")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Audio.Hub.Host != "from-env" {
		t.Errorf("hub host = %q, want from-env", cfg.Audio.Hub.Host)
	}
	if cfg.Audio.Hub.Port != 1300 {
		t.Errorf("hub port = %d, want 1300", cfg.Audio.Hub.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing hub host",
			mutate:  func(c *Config) { c.Audio.Hub.Host = "" },
			wantMsg: "audio.hub.host",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantMsg: "security.jwt.secret",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantMsg: "at least 32 characters",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantMsg: "mqtt.qos",
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantMsg: "api.port",
		},
		{
			name:    "invalid hub port",
			mutate:  func(c *Config) { c.Audio.Hub.Port = 70000 },
			wantMsg: "audio.hub.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Audio.Hub.Host = "hub.local"
			cfg.Security.JWT.Secret = testJWTSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should return error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := defaultConfig()
	cfg.Audio.Hub.Host = "hub.local"
	cfg.Security.JWT.Secret = testJWTSecret

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}
