package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testTicketSecret = "test-ticket-secret-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  name: "Test Event"
  base_url: "https://nfc.example.test"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: 9090
auth:
  allowed_domain: "example.test"
  ticket:
    secret: "`+testTicketSecret+`"
`)

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.Name != "Test Event" {
		t.Errorf("Site.Name = %q, want %q", cfg.Site.Name, "Test Event")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 9090)
	}
	if cfg.Auth.AllowedDomain != "example.test" {
		t.Errorf("Auth.AllowedDomain = %q, want %q", cfg.Auth.AllowedDomain, "example.test")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  ticket:
    secret: "`+testTicketSecret+`"
`)

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.Auth.SessionTTL(); got != 7*24*time.Hour {
		t.Errorf("SessionTTL() = %v, want %v", got, 7*24*time.Hour)
	}
	if got := cfg.Auth.RateLimitWindow(); got != 15*time.Minute {
		t.Errorf("RateLimitWindow() = %v, want %v", got, 15*time.Minute)
	}
	if cfg.Auth.RateLimit.MaxAttempts != 5 {
		t.Errorf("RateLimit.MaxAttempts = %d, want 5", cfg.Auth.RateLimit.MaxAttempts)
	}
	if cfg.Auth.Cookie.Name != "session_token" {
		t.Errorf("Cookie.Name = %q, want %q", cfg.Auth.Cookie.Name, "session_token")
	}
	if cfg.Auth.AllowedDomain != "wesmun.com" {
		t.Errorf("AllowedDomain = %q, want %q", cfg.Auth.AllowedDomain, "wesmun.com")
	}
	if cfg.Auth.Cookie.Secure {
		t.Error("Cookie.Secure should default to false in development")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml", false); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MissingFileAllowed(t *testing.T) {
	t.Setenv("WESMUN_TICKET_SECRET", testTicketSecret)

	cfg, err := Load("/nonexistent/path/config.yaml", true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "./data/wesmun.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	if _, err := Load(path, false); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/from-file.db"
`)

	t.Setenv("WESMUN_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("WESMUN_API_PORT", "7070")
	t.Setenv("WESMUN_EMERGENCY_ADMIN_USERNAME", "breakglass")
	t.Setenv("WESMUN_EMERGENCY_ADMIN_PASSWORD", "a-very-long-password")
	t.Setenv("WESMUN_TICKET_SECRET", testTicketSecret)
	t.Setenv("WESMUN_ENV", "PRODUCTION")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("API.Port = %d, want 7070", cfg.API.Port)
	}
	if cfg.Auth.EmergencyAdmin.Username != "breakglass" {
		t.Errorf("EmergencyAdmin.Username = %q, want %q", cfg.Auth.EmergencyAdmin.Username, "breakglass")
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
	if !cfg.Auth.Cookie.Secure {
		t.Error("production must force Cookie.Secure")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Auth.Ticket.Secret = testTicketSecret
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:    "unknown environment",
			mutate:  func(c *Config) { c.Environment = "staging" },
			wantErr: "environment",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "influx without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name:    "missing domain",
			mutate:  func(c *Config) { c.Auth.AllowedDomain = "" },
			wantErr: "allowed_domain",
		},
		{
			name:    "zero session ttl",
			mutate:  func(c *Config) { c.Auth.SessionTTLHours = 0 },
			wantErr: "session_ttl_hours",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.Auth.RateLimit.MaxAttempts = 0 },
			wantErr: "rate_limit",
		},
		{
			name:    "emergency username without password",
			mutate:  func(c *Config) { c.Auth.EmergencyAdmin.Username = "breakglass" },
			wantErr: "emergency_admin",
		},
		{
			name: "short emergency password",
			mutate: func(c *Config) {
				c.Auth.EmergencyAdmin.Username = "breakglass"
				c.Auth.EmergencyAdmin.Password = "short"
			},
			wantErr: "at least 12",
		},
		{
			name:    "missing ticket secret",
			mutate:  func(c *Config) { c.Auth.Ticket.Secret = "" },
			wantErr: "ticket.secret",
		},
		{
			name:    "short ticket secret",
			mutate:  func(c *Config) { c.Auth.Ticket.Secret = "too-short" },
			wantErr: "at least 32",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := validConfig()

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
	if got := cfg.Auth.TicketTTL(); got != time.Minute {
		t.Errorf("TicketTTL() = %v, want 1m", got)
	}
}
