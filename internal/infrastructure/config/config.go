package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the root configuration structure for the WESMUN core service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Environment string          `yaml:"environment"`
	Site        SiteConfig      `yaml:"site"`
	Database    DatabaseConfig  `yaml:"database"`
	API         APIConfig       `yaml:"api"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig  `yaml:"influxdb"`
	Logging     LoggingConfig   `yaml:"logging"`
	Auth        AuthConfig      `yaml:"auth"`
}

// SiteConfig describes the deployment.
type SiteConfig struct {
	Name string `yaml:"name"`
	// BaseURL prefixes NFC links in exports, e.g. https://nfc.wesmun.com
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains live feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker is optional; when disabled no events are published to it.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig contains session, login and identity settings.
type AuthConfig struct {
	// AllowedDomain is the only email domain accepted for self-registration
	// and the privileged domain for role changes.
	AllowedDomain   string               `yaml:"allowed_domain"`
	SessionTTLHours int                  `yaml:"session_ttl_hours"`
	Cookie          CookieConfig         `yaml:"cookie"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
	EmergencyAdmin  EmergencyAdminConfig `yaml:"emergency_admin"`
	Ticket          TicketConfig         `yaml:"ticket"`
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string `yaml:"name"`
	Secure bool   `yaml:"secure"`
}

// RateLimitConfig throttles failed logins per identifier.
type RateLimitConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`
	WindowMinutes int `yaml:"window_minutes"`
}

// EmergencyAdminConfig holds the break-glass credentials.
// Both fields empty disables the emergency login path.
type EmergencyAdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TicketConfig signs the short-lived WebSocket tickets.
type TicketConfig struct {
	Secret     string `yaml:"secret"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file next to the working directory, if present
//  4. Environment variables (override file values)
//
// An empty path skips the YAML step. A missing file is an error unless
// allowMissing is set, which lets the binary start from defaults + env.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case allowMissing && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// .env is a convenience for local development; absence is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.IsProduction() {
		cfg.Auth.Cookie.Secure = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Site: SiteConfig{
			Name:    "WESMUN",
			BaseURL: "https://nfc.wesmun.com",
		},
		Database: DatabaseConfig{
			Path:        "./data/wesmun.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wesmun-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "wesmun",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Auth: AuthConfig{
			AllowedDomain:   "wesmun.com",
			SessionTTLHours: 7 * 24,
			Cookie: CookieConfig{
				Name: "session_token",
			},
			RateLimit: RateLimitConfig{
				MaxAttempts:   5,
				WindowMinutes: 15,
			},
			Ticket: TicketConfig{
				TTLSeconds: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WESMUN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WESMUN_ENV"); v != "" {
		cfg.Environment = strings.ToLower(v)
	}

	// Database
	if v := os.Getenv("WESMUN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("WESMUN_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("WESMUN_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("WESMUN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WESMUN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WESMUN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("WESMUN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Auth
	if v := os.Getenv("WESMUN_ALLOWED_DOMAIN"); v != "" {
		cfg.Auth.AllowedDomain = v
	}
	if v := os.Getenv("WESMUN_EMERGENCY_ADMIN_USERNAME"); v != "" {
		cfg.Auth.EmergencyAdmin.Username = v
	}
	if v := os.Getenv("WESMUN_EMERGENCY_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.EmergencyAdmin.Password = v
	}
	if v := os.Getenv("WESMUN_TICKET_SECRET"); v != "" {
		cfg.Auth.Ticket.Secret = v
	}
}

// Validation thresholds.
const (
	minTicketSecretLength      = 32
	minEmergencyPasswordLength = 12
)

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		errs = append(errs, "environment must be development or production")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Auth.AllowedDomain == "" {
		errs = append(errs, "auth.allowed_domain is required")
	}
	if c.Auth.SessionTTLHours <= 0 {
		errs = append(errs, "auth.session_ttl_hours must be positive")
	}
	if c.Auth.Cookie.Name == "" {
		errs = append(errs, "auth.cookie.name is required")
	}
	if c.Auth.RateLimit.MaxAttempts <= 0 || c.Auth.RateLimit.WindowMinutes <= 0 {
		errs = append(errs, "auth.rate_limit.max_attempts and window_minutes must be positive")
	}

	ea := c.Auth.EmergencyAdmin
	if (ea.Username == "") != (ea.Password == "") {
		errs = append(errs, "auth.emergency_admin requires both username and password")
	} else if ea.Password != "" && len(ea.Password) < minEmergencyPasswordLength {
		errs = append(errs, "auth.emergency_admin.password must be at least 12 characters")
	}

	if c.Auth.Ticket.Secret == "" {
		errs = append(errs, "auth.ticket.secret is required (set WESMUN_TICKET_SECRET environment variable)")
	} else if len(c.Auth.Ticket.Secret) < minTicketSecretLength {
		errs = append(errs, "auth.ticket.secret must be at least 32 characters")
	}
	if c.Auth.Ticket.TTLSeconds <= 0 {
		errs = append(errs, "auth.ticket.ttl_seconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// SessionTTL returns the session lifetime as a Duration.
func (a AuthConfig) SessionTTL() time.Duration {
	return time.Duration(a.SessionTTLHours) * time.Hour
}

// RateLimitWindow returns the rate-limit window as a Duration.
func (a AuthConfig) RateLimitWindow() time.Duration {
	return time.Duration(a.RateLimit.WindowMinutes) * time.Minute
}

// TicketTTL returns the WebSocket ticket lifetime as a Duration.
func (a AuthConfig) TicketTTL() time.Duration {
	return time.Duration(a.Ticket.TTLSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
