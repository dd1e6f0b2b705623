package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Argus ingestion gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Cache     CacheConfig     `yaml:"cache"`
	Admission AdmissionConfig `yaml:"admission"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Ingest    IngestConfig    `yaml:"ingest"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
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

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// CacheConfig contains device registry cache settings.
//
// The cache is invalidated explicitly on registry mutations; the TTL exists
// to bound staleness when an invalidation is missed and to bound memory for
// devices that have gone quiet.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
}

// AdmissionConfig contains per-device and global rate admission settings.
//
// DeviceBudget is the number of requests a single device may submit per
// window. GlobalBudget caps aggregate writes across all devices so a fleet
// of well-behaved devices cannot overwhelm the telemetry store together.
type AdmissionConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	DeviceBudget  int `yaml:"device_budget"`
	GlobalBudget  int `yaml:"global_budget"`
}

// TelemetryConfig contains payload validation settings.
type TelemetryConfig struct {
	// CoordinateMin/CoordinateMax bound both axes of a reading. Out-of-range
	// values are rejected, not clamped, so upstream bugs stay visible.
	CoordinateMin float64 `yaml:"coordinate_min"`
	CoordinateMax float64 `yaml:"coordinate_max"`

	// MaxFutureSeconds is the clock-skew allowance for device timestamps
	// ahead of server time.
	MaxFutureSeconds int `yaml:"max_future_seconds"`

	// MaxAgeHours rejects readings implausibly far in the past.
	MaxAgeHours int `yaml:"max_age_hours"`
}

// IngestConfig contains per-stage timeout settings for the ingestion pipeline.
// Each external dependency gets its own deadline so one slow backend cannot
// pin the gateway's whole concurrency budget.
type IngestConfig struct {
	AuthTimeoutSeconds  int `yaml:"auth_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
}

// InfluxDBConfig contains settings for the optional time-series mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MQTTConfig contains MQTT broker connection settings for the registry
// invalidation bus and telemetry fan-out.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	AdminJWT AdminJWTConfig `yaml:"admin_jwt"`
}

// AdminJWTConfig contains settings for the administrative bearer token.
// Device-facing requests authenticate with per-device API keys instead;
// this secret protects only the registry mutation surface.
type AdminJWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ARGUS_SECTION_KEY
// For example: ARGUS_DATABASE_PATH, ARGUS_API_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/argus.db",
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
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "x-api-key", "X-Request-ID"},
			},
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
			MaxEntries: 10000,
		},
		Admission: AdmissionConfig{
			WindowSeconds: 10,
			DeviceBudget:  5,
			GlobalBudget:  1000,
		},
		Telemetry: TelemetryConfig{
			CoordinateMin:    -100,
			CoordinateMax:    100,
			MaxFutureSeconds: 30,
			MaxAgeHours:      24,
		},
		Ingest: IngestConfig{
			AuthTimeoutSeconds:  5,
			WriteTimeoutSeconds: 10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "argus-ingest",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ARGUS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARGUS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("ARGUS_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("ARGUS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("ARGUS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ARGUS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ARGUS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Admin JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("ARGUS_ADMIN_JWT_SECRET"); v != "" {
		cfg.Security.AdminJWT.Secret = v
	}
}

// minAdminSecretLength is the minimum admin JWT secret length. A short
// secret would let an attacker forge admin tokens and rotate device
// credentials at will.
const minAdminSecretLength = 32

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Cache.TTLSeconds <= 0 {
		errs = append(errs, "cache.ttl_seconds must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, "cache.max_entries must be positive")
	}

	if c.Admission.WindowSeconds <= 0 {
		errs = append(errs, "admission.window_seconds must be positive")
	}
	if c.Admission.DeviceBudget <= 0 {
		errs = append(errs, "admission.device_budget must be positive")
	}
	if c.Admission.GlobalBudget < c.Admission.DeviceBudget {
		errs = append(errs, "admission.global_budget must be at least admission.device_budget")
	}

	if c.Telemetry.CoordinateMin >= c.Telemetry.CoordinateMax {
		errs = append(errs, "telemetry.coordinate_min must be less than telemetry.coordinate_max")
	}
	if c.Telemetry.MaxFutureSeconds < 0 {
		errs = append(errs, "telemetry.max_future_seconds must not be negative")
	}
	if c.Telemetry.MaxAgeHours <= 0 {
		errs = append(errs, "telemetry.max_age_hours must be positive")
	}

	if c.Ingest.AuthTimeoutSeconds <= 0 {
		errs = append(errs, "ingest.auth_timeout_seconds must be positive")
	}
	if c.Ingest.WriteTimeoutSeconds <= 0 {
		errs = append(errs, "ingest.write_timeout_seconds must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Admin secret is REQUIRED: the mutation surface rotates device
	// credentials, so it must never run unauthenticated.
	if c.Security.AdminJWT.Secret == "" {
		errs = append(errs, "security.admin_jwt.secret is required (set ARGUS_ADMIN_JWT_SECRET environment variable)")
	} else if len(c.Security.AdminJWT.Secret) < minAdminSecretLength {
		errs = append(errs, "security.admin_jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CacheTTL returns the registry cache TTL as a Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// AdmissionWindow returns the admission window length as a Duration.
func (c *Config) AdmissionWindow() time.Duration {
	return time.Duration(c.Admission.WindowSeconds) * time.Second
}

// AuthTimeout returns the authentication stage timeout as a Duration.
func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.Ingest.AuthTimeoutSeconds) * time.Second
}

// WriteTimeout returns the telemetry write stage timeout as a Duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Ingest.WriteTimeoutSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
