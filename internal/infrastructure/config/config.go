package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the farm gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Database  DatabaseConfig  `yaml:"database"`
	Directory DirectoryConfig `yaml:"directory"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Queue     QueueConfig     `yaml:"queue"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Redis     RedisConfig     `yaml:"redis"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// GatewayConfig identifies this gateway instance.
type GatewayConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// DirectoryConfig selects where device network endpoints are looked up.
type DirectoryConfig struct {
	// Driver is "sqlite" (the local database) or "postgres".
	Driver      string `yaml:"driver"`
	PostgresURL string `yaml:"postgres_url"`

	// Devices are written to the local devices table at startup. Ignored
	// by the postgres driver.
	Devices []DeviceEndpointConfig `yaml:"devices"`
}

// DeviceEndpointConfig is one statically configured device.
type DeviceEndpointConfig struct {
	ID        string `yaml:"id"`
	IPAddress string `yaml:"ip_address"`
	Port      int    `yaml:"port"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBuffer     int    `yaml:"send_buffer"`
}

// DispatchConfig contains outbound device command settings.
type DispatchConfig struct {
	// TimeoutMS bounds each device HTTP request.
	TimeoutMS int `yaml:"timeout_ms"`
}

// QueueConfig contains pending command queue settings.
type QueueConfig struct {
	// RetentionHours drops queued commands older than this.
	RetentionHours  int `yaml:"retention_hours"`
	// CleanupInterval is the minutes between retention sweeps.
	CleanupInterval int `yaml:"cleanup_interval"`
}

// TelemetryConfig contains latest-reading cache settings.
type TelemetryConfig struct {
	// StaleAfter hides readings older than this many seconds. 0 keeps them forever.
	StaleAfter int `yaml:"stale_after"`
}

// RedisConfig contains settings for the optional latest-reading mirror.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      int    `yaml:"ttl"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
	// RequireAuth rejects client requests and withholds broadcasts until a
	// client has presented a valid token.
	RequireAuth bool `yaml:"require_auth"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FARMGW_SECTION_KEY
// For example: FARMGW_DATABASE_PATH, FARMGW_MQTT_HOST
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
		Gateway: GatewayConfig{
			ID:   "farm-gateway",
			Name: "Farm Gateway",
		},
		Database: DatabaseConfig{
			Path:        "./data/farmgateway.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Directory: DirectoryConfig{
			Driver: "sqlite",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "farm-gateway",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
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
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     256,
		},
		Dispatch: DispatchConfig{
			TimeoutMS: 5000,
		},
		Queue: QueueConfig{
			RetentionHours:  24,
			CleanupInterval: 60,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  86400,
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
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FARMGW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("FARMGW_DIRECTORY_DRIVER"); v != "" {
		cfg.Directory.Driver = v
	}
	if v := os.Getenv("FARMGW_POSTGRES_URL"); v != "" {
		cfg.Directory.PostgresURL = v
	}

	if v := os.Getenv("FARMGW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FARMGW_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("FARMGW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FARMGW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("FARMGW_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("FARMGW_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("FARMGW_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FARMGW_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("FARMGW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("FARMGW_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.ID == "" {
		errs = append(errs, "gateway.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	switch c.Directory.Driver {
	case "sqlite":
	case "postgres":
		if c.Directory.PostgresURL == "" {
			errs = append(errs, "directory.postgres_url is required when directory.driver is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("directory.driver must be sqlite or postgres, got %q", c.Directory.Driver))
	}
	for i, d := range c.Directory.Devices {
		if d.ID == "" || d.IPAddress == "" {
			errs = append(errs, fmt.Sprintf("directory.devices[%d] needs id and ip_address", i))
		}
		if d.Port < 0 || d.Port > 65535 {
			errs = append(errs, fmt.Sprintf("directory.devices[%d].port must be between 0 and 65535", i))
		}
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.WebSocket.Path == "" || !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}
	if c.WebSocket.SendBuffer < 1 {
		errs = append(errs, "websocket.send_buffer must be positive")
	}

	if c.Dispatch.TimeoutMS <= 0 {
		errs = append(errs, "dispatch.timeout_ms must be positive")
	}

	if c.Queue.RetentionHours < 1 {
		errs = append(errs, "queue.retention_hours must be positive")
	}
	if c.Queue.CleanupInterval < 1 {
		errs = append(errs, "queue.cleanup_interval must be positive")
	}

	if c.Telemetry.StaleAfter < 0 {
		errs = append(errs, "telemetry.stale_after must not be negative")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// A short HMAC secret lets anyone forge client tokens.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		if c.Security.RequireAuth {
			errs = append(errs, "security.jwt.secret is required when security.require_auth is set (set FARMGW_JWT_SECRET)")
		}
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetDispatchTimeout returns the device command deadline.
func (c *Config) GetDispatchTimeout() time.Duration {
	return time.Duration(c.Dispatch.TimeoutMS) * time.Millisecond
}

// GetQueueRetention returns how long queued commands are kept.
func (c *Config) GetQueueRetention() time.Duration {
	return time.Duration(c.Queue.RetentionHours) * time.Hour
}

// GetQueueCleanupInterval returns the period between queue retention sweeps.
func (c *Config) GetQueueCleanupInterval() time.Duration {
	return time.Duration(c.Queue.CleanupInterval) * time.Minute
}

// GetStaleAfter returns the telemetry staleness window; zero disables it.
func (c *Config) GetStaleAfter() time.Duration {
	return time.Duration(c.Telemetry.StaleAfter) * time.Second
}

// GetRedisTTL returns the expiry applied to mirrored readings.
func (c *Config) GetRedisTTL() time.Duration {
	return time.Duration(c.Redis.TTL) * time.Second
}
