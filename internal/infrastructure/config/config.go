package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend names accepted in storage.backend.
const (
	StorageBackendSQLite = "sqlite"
	StorageBackendMinIO  = "minio"
)

// Config is the root configuration structure for the Couch Control service.
// All configuration is loaded from YAML and can be overridden by environment variables.
// Unknown keys are rejected at load time.
type Config struct {
	Integration IntegrationConfig `yaml:"integration"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Registry    RegistryConfig    `yaml:"registry"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Ingest      IngestConfig      `yaml:"ingest"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Bridge      BridgeConfig      `yaml:"bridge"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
}

// IntegrationConfig contains settings for the couch_control integration itself.
type IntegrationConfig struct {
	// AllowMultiple permits more than one config entry. When false the
	// configuration flow aborts with "already_configured".
	AllowMultiple bool `yaml:"allow_multiple"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// StorageConfig selects where selection records are persisted.
type StorageConfig struct {
	// Backend is "sqlite" (default, shares the main database) or "minio".
	Backend string      `yaml:"backend"`
	MinIO   MinIOConfig `yaml:"minio"`
}

// MinIOConfig contains S3-compatible object storage settings.
type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
}

// RegistryConfig contains entity registry settings.
type RegistryConfig struct {
	// SeedFile is an optional YAML file of areas and entities loaded on startup.
	SeedFile string `yaml:"seed_file"`
}

// MQTTConfig contains MQTT broker connection settings.
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// IngestConfig controls how live states are read from the MQTT statestream.
type IngestConfig struct {
	// TopicPrefix is the statestream base topic, e.g. "homeassistant/statestream".
	TopicPrefix string `yaml:"topic_prefix"`
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBuffer     int    `yaml:"send_buffer"` // initial per-client queue capacity
}

// BridgeConfig contains subscription bridge settings.
type BridgeConfig struct {
	// NativeScope registers subscriptions on the change bus scoped to the
	// selection at subscribe time instead of globally.
	NativeScope bool `yaml:"native_scope"`
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

// KafkaConfig contains settings for exporting filtered changes to Kafka.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	BatchTimeout int      `yaml:"batch_timeout_ms"`
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
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads path, layers it over the defaults, applies COUCHCONTROL_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML onto the defaults without applying overrides or validation.
// Keys that do not map to a known field are an error.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/couchcontrol.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Storage: StorageConfig{
			Backend: StorageBackendSQLite,
			MinIO: MinIOConfig{
				Bucket: "couch-control",
				Prefix: "storage/",
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "couchcontrol",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Ingest: IngestConfig{
			TopicPrefix: "homeassistant/statestream",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8124,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/websocket",
			MaxMessageSize: 16384,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     512,
		},
		Kafka: KafkaConfig{
			Topic:        "couch_control.state_changed",
			BatchTimeout: 50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// envOverrides maps COUCHCONTROL_* variables onto config fields. Secrets
// belong here rather than in config.yaml.
var envOverrides = []struct {
	name  string
	apply func(*Config, string)
}{
	{"COUCHCONTROL_DATABASE_PATH", func(c *Config, v string) { c.Database.Path = v }},
	{"COUCHCONTROL_MQTT_HOST", func(c *Config, v string) { c.MQTT.Broker.Host = v }},
	{"COUCHCONTROL_MQTT_USERNAME", func(c *Config, v string) { c.MQTT.Auth.Username = v }},
	{"COUCHCONTROL_MQTT_PASSWORD", func(c *Config, v string) { c.MQTT.Auth.Password = v }},
	{"COUCHCONTROL_API_HOST", func(c *Config, v string) { c.API.Host = v }},
	{"COUCHCONTROL_API_PORT", func(c *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			c.API.Port = port
		}
	}},
	{"COUCHCONTROL_MINIO_ACCESS_KEY", func(c *Config, v string) { c.Storage.MinIO.AccessKeyID = v }},
	{"COUCHCONTROL_MINIO_SECRET_KEY", func(c *Config, v string) { c.Storage.MinIO.SecretAccessKey = v }},
	{"COUCHCONTROL_INFLUXDB_TOKEN", func(c *Config, v string) { c.InfluxDB.Token = v }},
	{"COUCHCONTROL_KAFKA_BROKERS", func(c *Config, v string) { c.Kafka.Brokers = splitList(v) }},
	{"COUCHCONTROL_JWT_SECRET", func(c *Config, v string) { c.Security.JWT.Secret = v }},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// minJWTSecretLength guards the selection endpoints; they expose and
// rewrite the household's device list.
const minJWTSecretLength = 32

// Validate reports every problem at once, joined with "; ".
func (c *Config) Validate() error {
	var problems []string
	require := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	require(c.Database.Path != "", "database.path is required")

	minio := c.Storage.Backend == StorageBackendMinIO
	require(minio || c.Storage.Backend == StorageBackendSQLite,
		"storage.backend must be %q or %q", StorageBackendSQLite, StorageBackendMinIO)
	require(!minio || c.Storage.MinIO.Endpoint != "", "storage.minio.endpoint is required when storage.backend is minio")
	require(!minio || c.Storage.MinIO.Bucket != "", "storage.minio.bucket is required when storage.backend is minio")

	require(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	require(!c.MQTT.Enabled || c.Ingest.TopicPrefix != "", "ingest.topic_prefix is required when mqtt is enabled")

	require(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")
	require(c.WebSocket.MaxMessageSize > 0, "websocket.max_message_size must be positive")

	require(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")
	require(!c.Kafka.Enabled || len(c.Kafka.Brokers) > 0, "kafka.brokers is required when kafka is enabled")
	require(!c.Kafka.Enabled || c.Kafka.Topic != "", "kafka.topic is required when kafka is enabled")

	switch secret := c.Security.JWT.Secret; {
	case secret == "":
		problems = append(problems, "security.jwt.secret is required (set COUCHCONTROL_JWT_SECRET)")
	case len(secret) < minJWTSecretLength:
		problems = append(problems, fmt.Sprintf("security.jwt.secret must be at least %d characters", minJWTSecretLength))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// GetReadTimeout, GetWriteTimeout and GetIdleTimeout feed http.Server.
func (c *Config) GetReadTimeout() time.Duration  { return seconds(c.API.Timeouts.Read) }
func (c *Config) GetWriteTimeout() time.Duration { return seconds(c.API.Timeouts.Write) }
func (c *Config) GetIdleTimeout() time.Duration  { return seconds(c.API.Timeouts.Idle) }
