package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for defuse-core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Bus         BusConfig         `yaml:"bus"`
	Game        GameConfig        `yaml:"game"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DeviceConfig identifies this bomb.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Bus transports.
const (
	TransportSLCAN = "slcan"
	TransportSim   = "sim"
)

// BusConfig selects and configures the bus transport.
type BusConfig struct {
	// Transport is "slcan" (USB-CAN adapter) or "sim" (in-memory bus).
	Transport string `yaml:"transport"`

	// SerialPort is the adapter's serial device, e.g. /dev/ttyACM0.
	SerialPort string `yaml:"serial_port"`
	SerialBaud uint   `yaml:"serial_baud"`

	// Bitrate is the CAN bitrate in bits/s.
	Bitrate int `yaml:"bitrate"`

	// QueueSize bounds the receive queue.
	QueueSize int `yaml:"queue_size"`
}

// GameConfig contains the game rules. Durations are in seconds unless the
// field name says otherwise.
type GameConfig struct {
	TimeLimit           int     `yaml:"time_limit"`
	MaxStrikes          int     `yaml:"max_strikes"`
	StrikeAcceleration  float64 `yaml:"strike_acceleration"`
	AccelerationEnabled bool    `yaml:"acceleration_enabled"`
	EmergencyThreshold  int     `yaml:"emergency_threshold"`
	CountdownSeconds    int     `yaml:"countdown"`
	NeedyEnabled        bool    `yaml:"needy_enabled"`
	EdgeworkEnabled     bool    `yaml:"edgework_enabled"`
	CuesEnabled         bool    `yaml:"cues_enabled"`
	TickIntervalMs      int     `yaml:"tick_interval_ms"`
	LivenessTimeout     int     `yaml:"liveness_timeout"`

	// Seed fixes serial number and edgework generation. Zero seeds randomly.
	Seed uint64 `yaml:"seed"`
}

// NegotiationConfig contains module address negotiation timings in
// milliseconds. Used by simulated modules.
type NegotiationConfig struct {
	InitialDelayMinMs int  `yaml:"initial_delay_min_ms"`
	InitialDelayMaxMs int  `yaml:"initial_delay_max_ms"`
	ProbeRounds       int  `yaml:"probe_rounds"`
	ProbeTimeoutMs    int  `yaml:"probe_timeout_ms"`
	ProbeJitterMs     int  `yaml:"probe_jitter_ms"`
	PollIntervalMs    int  `yaml:"poll_interval_ms"`
	BackoffStepMs     int  `yaml:"backoff_step_ms"`
	BackoffJitterMs   int  `yaml:"backoff_jitter_ms"`
	FallbackInstance  int  `yaml:"fallback_instance"`
	UseNonce          bool `yaml:"use_nonce"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Panel    PanelConfig      `yaml:"panel"`
	Auth     AuthConfig       `yaml:"auth"`
}

// AuthConfig guards operator commands with a PIN-issued JWT.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// JWTSecret signs tokens. At least 32 characters.
	JWTSecret string `yaml:"jwt_secret"`
	// PINHash is the Argon2id PHC hash of the operator PIN
	// (defusecore hash-pin prints one).
	PINHash string `yaml:"pin_hash"`
	// TokenTTL is the token lifetime in minutes.
	TokenTTL int `yaml:"token_ttl"`
}

// TokenTTLDuration returns the token lifetime.
func (a AuthConfig) TokenTTLDuration() time.Duration {
	return time.Duration(a.TokenTTL) * time.Minute
}

// PanelConfig controls the operator console served at the API root.
type PanelConfig struct {
	Enabled bool `yaml:"enabled"`
	// Dir serves the console from disk instead of the embedded copy.
	Dir string `yaml:"dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DEFUSE_SECTION_KEY
// For example: DEFUSE_DATABASE_PATH, DEFUSE_BUS_SERIAL_PORT
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the standard game rules and local services.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:   "bomb-001",
			Name: "Defuse",
		},
		Bus: BusConfig{
			Transport:  TransportSim,
			SerialPort: "/dev/ttyACM0",
			SerialBaud: 115200,
			Bitrate:    500000,
			QueueSize:  64,
		},
		Game: GameConfig{
			TimeLimit:           300,
			MaxStrikes:          3,
			StrikeAcceleration:  0.25,
			AccelerationEnabled: true,
			EmergencyThreshold:  60,
			NeedyEnabled:        true,
			EdgeworkEnabled:     true,
			CuesEnabled:         true,
			TickIntervalMs:      50,
			LivenessTimeout:     5,
		},
		Negotiation: NegotiationConfig{
			InitialDelayMinMs: 50,
			InitialDelayMaxMs: 300,
			ProbeRounds:       3,
			ProbeTimeoutMs:    100,
			ProbeJitterMs:     50,
			PollIntervalMs:    5,
			BackoffStepMs:     20,
			BackoffJitterMs:   20,
			FallbackInstance:  1,
			UseNonce:          true,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/defuse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "defuse-core",
			},
			QoS:         1,
			TopicPrefix: "defuse",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Panel: PanelConfig{Enabled: true},
			Auth:  AuthConfig{TokenTTL: 240},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "defuse",
			Bucket:        "defuse",
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

const minJWTSecretLength = 32

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DEFUSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not an integer", name, v))
				return
			}
			*dst = n
		}
	}
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	// Device
	setString("DEFUSE_DEVICE_ID", &cfg.Device.ID)

	// Bus
	setString("DEFUSE_BUS_TRANSPORT", &cfg.Bus.Transport)
	setString("DEFUSE_BUS_SERIAL_PORT", &cfg.Bus.SerialPort)

	// Game
	setInt("DEFUSE_GAME_TIME_LIMIT", &cfg.Game.TimeLimit)
	setInt("DEFUSE_GAME_MAX_STRIKES", &cfg.Game.MaxStrikes)

	// Database
	setString("DEFUSE_DATABASE_PATH", &cfg.Database.Path)

	// MQTT
	setString("DEFUSE_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setString("DEFUSE_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("DEFUSE_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// API
	setString("DEFUSE_API_HOST", &cfg.API.Host)
	setInt("DEFUSE_API_PORT", &cfg.API.Port)
	setString("DEFUSE_API_JWT_SECRET", &cfg.API.Auth.JWTSecret)
	setString("DEFUSE_API_PIN_HASH", &cfg.API.Auth.PINHash)

	// InfluxDB
	setString("DEFUSE_INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("DEFUSE_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	setString("DEFUSE_LOG_LEVEL", &cfg.Logging.Level)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	switch c.Bus.Transport {
	case TransportSim:
	case TransportSLCAN:
		if c.Bus.SerialPort == "" {
			errs = append(errs, "bus.serial_port is required for the slcan transport")
		}
	default:
		errs = append(errs, fmt.Sprintf("bus.transport must be %q or %q", TransportSLCAN, TransportSim))
	}

	if c.Game.TimeLimit < 1 {
		errs = append(errs, "game.time_limit must be at least 1 second")
	}
	if c.Game.MaxStrikes < 1 || c.Game.MaxStrikes > 255 {
		errs = append(errs, "game.max_strikes must be between 1 and 255")
	}
	if c.Game.StrikeAcceleration < 0 {
		errs = append(errs, "game.strike_acceleration must not be negative")
	}
	if c.Game.CountdownSeconds < 0 || c.Game.CountdownSeconds > 255 {
		errs = append(errs, "game.countdown must be between 0 and 255")
	}
	if c.Game.TickIntervalMs < 1 {
		errs = append(errs, "game.tick_interval_ms must be positive")
	}

	if c.Negotiation.FallbackInstance < 1 || c.Negotiation.FallbackInstance > 31 {
		errs = append(errs, "negotiation.fallback_instance must be between 1 and 31")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && (c.WebSocket.PingInterval < 1 || c.WebSocket.PongTimeout < 1) {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}
	if c.API.Enabled && c.API.Auth.Enabled {
		if len(c.API.Auth.JWTSecret) < minJWTSecretLength {
			errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters", minJWTSecretLength))
		}
		if !strings.HasPrefix(c.API.Auth.PINHash, "$argon2id$") {
			errs = append(errs, "api.auth.pin_hash must be an argon2id hash")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
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

// TimeLimitDuration returns the game countdown length.
func (g GameConfig) TimeLimitDuration() time.Duration {
	return time.Duration(g.TimeLimit) * time.Second
}

// TickInterval returns the orchestrator loop period.
func (g GameConfig) TickInterval() time.Duration {
	return time.Duration(g.TickIntervalMs) * time.Millisecond
}

// LivenessTimeoutDuration returns the module liveness timeout.
func (g GameConfig) LivenessTimeoutDuration() time.Duration {
	return time.Duration(g.LivenessTimeout) * time.Second
}

// EmergencyThresholdDuration returns when the emergency alarm starts.
func (g GameConfig) EmergencyThresholdDuration() time.Duration {
	return time.Duration(g.EmergencyThreshold) * time.Second
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// InitialDelayMin returns the lower bound of the boot delay.
func (n NegotiationConfig) InitialDelayMin() time.Duration { return ms(n.InitialDelayMinMs) }

// InitialDelayMax returns the upper bound of the boot delay.
func (n NegotiationConfig) InitialDelayMax() time.Duration { return ms(n.InitialDelayMaxMs) }

// ProbeTimeout returns the per-round listen window.
func (n NegotiationConfig) ProbeTimeout() time.Duration { return ms(n.ProbeTimeoutMs) }

// ProbeJitter returns the maximum random addition to ProbeTimeout.
func (n NegotiationConfig) ProbeJitter() time.Duration { return ms(n.ProbeJitterMs) }

// PollInterval returns the sleep between bus drains while listening.
func (n NegotiationConfig) PollInterval() time.Duration { return ms(n.PollIntervalMs) }

// BackoffStep returns the per-candidate backoff step.
func (n NegotiationConfig) BackoffStep() time.Duration { return ms(n.BackoffStepMs) }

// BackoffJitter returns the maximum random addition to the backoff.
func (n NegotiationConfig) BackoffJitter() time.Duration { return ms(n.BackoffJitterMs) }
