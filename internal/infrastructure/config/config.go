package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for beamcore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Beamline BeamlineConfig  `yaml:"beamline"`
	Database DatabaseConfig  `yaml:"database"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	InfluxDB InfluxDBConfig  `yaml:"influxdb"`
	API      APIConfig       `yaml:"api"`
	WS       WebSocketConfig `yaml:"websocket"`
	Logging  LoggingConfig   `yaml:"logging"`
	Channels ChannelsConfig  `yaml:"channels"`
	Assets   AssetsConfig    `yaml:"assets"`
	Workers  WorkersConfig   `yaml:"workers"`
	Shutter  ShutterConfig   `yaml:"shutter"`
	Stage    StageConfig     `yaml:"stage"`
	Leveling LevelingConfig  `yaml:"leveling"`
}

// BeamlineConfig identifies the beamline this process controls.
type BeamlineConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ChannelsConfig selects the control-channel backend.
type ChannelsConfig struct {
	// Backend is "memory" (simulated beamline) or "mqtt".
	Backend string `yaml:"backend"`

	// ReadTimeout bounds how long a read waits for a first value (milliseconds).
	ReadTimeout int `yaml:"read_timeout"`

	// Initial seeds channel values for the memory backend.
	Initial map[string]float64 `yaml:"initial"`

	// Links makes a readback channel follow a setpoint channel in the memory backend.
	// Key is the setpoint, value the readback.
	Links map[string]string `yaml:"links"`
}

// AssetsConfig controls where externally stored arrays are written.
type AssetsConfig struct {
	Root    string `yaml:"root"`
	Spec    string `yaml:"spec"`
	Journal string `yaml:"journal"`
	Publish bool   `yaml:"publish"`
}

// WorkersConfig bounds detached device work.
type WorkersConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// ShutterConfig describes a channel-driven binary shutter.
type ShutterConfig struct {
	Name          string   `yaml:"name"`
	Command       string   `yaml:"command"`
	Readback      string   `yaml:"readback"`
	OpenValue     float64  `yaml:"open_value"`
	CloseValue    float64  `yaml:"close_value"`
	SettleDelay   int      `yaml:"settle_delay"`
	OpenSynonyms  []string `yaml:"open_synonyms"`
	CloseSynonyms []string `yaml:"close_synonyms"`
}

// StageConfig maps HiTp stage axes to control channels.
type StageConfig struct {
	// Axes maps axis name (stage_x, stage_y, plate_x, plate_y, theta) to
	// its setpoint channel; readbacks use the "<channel>.RBV" convention.
	Axes map[string]string `yaml:"axes"`

	// Layout is the default sample layout: "hitp", "circle" or "square".
	Layout string `yaml:"layout"`

	// Radius is used by the circle and square layouts.
	Radius int `yaml:"radius"`
}

// LevelingConfig contains the plate leveling control loop parameters.
type LevelingConfig struct {
	Sensor            string    `yaml:"sensor"`
	Multipliers       []float64 `yaml:"multipliers"`
	Threshold         float64   `yaml:"threshold"`
	StepSize          float64   `yaml:"step_size"`
	IterLimit         int       `yaml:"iter_limit"`
	CalibrationFactor float64   `yaml:"calibration_factor"`
	RaiseWhenCloser   bool      `yaml:"raise_when_closer"`
	SettleDelay       int       `yaml:"settle_delay"`

	// X and Y hold the two horizontal positions used when leveling each axis.
	X LevelingAxisConfig `yaml:"x"`
	Y LevelingAxisConfig `yaml:"y"`
}

// LevelingAxisConfig names the vertical actuator, the horizontal axis and the
// two positions for one leveling pass.
type LevelingAxisConfig struct {
	Vertical   string  `yaml:"vertical"`
	Horizontal string  `yaml:"horizontal"`
	Point1     float64 `yaml:"point1"`
	Point2     float64 `yaml:"point2"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BEAMCORE_SECTION_KEY
// For example: BEAMCORE_DATABASE_PATH, BEAMCORE_ASSETS_ROOT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with defaults suitable for the simulated beamline.
func Default() *Config {
	return &Config{
		Beamline: BeamlineConfig{
			ID:   "bl15",
			Name: "BL 1-5",
		},
		Database: DatabaseConfig{
			Path:        "./data/beamcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "beamcore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 300,
				Idle:  120,
			},
		},
		WS: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Channels: ChannelsConfig{
			Backend:     "memory",
			ReadTimeout: 2000,
		},
		Assets: AssetsConfig{
			Root:    "./data/assets",
			Spec:    "npy",
			Journal: "./data/assets/documents.cbor",
		},
		Workers: WorkersConfig{
			MaxConcurrent: 8,
		},
		Shutter: ShutterConfig{
			Name:          "shutter",
			Command:       "BL15:SHUTTER",
			Readback:      "BL15:SHUTTER.RBV",
			OpenValue:     1,
			CloseValue:    0,
			OpenSynonyms:  []string{"open", "opened"},
			CloseSynonyms: []string{"close", "closed"},
		},
		Stage: StageConfig{
			Axes: map[string]string{
				"stage_x": "IMS:MOTOR3",
				"stage_y": "IMS:MOTOR4",
				"plate_x": "PICOD1:MOTOR3",
				"plate_y": "PICOD1:MOTOR2",
				"theta":   "IMS:MOTOR1",
			},
			Layout: "hitp",
			Radius: 10,
		},
		Leveling: LevelingConfig{
			Sensor:            "RIO.AI0",
			Multipliers:       []float64{20, 10, 5, 2},
			Threshold:         0.001,
			StepSize:          0.001,
			IterLimit:         20,
			CalibrationFactor: 1,
			RaiseWhenCloser:   true,
			X: LevelingAxisConfig{
				Vertical:   "plate_x",
				Horizontal: "stage_x",
				Point1:     -85,
				Point2:     85,
			},
			Y: LevelingAxisConfig{
				Vertical:   "plate_y",
				Horizontal: "stage_y",
				Point1:     58,
				Point2:     -58,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BEAMCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("BEAMCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("BEAMCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BEAMCORE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("BEAMCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BEAMCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BEAMCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Channels
	if v := os.Getenv("BEAMCORE_CHANNELS_BACKEND"); v != "" {
		cfg.Channels.Backend = v
	}

	// Assets
	if v := os.Getenv("BEAMCORE_ASSETS_ROOT"); v != "" {
		cfg.Assets.Root = v
	}

	// Logging
	if v := os.Getenv("BEAMCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Beamline.ID == "" {
		errs = append(errs, "beamline.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 0 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 0 and 65535")
	}

	switch c.Channels.Backend {
	case "memory":
	case "mqtt":
		if !c.MQTT.Enabled {
			errs = append(errs, "channels.backend mqtt requires mqtt.enabled")
		}
	default:
		errs = append(errs, "channels.backend must be memory or mqtt")
	}

	switch c.Assets.Spec {
	case "npy", "AD_TIFF":
	default:
		errs = append(errs, "assets.spec must be npy or AD_TIFF")
	}
	if c.Assets.Root == "" {
		errs = append(errs, "assets.root is required")
	}

	if c.Shutter.OpenValue == c.Shutter.CloseValue {
		errs = append(errs, "shutter.open_value and shutter.close_value must differ")
	}

	if len(c.Leveling.Multipliers) == 0 {
		errs = append(errs, "leveling.multipliers must not be empty")
	}
	if c.Leveling.IterLimit < 1 {
		errs = append(errs, "leveling.iter_limit must be at least 1")
	}
	if c.Leveling.Threshold <= 0 || c.Leveling.StepSize <= 0 {
		errs = append(errs, "leveling.threshold and leveling.step_size must be positive")
	}
	if c.Leveling.CalibrationFactor == 0 {
		errs = append(errs, "leveling.calibration_factor must be non-zero")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the channel read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Channels.ReadTimeout) * time.Millisecond
}

// GetShutterSettleDelay returns the shutter settle delay as a Duration.
func (c *Config) GetShutterSettleDelay() time.Duration {
	return time.Duration(c.Shutter.SettleDelay) * time.Millisecond
}

// GetLevelingSettleDelay returns the pause after each leveling move as a Duration.
func (c *Config) GetLevelingSettleDelay() time.Duration {
	return time.Duration(c.Leveling.SettleDelay) * time.Millisecond
}
