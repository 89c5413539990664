package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
beamline:
  id: "bl15-test"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
channels:
  backend: "mqtt"
  read_timeout: 500
assets:
  root: "/tmp/assets"
  spec: "AD_TIFF"
leveling:
  multipliers: [8, 4]
  iter_limit: 5
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Beamline.ID != "bl15-test" {
		t.Errorf("Beamline.ID = %q, want %q", cfg.Beamline.ID, "bl15-test")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Channels.Backend != "mqtt" {
		t.Errorf("Channels.Backend = %q, want %q", cfg.Channels.Backend, "mqtt")
	}
	if cfg.Assets.Spec != "AD_TIFF" {
		t.Errorf("Assets.Spec = %q, want %q", cfg.Assets.Spec, "AD_TIFF")
	}
	if len(cfg.Leveling.Multipliers) != 2 || cfg.Leveling.Multipliers[0] != 8 {
		t.Errorf("Leveling.Multipliers = %v, want [8 4]", cfg.Leveling.Multipliers)
	}
	// Untouched sections keep their defaults.
	if cfg.Leveling.X.Point1 != -85 {
		t.Errorf("Leveling.X.Point1 = %v, want -85", cfg.Leveling.X.Point1)
	}
	if cfg.Shutter.OpenValue != 1 {
		t.Errorf("Shutter.OpenValue = %v, want 1", cfg.Shutter.OpenValue)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("beamline: [unterminated"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("error = %v, want parsing error", err)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
channels:
  backend: "mqtt"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "requires mqtt.enabled") {
		t.Errorf("error = %v, want mqtt.enabled message", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Config) {},
		},
		{
			name:    "missing beamline id",
			modify:  func(c *Config) { c.Beamline.ID = "" },
			wantErr: "beamline.id",
		},
		{
			name:    "missing database path",
			modify:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid qos",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "unknown channel backend",
			modify:  func(c *Config) { c.Channels.Backend = "epics" },
			wantErr: "channels.backend",
		},
		{
			name:    "unsupported asset spec",
			modify:  func(c *Config) { c.Assets.Spec = "XSP3" },
			wantErr: "assets.spec",
		},
		{
			name: "shutter values collide",
			modify: func(c *Config) {
				c.Shutter.OpenValue = 0
				c.Shutter.CloseValue = 0
			},
			wantErr: "shutter.open_value",
		},
		{
			name:    "empty multipliers",
			modify:  func(c *Config) { c.Leveling.Multipliers = nil },
			wantErr: "leveling.multipliers",
		},
		{
			name:    "zero iteration limit",
			modify:  func(c *Config) { c.Leveling.IterLimit = 0 },
			wantErr: "leveling.iter_limit",
		},
		{
			name:    "zero calibration",
			modify:  func(c *Config) { c.Leveling.CalibrationFactor = 0 },
			wantErr: "leveling.calibration_factor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Beamline.ID = ""
	cfg.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"beamline.id", "database.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestConfig_GetDurations(t *testing.T) {
	cfg := Default()
	cfg.Channels.ReadTimeout = 250
	cfg.Shutter.SettleDelay = 100
	cfg.Leveling.SettleDelay = 20

	if got := cfg.GetReadTimeout(); got != 250*time.Millisecond {
		t.Errorf("GetReadTimeout() = %v, want 250ms", got)
	}
	if got := cfg.GetShutterSettleDelay(); got != 100*time.Millisecond {
		t.Errorf("GetShutterSettleDelay() = %v, want 100ms", got)
	}
	if got := cfg.GetLevelingSettleDelay(); got != 20*time.Millisecond {
		t.Errorf("GetLevelingSettleDelay() = %v, want 20ms", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("BEAMCORE_DATABASE_PATH", "/env/beamcore.db")
	t.Setenv("BEAMCORE_MQTT_HOST", "broker.bl15")
	t.Setenv("BEAMCORE_MQTT_PORT", "8883")
	t.Setenv("BEAMCORE_INFLUXDB_TOKEN", "env-token")
	t.Setenv("BEAMCORE_CHANNELS_BACKEND", "mqtt")
	t.Setenv("BEAMCORE_ASSETS_ROOT", "/env/assets")
	t.Setenv("BEAMCORE_LOG_LEVEL", "debug")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/env/beamcore.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.bl15" || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT broker = %s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
	}
	if cfg.InfluxDB.Token != "env-token" {
		t.Errorf("InfluxDB.Token = %q", cfg.InfluxDB.Token)
	}
	if cfg.Channels.Backend != "mqtt" {
		t.Errorf("Channels.Backend = %q", cfg.Channels.Backend)
	}
	if cfg.Assets.Root != "/env/assets" {
		t.Errorf("Assets.Root = %q", cfg.Assets.Root)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestApplyEnvOverrides_IgnoresBadPort(t *testing.T) {
	t.Setenv("BEAMCORE_MQTT_PORT", "not-a-port")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Channels.Backend != "memory" {
		t.Errorf("Channels.Backend = %q, want memory", cfg.Channels.Backend)
	}
	want := []float64{20, 10, 5, 2}
	if len(cfg.Leveling.Multipliers) != len(want) {
		t.Fatalf("Leveling.Multipliers = %v, want %v", cfg.Leveling.Multipliers, want)
	}
	for i := range want {
		if cfg.Leveling.Multipliers[i] != want[i] {
			t.Errorf("Leveling.Multipliers[%d] = %v, want %v", i, cfg.Leveling.Multipliers[i], want[i])
		}
	}
	if cfg.Leveling.IterLimit != 20 {
		t.Errorf("Leveling.IterLimit = %d, want 20", cfg.Leveling.IterLimit)
	}
	if len(cfg.Stage.Axes) != 5 {
		t.Errorf("Stage.Axes has %d entries, want 5", len(cfg.Stage.Axes))
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Stage.Layout != "hitp" {
		t.Errorf("Stage.Layout = %q, want hitp", cfg.Stage.Layout)
	}
	if cfg.Leveling.Y.Point1 != 58 {
		t.Errorf("Leveling.Y.Point1 = %v, want 58", cfg.Leveling.Y.Point1)
	}
	if !cfg.API.Enabled || cfg.API.Port != 8080 || cfg.API.Timeouts.Write != 300 {
		t.Errorf("API = %+v", cfg.API)
	}
}
