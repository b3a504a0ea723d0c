package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Switch defaults, applied per switch after the file is parsed.
const (
	// DefaultSwitchCommand is used when command_on or command_off is omitted.
	DefaultSwitchCommand = "true"

	// DefaultCommandTimeout is the command_timeout in seconds when omitted.
	DefaultCommandTimeout = 15

	// DefaultScanInterval is the polling period when scan_interval is omitted.
	DefaultScanInterval = 30 * time.Second
)

// Config is the root configuration structure for the command-line switch bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig              `yaml:"site"`
	Database  DatabaseConfig          `yaml:"database"`
	MQTT      MQTTConfig              `yaml:"mqtt"`
	API       APIConfig               `yaml:"api"`
	WebSocket WebSocketConfig         `yaml:"websocket"`
	InfluxDB  InfluxDBConfig          `yaml:"influxdb"`
	Logging   LoggingConfig           `yaml:"logging"`
	Bridge    BridgeConfig            `yaml:"bridge"`
	History   HistoryConfig           `yaml:"history"`
	Switches  map[string]SwitchConfig `yaml:"switches"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// BridgeConfig contains settings for the switch bridge itself.
type BridgeConfig struct {
	// ID names the bridge in health messages and MQTT topics.
	ID string `yaml:"id"`

	// Shell runs every command line as "<shell> -c <line>".
	Shell string `yaml:"shell"`

	// HealthInterval is how often health is published, in seconds.
	HealthInterval int `yaml:"health_interval"`
}

// HistoryConfig controls the local state history table.
type HistoryConfig struct {
	// RetentionDays is how long history rows are kept. 0 keeps them forever.
	RetentionDays int `yaml:"retention_days"`
}

// SwitchConfig describes one command-line switch.
//
// Example:
//
//	switches:
//	  garden_pump:
//	    name: "Garden Pump"
//	    command_on: "relayctl 3 on"
//	    command_off: "relayctl 3 off"
//	    command_state: "relayctl 3 status"
//	    value_template: 'value == "ON"'
//	    command_timeout: 10
//	    scan_interval: 1m
type SwitchConfig struct {
	CommandOn     string        `yaml:"command_on"`
	CommandOff    string        `yaml:"command_off"`
	CommandState  string        `yaml:"command_state"`
	Name          string        `yaml:"name"`
	FriendlyName  string        `yaml:"friendly_name"` // legacy alias, overrides name
	Icon          string        `yaml:"icon"`
	IconTemplate  string        `yaml:"icon_template"`
	ValueTemplate string        `yaml:"value_template"`
	UniqueID      string        `yaml:"unique_id"`
	ScanInterval  time.Duration `yaml:"scan_interval"`

	// CommandTimeout is in seconds. 0 means DefaultCommandTimeout.
	CommandTimeout int `yaml:"command_timeout"`
}

// ID returns the identifier for the switch configured under key.
// unique_id wins when set; otherwise the map key is used.
func (s SwitchConfig) ID(key string) string {
	if s.UniqueID != "" {
		return s.UniqueID
	}
	return key
}

// Timeout returns the command timeout as a Duration.
func (s SwitchConfig) Timeout() time.Duration {
	return time.Duration(s.CommandTimeout) * time.Second
}

// Normalise applies defaults and resolves the friendly_name alias.
// A non-empty friendly_name replaces name. The map key is used as the name
// when neither is set.
func (s SwitchConfig) Normalise(key string) SwitchConfig {
	if s.FriendlyName != "" {
		s.Name = s.FriendlyName
	}
	if s.Name == "" {
		s.Name = key
	}
	s.FriendlyName = ""
	if s.CommandOn == "" {
		s.CommandOn = DefaultSwitchCommand
	}
	if s.CommandOff == "" {
		s.CommandOff = DefaultSwitchCommand
	}
	if s.CommandTimeout == 0 {
		s.CommandTimeout = DefaultCommandTimeout
	}
	if s.ScanInterval == 0 {
		s.ScanInterval = DefaultScanInterval
	}
	return s
}

// SwitchKeys returns the switch keys in sorted order.
func (c *Config) SwitchKeys() []string {
	keys := make([]string, 0, len(c.Switches))
	for k := range c.Switches {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Per-switch defaults and aliases
//
// Environment variables follow the pattern: CMDSWITCH_SECTION_KEY
// For example: CMDSWITCH_DATABASE_PATH, CMDSWITCH_MQTT_HOST
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

	// Validate before normalising so that explicit bad values are reported
	// rather than silently replaced by defaults.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	for key, sw := range cfg.Switches {
		cfg.Switches[key] = sw.Normalise(key)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/cmdswitch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-cmdswitch",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Bridge: BridgeConfig{
			ID:             "cmdline",
			Shell:          "/bin/sh",
			HealthInterval: 30,
		},
		History: HistoryConfig{
			RetentionDays: 30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CMDSWITCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CMDSWITCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CMDSWITCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CMDSWITCH_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("CMDSWITCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CMDSWITCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CMDSWITCH_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CMDSWITCH_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("CMDSWITCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("CMDSWITCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.History.RetentionDays < 0 {
		errs = append(errs, "history.retention_days must not be negative")
	}

	errs = append(errs, c.validateSwitches()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateSwitches checks every switch entry and the uniqueness of their IDs.
func (c *Config) validateSwitches() []string {
	if len(c.Switches) == 0 {
		return []string{"at least one switch must be configured"}
	}

	var errs []string
	seen := make(map[string]string, len(c.Switches))

	for _, key := range c.SwitchKeys() {
		sw := c.Switches[key]
		prefix := "switches." + key

		if strings.TrimSpace(key) == "" {
			errs = append(errs, "switch keys must not be empty")
		}
		if sw.CommandTimeout < 0 {
			errs = append(errs, prefix+".command_timeout must be a positive number of seconds")
		}
		if sw.ScanInterval < 0 {
			errs = append(errs, prefix+".scan_interval must not be negative")
		}

		id := sw.ID(key)
		if other, dup := seen[id]; dup {
			errs = append(errs, fmt.Sprintf("%s: id %q already used by switches.%s", prefix, id, other))
		}
		seen[id] = key
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// GetHealthInterval returns the bridge health interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetHistoryRetention returns the history retention period. Zero disables pruning.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}
