/*
Copyright 2024 PumpLink Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config provides configuration loading and management for pumplink.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Ddedalus/syringe-pump/internal/serial"
)

// EnvPrefix is the prefix of environment variables overriding config keys.
const EnvPrefix = "PUMPLINK"

// Config represents the complete pumplink configuration
type Config struct {
	Serial     SerialConfig     `mapstructure:"serial" yaml:"serial"`
	Pump       PumpConfig       `mapstructure:"pump" yaml:"pump"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Transcript TranscriptConfig `mapstructure:"transcript" yaml:"transcript"`
}

// SerialConfig holds serial port settings
type SerialConfig struct {
	Port            string         `mapstructure:"port" yaml:"port"`
	Defaults        SerialDefaults `mapstructure:"defaults" yaml:"defaults"`
	ScanInterval    int            `mapstructure:"scan_interval" yaml:"scan_interval"`
	ExcludePatterns []string       `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
}

// SerialDefaults holds default serial port parameters
type SerialDefaults struct {
	BaudRate       int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	DataBits       int    `mapstructure:"data_bits" yaml:"data_bits"`
	StopBits       int    `mapstructure:"stop_bits" yaml:"stop_bits"`
	Parity         string `mapstructure:"parity" yaml:"parity"`
	FlowControl    string `mapstructure:"flow_control" yaml:"flow_control"`
	ReadTimeoutMs  int    `mapstructure:"read_timeout_ms" yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `mapstructure:"write_timeout_ms" yaml:"write_timeout_ms"`
	MaxFrameSize   int    `mapstructure:"max_frame_size" yaml:"max_frame_size"`
}

// PumpConfig holds pump session settings
type PumpConfig struct {
	// Address is the two-digit network address prefixed to every command,
	// or -1 to send commands without one.
	Address         int    `mapstructure:"address" yaml:"address"`
	CommandPrefix   string `mapstructure:"command_prefix" yaml:"command_prefix"`
	ResyncTimeoutMs int    `mapstructure:"resync_timeout_ms" yaml:"resync_timeout_ms"`
	ExitBrightness  int    `mapstructure:"exit_brightness" yaml:"exit_brightness"`
	QuickStartMode  string `mapstructure:"quick_start_mode" yaml:"quick_start_mode"`
	SetClock        bool   `mapstructure:"set_clock" yaml:"set_clock"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// TranscriptConfig holds command/response transcript settings
type TranscriptConfig struct {
	Enabled bool       `mapstructure:"enabled" yaml:"enabled"`
	File    string     `mapstructure:"file" yaml:"file"`
	MQTT    MQTTConfig `mapstructure:"mqtt" yaml:"mqtt"`
}

// MQTTConfig holds the broker the transcript is published to
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	QoS      int    `mapstructure:"qos" yaml:"qos"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	port := serial.DefaultConfig()
	return &Config{
		Serial: SerialConfig{
			Defaults: SerialDefaults{
				BaudRate:       port.BaudRate,
				DataBits:       port.DataBits,
				StopBits:       1,
				Parity:         "none",
				FlowControl:    "none",
				ReadTimeoutMs:  port.ReadTimeoutMs,
				WriteTimeoutMs: port.WriteTimeoutMs,
				MaxFrameSize:   port.MaxFrameSize,
			},
			ScanInterval: 2,
		},
		Pump: PumpConfig{
			Address:         -1,
			CommandPrefix:   "@",
			ResyncTimeoutMs: 500,
			ExitBrightness:  15,
			QuickStartMode:  "iw",
			SetClock:        true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Transcript: TranscriptConfig{
			MQTT: MQTTConfig{
				Topic:    "pumplink/transcript",
				ClientID: "pumplink",
			},
		},
	}
}

// ToPortConfig converts SerialDefaults into a concrete serial.PortConfig.
func (d SerialDefaults) ToPortConfig() (serial.PortConfig, error) {
	parity, err := serial.ParseParity(d.Parity)
	if err != nil {
		return serial.PortConfig{}, err
	}

	flowControl, err := serial.ParseFlowControl(d.FlowControl)
	if err != nil {
		return serial.PortConfig{}, err
	}

	stopBits, err := serial.ParseStopBits(d.StopBits)
	if err != nil {
		return serial.PortConfig{}, err
	}

	cfg := serial.PortConfig{
		BaudRate:       d.BaudRate,
		DataBits:       d.DataBits,
		StopBits:       stopBits,
		Parity:         parity,
		FlowControl:    flowControl,
		ReadTimeoutMs:  d.ReadTimeoutMs,
		WriteTimeoutMs: d.WriteTimeoutMs,
		MaxFrameSize:   d.MaxFrameSize,
	}
	if err := cfg.Validate(); err != nil {
		return serial.PortConfig{}, err
	}
	return cfg, nil
}

// ResyncTimeout returns the bound on draining a stale response
func (p PumpConfig) ResyncTimeout() time.Duration {
	return time.Duration(p.ResyncTimeoutMs) * time.Millisecond
}

// SetDefaults sets default values in viper
func SetDefaults() {
	defaults := DefaultConfig()

	// Serial defaults
	viper.SetDefault("serial.port", defaults.Serial.Port)
	viper.SetDefault("serial.defaults.baud_rate", defaults.Serial.Defaults.BaudRate)
	viper.SetDefault("serial.defaults.data_bits", defaults.Serial.Defaults.DataBits)
	viper.SetDefault("serial.defaults.stop_bits", defaults.Serial.Defaults.StopBits)
	viper.SetDefault("serial.defaults.parity", defaults.Serial.Defaults.Parity)
	viper.SetDefault("serial.defaults.flow_control", defaults.Serial.Defaults.FlowControl)
	viper.SetDefault("serial.defaults.read_timeout_ms", defaults.Serial.Defaults.ReadTimeoutMs)
	viper.SetDefault("serial.defaults.write_timeout_ms", defaults.Serial.Defaults.WriteTimeoutMs)
	viper.SetDefault("serial.defaults.max_frame_size", defaults.Serial.Defaults.MaxFrameSize)
	viper.SetDefault("serial.scan_interval", defaults.Serial.ScanInterval)
	viper.SetDefault("serial.exclude_patterns", defaults.Serial.ExcludePatterns)

	// Pump defaults
	viper.SetDefault("pump.address", defaults.Pump.Address)
	viper.SetDefault("pump.command_prefix", defaults.Pump.CommandPrefix)
	viper.SetDefault("pump.resync_timeout_ms", defaults.Pump.ResyncTimeoutMs)
	viper.SetDefault("pump.exit_brightness", defaults.Pump.ExitBrightness)
	viper.SetDefault("pump.quick_start_mode", defaults.Pump.QuickStartMode)
	viper.SetDefault("pump.set_clock", defaults.Pump.SetClock)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)
	viper.SetDefault("logging.file", defaults.Logging.File)

	// Transcript defaults
	viper.SetDefault("transcript.enabled", defaults.Transcript.Enabled)
	viper.SetDefault("transcript.file", defaults.Transcript.File)
	viper.SetDefault("transcript.mqtt.enabled", defaults.Transcript.MQTT.Enabled)
	viper.SetDefault("transcript.mqtt.broker", defaults.Transcript.MQTT.Broker)
	viper.SetDefault("transcript.mqtt.topic", defaults.Transcript.MQTT.Topic)
	viper.SetDefault("transcript.mqtt.client_id", defaults.Transcript.MQTT.ClientID)
	viper.SetDefault("transcript.mqtt.qos", defaults.Transcript.MQTT.QoS)
}

// Load reads configuration from viper and returns a Config struct
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	SetDefaults()
	viper.SetConfigFile(path)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Load()
}

// LoadOrDefault loads configuration from file, or returns default if file doesn't exist
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return LoadFromFile(path)
}

// Save writes configuration to a YAML file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.Serial.Defaults.ToPortConfig(); err != nil {
		return fmt.Errorf("invalid serial defaults: %w", err)
	}

	if c.Pump.Address < -1 || c.Pump.Address > 99 {
		return fmt.Errorf("pump address must be between 0 and 99, or -1 for none")
	}

	if c.Pump.ResyncTimeoutMs < 0 {
		return fmt.Errorf("resync_timeout_ms must not be negative")
	}

	if c.Pump.ExitBrightness < 0 || c.Pump.ExitBrightness > 100 {
		return fmt.Errorf("exit_brightness must be between 0 and 100")
	}

	validModes := map[string]bool{"": true, "i": true, "w": true, "iw": true, "wi": true}
	if !validModes[c.Pump.QuickStartMode] {
		return fmt.Errorf("invalid quick_start_mode: %s", c.Pump.QuickStartMode)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true, "logfmt": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Transcript.MQTT.Enabled {
		if c.Transcript.MQTT.Broker == "" || c.Transcript.MQTT.Topic == "" {
			return fmt.Errorf("transcript mqtt broker and topic are required when mqtt is enabled")
		}
		if c.Transcript.MQTT.QoS < 0 || c.Transcript.MQTT.QoS > 2 {
			return fmt.Errorf("transcript mqtt qos must be 0, 1 or 2")
		}
	}

	return nil
}

// DefaultConfigPath returns the default configuration file path for the current OS
func DefaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "PumpLink", "config.yaml")
	case "darwin":
		return "/usr/local/etc/pumplink/config.yaml"
	default:
		return "/etc/pumplink/config.yaml"
	}
}

// UserConfigPath returns the user-specific configuration file path
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, ".pumplink", "config.yaml")
	default:
		return filepath.Join(home, ".config", "pumplink", "config.yaml")
	}
}

// InitViper initializes viper with default configuration paths
func InitViper(configFile string) error {
	SetDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Search in multiple locations
		home, _ := os.UserHomeDir()
		if home != "" {
			viper.AddConfigPath(filepath.Join(home, ".pumplink"))
			viper.AddConfigPath(filepath.Join(home, ".config", "pumplink"))
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/pumplink")

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variable support
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults
	}

	return nil
}
