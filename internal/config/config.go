// Package config loads and validates the bridge configuration from YAML
// files and environment variables. Environment variables win over file
// values; both win over the built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/steambridge/steambridge/internal/platform"
)

// Configuration represents the complete bridge configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Steam   SteamConfig   `yaml:"steam"`
	Polling PollingConfig `yaml:"polling"`
	Mock    MockConfig    `yaml:"mock"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsPort    int    `yaml:"metrics_port"`
}

// SteamConfig represents the native SDK settings
type SteamConfig struct {
	// AppID is the application id the library is initialized for. Zero
	// means discover it from the environment (SteamAppId / SteamGameId,
	// including a .env file in the working directory).
	AppID uint32 `yaml:"app_id"`

	// SDKRoot is the directory the redistributable binaries live under.
	SDKRoot string `yaml:"sdk_root"`

	// LibraryPath overrides platform resolution with an explicit shared
	// library path.
	LibraryPath string `yaml:"library_path"`

	// MarkerDir is where the app-id marker file is written. Defaults to
	// the working directory.
	MarkerDir string `yaml:"marker_dir"`
}

// PollingConfig represents call-result polling settings
type PollingConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	SettlePumps  int           `yaml:"settle_pumps"`
}

// MockConfig represents the offline fallback settings
type MockConfig struct {
	// Enabled forces the mock backend regardless of native availability.
	Enabled bool `yaml:"enabled"`

	// FallbackToMock switches to the mock when native initialization
	// fails instead of surfacing the error.
	FallbackToMock bool `yaml:"fallback_to_mock"`

	// StatePath, when set, persists mock state to this bbolt file.
	StatePath string `yaml:"state_path"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFormat:   "text",
			MetricsPort: 9090,
		},
		Steam: SteamConfig{
			SDKRoot: platform.DefaultSDKRoot,
		},
		Polling: PollingConfig{
			PollInterval: 100 * time.Millisecond,
			PollTimeout:  3 * time.Second,
			SettlePumps:  2,
		},
		Mock: MockConfig{
			FallbackToMock: true,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("STEAMBRIDGE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("STEAMBRIDGE_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("STEAMBRIDGE_METRICS_ENABLED"); val != "" {
		c.Global.MetricsEnabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("STEAMBRIDGE_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}

	// SDK settings
	if val := os.Getenv("STEAMBRIDGE_SDK_ROOT"); val != "" {
		c.Steam.SDKRoot = val
	}
	if val := os.Getenv("STEAMBRIDGE_LIBRARY_PATH"); val != "" {
		c.Steam.LibraryPath = val
	}
	if val := os.Getenv("STEAMBRIDGE_MARKER_DIR"); val != "" {
		c.Steam.MarkerDir = val
	}
	if c.Steam.AppID == 0 {
		// The launcher convention: SteamAppId / SteamGameId in the
		// process environment or a .env file next to the binary.
		c.Steam.AppID = platform.DiscoverAppID()
	}

	// Polling settings
	if val := os.Getenv("STEAMBRIDGE_POLL_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Polling.PollInterval = duration
		}
	}
	if val := os.Getenv("STEAMBRIDGE_POLL_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Polling.PollTimeout = duration
		}
	}
	if val := os.Getenv("STEAMBRIDGE_SETTLE_PUMPS"); val != "" {
		if pumps, err := strconv.Atoi(val); err == nil {
			c.Polling.SettlePumps = pumps
		}
	}

	// Mock settings
	if val := os.Getenv("STEAMBRIDGE_MOCK"); val != "" {
		c.Mock.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("STEAMBRIDGE_MOCK_FALLBACK"); val != "" {
		c.Mock.FallbackToMock = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("STEAMBRIDGE_MOCK_STATE_PATH"); val != "" {
		c.Mock.StatePath = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Global.LogLevel) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	switch strings.ToLower(c.Global.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	if c.Global.MetricsEnabled && (c.Global.MetricsPort <= 0 || c.Global.MetricsPort > 65535) {
		return fmt.Errorf("invalid metrics_port: %d", c.Global.MetricsPort)
	}

	if c.Polling.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be greater than 0")
	}
	if c.Polling.PollTimeout < c.Polling.PollInterval {
		return fmt.Errorf("poll_timeout must be at least poll_interval")
	}
	if c.Polling.SettlePumps <= 0 {
		return fmt.Errorf("settle_pumps must be greater than 0")
	}

	if !c.Mock.Enabled && c.Steam.AppID == 0 {
		return fmt.Errorf("app_id is required (set steam.app_id, SteamAppId, or a steam_appid.txt convention)")
	}

	return nil
}

// Load builds the effective configuration: defaults, then the optional
// file, then the environment, then validation.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()

	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
