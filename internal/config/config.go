// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Input   InputConfig   `mapstructure:"input"`
	Display DisplayConfig `mapstructure:"display"`
	Layout  LayoutConfig  `mapstructure:"layout"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// InputConfig contains injection settings
type InputConfig struct {
	Method  string `mapstructure:"method"`   // xtest or sendevent
	LineMax int    `mapstructure:"line_max"` // Line buffer size, terminator included
}

// DisplayConfig selects the X server
type DisplayConfig struct {
	Name string `mapstructure:"name"` // Empty means $DISPLAY
}

// LayoutConfig contains keyboard layout switching settings
type LayoutConfig struct {
	Command     string `mapstructure:"command"`
	CommandMax  int    `mapstructure:"command_max"`
	SentinelKey string `mapstructure:"sentinel_key"`
}

// ServerConfig contains settings for the SSH listener
type ServerConfig struct {
	Listen             string `mapstructure:"listen"`
	HostKeyPath        string `mapstructure:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
	File     string `mapstructure:"file"`      // Additional log file, empty disables
}

var (
	// DefaultConfig reproduces the behaviour of a bare `xin` invocation
	DefaultConfig = Config{
		Input: InputConfig{
			Method:  "xtest",
			LineMax: 64,
		},
		Layout: LayoutConfig{
			Command:     "setxkbmap",
			CommandMax:  128,
			SentinelKey: "Super_L",
		},
		Server: ServerConfig{
			Listen:             "127.0.0.1:2222",
			HostKeyPath:        filepath.Join(configDir(), "host_key"),
			AuthorizedKeysPath: filepath.Join(configDir(), "authorized_keys"),
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("xin")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/xin")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	// XIN_INPUT_METHOD overrides input.method and so on
	viper.SetEnvPrefix("XIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("input.method", DefaultConfig.Input.Method)
	viper.SetDefault("input.line_max", DefaultConfig.Input.LineMax)

	viper.SetDefault("display.name", DefaultConfig.Display.Name)

	viper.SetDefault("layout.command", DefaultConfig.Layout.Command)
	viper.SetDefault("layout.command_max", DefaultConfig.Layout.CommandMax)
	viper.SetDefault("layout.sentinel_key", DefaultConfig.Layout.SentinelKey)

	viper.SetDefault("server.listen", DefaultConfig.Server.Listen)
	viper.SetDefault("server.host_key_path", DefaultConfig.Server.HostKeyPath)
	viper.SetDefault("server.authorized_keys_path", DefaultConfig.Server.AuthorizedKeysPath)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)
	viper.SetDefault("logging.file", DefaultConfig.Logging.File)

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c

	return nil
}

// Validate checks values that would otherwise fail much later
func (c *Config) Validate() error {
	if c.Input.LineMax < 3 {
		return fmt.Errorf("input.line_max must be at least 3, got %d", c.Input.LineMax)
	}
	if c.Layout.Command == "" {
		return fmt.Errorf("layout.command must not be empty")
	}
	if c.Layout.CommandMax <= len(c.Layout.Command)+1 {
		return fmt.Errorf("layout.command_max %d leaves no room for a layout name", c.Layout.CommandMax)
	}
	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save writes the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.HasPrefix(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	return filepath.Join(configDir(), "xin.toml")
}

// configDir returns $XDG_CONFIG_HOME/xin, falling back to ~/.config/xin
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "xin")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/xin"
	}
	return filepath.Join(home, ".config", "xin")
}
