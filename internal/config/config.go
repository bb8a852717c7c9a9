package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "KEYDECK"
	dirName   = ".keydeck"
)

var (
	configData Config
	v          = viper.New()
)

// Config holds all configuration settings.
type Config struct {
	// Plugin configuration
	Plugin struct {
		Path    string
		Timeout time.Duration
	}
	// Device configuration
	Device struct {
		Kind        string
		Keys        int
		Brightness  int
		Address     string
		KeySize     int    `mapstructure:"key_size"`
		ImageFormat string `mapstructure:"image_format"`
		Queue       int
	}
	// Journal configuration
	Journal struct {
		Path string
	}
	// Built-in action configuration
	Builtins struct {
		Enabled bool
	}
	// Logging configuration
	Log struct {
		Level  string
		Format string
	}
}

const defaultConfig = `# keydeck configuration file
plugin:
  path: plugins
  timeout: 5s

device:
  kind: sim
  keys: 6
  brightness: 100
  address: localhost:1600
  key_size: 72
  image_format: png
  queue: 16

journal:
  path: ""

builtins:
  enabled: false

log:
  level: info
  format: human
`

// Initialize sets up the configuration system. An explicit cfgFile replaces
// the search path.
func Initialize(cfgFile string) error {
	// Set default values
	setDefaults()

	// Environment variables
	v.SetEnvPrefix(envPrefix) // prefix for env vars
	v.AutomaticEnv()          // read in environment variables that match
	v.SetEnvKeyReplacer(      // replace dots with underscores in env vars
		strings.NewReplacer(".", "_"),
	)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Set config name and paths
		v.SetConfigName("config")           // name of config file (without extension)
		v.SetConfigType("yaml")             // config file type
		v.AddConfigPath(".")                // optionally look for config in working directory
		v.AddConfigPath("$HOME/" + dirName) // look for config in .keydeck directory in home
		v.AddConfigPath("/etc/keydeck/")    // path to look for the config file in

		// Create config file if it doesn't exist
		if err := ensureConfig(); err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
	}

	// Read in config file
	if err := v.ReadInConfig(); err != nil {
		// It's okay if we can't find a config file, we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal config into struct
	if err := v.Unmarshal(&configData); err != nil {
		return fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return validate(&configData)
}

// setDefaults sets default values for all configuration options.
func setDefaults() {
	// Plugin defaults
	v.SetDefault("plugin.path", "plugins")
	v.SetDefault("plugin.timeout", 5*time.Second)

	// Device defaults
	v.SetDefault("device.kind", "sim")
	v.SetDefault("device.keys", 6)
	v.SetDefault("device.brightness", 100)
	v.SetDefault("device.address", "localhost:1600")
	v.SetDefault("device.key_size", 72)
	v.SetDefault("device.image_format", "png")
	v.SetDefault("device.queue", 16)

	// Journal defaults
	v.SetDefault("journal.path", "")

	// Built-in action defaults
	v.SetDefault("builtins.enabled", false)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "human")
}

func validate(c *Config) error {
	switch strings.ToLower(c.Device.Kind) {
	case "sim", "net":
	default:
		return fmt.Errorf("unknown device kind %q", c.Device.Kind)
	}
	if c.Device.Keys < 1 || c.Device.Keys > 9 {
		return fmt.Errorf("device.keys must be between 1 and 9, got %d", c.Device.Keys)
	}
	if c.Device.KeySize <= 0 {
		return fmt.Errorf("device.key_size must be positive, got %d", c.Device.KeySize)
	}
	if c.Plugin.Timeout <= 0 {
		return fmt.Errorf("plugin.timeout must be positive, got %s", c.Plugin.Timeout)
	}

	return nil
}

// ensureConfig creates a default config file if none exists.
func ensureConfig() error {
	home := os.Getenv("HOME")
	if home == "" {
		return nil
	}

	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		// Create default config file
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o644); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the current configuration.
func Get() *Config {
	return &configData
}

// GetViper returns the viper instance.
func GetViper() *viper.Viper {
	return v
}

// Reset discards loaded settings. Used by tests.
func Reset() {
	v = viper.New()
	configData = Config{}
}
