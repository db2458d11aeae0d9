// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// BridgeDirName is the well-known directory under the user's home where
// the producer and this process exchange files.
const BridgeDirName = ".translators"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Bridge() BridgeConfig

	// Bridge setters, populated from CLI flags.
	SetBridgeDir(string)
	SetBridgeWatch(bool)
	SetBridgeProject(string)
}

// Config holds the entire application configuration. Callers go through
// the Interface's getter methods; the fields stay exported for viper's
// unmarshaling.
type Config struct {
	LoggerCfg LoggerConfig `mapstructure:"logger" yaml:"logger"`
	BridgeCfg BridgeConfig `mapstructure:"bridge" yaml:"bridge"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig { return c.LoggerCfg }
func (c *Config) Bridge() BridgeConfig { return c.BridgeCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBridgeDir(dir string)      { c.BridgeCfg.Dir = dir }
func (c *Config) SetBridgeWatch(b bool)        { c.BridgeCfg.Watch = b }
func (c *Config) SetBridgeProject(name string) { c.BridgeCfg.Project = name }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BridgeConfig tunes the file-based bridge session.
type BridgeConfig struct {
	// Dir is the exchange directory. Empty means <home>/.translators,
	// resolved once at load time.
	Dir string `mapstructure:"dir" yaml:"dir"`

	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`

	WriteRetries int           `mapstructure:"write_retries" yaml:"write_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	// Watch enables the OS-level directory watch on top of mtime
	// polling.
	Watch bool `mapstructure:"watch" yaml:"watch"`

	// Project identifies this consumer in acknowledgments.
	Project string `mapstructure:"project" yaml:"project"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "bridge-cli")
	v.SetDefault("logger.log_file", "bridge.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Bridge --
	v.SetDefault("bridge.dir", "")
	v.SetDefault("bridge.poll_interval", "500ms")
	v.SetDefault("bridge.debounce", "50ms")
	v.SetDefault("bridge.write_retries", 3)
	v.SetDefault("bridge.retry_delay", "100ms")
	v.SetDefault("bridge.watch", true)
	v.SetDefault("bridge.project", "translators-bridge")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.BridgeCfg.Dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.BridgeCfg.Dir = filepath.Join(home, BridgeDirName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BridgeCfg.Validate(); err != nil {
		return fmt.Errorf("bridge configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the bridge settings. Interval clamping happens in the
// change detector; validation only rejects nonsense values.
func (b *BridgeConfig) Validate() error {
	if b.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative")
	}
	if b.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	if b.WriteRetries < 0 {
		return fmt.Errorf("write_retries must not be negative")
	}
	if b.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	if b.Project == "" {
		return fmt.Errorf("project must not be empty")
	}
	return nil
}
