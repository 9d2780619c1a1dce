package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. HRMON_STACKING_COUNT or HRMON_NATS_URL.
const EnvPrefix = "HRMON"

// NATSConfig configures the optional measurement sink. An empty URL disables it.
type NATSConfig struct {
	URL     string `mapstructure:"url" yaml:"url" json:"url"`
	Subject string `mapstructure:"subject" yaml:"subject" json:"subject" default:"hrmon.measurements"`
	Name    string `mapstructure:"name" yaml:"name" json:"name" default:"hrmon"`
}

// Config holds application configuration
type Config struct {
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level" json:"log_level" default:"warn"`
	ScanTimeout    time.Duration `mapstructure:"scan_timeout" yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout" default:"15s"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout" default:"5s"`
	StackingCount  int           `mapstructure:"stacking_count" yaml:"stacking_count" json:"stacking_count" default:"30"`
	EventBuffer    int           `mapstructure:"event_buffer" yaml:"event_buffer" json:"event_buffer" default:"64"`
	FrameBuffer    uint32        `mapstructure:"frame_buffer" yaml:"frame_buffer" json:"frame_buffer" default:"256"`
	NATS           NATSConfig    `mapstructure:"nats" yaml:"nats" json:"nats"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.StackingCount <= 0 {
		return fmt.Errorf("stacking_count must be positive, got %d", c.StackingCount)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer)
	}
	if c.FrameBuffer == 0 {
		return errors.New("frame_buffer must be positive")
	}
	for name, d := range map[string]time.Duration{
		"scan_timeout":    c.ScanTimeout,
		"connect_timeout": c.ConnectTimeout,
		"read_timeout":    c.ReadTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// YAML renders the configuration the way a config file would hold it.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Load reads an optional YAML file and applies HRMON_* environment overrides
// on top of the defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch reloads path on every change and passes the new configuration to
// onChange. Invalid revisions are logged and skipped.
func Watch(path string, logger *logrus.Logger, onChange func(*Config)) error {
	if path == "" {
		return errors.New("config file path is empty")
	}
	if logger == nil {
		logger = logrus.New()
	}

	v, err := newViper(path)
	if err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"file":  e.Name,
				"error": err,
			}).Warn("Ignoring invalid configuration change")
			return
		}
		logger.WithField("file", e.Name).Info("Configuration reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return v, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("scan_timeout", cfg.ScanTimeout)
	v.SetDefault("connect_timeout", cfg.ConnectTimeout)
	v.SetDefault("read_timeout", cfg.ReadTimeout)
	v.SetDefault("stacking_count", cfg.StackingCount)
	v.SetDefault("event_buffer", cfg.EventBuffer)
	v.SetDefault("frame_buffer", cfg.FrameBuffer)
	v.SetDefault("nats.url", cfg.NATS.URL)
	v.SetDefault("nats.subject", cfg.NATS.Subject)
	v.SetDefault("nats.name", cfg.NATS.Name)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
