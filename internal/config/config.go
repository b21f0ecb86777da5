// Package config loads audiomark settings with viper: built-in defaults, an
// optional audiomark.yaml, AUDIOMARK_* environment variables and bound CLI flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dshills/audiomark-mcp/internal/expander"
	"github.com/dshills/audiomark-mcp/internal/indexer"
	"github.com/dshills/audiomark-mcp/internal/logging"
)

// EnvPrefix is prepended to every environment variable, e.g. AUDIOMARK_LOG_LEVEL
const EnvPrefix = "AUDIOMARK"

// Config is the complete runtime configuration
type Config struct {
	Suffixes []string        `mapstructure:"suffixes"`
	Workers  int             `mapstructure:"workers"`
	Project  string          `mapstructure:"project"` // Project file opened by serve
	Log      LogConfig       `mapstructure:"log"`
	Watch    WatchConfig     `mapstructure:"watch"`
	Expander expander.Config `mapstructure:"expander"`
}

// LogConfig mirrors logging.Config for decoding
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// WatchConfig controls the dataset directory watcher
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Logging converts the log section to a logging.Config
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, File: c.Log.File}
}

// setDefaults registers every key so environment variables can override it
func setDefaults(v *viper.Viper) {
	v.SetDefault("suffixes", indexer.DefaultSuffixes)
	v.SetDefault("workers", 0)
	v.SetDefault("project", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.debounce", "2s")

	defaults := expander.DefaultConfig()
	v.SetDefault("expander.provider", defaults.Provider)
	v.SetDefault("expander.api_key", "")
	v.SetDefault("expander.base_url", "")
	v.SetDefault("expander.model", defaults.Model)
	v.SetDefault("expander.max_tokens", defaults.MaxTokens)
	v.SetDefault("expander.temperature", defaults.Temperature)
	v.SetDefault("expander.system_prompt", "")
	v.SetDefault("expander.cache_size", defaults.CacheSize)
}

// New returns a viper instance with defaults, config search paths and environment binding
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional OpenAI variable is honoured as a fallback
	_ = v.BindEnv("expander.api_key", EnvPrefix+"_EXPANDER_API_KEY", "OPENAI_API_KEY")

	v.SetConfigName("audiomark")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "audiomark"))
	}
	return v
}

// Load reads the configuration. configFile, when set, must exist; otherwise a
// missing audiomark.yaml is not an error. flags, if non-nil, are bound so that
// explicitly set flags win over every other source.
func Load(v *viper.Viper, configFile string, flags *pflag.FlagSet) (*Config, error) {
	if v == nil {
		v = New()
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("error binding flags: %w", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	if len(indexer.NormalizeSuffixes(c.Suffixes)) == 0 {
		errs = append(errs, errors.New("suffixes must not be empty"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.Watch.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce))
	}
	if c.Expander.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("expander.max_tokens must be >= 0, got %d", c.Expander.MaxTokens))
	}
	if c.Expander.Temperature < 0 || c.Expander.Temperature > 2 {
		errs = append(errs, fmt.Errorf("expander.temperature must be within [0, 2], got %g", c.Expander.Temperature))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
