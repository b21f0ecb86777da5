package expander

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Config holds expander configuration as loaded by viper
type Config struct {
	Provider     string  `mapstructure:"provider"`
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float32 `mapstructure:"temperature"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	CacheSize    int     `mapstructure:"cache_size"`
}

// DefaultConfig returns the OpenAI provider with the stock generation parameters
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOpenAI,
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		CacheSize:   DefaultCacheSize,
	}
}

// NewFromConfig creates an expander with explicit configuration.
// An empty API key falls back to OPENAI_API_KEY. Provider "none" yields
// ErrNoProviderEnabled so callers can run without expansion.
func NewFromConfig(cfg Config, logger *slog.Logger) (Expander, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		temperature := cfg.Temperature
		e, err := NewOpenAIExpander(OpenAIOptions{
			APIKey:       apiKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
			MaxTokens:    cfg.MaxTokens,
			Temperature:  &temperature,
			Cache:        NewCache(cfg.CacheSize),
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case ProviderNone:
		return nil, ErrNoProviderEnabled
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrNoProviderEnabled, cfg.Provider)
	}
}
