package expander

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/sashabaranov/go-openai"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderNone   = "none"

	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.9
	DefaultCacheSize   = 256

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 200
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// DefaultSystemPrompt steers the model toward descriptions usable as audio labels
const DefaultSystemPrompt = "You expand short notes about a music or sound clip into a vivid, " +
	"precise description of what is heard: instruments, timbre, rhythm, tempo, mood and " +
	"production details. Answer with the description only, in plain prose."

// OpenAIExpander streams chat completions from an OpenAI-compatible endpoint
type OpenAIExpander struct {
	client       *openai.Client
	model        string
	systemPrompt string
	maxTokens    int
	temperature  float32
	retry        RetryConfig
	cache        *Cache
	logger       *slog.Logger
}

// OpenAIOptions configures an OpenAIExpander; zero values take the defaults
type OpenAIOptions struct {
	APIKey       string
	BaseURL      string // Empty uses the public OpenAI API
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  *float32
	Retry        *RetryConfig
	Cache        *Cache
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// NewOpenAIExpander creates an expander; an API key is required unless BaseURL
// points at a compatible server that does not check one
func NewOpenAIExpander(opts OpenAIOptions) (*OpenAIExpander, error) {
	if opts.APIKey == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: OpenAI API key not set", ErrNoProviderEnabled)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	e := &OpenAIExpander{
		client:       openai.NewClientWithConfig(cfg),
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		maxTokens:    opts.MaxTokens,
		temperature:  DefaultTemperature,
		retry:        DefaultRetryConfig(),
		cache:        opts.Cache,
		logger:       opts.Logger,
	}
	if e.model == "" {
		e.model = DefaultModel
	}
	if e.systemPrompt == "" {
		e.systemPrompt = DefaultSystemPrompt
	}
	if e.maxTokens <= 0 {
		e.maxTokens = DefaultMaxTokens
	}
	if opts.Temperature != nil {
		e.temperature = *opts.Temperature
	}
	if opts.Retry != nil {
		e.retry = *opts.Retry
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Provider returns the provider name
func (e *OpenAIExpander) Provider() string {
	return ProviderOpenAI
}

// Model returns the model name
func (e *OpenAIExpander) Model() string {
	return e.model
}

// Expand opens a completion stream for text. Opening is retried on transient
// failures; errors after the stream is open are delivered through the sequence.
// The stream is released when the sequence finishes or ctx is done, so a
// sequence that is never ranged over needs a cancellable ctx.
func (e *OpenAIExpander) Expand(ctx context.Context, text string) (iter.Seq2[string, error], error) {
	if err := validateText(text); err != nil {
		return nil, err
	}

	hash := computeHash(e.model, text)
	if cached, ok := e.cache.Get(hash); ok {
		e.logger.Debug("expansion served from cache", "model", e.model)
		return once(func(yield func(string, error) bool) {
			yield(cached, nil)
		}), nil
	}

	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: e.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		N:           1,
	}

	stream, err := retryWithBackoff(ctx, e.retry, isRetryable, func() (*openai.ChatCompletionStream, error) {
		return e.client.CreateChatCompletionStream(ctx, req)
	})
	if err != nil {
		e.logger.Warn("expansion stream failed to open", "model", e.model, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })

	return once(func(yield func(string, error) bool) {
		defer func() {
			if stop() {
				_ = stream.Close()
			}
		}()

		var full strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				e.cache.Set(hash, full.String())
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				yield("", fmt.Errorf("%w: %w", ErrProviderFailed, err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			chunk := resp.Choices[0].Delta.Content
			if chunk == "" {
				continue
			}
			full.WriteString(chunk)
			if !yield(chunk, nil) {
				return
			}
		}
	}), nil
}

// isRetryable rejects client errors other than rate limiting
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

// once wraps seq so that a second range reports ErrStreamConsumed
func once(seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}
		seq(yield)
	}
}
