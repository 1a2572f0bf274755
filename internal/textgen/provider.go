package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOpenAI           = "openai"
	ProviderOpenAICompatible = "openai_compatible"
	ProviderAnthropic        = "anthropic"
	ProviderDisabled         = "disabled"

	DefaultMaxOutputTokens = 1024
	DefaultTimeout         = 60 * time.Second
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty model response")

// Provider generates one completion for a prompt. Calls are not retried.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	Provider        string
	BaseURL         string
	APIKey          string
	Model           string
	MaxOutputTokens int
	Timeout         time.Duration

	// MaxRetries is passed to the SDK client. Zero keeps generation retry-free.
	MaxRetries int
}

func (o Options) normalize() Options {
	out := o
	out.Provider = strings.ToLower(strings.TrimSpace(out.Provider))
	out.BaseURL = strings.TrimSpace(out.BaseURL)
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.Model = strings.TrimSpace(out.Model)
	if out.MaxOutputTokens <= 0 {
		out.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	return out
}

// New builds the adapter for opts.Provider. A disabled provider yields
// (nil, nil) so callers fall back to non-generated answers.
func New(opts Options) (Provider, error) {
	opts = opts.normalize()
	switch opts.Provider {
	case "", ProviderDisabled:
		return nil, nil
	}
	if opts.APIKey == "" {
		return nil, errors.New("missing provider api key")
	}
	if opts.Model == "" {
		return nil, errors.New("missing model")
	}
	switch opts.Provider {
	case ProviderOpenAI, ProviderOpenAICompatible:
		return newOpenAIProvider(opts), nil
	case ProviderAnthropic:
		return newAnthropicProvider(opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", opts.Provider)
	}
}
