package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	GenerationOpenAI           = "openai"
	GenerationOpenAICompatible = "openai_compatible"
	GenerationAnthropic        = "anthropic"
	GenerationDisabled         = "disabled"
)

// GenerationConfig selects the optional text generator used for card
// questions. Without one, card answers quote the oracle text.
type GenerationConfig struct {
	// Provider is one of: "openai" | "anthropic" | "openai_compatible" | "disabled".
	Provider string `json:"provider,omitempty"`

	// BaseURL overrides the provider endpoint (example: "https://api.openai.com/v1").
	// Required for openai_compatible.
	BaseURL string `json:"base_url,omitempty"`

	Model           string `json:"model,omitempty"`
	MaxOutputTokens int    `json:"max_output_tokens,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty"`
}

// Enabled reports whether a provider other than "disabled" is configured.
func (g *GenerationConfig) Enabled() bool {
	if g == nil {
		return false
	}
	p := strings.ToLower(strings.TrimSpace(g.Provider))
	return p != "" && p != GenerationDisabled
}

func (g *GenerationConfig) Timeout() time.Duration {
	if g == nil || g.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

func (g *GenerationConfig) Validate() error {
	if g == nil {
		return errors.New("nil generation config")
	}
	provider := strings.ToLower(strings.TrimSpace(g.Provider))
	switch provider {
	case "", GenerationDisabled:
		return nil
	case GenerationOpenAI, GenerationAnthropic, GenerationOpenAICompatible:
	default:
		return fmt.Errorf("invalid provider %q", g.Provider)
	}

	baseURL := strings.TrimSpace(g.BaseURL)
	if provider == GenerationOpenAICompatible && baseURL == "" {
		return errors.New("base_url is required for openai_compatible")
	}
	if baseURL != "" {
		if err := validateHTTPURL(baseURL); err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
	}
	model := strings.TrimSpace(g.Model)
	if model == "" {
		return errors.New("missing model")
	}
	if g.MaxOutputTokens < 0 || g.MaxOutputTokens > 32768 {
		return fmt.Errorf("invalid max_output_tokens %d (must be in [0,32768])", g.MaxOutputTokens)
	}
	if g.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid timeout_seconds %d", g.TimeoutSeconds)
	}
	return nil
}
