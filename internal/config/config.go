package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the on-disk configuration for judgebot.
//
// API keys never live here; they are kept in the secrets file next to it.
type Config struct {
	// RulesPath is a local copy of the comprehensive rules text. When set it is
	// loaded at startup and may be watched for changes.
	RulesPath string `json:"rules_path,omitempty"`
	// RulesURL is fetched when RulesPath is empty.
	RulesURL string `json:"rules_url,omitempty"`

	// StateDir holds the card cache, audit log and lock file.
	// If empty, DefaultStateDir is used.
	StateDir string `json:"state_dir,omitempty"`

	// KnowledgeDir overrides the embedded knowledge tables.
	KnowledgeDir string `json:"knowledge_dir,omitempty"`

	Generation *GenerationConfig `json:"generation,omitempty"`
	Cards      *CardsConfig      `json:"cards,omitempty"`
	WebSearch  *WebSearchConfig  `json:"web_search,omitempty"`

	// GuardTimeoutSeconds bounds how long a request ID stays reserved.
	GuardTimeoutSeconds int `json:"guard_timeout_seconds,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

// CardsConfig configures the card data client and its cache.
type CardsConfig struct {
	BaseURL        string `json:"base_url,omitempty"`
	CacheTTLHours  int    `json:"cache_ttl_hours,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	// DisableCache skips the sqlite cache and always calls the API.
	DisableCache bool `json:"disable_cache,omitempty"`
}

// WebSearchConfig configures escalation when no local evidence matches.
type WebSearchConfig struct {
	// Provider is "brave" or "disabled" (default).
	Provider string   `json:"provider,omitempty"`
	Sites    []string `json:"sites,omitempty"`
}

// Default returns a config that answers from curated tables, the rules text
// and card data only.
func Default() *Config {
	return &Config{
		LogFormat: "text",
		LogLevel:  "info",
		Generation: &GenerationConfig{
			Provider: GenerationDisabled,
		},
		WebSearch: &WebSearchConfig{Provider: "disabled"},
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if u := strings.TrimSpace(c.RulesURL); u != "" {
		if err := validateHTTPURL(u); err != nil {
			return fmt.Errorf("invalid rules_url: %w", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.GuardTimeoutSeconds < 0 {
		return fmt.Errorf("invalid guard_timeout_seconds %d", c.GuardTimeoutSeconds)
	}
	if c.Generation != nil {
		if err := c.Generation.Validate(); err != nil {
			return fmt.Errorf("invalid generation: %w", err)
		}
	}
	if c.Cards != nil {
		if u := strings.TrimSpace(c.Cards.BaseURL); u != "" {
			if err := validateHTTPURL(u); err != nil {
				return fmt.Errorf("invalid cards.base_url: %w", err)
			}
		}
		if c.Cards.CacheTTLHours < 0 || c.Cards.TimeoutSeconds < 0 {
			return errors.New("cards durations must not be negative")
		}
	}
	if c.WebSearch != nil {
		switch strings.ToLower(strings.TrimSpace(c.WebSearch.Provider)) {
		case "", "disabled", "brave":
		default:
			return fmt.Errorf("invalid web_search.provider %q", c.WebSearch.Provider)
		}
	}
	return nil
}

// ResolvedStateDir returns StateDir or the default state directory.
func (c *Config) ResolvedStateDir() string {
	if c != nil && strings.TrimSpace(c.StateDir) != "" {
		return filepath.Clean(strings.TrimSpace(c.StateDir))
	}
	return DefaultStateDir()
}

func (c *Config) GuardTimeout() time.Duration {
	if c == nil || c.GuardTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.GuardTimeoutSeconds) * time.Second
}

func (c *Config) CardsCacheTTL() time.Duration {
	if c == nil || c.Cards == nil || c.Cards.CacheTTLHours <= 0 {
		return 0
	}
	return time.Duration(c.Cards.CacheTTLHours) * time.Hour
}

func (c *Config) CardsTimeout() time.Duration {
	if c == nil || c.Cards == nil || c.Cards.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Cards.TimeoutSeconds) * time.Second
}

// DefaultStateDir returns ~/.judgebot, or a relative directory when the home
// directory is unknown.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ".judgebot"
	}
	return filepath.Join(home, ".judgebot")
}

// DefaultConfigPath returns the default config path:
//
//	~/.judgebot/config.json
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir(), "config.json")
}

// SecretsPath returns the secrets file that sits next to the config file.
func SecretsPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "secrets.json")
}

// Load reads and validates path. A missing file yields Default().
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u == nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("invalid scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}
