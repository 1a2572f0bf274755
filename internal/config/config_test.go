package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestGenerationConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     GenerationConfig
		wantErr bool
	}{
		{name: "disabled", cfg: GenerationConfig{Provider: "disabled"}},
		{name: "empty provider", cfg: GenerationConfig{}},
		{name: "openai", cfg: GenerationConfig{Provider: "openai", Model: "gpt-5-mini"}},
		{name: "anthropic", cfg: GenerationConfig{Provider: "anthropic", Model: "claude-sonnet-4-5", TimeoutSeconds: 30}},
		{name: "unknown provider", cfg: GenerationConfig{Provider: "local", Model: "m"}, wantErr: true},
		{name: "missing model", cfg: GenerationConfig{Provider: "openai"}, wantErr: true},
		{name: "compatible needs base url", cfg: GenerationConfig{Provider: "openai_compatible", Model: "m"}, wantErr: true},
		{name: "compatible with base url", cfg: GenerationConfig{Provider: "openai_compatible", Model: "m", BaseURL: "http://localhost:8080/v1"}},
		{name: "bad base url scheme", cfg: GenerationConfig{Provider: "openai", Model: "m", BaseURL: "ftp://x"}, wantErr: true},
		{name: "negative tokens", cfg: GenerationConfig{Provider: "openai", Model: "m", MaxOutputTokens: -1}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	bad := []*Config{
		{LogFormat: "xml"},
		{LogLevel: "loud"},
		{RulesURL: "not a url"},
		{GuardTimeoutSeconds: -1},
		{WebSearch: &WebSearchConfig{Provider: "bing"}},
		{Cards: &CardsConfig{BaseURL: "scryfall"}},
		{Generation: &GenerationConfig{Provider: "openai"}},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("bad[%d] validated: %+v", i, cfg)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := &Config{
		RulesPath:           "/srv/rules/MagicCompRules.txt",
		StateDir:            "/var/lib/judgebot",
		Generation:          &GenerationConfig{Provider: "anthropic", Model: "claude-sonnet-4-5", MaxOutputTokens: 800, TimeoutSeconds: 45},
		Cards:               &CardsConfig{CacheTTLHours: 24, TimeoutSeconds: 5},
		WebSearch:           &WebSearchConfig{Provider: "brave", Sites: []string{"scryfall.com"}},
		GuardTimeoutSeconds: 90,
		LogFormat:           "json",
		LogLevel:            "debug",
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := st.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if got.GuardTimeout() != 90*time.Second || got.CardsCacheTTL() != 24*time.Hour || got.Generation.Timeout() != 45*time.Second {
		t.Fatalf("duration helpers: %v %v %v", got.GuardTimeout(), got.CardsCacheTTL(), got.Generation.Timeout())
	}
	if got.ResolvedStateDir() != "/var/lib/judgebot" {
		t.Fatalf("ResolvedStateDir = %q", got.ResolvedStateDir())
	}
}

func TestLoadMissingFileUsesDefault(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("Load default mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"log_format":"xml"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected invalid config error")
	}
}
