package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T, env map[string]string) *SecretsStore {
	t.Helper()
	s := NewSecretsStore(filepath.Join(t.TempDir(), "secrets.json"))
	s.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	return s
}

func TestSecretsStoreSetGetClear(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, nil)
	if _, ok, err := s.APIKey(ScopeGeneration, "anthropic"); err != nil || ok {
		t.Fatalf("APIKey on empty store = ok %v err %v", ok, err)
	}

	if err := s.SetAPIKey(ScopeGeneration, "Anthropic", "  sk-ant-1 "); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	if err := s.SetAPIKey(ScopeWebSearch, "brave", "brave-1"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}

	got, ok, err := s.APIKey(ScopeGeneration, "anthropic")
	if err != nil || !ok || got != "sk-ant-1" {
		t.Fatalf("APIKey = %q %v %v", got, ok, err)
	}
	if _, ok, _ := s.APIKey(ScopeWebSearch, "anthropic"); ok {
		t.Fatalf("generation key leaked into web_search scope")
	}

	configured, err := s.Configured()
	if err != nil {
		t.Fatalf("Configured: %v", err)
	}
	if diff := cmp.Diff([]string{"generation/anthropic", "web_search/brave"}, configured); diff != "" {
		t.Fatalf("Configured mismatch (-want +got):\n%s", diff)
	}

	st, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := st.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}

	if err := s.ClearAPIKey(ScopeGeneration, "anthropic"); err != nil {
		t.Fatalf("ClearAPIKey: %v", err)
	}
	if _, ok, _ := s.APIKey(ScopeGeneration, "anthropic"); ok {
		t.Fatalf("key still present after clear")
	}
	b, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(b), "generation_api_keys") {
		t.Fatalf("empty scope should be omitted: %s", b)
	}
}

func TestSecretsStoreEnvOverride(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, map[string]string{
		"JUDGEBOT_OPENAI_COMPATIBLE_API_KEY": "env-key",
		"JUDGEBOT_BRAVE_API_KEY":             "   ",
	})
	if err := s.SetAPIKey(ScopeGeneration, "openai_compatible", "file-key"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	if err := s.SetAPIKey(ScopeWebSearch, "brave", "file-brave"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}

	if got, _, _ := s.APIKey(ScopeGeneration, "openai_compatible"); got != "env-key" {
		t.Fatalf("env override ignored: %q", got)
	}
	if got, _, _ := s.APIKey(ScopeWebSearch, "brave"); got != "file-brave" {
		t.Fatalf("blank env value should fall through to file: %q", got)
	}
}

func TestSecretsStoreValidation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, nil)
	if err := s.SetAPIKey(ScopeGeneration, "openai", " "); err == nil {
		t.Fatalf("expected missing api key error")
	}
	if err := s.SetAPIKey(ScopeGeneration, "", "k"); err == nil {
		t.Fatalf("expected missing provider error")
	}
	if err := s.SetAPIKey(Scope("billing"), "openai", "k"); err == nil {
		t.Fatalf("expected unknown scope error")
	}
	if _, _, err := (*SecretsStore)(nil).APIKey(ScopeGeneration, "openai"); err == nil {
		t.Fatalf("expected nil store error")
	}
}

func TestEnvVar(t *testing.T) {
	t.Parallel()

	if got := EnvVar("openai-compatible"); got != "JUDGEBOT_OPENAI_COMPATIBLE_API_KEY" {
		t.Fatalf("EnvVar = %q", got)
	}
}
