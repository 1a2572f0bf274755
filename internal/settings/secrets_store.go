package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Scope separates keys for the text generator from keys for web search, so
// one provider name can hold a key in each.
type Scope string

const (
	ScopeGeneration Scope = "generation"
	ScopeWebSearch  Scope = "web_search"
)

// EnvPrefix is prepended to upper-cased provider names to form an override
// variable, for example JUDGEBOT_ANTHROPIC_API_KEY or JUDGEBOT_BRAVE_API_KEY.
const EnvPrefix = "JUDGEBOT_"

// SecretsStore persists provider API keys to a local file.
//
// It is kept apart from config.json so the config can be shared or printed
// without leaking keys.
type SecretsStore struct {
	path      string
	lookupEnv func(string) (string, bool)
	mu        sync.Mutex
}

func NewSecretsStore(path string) *SecretsStore {
	return &SecretsStore{path: filepath.Clean(strings.TrimSpace(path)), lookupEnv: os.LookupEnv}
}

func (s *SecretsStore) Path() string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.path)
}

type secretsFile struct {
	SchemaVersion int               `json:"schema_version"`
	Generation    map[string]string `json:"generation_api_keys,omitempty"`
	WebSearch     map[string]string `json:"web_search_api_keys,omitempty"`
}

func (sf *secretsFile) keys(scope Scope, create bool) (map[string]string, error) {
	var m *map[string]string
	switch scope {
	case ScopeGeneration:
		m = &sf.Generation
	case ScopeWebSearch:
		m = &sf.WebSearch
	default:
		return nil, fmt.Errorf("unknown secrets scope %q", scope)
	}
	if *m == nil && create {
		*m = make(map[string]string)
	}
	return *m, nil
}

// EnvVar returns the override variable name for provider.
func EnvVar(provider string) string {
	p := strings.ToUpper(strings.TrimSpace(provider))
	p = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(p)
	return EnvPrefix + p + "_API_KEY"
}

// APIKey returns the key for provider. A non-empty environment override wins
// over the file.
func (s *SecretsStore) APIKey(scope Scope, provider string) (string, bool, error) {
	if s == nil {
		return "", false, errors.New("nil secrets store")
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", false, errors.New("missing provider id")
	}
	if s.lookupEnv != nil {
		if v, ok := s.lookupEnv(EnvVar(provider)); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.loadLocked()
	if err != nil {
		return "", false, err
	}
	keys, err := sf.keys(scope, false)
	if err != nil {
		return "", false, err
	}
	v := strings.TrimSpace(keys[provider])
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (s *SecretsStore) SetAPIKey(scope Scope, provider string, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("missing api key")
	}
	return s.ApplyPatches([]APIKeyPatch{{Scope: scope, Provider: provider, APIKey: &apiKey}})
}

func (s *SecretsStore) ClearAPIKey(scope Scope, provider string) error {
	return s.ApplyPatches([]APIKeyPatch{{Scope: scope, Provider: provider}})
}

type APIKeyPatch struct {
	Scope    Scope
	Provider string
	// APIKey is the new key to set. If nil, the key is cleared.
	APIKey *string
}

func (s *SecretsStore) ApplyPatches(patches []APIKeyPatch) error {
	if s == nil {
		return errors.New("nil secrets store")
	}
	if len(patches) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.loadLocked()
	if err != nil {
		return err
	}

	for _, p := range patches {
		provider := strings.ToLower(strings.TrimSpace(p.Provider))
		if provider == "" {
			return errors.New("missing provider id")
		}
		keys, err := sf.keys(p.Scope, p.APIKey != nil)
		if err != nil {
			return err
		}
		if p.APIKey == nil {
			delete(keys, provider)
			continue
		}
		key := strings.TrimSpace(*p.APIKey)
		if key == "" {
			return errors.New("missing api key")
		}
		keys[provider] = key
	}

	if len(sf.Generation) == 0 {
		sf.Generation = nil
	}
	if len(sf.WebSearch) == 0 {
		sf.WebSearch = nil
	}
	return s.saveLocked(sf)
}

// Configured lists "scope/provider" for every stored key, sorted. Key values
// are never returned.
func (s *SecretsStore) Configured() ([]string, error) {
	if s == nil {
		return nil, errors.New("nil secrets store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	var out []string
	for provider, v := range sf.Generation {
		if strings.TrimSpace(v) != "" {
			out = append(out, string(ScopeGeneration)+"/"+provider)
		}
	}
	for provider, v := range sf.WebSearch {
		if strings.TrimSpace(v) != "" {
			out = append(out, string(ScopeWebSearch)+"/"+provider)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *SecretsStore) loadLocked() (*secretsFile, error) {
	path := strings.TrimSpace(s.path)
	if path == "" || path == "." {
		return nil, errors.New("missing secrets path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &secretsFile{SchemaVersion: 1}, nil
		}
		return nil, err
	}
	var sf secretsFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return nil, err
	}
	if sf.SchemaVersion == 0 {
		sf.SchemaVersion = 1
	}
	return &sf, nil
}

func (s *SecretsStore) saveLocked(sf *secretsFile) error {
	if sf == nil {
		return errors.New("nil secrets")
	}
	path := strings.TrimSpace(s.path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	b, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
