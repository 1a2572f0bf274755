package rules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// DefaultRulesURL is the published comprehensive rules text.
	DefaultRulesURL = "https://media.wizards.com/2025/downloads/MagicCompRules%2020250725.txt"

	maxRulesBytes = 16 << 20
	fetchTimeout  = 60 * time.Second
)

// Store owns the current corpus snapshot. Readers capture a snapshot once per
// question; reloads swap in a new corpus and never mutate the old one.
type Store struct {
	current atomic.Pointer[Corpus]
	log     *slog.Logger
	client  *http.Client
	now     func() time.Time
}

type StoreOptions struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
}

func NewStore(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	s := &Store{log: logger, client: client, now: time.Now}
	s.current.Store(emptyCorpus())
	return s
}

// Snapshot returns the corpus in effect. It is never nil.
func (s *Store) Snapshot() *Corpus {
	return s.current.Load()
}

// Reload parses raw rules text and atomically replaces the snapshot.
func (s *Store) Reload(raw string) Stats {
	return s.swap(raw, "inline")
}

func (s *Store) swap(raw string, source string) Stats {
	return s.install(Parse(raw), source)
}

func (s *Store) install(c *Corpus, source string) Stats {
	c.source = source
	c.loadedAt = s.now()
	s.current.Store(c)
	st := c.Stats()
	s.log.Info("rules corpus loaded", "source", source, "rules", st.Rules, "indexed_terms", st.Terms)
	return st
}

// LoadFile reloads the corpus from a local rules text file.
func (s *Store) LoadFile(path string) (Stats, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Stats{}, errors.New("missing rules path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, fmt.Errorf("read rules file: %w", err)
	}
	if len(raw) > maxRulesBytes {
		return Stats{}, fmt.Errorf("rules file too large (%d bytes)", len(raw))
	}
	return s.swap(string(raw), path), nil
}

// Fetch downloads the published rules text and reloads from it.
func (s *Store) Fetch(ctx context.Context, rawURL string) (Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		rawURL = DefaultRulesURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Stats{}, err
	}
	req.Header.Set("Accept", "text/plain")
	resp, err := s.client.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch rules: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRulesBytes))
	if err != nil {
		return Stats{}, fmt.Errorf("read rules body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Stats{}, fmt.Errorf("fetch rules failed (status %d)", resp.StatusCode)
	}
	c := Parse(string(body))
	if c.Len() == 0 {
		return Stats{}, fmt.Errorf("no numbered rules in %s", rawURL)
	}
	return s.install(c, rawURL), nil
}
