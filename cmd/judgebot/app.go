package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/metric"

	"github.com/floegence/judgebot/internal/answer"
	"github.com/floegence/judgebot/internal/auditlog"
	"github.com/floegence/judgebot/internal/carddata"
	"github.com/floegence/judgebot/internal/classify"
	"github.com/floegence/judgebot/internal/config"
	"github.com/floegence/judgebot/internal/evidence"
	"github.com/floegence/judgebot/internal/knowledge"
	"github.com/floegence/judgebot/internal/references"
	"github.com/floegence/judgebot/internal/rules"
	"github.com/floegence/judgebot/internal/settings"
	"github.com/floegence/judgebot/internal/statedir"
	"github.com/floegence/judgebot/internal/telemetry"
	"github.com/floegence/judgebot/internal/textgen"
	"github.com/floegence/judgebot/internal/websearch"
)

type appOptions struct {
	Config  *config.Config
	Secrets *settings.SecretsStore
	Logger  *slog.Logger

	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
	// HTTPClient is used for card data and rules fetches when set.
	HTTPClient *http.Client
}

// app is the wired answer pipeline plus the resources it owns.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	state    *statedir.Dir
	rules    *rules.Store
	cards    carddata.Provider
	recorder *telemetry.Recorder
	audit    *auditlog.Store
	service  *answer.Service

	closers []func() error
}

func newApp(ctx context.Context, opts appOptions) (_ *app, err error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	a := &app{cfg: cfg, log: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// Keep two processes from sharing the card cache and audit log.
	a.state, err = statedir.Open(cfg.ResolvedStateDir())
	if err != nil {
		return nil, fmt.Errorf("open state dir %s: %w", cfg.ResolvedStateDir(), err)
	}
	a.closers = append(a.closers, a.state.Close)

	a.recorder, err = telemetry.NewRecorder(opts.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	tables, err := loadTables(cfg.KnowledgeDir)
	if err != nil {
		return nil, err
	}

	a.rules = rules.NewStore(rules.StoreOptions{Logger: logger, HTTPClient: opts.HTTPClient})
	if err := a.loadRules(ctx); err != nil {
		return nil, err
	}

	a.cards, err = a.openCards(ctx, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	gen, err := newGenerator(cfg.Generation, opts.Secrets)
	if err != nil {
		return nil, err
	}
	search, err := newSearcher(cfg.WebSearch, opts.Secrets, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	a.audit, err = auditlog.New(auditlog.Options{Logger: logger, StateDir: a.state.Root()})
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	var sites []string
	if cfg.WebSearch != nil && len(cfg.WebSearch.Sites) > 0 {
		sites = cfg.WebSearch.Sites
	}

	classifier := classify.New(classify.DefaultCascade(tables, a.cards, classify.Options{Logger: logger, Recorder: a.recorder})...)
	a.service, err = answer.NewService(answer.Options{
		Classifier: classifier,
		Aggregator: evidence.New(evidence.Options{
			Cards:       a.cards,
			Search:      search,
			SearchSites: sites,
			Logger:      logger,
			Recorder:    a.recorder,
		}),
		Rules:        a.rules,
		Generator:    gen,
		References:   references.NewExtractor(a.cards, references.Options{Logger: logger, Recorder: a.recorder}),
		Audit:        a.audit,
		Recorder:     a.recorder,
		Logger:       logger,
		GuardTimeout: cfg.GuardTimeout(),
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("answer pipeline ready",
		"detectors", strings.Join(classifier.Names(), ","),
		"generation", gen != nil,
		"web_search", search != nil,
	)
	return a, nil
}

// Close releases owned resources in reverse order.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) loadRules(ctx context.Context) error {
	var (
		st     rules.Stats
		err    error
		source string
	)
	switch {
	case strings.TrimSpace(a.cfg.RulesPath) != "":
		source = "file"
		st, err = a.rules.LoadFile(a.cfg.RulesPath)
	case strings.TrimSpace(a.cfg.RulesURL) != "":
		source = "url"
		st, err = a.rules.Fetch(ctx, a.cfg.RulesURL)
	default:
		a.log.Warn("no rules source configured; rule search is disabled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	a.recorder.RecordCorpusReload(ctx, source, st.Rules)
	return nil
}

// watchRules reloads the corpus whenever rules_path changes, until ctx is done.
func (a *app) watchRules(ctx context.Context) error {
	path := strings.TrimSpace(a.cfg.RulesPath)
	if path == "" {
		return errors.New("watching requires rules_path")
	}
	w, err := rules.NewWatcher(a.rules, path, rules.WatcherOptions{
		Logger: a.log,
		OnReload: func(st rules.Stats) {
			a.recorder.RecordCorpusReload(ctx, "watch", st.Rules)
		},
	})
	if err != nil {
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("rules watcher stopped", "error", err)
		}
	}()
	return nil
}

func (a *app) openCards(ctx context.Context, hc *http.Client) (carddata.Provider, error) {
	cc := a.cfg.Cards
	if cc == nil {
		cc = &config.CardsConfig{}
	}
	client := carddata.NewClient(carddata.ClientOptions{
		BaseURL:    cc.BaseURL,
		Timeout:    a.cfg.CardsTimeout(),
		HTTPClient: hc,
		Logger:     a.log,
	})
	if cc.DisableCache {
		return client, nil
	}
	cache, err := carddata.OpenCache(a.state.CardCachePath(), client, carddata.CacheOptions{
		TTL:    a.cfg.CardsCacheTTL(),
		Logger: a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("open card cache: %w", err)
	}
	a.closers = append(a.closers, cache.Close)
	if n, err := cache.Purge(ctx); err != nil {
		a.log.Warn("card cache purge failed", "error", err)
	} else if n > 0 {
		a.log.Debug("card cache purged", "entries", n)
	}
	return cache, nil
}

func loadTables(dir string) (*knowledge.Tables, error) {
	if strings.TrimSpace(dir) != "" {
		t, err := knowledge.LoadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("load knowledge tables from %s: %w", dir, err)
		}
		return t, nil
	}
	return knowledge.Default()
}

func newGenerator(gc *config.GenerationConfig, secrets *settings.SecretsStore) (textgen.Provider, error) {
	if !gc.Enabled() {
		return nil, nil
	}
	provider := strings.ToLower(strings.TrimSpace(gc.Provider))
	key, err := lookupKey(secrets, settings.ScopeGeneration, provider)
	if err != nil {
		return nil, err
	}
	gen, err := textgen.New(textgen.Options{
		Provider:        provider,
		BaseURL:         gc.BaseURL,
		APIKey:          key,
		Model:           gc.Model,
		MaxOutputTokens: gc.MaxOutputTokens,
		Timeout:         gc.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("init text generation: %w", err)
	}
	return gen, nil
}

func newSearcher(wc *config.WebSearchConfig, secrets *settings.SecretsStore, hc *http.Client) (websearch.Searcher, error) {
	if wc == nil {
		return nil, nil
	}
	provider := strings.ToLower(strings.TrimSpace(wc.Provider))
	if provider == "" || provider == websearch.ProviderDisabled {
		return nil, nil
	}
	key, err := lookupKey(secrets, settings.ScopeWebSearch, provider)
	if err != nil {
		return nil, err
	}
	s, err := websearch.New(provider, key, websearch.Options{HTTPClient: hc})
	if err != nil {
		return nil, fmt.Errorf("init web search: %w", err)
	}
	return s, nil
}

func lookupKey(secrets *settings.SecretsStore, scope settings.Scope, provider string) (string, error) {
	if secrets == nil {
		return "", fmt.Errorf("no secrets store for %s provider %q", scope, provider)
	}
	key, ok, err := secrets.APIKey(scope, provider)
	if err != nil {
		return "", fmt.Errorf("load secrets: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("missing %s api key for provider %q (set %s or run `judgebot keys set`)", scope, provider, settings.EnvVar(provider))
	}
	return key, nil
}
