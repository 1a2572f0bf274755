package evidence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/floegence/judgebot/internal/carddata"
	"github.com/floegence/judgebot/internal/classify"
	"github.com/floegence/judgebot/internal/oracle"
	"github.com/floegence/judgebot/internal/rules"
	"github.com/floegence/judgebot/internal/telemetry"
	"github.com/floegence/judgebot/internal/websearch"
)

// DefaultSearchSites restricts web escalation to rules reference sites.
var DefaultSearchSites = []string{"scryfall.com", "mtg.fandom.com", "blogs.magicjudges.org"}

// Aggregator turns a classification into an evidence bundle.
type Aggregator struct {
	cards    carddata.Provider
	search   websearch.Searcher
	sites    []string
	log      *slog.Logger
	recorder *telemetry.Recorder
}

type Options struct {
	// Cards is optional; without it card evidence is limited to what the
	// classifier already resolved.
	Cards carddata.Provider
	// Search is optional; nil disables web escalation.
	Search      websearch.Searcher
	SearchSites []string
	Logger      *slog.Logger
	Recorder    *telemetry.Recorder
}

func New(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sites := opts.SearchSites
	if sites == nil {
		sites = DefaultSearchSites
	}
	return &Aggregator{
		cards:    opts.Cards,
		search:   opts.Search,
		sites:    sites,
		log:      logger,
		recorder: opts.Recorder,
	}
}

// Collect builds the bundle for one question against a fixed corpus snapshot.
// Collaborator failures are logged and treated as missing evidence.
func (a *Aggregator) Collect(ctx context.Context, q classify.Question, res classify.Result, corpus *rules.Corpus) Bundle {
	if ctx == nil {
		ctx = context.Background()
	}
	b := Bundle{Tier: res.Tier}

	switch res.Tier {
	case classify.TierComplexTopic:
		if res.Topic != nil {
			b.Items = append(b.Items, ComplexTopicHit{Topic: *res.Topic, Rules: lookupRefs(corpus, res.Topic.RuleRefs)})
		}
	case classify.TierInteraction:
		if res.Interaction != nil {
			b.Items = append(b.Items, InteractionHit{Interaction: *res.Interaction, Rules: lookupRefs(corpus, res.Interaction.RuleRefs)})
		}
	case classify.TierKeyword:
		if res.Keyword != nil {
			b.Items = append(b.Items, KeywordHit{Keyword: *res.Keyword, Rules: keywordRules(corpus, res.Keyword.Name, res.Keyword.RuleRefs, q.Normalized)})
		}
	case classify.TierCard:
		if res.Card != nil {
			b.Items = append(b.Items, a.cardEvidence(ctx, q, *res.Card, res.SecondaryCandidate)...)
		}
	default:
		if matches := corpus.FindRelevantRules(q.Normalized); len(matches) > 0 {
			b.Items = append(b.Items, RuleMatches{Rules: matches})
		} else if hit, ok := a.webSearch(ctx, q); ok {
			b.Items = append(b.Items, hit)
		}
	}

	// A caller-supplied card that lost to a higher tier is still attached.
	if res.KnownCard != "" && res.Tier != classify.TierCard && !b.Empty() {
		if card, ok := a.resolve(ctx, res.KnownCard); ok {
			b.Items = append(b.Items, CardOracle{Card: card, Role: RoleKnown})
		}
	}
	return b
}

// cardEvidence fetches the primary card's rulings and resolves the secondary
// candidate concurrently, then builds the grounding prompt.
func (a *Aggregator) cardEvidence(ctx context.Context, q classify.Question, primary carddata.Card, secondaryName string) []Evidence {
	var secondary *carddata.Card
	g, gctx := errgroup.WithContext(ctx)
	if a.cards != nil && len(primary.Rulings) == 0 {
		g.Go(func() error {
			rulings, err := a.cards.RulingsFor(gctx, primary)
			if err != nil {
				a.log.Warn("rulings lookup failed", "card", primary.Name, "error", err)
				a.recorder.RecordUpstreamFailure(gctx, "card_data")
				return nil
			}
			primary.Rulings = rulings
			return nil
		})
	}
	if secondaryName != "" {
		g.Go(func() error {
			if card, ok := a.resolve(gctx, secondaryName); ok && !strings.EqualFold(card.Name, primary.Name) {
				secondary = &card
			}
			return nil
		})
	}
	_ = g.Wait()

	main := CardOracle{Card: primary, Role: RolePrimary}
	out := []Evidence{}
	if secondary != nil {
		main.Related = []carddata.Card{*secondary}
		main.Prompt = oracle.BuildGroundingPrompt(primary, q.Raw, *secondary)
		out = append(out, main, CardOracle{Card: *secondary, Role: RoleSecondary})
		return out
	}
	main.Prompt = oracle.BuildGroundingPrompt(primary, q.Raw)
	return append(out, main)
}

func (a *Aggregator) resolve(ctx context.Context, name string) (carddata.Card, bool) {
	if a.cards == nil {
		return carddata.Card{}, false
	}
	card, err := a.cards.ResolveCard(ctx, name)
	if err != nil {
		if !errors.Is(err, carddata.ErrNotFound) {
			a.log.Warn("card lookup failed", "card", name, "error", err)
			a.recorder.RecordUpstreamFailure(ctx, "card_data")
		}
		return carddata.Card{}, false
	}
	return card, true
}

func (a *Aggregator) webSearch(ctx context.Context, q classify.Question) (WebSearchHit, bool) {
	if a.search == nil || strings.TrimSpace(q.Raw) == "" {
		return WebSearchHit{}, false
	}
	result, err := a.search.Search(ctx, websearch.SearchRequest{
		Query: strings.TrimSpace(q.Raw) + " mtg rules",
		Sites: a.sites,
	})
	if err != nil {
		a.log.Warn("web search failed", "error", err)
		a.recorder.RecordUpstreamFailure(ctx, "web_search")
		return WebSearchHit{}, false
	}
	if len(result.Results) == 0 {
		return WebSearchHit{}, false
	}
	return WebSearchHit{Result: result}, true
}

func lookupRefs(corpus *rules.Corpus, refs []string) []rules.Record {
	var out []rules.Record
	for _, ref := range refs {
		if r, ok := corpus.Lookup(ref); ok {
			out = append(out, r)
		}
	}
	return out
}

// keywordRules returns the curated rule refs and the question's corpus
// matches whose first sentence names the keyword. Rules that only mention it
// in passing are dropped.
func keywordRules(corpus *rules.Corpus, keyword string, refs []string, normalized string) []rules.Record {
	name := strings.ToLower(keyword)
	seen := map[string]struct{}{}
	var out []rules.Record
	add := func(r rules.Record) {
		if _, dup := seen[r.Number]; dup {
			return
		}
		if !strings.Contains(strings.ToLower(firstSentence(r.Text)), name) {
			return
		}
		seen[r.Number] = struct{}{}
		out = append(out, r)
	}
	for _, r := range lookupRefs(corpus, refs) {
		add(r)
	}
	for _, r := range corpus.FindRelevantRules(normalized) {
		add(r)
	}
	return out
}

func firstSentence(text string) string {
	if i := strings.Index(text, ". "); i >= 0 {
		return text[:i+1]
	}
	return text
}
