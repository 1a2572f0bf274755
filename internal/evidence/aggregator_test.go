package evidence

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/floegence/judgebot/internal/carddata"
	"github.com/floegence/judgebot/internal/classify"
	"github.com/floegence/judgebot/internal/knowledge"
	"github.com/floegence/judgebot/internal/rules"
	"github.com/floegence/judgebot/internal/websearch"
)

const testRules = `Magic: The Gathering Comprehensive Rules

101.4. If multiple players would make choices and/or take actions at the same time, the active player makes any choices required, then the next player in turn order makes any choices required.
509.1c The defending player checks each creature they control to see whether it's affected by any requirements. Menace is one such restriction.
702.111. Menace
702.111a Menace is an evasion ability.
702.111b A creature with menace can't be blocked except by two or more creatures.
`

type fakeCards struct {
	mu       sync.Mutex
	cards    map[string]carddata.Card
	rulings  map[string][]string
	rulesErr error
	lookups  []string
	barrier  chan struct{}
}

func (f *fakeCards) rendezvous() {
	if f.barrier == nil {
		return
	}
	f.barrier <- struct{}{}
	deadline := time.After(2 * time.Second)
	for len(f.barrier) < cap(f.barrier) {
		select {
		case <-deadline:
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (f *fakeCards) ResolveCard(_ context.Context, name string) (carddata.Card, error) {
	f.rendezvous()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, name)
	card, ok := f.cards[strings.ToLower(name)]
	if !ok {
		return carddata.Card{}, carddata.ErrNotFound
	}
	return card, nil
}

func (f *fakeCards) RulingsFor(_ context.Context, card carddata.Card) ([]string, error) {
	f.rendezvous()
	if f.rulesErr != nil {
		return nil, f.rulesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rulings[strings.ToLower(card.Name)], nil
}

type fakeSearch struct {
	result websearch.SearchResult
	err    error
	got    websearch.SearchRequest
}

func (f *fakeSearch) Search(_ context.Context, req websearch.SearchRequest) (websearch.SearchResult, error) {
	f.got = req
	return f.result, f.err
}

var (
	warchief = carddata.Card{
		Name:       "Goblin Warchief",
		TypeLine:   "Creature — Goblin Warrior",
		ManaCost:   "{1}{R}{R}",
		OracleText: "Goblin spells you cast cost {1} less to cast.\nGoblins you control have haste.",
	}
	prospector = carddata.Card{
		Name:       "Skirk Prospector",
		TypeLine:   "Creature — Goblin",
		ManaCost:   "{R}",
		OracleText: "Sacrifice a Goblin: Add {R}.",
	}
)

func newFakeCards() *fakeCards {
	return &fakeCards{
		cards: map[string]carddata.Card{
			"goblin warchief":  warchief,
			"skirk prospector": prospector,
		},
		rulings: map[string][]string{
			"goblin warchief": {"The reduction applies only to generic mana."},
		},
	}
}

func mustTables(t *testing.T) *knowledge.Tables {
	t.Helper()
	tables, err := knowledge.Default()
	if err != nil {
		t.Fatalf("knowledge.Default: %v", err)
	}
	return tables
}

func TestCollect_Keyword(t *testing.T) {
	t.Parallel()

	tables := mustTables(t)
	menace, ok := tables.Keyword("menace")
	if !ok {
		t.Fatalf("menace keyword missing")
	}
	a := New(Options{})
	q := classify.NewQuestion("how does menace work?", "")
	b := a.Collect(context.Background(), q, classify.Result{Tier: classify.TierKeyword, Keyword: &menace}, rules.Parse(testRules))

	hit, ok := b.Primary().(KeywordHit)
	if !ok {
		t.Fatalf("primary = %T, want KeywordHit", b.Primary())
	}
	var numbers []string
	for _, r := range hit.Rules {
		numbers = append(numbers, r.Number)
	}
	// 509.1c only mentions menace after its first sentence.
	if diff := cmp.Diff([]string{"702.111", "702.111a", "702.111b"}, numbers); diff != "" {
		t.Fatalf("keyword rules mismatch (-want +got):\n%s", diff)
	}
	text := hit.Text()
	if !strings.HasPrefix(text, menace.Description) {
		t.Fatalf("keyword text does not start with the definition:\n%s", text)
	}
	if !strings.Contains(text, "702.111b A creature with menace") {
		t.Fatalf("keyword text missing rule:\n%s", text)
	}
}

func TestKeywordHitText_Budget(t *testing.T) {
	t.Parallel()

	hit := KeywordHit{
		Keyword: knowledge.Keyword{Name: "Ward", Description: "Ward: counter unless they pay.", Example: "An example."},
	}
	for i := 0; i < 40; i++ {
		hit.Rules = append(hit.Rules, rules.Record{Number: "702.21", Text: strings.Repeat("ward text ", 10)})
	}
	text := hit.Text()
	if len(text) > KeywordAnswerBudget {
		t.Fatalf("len(text) = %d, want <= %d", len(text), KeywordAnswerBudget)
	}
	if !strings.HasPrefix(text, "Ward: counter unless they pay.\n\nExample: An example.") {
		t.Fatalf("unexpected text start:\n%s", text)
	}

	bare := KeywordHit{Keyword: knowledge.Keyword{Name: "Ward", Description: "Ward: counter unless they pay."}}
	if got := bare.Text(); got != "Ward: counter unless they pay." {
		t.Fatalf("Text() = %q, want the definition verbatim", got)
	}
}

func TestCollect_ComplexTopic(t *testing.T) {
	t.Parallel()

	tables := mustTables(t)
	topic, ok := tables.Topic("apnap_order")
	if !ok {
		t.Fatalf("apnap_order topic missing")
	}
	a := New(Options{})
	b := a.Collect(context.Background(), classify.NewQuestion("what is apnap order?", ""),
		classify.Result{Tier: classify.TierComplexTopic, Topic: &topic}, rules.Parse(testRules))

	hit, ok := b.Primary().(ComplexTopicHit)
	if !ok {
		t.Fatalf("primary = %T, want ComplexTopicHit", b.Primary())
	}
	text := hit.Text()
	if !strings.Contains(text, "Active Player") || !strings.Contains(text, "101.4") {
		t.Fatalf("topic text missing APNAP facts:\n%s", text)
	}
	if strings.Contains(strings.ToLower(text), "damage assignment order") {
		t.Fatalf("topic text mentions damage assignment order:\n%s", text)
	}
	if len(hit.Rules) != 1 || hit.Rules[0].Number != "101.4" {
		t.Fatalf("topic rules = %+v, want 101.4 from the corpus", hit.Rules)
	}
	if got := b.Sources(); len(got) == 0 || got[0] != "Topic: "+topic.Title {
		t.Fatalf("Sources() = %v", got)
	}
}

func TestCollect_CardLookupsRunConcurrently(t *testing.T) {
	t.Parallel()

	cards := newFakeCards()
	cards.barrier = make(chan struct{}, 2)
	a := New(Options{Cards: cards})
	q := classify.NewQuestion("Does it reduce Skirk Prospector?", "Goblin Warchief")
	card := warchief
	start := time.Now()
	b := a.Collect(context.Background(), q, classify.Result{
		Tier:               classify.TierCard,
		CardName:           card.Name,
		Card:               &card,
		SecondaryCandidate: "Skirk Prospector",
	}, rules.Parse(""))
	if time.Since(start) >= 2*time.Second {
		t.Fatalf("rulings and secondary lookups did not overlap")
	}

	if len(b.Items) != 2 {
		t.Fatalf("items = %d, want primary and secondary", len(b.Items))
	}
	primary := b.Items[0].(CardOracle)
	if primary.Role != RolePrimary || primary.Card.Name != "Goblin Warchief" {
		t.Fatalf("primary = %+v", primary)
	}
	if diff := cmp.Diff([]string{"The reduction applies only to generic mana."}, primary.Card.Rulings); diff != "" {
		t.Fatalf("rulings mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{
		"Card: Goblin Warchief",
		"Official rulings:\n- The reduction applies only to generic mana.",
		"Related card: Skirk Prospector",
		"Question: Does it reduce Skirk Prospector?",
	} {
		if !strings.Contains(primary.Prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, primary.Prompt)
		}
	}
	if secondary := b.Items[1].(CardOracle); secondary.Role != RoleSecondary || secondary.Card.Name != "Skirk Prospector" {
		t.Fatalf("secondary = %+v", secondary)
	}
	if got := b.Cards(); len(got) != 2 {
		t.Fatalf("Cards() = %d, want 2", len(got))
	}
}

func TestCollect_RulingsFailureDegrades(t *testing.T) {
	t.Parallel()

	cards := newFakeCards()
	cards.rulesErr = errors.New("scryfall down")
	a := New(Options{Cards: cards})
	card := warchief
	b := a.Collect(context.Background(), classify.NewQuestion("how does goblin warchief work?", ""),
		classify.Result{Tier: classify.TierCard, CardName: card.Name, Card: &card}, nil)

	primary, ok := b.Primary().(CardOracle)
	if !ok {
		t.Fatalf("primary = %T, want CardOracle", b.Primary())
	}
	if len(primary.Card.Rulings) != 0 {
		t.Fatalf("rulings = %v, want none", primary.Card.Rulings)
	}
	if primary.Prompt == "" {
		t.Fatalf("prompt should still be built")
	}
}

func TestCollect_NoneTier(t *testing.T) {
	t.Parallel()

	q := classify.NewQuestion("Can a player respond while the defending player chooses requirements?", "")

	b := New(Options{}).Collect(context.Background(), q, classify.Result{Tier: classify.TierNone}, rules.Parse(testRules))
	if _, ok := b.Primary().(RuleMatches); !ok {
		t.Fatalf("primary = %T, want RuleMatches", b.Primary())
	}

	search := &fakeSearch{result: websearch.SearchResult{
		Provider: "brave",
		Results:  []websearch.ResultItem{{Title: "Judge blog", URL: "https://blogs.magicjudges.org/x"}},
	}}
	b = New(Options{Search: search}).Collect(context.Background(), q, classify.Result{Tier: classify.TierNone}, rules.Parse(""))
	hit, ok := b.Primary().(WebSearchHit)
	if !ok {
		t.Fatalf("primary = %T, want WebSearchHit", b.Primary())
	}
	if diff := cmp.Diff([]string{"https://blogs.magicjudges.org/x"}, hit.Sources()); diff != "" {
		t.Fatalf("sources mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultSearchSites, search.got.Sites); diff != "" {
		t.Fatalf("search sites mismatch (-want +got):\n%s", diff)
	}

	failing := &fakeSearch{err: errors.New("quota")}
	b = New(Options{Search: failing}).Collect(context.Background(), q, classify.Result{Tier: classify.TierNone}, rules.Parse(""))
	if !b.Empty() {
		t.Fatalf("bundle = %+v, want empty", b)
	}

	b = New(Options{}).Collect(context.Background(), q, classify.Result{Tier: classify.TierNone}, rules.Parse(""))
	if !b.Empty() || b.Primary() != nil {
		t.Fatalf("bundle = %+v, want empty", b)
	}
}

func TestCollect_KnownCardAttachedWhenHigherTierWins(t *testing.T) {
	t.Parallel()

	tables := mustTables(t)
	menace, _ := tables.Keyword("menace")
	cards := newFakeCards()
	a := New(Options{Cards: cards})
	b := a.Collect(context.Background(), classify.NewQuestion("how does menace work?", "Goblin Warchief"),
		classify.Result{Tier: classify.TierKeyword, Keyword: &menace, KnownCard: "Goblin Warchief"}, rules.Parse(""))

	if _, ok := b.Primary().(KeywordHit); !ok {
		t.Fatalf("primary = %T, want KeywordHit", b.Primary())
	}
	supp := b.Supplementary()
	if len(supp) != 1 {
		t.Fatalf("supplementary = %d, want 1", len(supp))
	}
	if c := supp[0].(CardOracle); c.Role != RoleKnown || c.Card.Name != "Goblin Warchief" {
		t.Fatalf("supplementary = %+v", c)
	}
}

func TestBundleSourcesDeduplicated(t *testing.T) {
	t.Parallel()

	b := Bundle{Items: []Evidence{
		RuleMatches{Rules: []rules.Record{{Number: "101.4"}, {Number: "702.111"}}},
		RuleMatches{Rules: []rules.Record{{Number: "101.4"}}},
	}}
	if diff := cmp.Diff([]string{"CR 101.4", "CR 702.111"}, b.Sources()); diff != "" {
		t.Fatalf("Sources mismatch (-want +got):\n%s", diff)
	}
}
