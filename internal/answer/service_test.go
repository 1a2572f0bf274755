package answer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/floegence/judgebot/internal/auditlog"
	"github.com/floegence/judgebot/internal/carddata"
	"github.com/floegence/judgebot/internal/classify"
	"github.com/floegence/judgebot/internal/evidence"
	"github.com/floegence/judgebot/internal/knowledge"
	"github.com/floegence/judgebot/internal/references"
	"github.com/floegence/judgebot/internal/rules"
)

const warchiefOracle = "Goblin spells you cast cost {1} less to cast."

type fakeCards struct {
	mu      sync.Mutex
	cards   map[string]carddata.Card
	lookups int
}

func newFakeCards() *fakeCards {
	return &fakeCards{cards: map[string]carddata.Card{
		"goblin warchief": {
			ID:         "gw",
			Name:       "Goblin Warchief",
			TypeLine:   "Creature — Goblin Warrior",
			ManaCost:   "{1}{R}{R}",
			OracleText: warchiefOracle,
			Power:      "2",
			Toughness:  "2",
		},
		"skirk prospector": {ID: "sp", Name: "Skirk Prospector", TypeLine: "Creature — Goblin", ManaCost: "{R}", OracleText: "Sacrifice a Goblin: Add {R}."},
		"herald's horn":    {ID: "hh", Name: "Herald's Horn", TypeLine: "Artifact", ManaCost: "{3}"},
	}}
}

func (f *fakeCards) ResolveCard(_ context.Context, name string) (carddata.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	card, ok := f.cards[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return carddata.Card{}, carddata.ErrNotFound
	}
	return card, nil
}

func (f *fakeCards) RulingsFor(_ context.Context, card carddata.Card) ([]string, error) {
	if card.Name == "Goblin Warchief" {
		return []string{"The reduction applies only to generic mana, similar to Herald's Horn."}, nil
	}
	return nil, nil
}

func (f *fakeCards) Lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

// scriptedGenerator returns its replies in order and records every prompt.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
	block   chan struct{}
	entered chan struct{}
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return reply, nil
}

func (g *scriptedGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

type fixture struct {
	cards *fakeCards
	store *rules.Store
	audit *auditlog.Store
}

func newService(t *testing.T, gen *scriptedGenerator) (*Service, fixture) {
	t.Helper()
	tables, err := knowledge.Default()
	if err != nil {
		t.Fatalf("knowledge.Default: %v", err)
	}
	f := fixture{cards: newFakeCards(), store: rules.NewStore(rules.StoreOptions{})}
	f.audit, err = auditlog.New(auditlog.Options{StateDir: t.TempDir()})
	if err != nil {
		t.Fatalf("auditlog.New: %v", err)
	}
	opts := Options{
		Classifier: classify.New(classify.DefaultCascade(tables, f.cards, classify.Options{})...),
		Aggregator: evidence.New(evidence.Options{Cards: f.cards}),
		Rules:      f.store,
		References: references.NewExtractor(f.cards, references.Options{}),
		Audit:      f.audit,
	}
	if gen != nil {
		opts.Generator = gen
	}
	s, err := NewService(opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s, f
}

func TestAnswer_MenaceIsTheCuratedDefinition(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{err: errors.New("generator must not be called")}
	s, f := newService(t, gen)
	res, err := s.Answer(context.Background(), Request{Question: "how does menace work?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	tables, _ := knowledge.Default()
	menace, _ := tables.Keyword("Menace")
	if !strings.HasPrefix(res.PrimaryText, menace.Description) {
		t.Fatalf("PrimaryText does not start with the Menace definition:\n%s", res.PrimaryText)
	}
	if res.Tier != classify.TierKeyword || res.Attempts != 0 {
		t.Fatalf("Tier=%q Attempts=%d, want keyword/0", res.Tier, res.Attempts)
	}
	if n := f.cards.Lookups(); n != 0 {
		t.Fatalf("card lookups = %d, want 0", n)
	}
	if len(gen.Prompts()) != 0 {
		t.Fatalf("generator was called")
	}
	if res.RequestID == "" {
		t.Fatalf("RequestID not assigned")
	}
}

func TestAnswer_APNAP(t *testing.T) {
	t.Parallel()

	s, _ := newService(t, nil)
	res, err := s.Answer(context.Background(), Request{Question: "what is APNAP order?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Tier != classify.TierComplexTopic || res.Detector != "complex_topic" {
		t.Fatalf("Tier=%q Detector=%q", res.Tier, res.Detector)
	}
	if !strings.Contains(res.PrimaryText, "Active Player") || !strings.Contains(res.PrimaryText, "101.4") {
		t.Fatalf("PrimaryText missing APNAP facts:\n%s", res.PrimaryText)
	}
	if strings.Contains(strings.ToLower(res.PrimaryText), "damage assignment order") {
		t.Fatalf("PrimaryText mentions damage assignment order:\n%s", res.PrimaryText)
	}
}

func TestAnswer_RejectsScalingThenAcceptsFlatReduction(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{
		"Goblin Warchief makes Goblin spells cost {1} less for each Goblin you control, so Skirk Prospector is free.",
		"Goblin Warchief reduces the cost by exactly {1}, and only generic mana. Skirk Prospector costs {R}, so it still costs {R}.",
	}}
	s, f := newService(t, gen)
	res, err := s.Answer(context.Background(), Request{
		ID:        "req-1",
		Question:  "Does it reduce Skirk Prospector below {R}?",
		KnownCard: "Goblin Warchief",
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Tier != classify.TierCard || res.Attempts != 2 || res.Hedged {
		t.Fatalf("Tier=%q Attempts=%d Hedged=%v, want card/2/false", res.Tier, res.Attempts, res.Hedged)
	}
	if !strings.HasPrefix(res.PrimaryText, "Goblin Warchief reduces the cost by exactly {1}") {
		t.Fatalf("PrimaryText is not the accepted draft:\n%s", res.PrimaryText)
	}
	if strings.Contains(res.PrimaryText, "for each Goblin") {
		t.Fatalf("rejected draft leaked into the answer:\n%s", res.PrimaryText)
	}
	if !strings.Contains(res.PrimaryText, "\n\nOfficial Rulings:\n- The reduction applies only to generic mana") {
		t.Fatalf("rulings section missing:\n%s", res.PrimaryText)
	}

	prompts := gen.Prompts()
	if len(prompts) != 2 {
		t.Fatalf("prompts = %d, want 2", len(prompts))
	}
	if !strings.Contains(prompts[0], "Related card: Skirk Prospector") {
		t.Fatalf("first prompt missing the secondary card:\n%s", prompts[0])
	}
	if !strings.Contains(prompts[1], "previous answer was rejected") {
		t.Fatalf("retry prompt does not echo the rejection:\n%s", prompts[1])
	}

	var names []string
	for _, c := range res.ReferencedCards {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "Goblin Warchief,Skirk Prospector,Herald's Horn" {
		t.Fatalf("ReferencedCards = %v", names)
	}

	entries, err := f.audit.List(10)
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit entries = %v, %v", entries, err)
	}
	if e := entries[0]; e.RequestID != "req-1" || e.Status != auditlog.StatusAnswered || len(e.ValidationErrors) == 0 {
		t.Fatalf("audit entry = %+v", e)
	}
}

func TestAnswer_RejectsScalingAfterLeadingNo(t *testing.T) {
	t.Parallel()

	for _, draft := range []string{
		"No, it costs {1} less for each Goblin you control.",
		"The reduction isn't flat: it's {1} less for each Goblin.",
	} {
		gen := &scriptedGenerator{replies: []string{
			draft,
			"No. Goblin Warchief reduces the cost by exactly {1} of generic mana, so Skirk Prospector still costs {R}.",
		}}
		s, _ := newService(t, gen)
		res, err := s.Answer(context.Background(), Request{
			Question:  "Is Skirk Prospector's cost reduced below {R}?",
			KnownCard: "Goblin Warchief",
		})
		if err != nil {
			t.Fatalf("Answer: %v", err)
		}
		if res.Attempts != 2 || res.Hedged {
			t.Fatalf("draft %q: Attempts=%d Hedged=%v, want 2/false", draft, res.Attempts, res.Hedged)
		}
		if !strings.HasPrefix(res.PrimaryText, "No. Goblin Warchief reduces the cost by exactly {1}") {
			t.Fatalf("draft %q was not replaced:\n%s", draft, res.PrimaryText)
		}
	}
}

func TestAnswer_HedgesWhenRetryAlsoFails(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{
		"It costs {1} less for each Goblin you control.",
	}}
	s, f := newService(t, gen)
	res, err := s.Answer(context.Background(), Request{Question: "How does Goblin Warchief work?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !res.Hedged || res.Attempts != MaxAttempts {
		t.Fatalf("Hedged=%v Attempts=%d, want true/%d", res.Hedged, res.Attempts, MaxAttempts)
	}
	if !strings.HasPrefix(res.PrimaryText, hedgeNotice) || !strings.Contains(res.PrimaryText, warchiefOracle) {
		t.Fatalf("hedged answer malformed:\n%s", res.PrimaryText)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "for each") {
			found = true
		}
	}
	if !found {
		t.Fatalf("Warnings = %v, want the validation error", res.Warnings)
	}
	if got := len(gen.Prompts()); got != MaxAttempts {
		t.Fatalf("generator calls = %d, want %d", got, MaxAttempts)
	}
	entries, _ := f.audit.List(1)
	if len(entries) != 1 || entries[0].Status != auditlog.StatusHedged {
		t.Fatalf("audit entries = %+v", entries)
	}
}

func TestAnswer_GenerationFailureQuotesOracle(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{err: errors.New("provider down")}
	s, _ := newService(t, gen)
	res, err := s.Answer(context.Background(), Request{Question: "How does Goblin Warchief work?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Hedged || res.Attempts != 1 {
		t.Fatalf("Hedged=%v Attempts=%d, want false/1", res.Hedged, res.Attempts)
	}
	if !strings.Contains(res.PrimaryText, warchiefOracle) {
		t.Fatalf("PrimaryText missing oracle text:\n%s", res.PrimaryText)
	}
	if len(gen.Prompts()) != 1 {
		t.Fatalf("upstream failure must not be retried")
	}
}

func TestAnswer_NoGeneratorQuotesOracle(t *testing.T) {
	t.Parallel()

	s, _ := newService(t, nil)
	res, err := s.Answer(context.Background(), Request{Question: "How does Goblin Warchief work?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Attempts != 0 || !strings.Contains(res.PrimaryText, warchiefOracle) {
		t.Fatalf("Attempts=%d PrimaryText=%q", res.Attempts, res.PrimaryText)
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected oracle warnings for a fixed reduction")
	}
}

func TestAnswer_EmptyEvidence(t *testing.T) {
	t.Parallel()

	s, f := newService(t, nil)
	res, err := s.Answer(context.Background(), Request{Question: "Who shuffles first at a tournament table?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Tier != classify.TierNone || res.PrimaryText != NoRulingMessage {
		t.Fatalf("Tier=%q PrimaryText=%q", res.Tier, res.PrimaryText)
	}
	entries, _ := f.audit.List(1)
	if len(entries) != 1 || entries[0].Status != auditlog.StatusNoRuling {
		t.Fatalf("audit entries = %+v", entries)
	}
}

func TestAnswer_RuleMatchesUseSnapshot(t *testing.T) {
	t.Parallel()

	s, f := newService(t, nil)
	f.store.Reload("613.1. The values of an object's characteristics are determined by continuous effects applied in a series of sublayers.\n")
	res, err := s.Answer(context.Background(), Request{Question: "Who determines an object's characteristics?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(res.PrimaryText, "613.1 The values of an object's characteristics") {
		t.Fatalf("PrimaryText missing rule match:\n%s", res.PrimaryText)
	}
	if len(res.Sources) != 1 || res.Sources[0] != "CR 613.1" {
		t.Fatalf("Sources = %v", res.Sources)
	}
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	t.Parallel()

	s, _ := newService(t, nil)
	if _, err := s.Answer(context.Background(), Request{Question: "   "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("err = %v, want ErrEmptyQuestion", err)
	}
}

func TestAnswer_DropsConcurrentDuplicate(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{
		replies: []string{"Goblin Warchief reduces the cost by exactly {1}."},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s, f := newService(t, gen)

	done := make(chan error, 1)
	go func() {
		_, err := s.Answer(context.Background(), Request{ID: "dup", Question: "How does Goblin Warchief work?"})
		done <- err
	}()
	select {
	case <-gen.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("first request never reached the generator")
	}

	if _, err := s.Answer(context.Background(), Request{ID: "dup", Question: "How does Goblin Warchief work?"}); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("err = %v, want ErrDuplicateRequest", err)
	}
	close(gen.block)
	if err := <-done; err != nil {
		t.Fatalf("first request: %v", err)
	}

	// Released on completion.
	if _, err := s.Answer(context.Background(), Request{ID: "dup", Question: "how does menace work?"}); err != nil {
		t.Fatalf("after release: %v", err)
	}
	entries, _ := f.audit.List(10)
	if len(entries) != 3 {
		t.Fatalf("audit entries = %d, want 3", len(entries))
	}
}

func TestGuard_TimeoutReleases(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	g := NewGuard(time.Minute)
	g.now = func() time.Time { return now }

	if !g.Acquire("a") {
		t.Fatalf("first Acquire should succeed")
	}
	if g.Acquire("a") {
		t.Fatalf("second Acquire should be dropped")
	}
	if !g.Acquire("b") {
		t.Fatalf("other IDs are independent")
	}
	now = now.Add(time.Minute)
	if !g.Acquire("a") {
		t.Fatalf("Acquire after timeout should succeed")
	}
	g.Release("a")
	if !g.Acquire("a") {
		t.Fatalf("Acquire after Release should succeed")
	}
}

func TestNewService_Validates(t *testing.T) {
	t.Parallel()

	if _, err := NewService(Options{}); err == nil {
		t.Fatalf("expected error for missing collaborators")
	}
}
