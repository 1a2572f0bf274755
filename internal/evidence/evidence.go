// Package evidence gathers the material an answer is built from.
package evidence

import (
	"strings"

	"github.com/floegence/judgebot/internal/carddata"
	"github.com/floegence/judgebot/internal/classify"
	"github.com/floegence/judgebot/internal/knowledge"
	"github.com/floegence/judgebot/internal/rules"
	"github.com/floegence/judgebot/internal/websearch"
)

// KeywordAnswerBudget caps the rendered keyword answer, definition included.
const KeywordAnswerBudget = 1800

type Kind string

const (
	KindKeyword      Kind = "keyword"
	KindInteraction  Kind = "interaction"
	KindComplexTopic Kind = "complex_topic"
	KindRuleMatches  Kind = "rule_matches"
	KindCardOracle   Kind = "card_oracle"
	KindWebSearch    Kind = "web_search"
)

// Evidence is one piece of a bundle. The set of implementations is closed:
// KeywordHit, InteractionHit, ComplexTopicHit, RuleMatches, CardOracle and
// WebSearchHit.
type Evidence interface {
	Kind() Kind
	Sources() []string
	sealed()
}

// KeywordHit is a curated keyword definition plus the corpus rules that are
// about that keyword.
type KeywordHit struct {
	Keyword knowledge.Keyword
	Rules   []rules.Record
}

func (KeywordHit) Kind() Kind { return KindKeyword }
func (KeywordHit) sealed()    {}

func (h KeywordHit) Sources() []string {
	out := []string{"Keyword: " + h.Keyword.Name}
	for _, r := range h.Rules {
		out = append(out, "CR "+r.Number)
	}
	return out
}

// Text renders the definition, then the example and the rules while they fit
// in KeywordAnswerBudget.
func (h KeywordHit) Text() string {
	var b strings.Builder
	b.WriteString(h.Keyword.Description)
	if ex := h.Keyword.Example; ex != "" {
		add := "\n\nExample: " + ex
		if b.Len()+len(add) <= KeywordAnswerBudget {
			b.WriteString(add)
		}
	}
	header := "\n\nComprehensive Rules:"
	wroteHeader := false
	for _, r := range h.Rules {
		line := "\n" + r.Number + " " + r.Text
		need := len(line)
		if !wroteHeader {
			need += len(header)
		}
		if b.Len()+need > KeywordAnswerBudget {
			break
		}
		if !wroteHeader {
			b.WriteString(header)
			wroteHeader = true
		}
		b.WriteString(line)
	}
	return b.String()
}

// InteractionHit is a curated two-mechanic answer.
type InteractionHit struct {
	Interaction knowledge.Interaction
	Rules       []rules.Record
}

func (InteractionHit) Kind() Kind { return KindInteraction }
func (InteractionHit) sealed()    {}

func (h InteractionHit) Sources() []string {
	return curatedSources("Interaction: "+h.Interaction.Title, h.Interaction.RuleRefs)
}

func (h InteractionHit) Text() string {
	return curatedText(h.Interaction.Description, h.Interaction.Example)
}

// ComplexTopicHit is a curated answer for a rules subsystem.
type ComplexTopicHit struct {
	Topic knowledge.ComplexTopic
	Rules []rules.Record
}

func (ComplexTopicHit) Kind() Kind { return KindComplexTopic }
func (ComplexTopicHit) sealed()    {}

func (h ComplexTopicHit) Sources() []string {
	return curatedSources("Topic: "+h.Topic.Title, h.Topic.RuleRefs)
}

func (h ComplexTopicHit) Text() string {
	return curatedText(h.Topic.Description, h.Topic.Example)
}

// RuleMatches are corpus rules retrieved lexically for the question.
type RuleMatches struct {
	Rules []rules.Record
}

func (RuleMatches) Kind() Kind { return KindRuleMatches }
func (RuleMatches) sealed()    {}

func (m RuleMatches) Sources() []string {
	out := make([]string, 0, len(m.Rules))
	for _, r := range m.Rules {
		out = append(out, "CR "+r.Number)
	}
	return out
}

// CardRole says why a card is in the bundle.
type CardRole string

const (
	RolePrimary   CardRole = "primary"
	RoleSecondary CardRole = "secondary"
	RoleKnown     CardRole = "known"
)

// CardOracle is a card record with its rulings. The primary card carries the
// grounding prompt for the text generator; Related repeats any secondary card
// that the prompt mentions.
type CardOracle struct {
	Card    carddata.Card
	Role    CardRole
	Related []carddata.Card
	Prompt  string
}

func (CardOracle) Kind() Kind { return KindCardOracle }
func (CardOracle) sealed()    {}

func (c CardOracle) Sources() []string {
	out := []string{"Oracle text: " + c.Card.Name}
	if len(c.Card.Rulings) > 0 {
		out = append(out, "Rulings: "+c.Card.Name)
	}
	return out
}

// WebSearchHit holds web results used when nothing local matched.
type WebSearchHit struct {
	Result websearch.SearchResult
}

func (WebSearchHit) Kind() Kind { return KindWebSearch }
func (WebSearchHit) sealed()    {}

func (w WebSearchHit) Sources() []string {
	out := make([]string, 0, len(w.Result.Results))
	for _, r := range w.Result.Results {
		out = append(out, r.URL)
	}
	return out
}

// Bundle is the evidence for one question. Items[0] is the primary evidence;
// the rest is supplementary.
type Bundle struct {
	Tier  classify.Tier
	Items []Evidence
}

func (b Bundle) Empty() bool { return len(b.Items) == 0 }

func (b Bundle) Primary() Evidence {
	if len(b.Items) == 0 {
		return nil
	}
	return b.Items[0]
}

func (b Bundle) Supplementary() []Evidence {
	if len(b.Items) < 2 {
		return nil
	}
	return b.Items[1:]
}

// Sources lists every item's sources once, in bundle order.
func (b Bundle) Sources() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, ev := range b.Items {
		for _, s := range ev.Sources() {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Cards returns the card records in the bundle, primary first.
func (b Bundle) Cards() []carddata.Card {
	var out []carddata.Card
	for _, ev := range b.Items {
		if c, ok := ev.(CardOracle); ok {
			out = append(out, c.Card)
		}
	}
	return out
}

func curatedSources(title string, refs []string) []string {
	out := []string{title}
	for _, ref := range refs {
		out = append(out, "CR "+ref)
	}
	return out
}

func curatedText(description, example string) string {
	if example == "" {
		return description
	}
	return description + "\n\nExample: " + example
}
