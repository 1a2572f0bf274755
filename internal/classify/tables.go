package classify

import (
	"context"
	"strings"

	"github.com/floegence/judgebot/internal/knowledge"
)

// ComplexTopicDetector matches rules-subsystem topics. All topic patterns are
// tried in table order before any heuristic is.
type ComplexTopicDetector struct {
	tables *knowledge.Tables
}

func NewComplexTopicDetector(tables *knowledge.Tables) *ComplexTopicDetector {
	return &ComplexTopicDetector{tables: tables}
}

func (d *ComplexTopicDetector) Name() string { return "complex_topic" }

func (d *ComplexTopicDetector) Detect(_ context.Context, q Question) (Result, bool) {
	if d.tables == nil || q.Normalized == "" {
		return Result{}, false
	}
	for i := range d.tables.Topics {
		tp := &d.tables.Topics[i]
		if knowledge.MatchAny(tp.Patterns, q.Normalized) >= 0 {
			return Result{Tier: TierComplexTopic, Topic: tp}, true
		}
	}
	for i := range d.tables.Topics {
		tp := &d.tables.Topics[i]
		for _, h := range tp.Heuristics {
			if h.Match(q.Normalized) {
				return Result{Tier: TierComplexTopic, Topic: tp}, true
			}
		}
	}
	return Result{}, false
}

// genericInteractionPhrases mark a question as asking how mechanics combine.
var genericInteractionPhrases = []string{"work with", "interact", "combo", "synerg", "together"}

// InteractionDetector matches curated two-mechanic interactions.
type InteractionDetector struct {
	tables   *knowledge.Tables
	keywords [][]knowledge.Pattern
}

func NewInteractionDetector(tables *knowledge.Tables) *InteractionDetector {
	d := &InteractionDetector{tables: tables}
	if tables == nil {
		return d
	}
	d.keywords = make([][]knowledge.Pattern, len(tables.Interactions))
	for i, it := range tables.Interactions {
		for _, kw := range it.Keywords {
			p, err := knowledge.NewPattern(kw)
			if err != nil {
				continue
			}
			d.keywords[i] = append(d.keywords[i], p)
		}
	}
	return d
}

func (d *InteractionDetector) Name() string { return "interaction" }

func (d *InteractionDetector) Detect(_ context.Context, q Question) (Result, bool) {
	if d.tables == nil || q.Normalized == "" {
		return Result{}, false
	}
	generic := containsAny(q.Normalized, genericInteractionPhrases)
	for i := range d.tables.Interactions {
		it := &d.tables.Interactions[i]
		if knowledge.MatchAny(it.Patterns, q.Normalized) >= 0 {
			return Result{Tier: TierInteraction, Interaction: it}, true
		}
		if generic && allMatch(d.keywords[i], q.Normalized) {
			return Result{Tier: TierInteraction, Interaction: it}, true
		}
	}
	return Result{}, false
}

// framingTerms make a question that names a keyword a request to explain it.
var framingTerms = []string{"how does", "what is", "explain", "work", "mean", "rule", "ability", "keyword", "mechanic"}

// KeywordDetector matches a keyword name together with a framing term, then
// falls back to framing-free rule phrases.
type KeywordDetector struct {
	tables *knowledge.Tables
}

func NewKeywordDetector(tables *knowledge.Tables) *KeywordDetector {
	return &KeywordDetector{tables: tables}
}

func (d *KeywordDetector) Name() string { return "keyword" }

func (d *KeywordDetector) Detect(_ context.Context, q Question) (Result, bool) {
	if d.tables == nil || q.Normalized == "" {
		return Result{}, false
	}
	if containsAny(q.Normalized, framingTerms) {
		for i := range d.tables.Keywords {
			kw := &d.tables.Keywords[i]
			if knowledge.MatchAny(kw.Patterns, q.Normalized) >= 0 {
				return Result{Tier: TierKeyword, Keyword: kw}, true
			}
		}
	}
	for _, fb := range d.tables.Fallbacks {
		if !fb.Pattern.Match(q.Normalized) {
			continue
		}
		if kw, ok := d.tables.Keyword(fb.Keyword); ok {
			return Result{Tier: TierKeyword, Keyword: &kw}, true
		}
	}
	return Result{}, false
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func allMatch(patterns []knowledge.Pattern, s string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, p := range patterns {
		if !p.Match(s) {
			return false
		}
	}
	return true
}
