package classify

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/floegence/judgebot/internal/carddata"
	"github.com/floegence/judgebot/internal/telemetry"
)

const (
	maxCandidateWords     = 6
	maxCapitalizedLookups = 2
)

// extractionTiers are tried in order over the normalized question. Each
// yields at most one candidate from its first capture group.
var extractionTiers = []*regexp.Regexp{
	regexp.MustCompile(`^how (?:does|do) (.+?) (?:work|function)\b`),
	regexp.MustCompile(`^(?:can you )?explain (.+?)[?.!]*$`),
	regexp.MustCompile(`^what (?:does|do|is) (.+?) (?:do|mean)\b`),
	regexp.MustCompile(`^(.+?) rulings?[?.!]*$|\brulings? (?:on|for) (.+?)[?.!]*$`),
}

var (
	starterRe = regexp.MustCompile(`^(?:(?:can you|could you|please|tell me about|what about|how does|how do|what does|what do|what is|what's|explain|does|do|is|can|the card)\s+)+`)
	suffixRe  = regexp.MustCompile(`(?:\s+(?:work|works|do|does|mean|means|function|functions))+$`)
	capsRe    = regexp.MustCompile(`[A-Z][\w'’,-]*(?:\s+(?:(?:of|the|and|to|in|from|for|a|an|de)\s+)*[A-Z][\w'’,-]*)+`)
)

// leadingQuestionWords are capitalized words that start a sentence rather
// than a card name.
var leadingQuestionWords = map[string]struct{}{
	"how": {}, "what": {}, "does": {}, "do": {}, "can": {}, "if": {}, "when": {},
	"i": {}, "is": {}, "why": {}, "will": {}, "my": {}, "explain": {}, "which": {},
	"should": {}, "would": {}, "could": {},
}

// CardNameDetector extracts card-name candidates from a question and accepts
// the first one the card provider confirms.
type CardNameDetector struct {
	cards    carddata.Provider
	log      *slog.Logger
	recorder *telemetry.Recorder
}

func NewCardNameDetector(cards carddata.Provider, logger *slog.Logger, recorder *telemetry.Recorder) *CardNameDetector {
	return &CardNameDetector{cards: cards, log: logger, recorder: recorder}
}

func (d *CardNameDetector) Name() string { return "card_name" }

func (d *CardNameDetector) Detect(ctx context.Context, q Question) (Result, bool) {
	if d.cards == nil {
		return Result{}, false
	}
	// A card supplied by the caller replaces extraction from the text; the
	// first extracted candidate is kept as a secondary reference.
	if q.KnownCard != "" {
		if card, ok := d.confirm(ctx, q.KnownCard); ok {
			res := Result{Tier: TierCard, CardName: card.Name, Card: &card}
			for _, c := range secondaryCandidates(q) {
				if lookupKey(c) != lookupKey(q.KnownCard) && lookupKey(c) != lookupKey(card.Name) {
					res.SecondaryCandidate = c
					break
				}
			}
			return res, true
		}
	}

	for _, c := range Candidates(q) {
		if card, ok := d.confirm(ctx, c); ok {
			return Result{Tier: TierCard, CardName: card.Name, Card: &card}, true
		}
	}
	return Result{}, false
}

func (d *CardNameDetector) confirm(ctx context.Context, name string) (carddata.Card, bool) {
	card, err := d.cards.ResolveCard(ctx, name)
	if err != nil {
		if !errors.Is(err, carddata.ErrNotFound) {
			d.log.Warn("card lookup failed", "candidate", name, "error", err)
			d.recorder.RecordUpstreamFailure(ctx, "card_data")
		}
		return carddata.Card{}, false
	}
	return card, true
}

// Candidates lists the card-name candidates for q in the order they are
// tried: pattern tiers, the generic strip, then at most two capitalized
// phrases from the raw text. Duplicates are dropped.
func Candidates(q Question) []string {
	var out candidateList
	for _, c := range patternCandidates(q.Normalized) {
		out.add(c)
	}
	out.add(genericStrip(q.Normalized))
	for _, c := range capitalizedCandidates(q.Raw) {
		out.add(c)
	}
	return out.items
}

// secondaryCandidates are the likely card names in the text when the card
// tier was taken by a known card: capitalized phrases first, then pattern
// tiers. The generic strip is too loose to name a second card.
func secondaryCandidates(q Question) []string {
	var out candidateList
	for _, c := range capitalizedCandidates(q.Raw) {
		out.add(c)
	}
	for _, c := range patternCandidates(q.Normalized) {
		out.add(c)
	}
	return out.items
}

type candidateList struct {
	items []string
	seen  map[string]struct{}
}

func (l *candidateList) add(c string) {
	c = cleanCandidate(c)
	if c == "" || len(strings.Fields(c)) > maxCandidateWords {
		return
	}
	if l.seen == nil {
		l.seen = map[string]struct{}{}
	}
	key := lookupKey(c)
	if _, dup := l.seen[key]; dup {
		return
	}
	l.seen[key] = struct{}{}
	l.items = append(l.items, c)
}

func patternCandidates(normalized string) []string {
	var out []string
	for _, re := range extractionTiers {
		m := re.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		for _, g := range m[1:] {
			if g != "" {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

func capitalizedCandidates(raw string) []string {
	var out []string
	for _, phrase := range capsRe.FindAllString(raw, -1) {
		phrase = trimLeadingQuestionWords(cleanCandidate(phrase))
		if len(strings.Fields(phrase)) < 2 {
			continue
		}
		out = append(out, phrase)
		if len(out) == maxCapitalizedLookups {
			break
		}
	}
	return out
}

func genericStrip(normalized string) string {
	s := strings.TrimRight(strings.TrimSpace(normalized), "?.! ")
	s = starterRe.ReplaceAllString(s, "")
	s = suffixRe.ReplaceAllString(s, "")
	return s
}

func cleanCandidate(c string) string {
	c = strings.TrimSpace(c)
	c = strings.Trim(c, "?.!,;:\"'“”")
	c = strings.TrimSpace(c)
	if strings.HasSuffix(strings.ToLower(c), "'s") {
		c = c[:len(c)-2]
	}
	return strings.TrimSpace(c)
}

func trimLeadingQuestionWords(phrase string) string {
	words := strings.Fields(phrase)
	for len(words) > 0 {
		if _, ok := leadingQuestionWords[strings.ToLower(words[0])]; !ok {
			break
		}
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func lookupKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
