// Package references surfaces other cards mentioned in the official rulings
// appended to an answer.
package references

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/floegence/judgebot/internal/carddata"
	"github.com/floegence/judgebot/internal/telemetry"
)

const (
	// SectionHeading starts the rulings section of a finalized answer.
	SectionHeading = "Official Rulings:"
	// MaxReferences caps the confirmed cards attached to one answer.
	MaxReferences = 3

	minSingleWordLen = 8
)

const namePattern = `[A-Z][\w'’-]*(?:\s+(?:(?:of|the|and|to|in|from|for|a|an|de)\s+)*[A-Z][\w'’-]*)*`

var (
	// costReductionRe captures the name in front of "... reduces".
	costReductionRe = regexp.MustCompile(`(` + namePattern + `)(?:'s|’s)?\s+(?:\w+\s+){0,3}?(?:reduces?|reduction)\b`)

	// segmentPatterns capture a run of text that starts with a name and may
	// hold an "or" list.
	segmentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?i:cost reductions? (?:from|of|such as|like))\s+([A-Z][^.;:!?()]*)`),
		regexp.MustCompile(`\b(?i:(?:isn't|aren't|is not|are not|won't be|wasn't|doesn't|don't|can't be|cannot be)\s+(?:affected|reduced|increased|stopped|prevented|countered|copied|counted)\s+by)\s+([A-Z][^.;:!?()]*)`),
		regexp.MustCompile(`\b(?i:similar to)\s+([A-Z][^.;:!?()]*)`),
		regexp.MustCompile(`\b(?i:unlike)\s+([A-Z][^.;:!?()]*)`),
		regexp.MustCompile(`\b(?i:for example|such as)[,:]?\s+([A-Z][^.;:!?()]*)`),
	}

	leadingNameRe = regexp.MustCompile(`^` + namePattern)
	orSplitRe     = regexp.MustCompile(`,?\s+or\s+`)
	fragmentRe    = regexp.MustCompile(`[\s\-'’]+`)
)

// sentenceWords start a sentence rather than a card name.
var sentenceWords = map[string]struct{}{
	"if": {}, "when": {}, "whenever": {}, "while": {}, "because": {}, "since": {},
	"although": {}, "both": {}, "each": {}, "effects": {}, "abilities": {}, "this": {},
	"that": {}, "note": {}, "however": {}, "its": {}, "it": {}, "any": {}, "all": {},
}

// Section returns the text after the last rulings heading, or "" when the
// answer has none.
func Section(answer string) string {
	i := strings.LastIndex(answer, SectionHeading)
	if i < 0 {
		return ""
	}
	return answer[i+len(SectionHeading):]
}

// Candidates lists the unconfirmed card names found in the rulings section of
// answer, excluding the card being explained. At most MaxReferences names are
// returned, in order of appearance.
func Candidates(answer string, current string) []string {
	section := Section(answer)
	if strings.TrimSpace(section) == "" {
		return nil
	}

	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, m := range costReductionRe.FindAllStringSubmatchIndex(section, -1) {
		hits = append(hits, hit{pos: m[2], name: section[m[2]:m[3]]})
	}
	for _, re := range segmentPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(section, -1) {
			for _, name := range splitSegment(section[m[2]:m[3]]) {
				hits = append(hits, hit{pos: m[2], name: name})
			}
		}
	}
	// Stable insertion sort by position keeps the list order inside one segment.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	out := make([]string, 0, MaxReferences)
	seen := map[string]struct{}{}
	for _, h := range hits {
		name := cleanName(h.name)
		if rejected(name, current) {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
		if len(out) == MaxReferences {
			break
		}
	}
	return out
}

func splitSegment(seg string) []string {
	parts := orSplitRe.Split(seg, -1)
	var out []string
	for i, part := range parts {
		items := []string{part}
		if i < len(parts)-1 {
			items = strings.Split(part, ",")
		}
		for _, item := range items {
			if name := leadingNameRe.FindString(strings.TrimSpace(item)); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func cleanName(name string) string {
	words := strings.Fields(name)
	for len(words) > 0 {
		if _, ok := sentenceWords[strings.ToLower(words[0])]; !ok {
			break
		}
		words = words[1:]
	}
	out := strings.Join(words, " ")
	for _, suffix := range []string{"'s", "’s"} {
		out = strings.TrimSuffix(out, suffix)
	}
	return strings.TrimSpace(out)
}

func rejected(name string, current string) bool {
	if name == "" {
		return true
	}
	words := strings.Fields(name)
	if len(words) == 1 && len([]rune(name)) < minSingleWordLen {
		return true
	}
	if len(words) == 2 && words[0] == "The" && len([]rune(words[1])) < minSingleWordLen {
		return true
	}
	cur := strings.ToLower(strings.TrimSpace(current))
	if cur == "" {
		return false
	}
	lower := strings.ToLower(name)
	if strings.Contains(cur, lower) || strings.Contains(lower, cur) {
		return true
	}
	// Fragments of the current name, such as "Ur-Dragon" for "The Ur-Dragon".
	curParts := map[string]struct{}{}
	for _, p := range fragmentRe.Split(cur, -1) {
		if p != "" {
			curParts[p] = struct{}{}
		}
	}
	for _, p := range fragmentRe.Split(lower, -1) {
		if p == "" || p == "s" {
			continue
		}
		if _, ok := curParts[p]; !ok {
			return false
		}
	}
	return true
}

// Extractor confirms candidate references against a card provider.
type Extractor struct {
	cards    carddata.Provider
	log      *slog.Logger
	recorder *telemetry.Recorder
}

type Options struct {
	Logger   *slog.Logger
	Recorder *telemetry.Recorder
}

func NewExtractor(cards carddata.Provider, opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{cards: cards, log: logger, recorder: opts.Recorder}
}

// Extract returns the confirmed cards referenced in the rulings section of
// answer, in order of appearance. Lookups run concurrently; misses and
// provider errors drop the candidate.
func (e *Extractor) Extract(ctx context.Context, answer string, current string) []carddata.Card {
	if e == nil || e.cards == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	names := Candidates(answer, current)
	if len(names) == 0 {
		return nil
	}

	found := make([]*carddata.Card, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			card, err := e.cards.ResolveCard(gctx, name)
			if err != nil {
				if !errors.Is(err, carddata.ErrNotFound) {
					e.log.Warn("reference lookup failed", "candidate", name, "error", err)
					e.recorder.RecordUpstreamFailure(gctx, "card_data")
				}
				return nil
			}
			found[i] = &card
			return nil
		})
	}
	_ = g.Wait()

	out := make([]carddata.Card, 0, len(found))
	for _, c := range found {
		if c != nil && !strings.EqualFold(c.Name, current) {
			out = append(out, *c)
		}
	}
	return out
}
