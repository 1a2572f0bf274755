package oracle

import (
	"regexp"
	"strings"
)

// Kind classifies one line of oracle text.
type Kind string

const (
	KindTriggered   Kind = "triggered"
	KindActivated   Kind = "activated"
	KindKeyword     Kind = "keyword"
	KindStatic      Kind = "static"
	KindReplacement Kind = "replacement"
	KindOther       Kind = "other"
)

// AbilityLine is one classified line of a card's oracle text.
type AbilityLine struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

var (
	reminderRe  = regexp.MustCompile(`\([^)]*\)`)
	costColonRe = regexp.MustCompile(`\{[^}]+\}[^:]*:`)
	costWordRe  = regexp.MustCompile(`^(?:sacrifice|discard|pay|exile|remove|tap|untap|return)\b[^.:]*:`)
	// Ability words ("Landfall — ...") carry no rules meaning of their own.
	abilityWordRe = regexp.MustCompile(`^[a-z][a-z' -]* — `)
	staticRes     = []*regexp.Regexp{
		regexp.MustCompile(`^(?:all|other|each|your|opponents'?)\b[^.]*\b(?:gets?|have|has|are|is|costs?)\b`),
		regexp.MustCompile(`^[\w' ,-]*\b(?:creatures|spells|permanents|lands|artifacts|enchantments|planeswalkers|cards|tokens)\b[^.]*\b(?:gets?|have|has|are|costs?)\b`),
	}
	replacementRe = regexp.MustCompile(`\bif\b.*\bwould\b.*\binstead\b`)
)

var triggerPrefixes = []string{"when ", "whenever ", "at the beginning", "at the end"}

// keywordAbilities are the names recognised at the start of a keyword line.
var keywordAbilities = []string{
	"flying", "first strike", "double strike", "deathtouch", "defender", "haste",
	"hexproof", "indestructible", "lifelink", "menace", "reach", "trample",
	"vigilance", "ward", "flash", "protection from", "prowess", "shroud",
	"cycling", "kicker", "flashback", "cascade", "convoke", "delve", "equip",
	"enchant", "fear", "intimidate", "infect", "undying", "persist", "affinity for",
	"annihilator", "storm", "changeling", "landwalk", "islandwalk", "swampwalk",
	"forestwalk", "mountainwalk", "plainswalk", "wither", "exalted", "evolve",
	"toxic", "crew", "ninjutsu", "madness", "morph", "mutate", "partner",
}

// ClassifyLines splits oracle text into lines and classifies each one.
func ClassifyLines(oracleText string) []AbilityLine {
	var out []AbilityLine
	for _, line := range strings.Split(oracleText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "//" {
			continue
		}
		out = append(out, AbilityLine{Text: line, Kind: classifyLine(line)})
	}
	return out
}

func classifyLine(line string) Kind {
	lower := strings.ToLower(strings.TrimSpace(reminderRe.ReplaceAllString(line, "")))
	lower = abilityWordRe.ReplaceAllString(lower, "")
	for _, p := range triggerPrefixes {
		if strings.HasPrefix(lower, p) {
			return KindTriggered
		}
	}
	if costColonRe.MatchString(lower) || costWordRe.MatchString(lower) {
		return KindActivated
	}
	if startsWithKeyword(lower) {
		return KindKeyword
	}
	for _, re := range staticRes {
		if re.MatchString(lower) {
			return KindStatic
		}
	}
	if replacementRe.MatchString(lower) {
		return KindReplacement
	}
	return KindOther
}

func startsWithKeyword(lower string) bool {
	for _, kw := range keywordAbilities {
		if !strings.HasPrefix(lower, kw) {
			continue
		}
		rest := lower[len(kw):]
		if rest == "" {
			return true
		}
		for _, sep := range []string{" ", ",", ";", "—", "{"} {
			if strings.HasPrefix(rest, sep) {
				return true
			}
		}
	}
	return false
}
