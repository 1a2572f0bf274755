package oracle

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	CodeIntroducedScaling  = "introduced_scaling"
	CodeMisframedReduction = "misframed_reduction"
	CodeAssertedKeyword    = "asserted_keyword"
)

// ValidationError is one way a generated answer contradicts the oracle text.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Report is the outcome of validating one generated answer.
type Report struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Messages returns the error messages in order.
func (r Report) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Message)
	}
	return out
}

// checkedKeywords are the abilities an answer may not attribute to a card
// whose oracle text does not grant them.
var checkedKeywords = []string{"flying", "vigilance", "trample", "haste", "lifelink", "deathtouch"}

var (
	keywordRes = func() map[string]*regexp.Regexp {
		out := make(map[string]*regexp.Regexp, len(checkedKeywords))
		for _, kw := range checkedKeywords {
			out[kw] = regexp.MustCompile(`\b` + kw + `\b`)
		}
		return out
	}()
	negationRe      = regexp.MustCompile(`(?:\b(?:not|no|never|without|lacks?|lacking|neither|nor|cannot)\b|n't\b)`)
	sentenceSplitRe = regexp.MustCompile(`[.!?\n]+`)
)

const negationWindow = 30

// clauseBreaks end the scope of a negation.
const clauseBreaks = ".!?\n,;:"

// Validate checks a generated answer against the card's literal oracle text.
func Validate(oracleText string, answer string) Report {
	oracle := strings.ToLower(oracleText)
	text := strings.ToLower(answer)
	var errs []ValidationError

	oracleScales := forEachRe.MatchString(oracle) || perRe.MatchString(oracle)
	if !oracleScales {
		if phrase, ok := firstAsserted(forEachRe, text); ok {
			errs = append(errs, ValidationError{
				Code:    CodeIntroducedScaling,
				Message: fmt.Sprintf("The answer says %q, but the oracle text has no \"for each\" or \"per\" scaling.", phrase),
			})
		} else if phrase, ok := firstAsserted(perRe, text); ok {
			errs = append(errs, ValidationError{
				Code:    CodeIntroducedScaling,
				Message: fmt.Sprintf("The answer says %q, but the oracle text has no \"for each\" or \"per\" scaling.", phrase),
			})
		}

		if m := fixedLessRe.FindStringSubmatch(oracle); m != nil {
			literal := "{" + m[1] + "} less"
			for _, sentence := range sentenceSplitRe.Split(text, -1) {
				if !strings.Contains(sentence, literal) {
					continue
				}
				if _, ok := firstAsserted(perObjectRe, sentence); ok {
					errs = append(errs, ValidationError{
						Code:    CodeMisframedReduction,
						Message: fmt.Sprintf("The oracle text reduces the cost by exactly %s in total; the answer restates it per object.", strings.ToUpper("{"+m[1]+"}")),
					})
					break
				}
			}
		}
	}

	for _, kw := range checkedKeywords {
		re := keywordRes[kw]
		if re.MatchString(oracle) {
			continue
		}
		if _, ok := firstAsserted(re, text); ok {
			errs = append(errs, ValidationError{
				Code:    CodeAssertedKeyword,
				Message: fmt.Sprintf("The answer mentions %s, but the card's oracle text does not grant it.", kw),
			})
		}
	}

	return Report{Valid: len(errs) == 0, Errors: errs}
}

var perObjectRe = regexp.MustCompile(`\bfor (?:each|every)\b|\bper [a-z]+|\beach (?:other )?[a-z]+ you control\b`)

// firstAsserted returns the first match of re in text that is not negated by
// a "not", "no", "without" or similar governing it in the same clause. A
// sentence-opening "No," answers the question and negates nothing after it.
func firstAsserted(re *regexp.Regexp, text string) (string, bool) {
	for _, loc := range re.FindAllStringIndex(text, -1) {
		start := loc[0] - negationWindow
		if start < 0 {
			start = 0
		}
		window := text[start:loc[0]]
		if i := strings.LastIndexAny(window, clauseBreaks); i >= 0 {
			window = window[i+1:]
		}
		if negationRe.MatchString(window) {
			continue
		}
		return text[loc[0]:loc[1]], true
	}
	return "", false
}
