package oracle

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	forEachRe       = regexp.MustCompile(`\bfor (?:each|every)\b`)
	perRe           = regexp.MustCompile(`\bper [a-z]+`)
	fixedLessRe     = regexp.MustCompile(`\{(\d+|x)\} less\b`)
	lifeMultiplyRe  = regexp.MustCompile(`\b(?:gain|gains) (?:twice|double) (?:that much|the amount of) life\b|\bdouble (?:the amount of |that much )?life\b|\btwice that much life\b`)
	variableRe      = regexp.MustCompile(`\{x\}|\bx\b`)
	otherRe         = regexp.MustCompile(`\bother\b`)
	upToRe          = regexp.MustCompile(`\bup to (\w+)\b`)
	drawForEachRe   = regexp.MustCompile(`\bdraws? [^.]*\bfor each\b`)
	damageForEachRe = regexp.MustCompile(`\bdeals? [^.]*\bdamage\b[^.]*\bfor each\b`)
)

// Warnings lists cautions about phrasing in oracleText that is commonly
// misread. Each trap contributes at most one warning.
func Warnings(oracleText string) []string {
	text := strings.ToLower(oracleText)
	var out []string

	if m := fixedLessRe.FindStringSubmatch(text); m != nil {
		amount := "{" + strings.ToUpper(m[1]) + "}"
		if forEachRe.MatchString(text) {
			out = append(out, fmt.Sprintf("The cost reduction scales: it is %s less for each counted object, not a flat amount.", amount))
		} else {
			out = append(out, fmt.Sprintf("The cost reduction is exactly %s in total. It does not scale with the number of other objects and does not reduce colored mana requirements.", amount))
		}
	}
	if lifeMultiplyRe.MatchString(text) {
		out = append(out, "Life gain is multiplied only as written. Apply the multiplier once to each life-gain event.")
	}
	if variableRe.MatchString(text) {
		out = append(out, "X is a variable. Check how the card defines or lets you choose X before computing any value.")
	}
	if otherRe.MatchString(text) {
		out = append(out, `"Other" excludes this card itself.`)
	}
	if m := upToRe.FindStringSubmatch(text); m != nil {
		out = append(out, fmt.Sprintf(`"Up to %s" allows any number from 0 to %s, including none.`, m[1], m[1]))
	}
	if drawForEachRe.MatchString(text) {
		out = append(out, "The number of cards drawn depends on a count made as the ability resolves.")
	}
	if damageForEachRe.MatchString(text) {
		out = append(out, "The damage dealt depends on a count made as the ability resolves.")
	}
	return out
}
