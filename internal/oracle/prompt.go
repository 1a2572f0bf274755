package oracle

import (
	"strings"

	"github.com/floegence/judgebot/internal/carddata"
)

const groundingInstruction = `You are a Magic: The Gathering rules judge answering a question about one card.
Interpret the oracle text below literally. Do not add scaling ("for each", "per"), conditions or abilities that the oracle text does not contain.
Quote the oracle text when the exact wording matters. If the oracle text and rules below do not answer the question, say so instead of guessing.`

// BuildGroundingPrompt renders the prompt handed to the text generator for a
// card question. Related cards are listed with their oracle text only.
func BuildGroundingPrompt(card carddata.Card, question string, related ...carddata.Card) string {
	var b strings.Builder
	b.WriteString(groundingInstruction)
	b.WriteString("\n\n")
	writeCardFacts(&b, card)

	if warnings := Warnings(card.OracleText); len(warnings) > 0 {
		b.WriteString("\nCautions:\n")
		for _, w := range warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	if lines := ClassifyLines(card.OracleText); len(lines) > 0 {
		b.WriteString("\nAbilities:\n")
		for _, l := range lines {
			b.WriteString("- [")
			b.WriteString(string(l.Kind))
			b.WriteString("] ")
			b.WriteString(l.Text)
			b.WriteString("\n")
		}
	}
	if len(card.Rulings) > 0 {
		b.WriteString("\nOfficial rulings:\n")
		for _, r := range card.Rulings {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}

	for _, r := range related {
		b.WriteString("\nRelated card: ")
		b.WriteString(r.Name)
		b.WriteString("\nOracle text (verbatim):\n")
		b.WriteString(r.OracleText)
		b.WriteString("\n")
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n")
	return b.String()
}

// BuildRetryPrompt is the stricter prompt used for the single regeneration
// after a draft failed validation. It echoes every error found.
func BuildRetryPrompt(card carddata.Card, question string, report Report, related ...carddata.Card) string {
	var b strings.Builder
	b.WriteString(BuildGroundingPrompt(card, question, related...))
	b.WriteString("\nYour previous answer was rejected because it contradicted the oracle text:\n")
	for _, msg := range report.Messages() {
		b.WriteString("- ")
		b.WriteString(msg)
		b.WriteString("\n")
	}
	b.WriteString("Rewrite the answer using only what the oracle text literally says. Restate any numbers exactly as printed.\n")
	return b.String()
}

func writeCardFacts(b *strings.Builder, card carddata.Card) {
	b.WriteString("Card: ")
	b.WriteString(card.Name)
	b.WriteString("\n")
	if card.TypeLine != "" {
		b.WriteString("Type: ")
		b.WriteString(card.TypeLine)
		b.WriteString("\n")
	}
	if card.ManaCost != "" {
		b.WriteString("Mana cost: ")
		b.WriteString(card.ManaCost)
		b.WriteString("\n")
	}
	if pt := card.PowerToughness(); pt != "" {
		b.WriteString("Power/Toughness: ")
		b.WriteString(pt)
		b.WriteString("\n")
	}
	if card.Loyalty != "" {
		b.WriteString("Loyalty: ")
		b.WriteString(card.Loyalty)
		b.WriteString("\n")
	}
	b.WriteString("\nOracle text (verbatim):\n")
	b.WriteString(card.OracleText)
	b.WriteString("\n")
}
