package carddata

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when no card matches a lookup.
var ErrNotFound = errors.New("card not found")

// Card is the authoritative oracle record for one card.
type Card struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name"`
	TypeLine   string   `json:"type_line"`
	ManaCost   string   `json:"mana_cost,omitempty"`
	OracleText string   `json:"oracle_text"`
	Power      string   `json:"power,omitempty"`
	Toughness  string   `json:"toughness,omitempty"`
	Loyalty    string   `json:"loyalty,omitempty"`
	Rulings    []string `json:"rulings,omitempty"`
	RulingsURI string   `json:"rulings_uri,omitempty"`
}

// PowerToughness renders "P/T", or "" for cards without both values.
func (c Card) PowerToughness() string {
	if strings.TrimSpace(c.Power) == "" || strings.TrimSpace(c.Toughness) == "" {
		return ""
	}
	return c.Power + "/" + c.Toughness
}

// Provider resolves card names to oracle records.
type Provider interface {
	ResolveCard(ctx context.Context, name string) (Card, error)
	RulingsFor(ctx context.Context, card Card) ([]string, error)
}

func lookupKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
