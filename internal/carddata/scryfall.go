package carddata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.scryfall.com"

	scryfallMaxBodyBytes = 2 << 20
	defaultTimeout       = 10 * time.Second
	userAgent            = "judgebot/1.0"
)

type scryfallFace struct {
	Name       string `json:"name"`
	ManaCost   string `json:"mana_cost"`
	TypeLine   string `json:"type_line"`
	OracleText string `json:"oracle_text"`
	Power      string `json:"power"`
	Toughness  string `json:"toughness"`
	Loyalty    string `json:"loyalty"`
}

type scryfallCard struct {
	Object     string         `json:"object"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	ManaCost   string         `json:"mana_cost"`
	TypeLine   string         `json:"type_line"`
	OracleText string         `json:"oracle_text"`
	Power      string         `json:"power"`
	Toughness  string         `json:"toughness"`
	Loyalty    string         `json:"loyalty"`
	RulingsURI string         `json:"rulings_uri"`
	CardFaces  []scryfallFace `json:"card_faces"`
}

type scryfallRulings struct {
	Data []struct {
		Source      string `json:"source"`
		PublishedAt string `json:"published_at"`
		Comment     string `json:"comment"`
	} `json:"data"`
}

type scryfallError struct {
	Code    string `json:"code"`
	Details string `json:"details"`
}

// Client is a Provider backed by the Scryfall HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

type ClientOptions struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(opts ClientOptions) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{baseURL: base, http: hc, log: logger}
}

// ResolveCard performs a fuzzy name lookup.
func (c *Client) ResolveCard(ctx context.Context, name string) (Card, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Card{}, errors.New("missing card name")
	}
	endpoint, err := url.Parse(c.baseURL + "/cards/named")
	if err != nil {
		return Card{}, fmt.Errorf("invalid card data endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("fuzzy", name)
	endpoint.RawQuery = q.Encode()

	var decoded scryfallCard
	if err := c.getJSON(ctx, endpoint.String(), &decoded); err != nil {
		return Card{}, err
	}
	card := decoded.toCard()
	c.log.Debug("card resolved", "query", name, "name", card.Name)
	return card, nil
}

// RulingsFor returns the official ruling comments for card.
func (c *Client) RulingsFor(ctx context.Context, card Card) ([]string, error) {
	endpoint := strings.TrimSpace(card.RulingsURI)
	if endpoint == "" {
		id := strings.TrimSpace(card.ID)
		if id == "" {
			return nil, errors.New("card has no id or rulings uri")
		}
		endpoint = c.baseURL + "/cards/" + url.PathEscape(id) + "/rulings"
	}
	var decoded scryfallRulings
	if err := c.getJSON(ctx, endpoint, &decoded); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(decoded.Data))
	for _, r := range decoded.Data {
		if v := strings.TrimSpace(r.Comment); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, scryfallMaxBodyBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr scryfallError
		if json.Unmarshal(body, &apiErr) == nil && strings.TrimSpace(apiErr.Details) != "" {
			return fmt.Errorf("card data request failed (status %d): %s", resp.StatusCode, apiErr.Details)
		}
		return fmt.Errorf("card data request failed (status %d)", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.New("invalid card data response")
	}
	return nil
}

func (s scryfallCard) toCard() Card {
	card := Card{
		ID:         strings.TrimSpace(s.ID),
		Name:       strings.TrimSpace(s.Name),
		TypeLine:   strings.TrimSpace(s.TypeLine),
		ManaCost:   strings.TrimSpace(s.ManaCost),
		OracleText: strings.TrimSpace(s.OracleText),
		Power:      strings.TrimSpace(s.Power),
		Toughness:  strings.TrimSpace(s.Toughness),
		Loyalty:    strings.TrimSpace(s.Loyalty),
		RulingsURI: strings.TrimSpace(s.RulingsURI),
	}
	if len(s.CardFaces) == 0 {
		return card
	}
	// Multi-faced cards keep their rules text on the faces.
	texts := make([]string, 0, len(s.CardFaces))
	for _, f := range s.CardFaces {
		if t := strings.TrimSpace(f.OracleText); t != "" {
			texts = append(texts, t)
		}
	}
	if card.OracleText == "" {
		card.OracleText = strings.Join(texts, "\n")
	}
	front := s.CardFaces[0]
	if card.ManaCost == "" {
		card.ManaCost = strings.TrimSpace(front.ManaCost)
	}
	if card.Power == "" && card.Toughness == "" {
		card.Power = strings.TrimSpace(front.Power)
		card.Toughness = strings.TrimSpace(front.Toughness)
	}
	if card.Loyalty == "" {
		card.Loyalty = strings.TrimSpace(front.Loyalty)
	}
	return card
}
