package classify

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/floegence/judgebot/internal/carddata"
	"github.com/floegence/judgebot/internal/knowledge"
	"github.com/floegence/judgebot/internal/telemetry"
)

// CascadeVersion identifies the detector order. Bump it whenever the order
// or membership of DefaultCascade changes.
const CascadeVersion = 1

// Tier is the evidence tier selected by the winning detector.
type Tier string

const (
	TierComplexTopic Tier = "complex_topic"
	TierInteraction  Tier = "interaction"
	TierKeyword      Tier = "keyword"
	TierCard         Tier = "card"
	TierNone         Tier = "none"
)

// Question is an inbound question. Build it with NewQuestion.
type Question struct {
	Raw        string
	Normalized string
	// KnownCard is a card name supplied by the caller alongside the question.
	KnownCard string
}

func NewQuestion(raw string, knownCard string) Question {
	return Question{
		Raw:        raw,
		Normalized: strings.ToLower(strings.TrimSpace(raw)),
		KnownCard:  strings.TrimSpace(knownCard),
	}
}

// Result names the winning tier and its matched record.
type Result struct {
	Tier     Tier
	Detector string

	Topic       *knowledge.ComplexTopic
	Interaction *knowledge.Interaction
	Keyword     *knowledge.Keyword

	// CardName is the confirmed card name and Card its record.
	CardName string
	Card     *carddata.Card
	// SecondaryCandidate is an unconfirmed card name found in the question
	// text when a known card took the card tier.
	SecondaryCandidate string

	// KnownCard is set when the caller supplied a card but a higher tier won;
	// it is still consulted as supplementary evidence.
	KnownCard string
}

// Detector is one step of the classification cascade.
type Detector interface {
	Name() string
	Detect(ctx context.Context, q Question) (Result, bool)
}

// Classifier runs an ordered detector cascade; the first detector that fires
// decides the tier.
type Classifier struct {
	detectors []Detector
}

type Options struct {
	Logger   *slog.Logger
	Recorder *telemetry.Recorder
}

// DefaultCascade returns the detectors in their fixed order: complex topics,
// interactions, keywords, card names.
func DefaultCascade(tables *knowledge.Tables, cards carddata.Provider, opts Options) []Detector {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return []Detector{
		NewComplexTopicDetector(tables),
		NewInteractionDetector(tables),
		NewKeywordDetector(tables),
		NewCardNameDetector(cards, logger, opts.Recorder),
	}
}

func New(detectors ...Detector) *Classifier {
	out := make([]Detector, 0, len(detectors))
	for _, d := range detectors {
		if d != nil {
			out = append(out, d)
		}
	}
	return &Classifier{detectors: out}
}

// Names lists the detector names in cascade order.
func (c *Classifier) Names() []string {
	out := make([]string, 0, len(c.detectors))
	for _, d := range c.detectors {
		out = append(out, d.Name())
	}
	return out
}

func (c *Classifier) Classify(ctx context.Context, q Question) Result {
	for _, d := range c.detectors {
		res, ok := d.Detect(ctx, q)
		if !ok {
			continue
		}
		res.Detector = d.Name()
		if res.Tier != TierCard && q.KnownCard != "" {
			res.KnownCard = q.KnownCard
		}
		return res
	}
	return Result{Tier: TierNone, KnownCard: q.KnownCard}
}
