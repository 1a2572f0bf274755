// Package answer runs the question pipeline: classify, gather evidence,
// synthesize and validate, then surface referenced cards.
package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/floegence/judgebot/internal/auditlog"
	"github.com/floegence/judgebot/internal/carddata"
	"github.com/floegence/judgebot/internal/classify"
	"github.com/floegence/judgebot/internal/evidence"
	"github.com/floegence/judgebot/internal/oracle"
	"github.com/floegence/judgebot/internal/references"
	"github.com/floegence/judgebot/internal/rules"
	"github.com/floegence/judgebot/internal/telemetry"
	"github.com/floegence/judgebot/internal/textgen"
)

var (
	// ErrDuplicateRequest is returned when the same request ID is already
	// being answered. The duplicate is dropped, not queued.
	ErrDuplicateRequest = errors.New("duplicate request in flight")
	ErrEmptyQuestion    = errors.New("empty question")
)

// NoRulingMessage is the answer when no evidence tier produced anything.
const NoRulingMessage = "I couldn't find a definitive ruling for that question. Try naming the card, keyword or rule involved, or check the Comprehensive Rules directly."

const hedgeNotice = "I'm not fully certain about this answer: it may not match the card's oracle text exactly. Check the oracle text quoted below."

type Request struct {
	// ID identifies the inbound request for duplicate suppression. A random
	// ID is assigned when empty.
	ID        string
	Question  string
	KnownCard string
}

type Result struct {
	RequestID       string          `json:"request_id"`
	PrimaryText     string          `json:"primary_text"`
	Warnings        []string        `json:"warnings,omitempty"`
	ReferencedCards []carddata.Card `json:"referenced_cards,omitempty"`
	Sources         []string        `json:"sources,omitempty"`

	Tier     classify.Tier `json:"tier"`
	Detector string        `json:"detector,omitempty"`
	Attempts int           `json:"attempts"`
	Hedged   bool          `json:"hedged"`
}

type Options struct {
	Classifier *classify.Classifier
	Aggregator *evidence.Aggregator
	Rules      *rules.Store

	// Generator is optional; without it card answers quote the oracle text.
	Generator  textgen.Provider
	References *references.Extractor
	Audit      *auditlog.Store
	Recorder   *telemetry.Recorder
	Logger     *slog.Logger

	GuardTimeout time.Duration
}

type Service struct {
	classifier *classify.Classifier
	aggregator *evidence.Aggregator
	rules      *rules.Store
	gen        textgen.Provider
	refs       *references.Extractor
	audit      *auditlog.Store
	recorder   *telemetry.Recorder
	log        *slog.Logger
	guard      *Guard
	now        func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Classifier == nil {
		return nil, errors.New("missing Classifier")
	}
	if opts.Aggregator == nil {
		return nil, errors.New("missing Aggregator")
	}
	if opts.Rules == nil {
		return nil, errors.New("missing Rules")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		classifier: opts.Classifier,
		aggregator: opts.Aggregator,
		rules:      opts.Rules,
		gen:        opts.Generator,
		refs:       opts.References,
		audit:      opts.Audit,
		recorder:   opts.Recorder,
		log:        logger,
		guard:      NewGuard(opts.GuardTimeout),
		now:        time.Now,
	}, nil
}

// Answer runs the pipeline for one question. The only errors are
// ErrEmptyQuestion and ErrDuplicateRequest; every other failure degrades to a
// lower evidence tier and still produces an answer.
func (s *Service) Answer(ctx context.Context, req Request) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Result{}, ErrEmptyQuestion
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if !s.guard.Acquire(id) {
		s.log.Info("duplicate request dropped", "request_id", id)
		s.recorder.RecordDuplicateDropped(ctx)
		s.audit.Append(auditlog.Entry{RequestID: id, Status: auditlog.StatusDuplicate, Question: question, KnownCard: req.KnownCard})
		return Result{RequestID: id}, ErrDuplicateRequest
	}
	defer s.guard.Release(id)

	start := s.now()
	corpus := s.rules.Snapshot()
	q := classify.NewQuestion(question, req.KnownCard)
	cls := s.classifier.Classify(ctx, q)
	bundle := s.aggregator.Collect(ctx, q, cls, corpus)

	res := Result{
		RequestID: id,
		Tier:      cls.Tier,
		Detector:  cls.Detector,
		Sources:   bundle.Sources(),
	}
	var (
		current  string
		rejected []string
	)
	switch ev := bundle.Primary().(type) {
	case nil:
		res.PrimaryText = NoRulingMessage
	case evidence.ComplexTopicHit:
		res.PrimaryText = ev.Text()
	case evidence.InteractionHit:
		res.PrimaryText = ev.Text()
	case evidence.KeywordHit:
		res.PrimaryText = ev.Text()
	case evidence.CardOracle:
		current = ev.Card.Name
		rejected = s.answerCard(ctx, q, ev, &res)
	case evidence.RuleMatches:
		s.answerRules(ctx, q, ev, &res)
	case evidence.WebSearchHit:
		res.PrimaryText = renderWebResults(ev)
	default:
		res.PrimaryText = NoRulingMessage
	}

	res.ReferencedCards = bundle.Cards()
	referenced := s.refs.Extract(ctx, res.PrimaryText, current)
	res.ReferencedCards = appendUniqueCards(res.ReferencedCards, referenced...)
	s.recorder.RecordReferencedCards(ctx, len(referenced))

	elapsed := s.now().Sub(start)
	s.recorder.RecordAnswer(ctx, string(res.Tier), res.Hedged, elapsed)
	s.log.Info("question answered",
		"request_id", id,
		"tier", res.Tier,
		"detector", res.Detector,
		"attempts", res.Attempts,
		"hedged", res.Hedged,
		"duration_ms", elapsed.Milliseconds(),
	)
	s.audit.Append(auditEntry(id, req, res, bundle, rejected, elapsed))
	return res, nil
}

// answerCard drafts and validates a grounded answer, then appends the
// official rulings. It returns the validation messages of rejected drafts.
func (s *Service) answerCard(ctx context.Context, q classify.Question, ev evidence.CardOracle, res *Result) []string {
	card := ev.Card
	res.Warnings = oracle.Warnings(card.OracleText)

	var rejected []string
	var text string
	if s.gen == nil {
		text = quoteOracle(card)
	} else {
		d := &drafter{
			gen:      s.gen,
			card:     card,
			related:  ev.Related,
			question: q.Raw,
			onReject: func(report oracle.Report) {
				for _, e := range report.Errors {
					s.recorder.RecordValidationFailure(ctx, e.Code)
				}
				rejected = append(rejected, report.Messages()...)
			},
		}
		err := d.run(ctx, ev.Prompt)
		res.Attempts = d.attempts
		switch {
		case err != nil:
			s.log.Warn("text generation failed", "card", card.Name, "attempt", d.attempts, "error", err)
			s.recorder.RecordUpstreamFailure(ctx, "text_generation")
			text = quoteOracle(card)
		case d.hedged():
			res.Hedged = true
			res.Warnings = append(res.Warnings, d.report.Messages()...)
			text = hedgeNotice + "\n\n" + d.draft + "\n\n" + oracleBlock(card)
		default:
			text = d.draft
		}
		if d.attempts > 1 {
			s.recorder.RecordRegeneration(ctx)
		}
	}
	res.PrimaryText = text + rulingsSection(card.Rulings)
	return rejected
}

// answerRules summarizes lexical rule matches, or lists them when no
// generator is configured or it fails.
func (s *Service) answerRules(ctx context.Context, q classify.Question, ev evidence.RuleMatches, res *Result) {
	listing := renderRules(ev.Rules)
	if s.gen == nil {
		res.PrimaryText = "These Comprehensive Rules look relevant:\n\n" + listing
		return
	}
	prompt := rulesInstruction + "\n\n" + listing + "\n\nQuestion: " + q.Raw + "\n"
	text, err := s.gen.Generate(ctx, prompt)
	res.Attempts = 1
	if err != nil {
		s.log.Warn("text generation failed", "tier", res.Tier, "error", err)
		s.recorder.RecordUpstreamFailure(ctx, "text_generation")
		res.PrimaryText = "These Comprehensive Rules look relevant:\n\n" + listing
		return
	}
	res.PrimaryText = strings.TrimSpace(text) + "\n\nRules consulted:\n" + listing
}

const rulesInstruction = `You are a Magic: The Gathering rules judge. Answer the question using only the Comprehensive Rules excerpts below and cite rule numbers. If they do not settle the question, say so.`

func quoteOracle(card carddata.Card) string {
	return "Here is the oracle text, which is the authoritative wording for this card.\n\n" + oracleBlock(card)
}

func oracleBlock(card carddata.Card) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", card.Name)
	if card.ManaCost != "" {
		fmt.Fprintf(&b, " %s", card.ManaCost)
	}
	if card.TypeLine != "" {
		fmt.Fprintf(&b, "\n%s", card.TypeLine)
	}
	fmt.Fprintf(&b, "\n%s", card.OracleText)
	if pt := card.PowerToughness(); pt != "" {
		fmt.Fprintf(&b, "\n%s", pt)
	}
	return b.String()
}

func rulingsSection(rulings []string) string {
	if len(rulings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(references.SectionHeading)
	for _, r := range rulings {
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(r))
	}
	return b.String()
}

func renderRules(records []rules.Record) string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, r.Number+" "+r.Text)
	}
	return strings.Join(lines, "\n")
}

func renderWebResults(ev evidence.WebSearchHit) string {
	var b strings.Builder
	b.WriteString("I couldn't find a definitive ruling in the Comprehensive Rules. These sources may help:")
	for _, item := range ev.Result.Results {
		b.WriteString("\n- ")
		if item.Title != "" {
			b.WriteString(item.Title)
			b.WriteString(": ")
		}
		b.WriteString(item.URL)
	}
	return b.String()
}

func appendUniqueCards(dst []carddata.Card, cards ...carddata.Card) []carddata.Card {
	seen := make(map[string]struct{}, len(dst)+len(cards))
	for _, c := range dst {
		seen[strings.ToLower(c.Name)] = struct{}{}
	}
	for _, c := range cards {
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, c)
	}
	return dst
}

func auditEntry(id string, req Request, res Result, bundle evidence.Bundle, rejected []string, elapsed time.Duration) auditlog.Entry {
	status := auditlog.StatusAnswered
	switch {
	case bundle.Empty():
		status = auditlog.StatusNoRuling
	case res.Hedged:
		status = auditlog.StatusHedged
	}
	names := make([]string, 0, len(res.ReferencedCards))
	for _, c := range res.ReferencedCards {
		names = append(names, c.Name)
	}
	return auditlog.Entry{
		RequestID:        id,
		Status:           status,
		Question:         strings.TrimSpace(req.Question),
		KnownCard:        strings.TrimSpace(req.KnownCard),
		Tier:             string(res.Tier),
		Detector:         res.Detector,
		CascadeVersion:   classify.CascadeVersion,
		Attempts:         res.Attempts,
		ValidationErrors: rejected,
		Sources:          res.Sources,
		ReferencedCards:  names,
		DurationMS:       elapsed.Milliseconds(),
	}
}
