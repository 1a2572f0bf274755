package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "judgebot.answer"

// Recorder holds the pipeline instruments. A nil *Recorder records nothing.
type Recorder struct {
	questionsTotal      metric.Int64Counter
	answerDuration      metric.Float64Histogram
	validationFailures  metric.Int64Counter
	regenerations       metric.Int64Counter
	hedgedAnswers       metric.Int64Counter
	upstreamFailures    metric.Int64Counter
	duplicatesDropped   metric.Int64Counter
	corpusReloads       metric.Int64Counter
	referencedCardsSeen metric.Int64Counter
}

// NewRecorder creates the instruments on provider, or on the global meter
// provider when provider is nil.
func NewRecorder(provider metric.MeterProvider) (*Recorder, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	r := &Recorder{}
	var err error

	if r.questionsTotal, err = meter.Int64Counter(
		"judgebot_questions_total",
		metric.WithDescription("Answered questions by winning evidence tier"),
	); err != nil {
		return nil, err
	}
	if r.answerDuration, err = meter.Float64Histogram(
		"judgebot_answer_duration_seconds",
		metric.WithDescription("End-to-end answer latency by tier"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if r.validationFailures, err = meter.Int64Counter(
		"judgebot_validation_failures_total",
		metric.WithDescription("Generated drafts rejected by oracle validation, by error code"),
	); err != nil {
		return nil, err
	}
	if r.regenerations, err = meter.Int64Counter(
		"judgebot_regenerations_total",
		metric.WithDescription("Stricter regenerations after a rejected draft"),
	); err != nil {
		return nil, err
	}
	if r.hedgedAnswers, err = meter.Int64Counter(
		"judgebot_hedged_answers_total",
		metric.WithDescription("Answers returned with a hedge because the regenerated draft also failed validation"),
	); err != nil {
		return nil, err
	}
	if r.upstreamFailures, err = meter.Int64Counter(
		"judgebot_upstream_failures_total",
		metric.WithDescription("Collaborator errors folded into lookup misses, by collaborator"),
	); err != nil {
		return nil, err
	}
	if r.duplicatesDropped, err = meter.Int64Counter(
		"judgebot_duplicate_requests_total",
		metric.WithDescription("Requests dropped because the same request id was already in flight"),
	); err != nil {
		return nil, err
	}
	if r.corpusReloads, err = meter.Int64Counter(
		"judgebot_corpus_reloads_total",
		metric.WithDescription("Rules corpus reloads by source kind"),
	); err != nil {
		return nil, err
	}
	if r.referencedCardsSeen, err = meter.Int64Counter(
		"judgebot_referenced_cards_total",
		metric.WithDescription("Confirmed card references attached to answers"),
	); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) RecordAnswer(ctx context.Context, tier string, hedged bool, d time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.Bool("hedged", hedged),
	)
	r.questionsTotal.Add(ctx, 1, attrs)
	r.answerDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("tier", tier)))
	if hedged {
		r.hedgedAnswers.Add(ctx, 1)
	}
}

func (r *Recorder) RecordValidationFailure(ctx context.Context, code string) {
	if r == nil {
		return
	}
	r.validationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

func (r *Recorder) RecordRegeneration(ctx context.Context) {
	if r == nil {
		return
	}
	r.regenerations.Add(ctx, 1)
}

func (r *Recorder) RecordUpstreamFailure(ctx context.Context, collaborator string) {
	if r == nil {
		return
	}
	r.upstreamFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("collaborator", collaborator)))
}

func (r *Recorder) RecordDuplicateDropped(ctx context.Context) {
	if r == nil {
		return
	}
	r.duplicatesDropped.Add(ctx, 1)
}

func (r *Recorder) RecordCorpusReload(ctx context.Context, source string, rules int) {
	if r == nil {
		return
	}
	r.corpusReloads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("empty", rules == 0),
	))
}

func (r *Recorder) RecordReferencedCards(ctx context.Context, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.referencedCardsSeen.Add(ctx, int64(n))
}
