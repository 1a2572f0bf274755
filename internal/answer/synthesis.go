package answer

import (
	"context"
	"strings"

	"github.com/floegence/judgebot/internal/carddata"
	"github.com/floegence/judgebot/internal/oracle"
	"github.com/floegence/judgebot/internal/textgen"
)

// MaxAttempts is the number of drafts per question: the first one and at most
// one stricter regeneration.
const MaxAttempts = 2

type draftState int

const (
	stateDrafting draftState = iota
	stateValidated
	stateDone
)

// drafter moves Drafting -> Validated, and back to Drafting at most once when
// a draft fails validation. The last draft is kept whether or not it passed.
type drafter struct {
	gen      textgen.Provider
	card     carddata.Card
	related  []carddata.Card
	question string

	// onReject is called with each failed report that triggers a regeneration
	// or ends the machine.
	onReject func(oracle.Report)

	state    draftState
	attempts int
	prompt   string
	draft    string
	report   oracle.Report
}

func (d *drafter) run(ctx context.Context, prompt string) error {
	d.state = stateDrafting
	d.prompt = prompt
	for d.state != stateDone {
		switch d.state {
		case stateDrafting:
			draft, err := d.gen.Generate(ctx, d.prompt)
			d.attempts++
			if err != nil {
				return err
			}
			d.draft = strings.TrimSpace(draft)
			d.report = oracle.Validate(d.card.OracleText, d.draft)
			d.state = stateValidated
		case stateValidated:
			if d.report.Valid {
				d.state = stateDone
				continue
			}
			if d.onReject != nil {
				d.onReject(d.report)
			}
			if d.attempts >= MaxAttempts {
				d.state = stateDone
				continue
			}
			d.prompt = oracle.BuildRetryPrompt(d.card, d.question, d.report, d.related...)
			d.state = stateDrafting
		}
	}
	return nil
}

func (d *drafter) hedged() bool {
	return d.attempts > 0 && !d.report.Valid
}
