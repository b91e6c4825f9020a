// Package policy paces a session: which kind of turn comes next and when
// the conversation should wind down.
package policy

import (
	"fmt"
	"strings"

	"careerlens/internal/domain"
	"careerlens/internal/transcript"
)

const (
	HintQuestion  = "question"
	HintProgress  = "progress"
	HintPace      = "pace"
	HintElaborate = "elaborate"

	PaceContinue = "continue"
	PaceWrapUp   = "wrap_up"

	shortAnswerWords = 6
)

// Policy is a pure function of (transcript, config, exchangeCount).
type Policy struct {
	wrapUpLead int
}

// New returns a policy that starts wrapping up wrapUpLead exchanges before
// the configured maximum. Values below 1 fall back to 1.
func New(wrapUpLead int) Policy {
	if wrapUpLead < 1 {
		wrapUpLead = 1
	}
	return Policy{wrapUpLead: wrapUpLead}
}

func (p Policy) WrapUpLead() int {
	if p.wrapUpLead < 1 {
		return 1
	}
	return p.wrapUpLead
}

// Next computes the directive for the AI turn that follows exchangeCount
// completed AI turns.
func (p Policy) Next(items []domain.TranscriptItem, cfg domain.SessionConfig, exchangeCount int) (domain.TurnDirective, error) {
	if err := cfg.Validate(); err != nil {
		return domain.TurnDirective{}, err
	}
	cycle := archetypes[cfg.Mode]
	if len(cycle) == 0 {
		return domain.TurnDirective{}, fmt.Errorf("%w: no question archetypes for mode %q", domain.ErrConfig, cfg.Mode)
	}
	if exchangeCount < 0 {
		exchangeCount = 0
	}

	wrapUp := exchangeCount >= cfg.MaxExchanges-p.WrapUpLead()
	directive := domain.TurnDirective{
		ShouldWrapUp: wrapUp,
		FinalTurn:    exchangeCount+1 >= cfg.MaxExchanges,
		Opening:      exchangeCount == 0,
		StyleHints: map[string]string{
			HintProgress: fmt.Sprintf("Exchange %d/%d", exchangeCount+1, cfg.MaxExchanges),
			HintPace:     PaceContinue,
		},
	}

	archetype := cycle[exchangeCount%len(cycle)]
	switch {
	case directive.Opening:
		archetype = opening
	case wrapUp:
		archetype = closing
	}
	directive.QuestionCategory = archetype.Category
	directive.StyleHints[HintQuestion] = archetype.Instruction
	if wrapUp {
		directive.StyleHints[HintPace] = PaceWrapUp
	}

	if last := transcript.LastUserText(items); last != "" && len(strings.Fields(last)) < shortAnswerWords {
		directive.StyleHints[HintElaborate] = "Their last answer was short; encourage them to elaborate."
	}

	return directive, nil
}
