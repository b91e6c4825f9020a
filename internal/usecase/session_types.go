package usecase

import (
	"context"
	"log/slog"
	"time"

	"careerlens/internal/domain"
	"careerlens/internal/generator"
	"careerlens/internal/ports"
)

// Config holds the session defaults. New sessions read it at creation.
type Config struct {
	MaxExchanges        int
	WrapUpLead          int
	SilenceTimeout      time.Duration
	CaptureRestartDelay time.Duration
	MaxCaptureRestarts  int
	ReleaseTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 2 * time.Second
	}
	if c.CaptureRestartDelay <= 0 {
		c.CaptureRestartDelay = 750 * time.Millisecond
	}
	if c.MaxCaptureRestarts <= 0 {
		c.MaxCaptureRestarts = 5
	}
	if c.ReleaseTimeout <= 0 {
		c.ReleaseTimeout = 5 * time.Second
	}
	return c
}

// TurnPolicy decides the directive for the next AI turn.
type TurnPolicy interface {
	Next(items []domain.TranscriptItem, cfg domain.SessionConfig, exchangeCount int) (domain.TurnDirective, error)
}

// TurnGenerator produces the next AI turn.
type TurnGenerator interface {
	Generate(ctx context.Context, req generator.Request) (domain.GenerationResult, error)
}

// Deps are the collaborators shared by every session of a process.
type Deps struct {
	Policy     TurnPolicy
	Generator  TurnGenerator
	Normalizer ports.UtteranceNormalizer
	Archive    ports.SessionArchive
	Logger     *slog.Logger
	Now        func() time.Time
}

// loop events, handled one at a time by Session.run.
type (
	generationDone struct {
		turn      uint64
		directive domain.TurnDirective
		res       domain.GenerationResult
		err       error
	}
	renderDone struct {
		turn uint64
		err  error
	}
	partialCaptured struct {
		seq  uint64
		text string
	}
	silenceElapsed struct {
		gen uint64
	}
	captureEnded struct {
		seq uint64
		err error
	}
	captureRearm struct {
		turn uint64
	}
	utteranceSubmitted struct {
		text  string
		reply chan error
	}
	endRequested struct {
		reason domain.SessionStateReason
	}
)

type nopSink struct{}

func (nopSink) SessionStateChanged(domain.Phase, domain.SessionStateReason)      {}
func (nopSink) PartialTranscript(string)                                         {}
func (nopSink) TurnCommitted(int, domain.TranscriptItem, *domain.FeedbackReport) {}
func (nopSink) HandshakeReady(ports.Handshake)                                   {}
func (nopSink) SessionError(domain.ErrorCode, string)                            {}
