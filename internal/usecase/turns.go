package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"careerlens/internal/domain"
	"careerlens/internal/generator"
	"careerlens/internal/policy"
	"careerlens/internal/ports"
	"careerlens/internal/transcript"
)

// TurnRequest is one stateless turn: the client holds the transcript.
type TurnRequest struct {
	Profile    *domain.UserProfile
	Transcript []domain.TranscriptItem
	Config     domain.SessionConfig
}

type TurnResult struct {
	Result        domain.GenerationResult
	Directive     domain.TurnDirective
	ExchangeCount int
}

// TurnService answers single turns for clients that drive the session
// themselves.
type TurnService struct {
	gen      TurnGenerator
	avatars  ports.AvatarStreamer
	defaults func() Config
	logger   *slog.Logger
}

func NewTurnService(gen TurnGenerator, avatars ports.AvatarStreamer, defaults func() Config, logger *slog.Logger) *TurnService {
	if defaults == nil {
		defaults = func() Config { return Config{} }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnService{gen: gen, avatars: avatars, defaults: defaults, logger: logger}
}

// Respond merges the submitted transcript and generates the next AI turn.
func (t *TurnService) Respond(ctx context.Context, req TurnRequest) (TurnResult, error) {
	defaults := t.defaults()
	cfg := req.Config
	if cfg.MaxExchanges == 0 && defaults.MaxExchanges > 0 {
		cfg.MaxExchanges = defaults.MaxExchanges
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return TurnResult{}, err
	}

	store, err := transcript.FromItems(req.Transcript)
	if err != nil {
		return TurnResult{}, err
	}
	items := store.Items()
	count := transcript.CountAI(items)

	directive, err := policy.New(defaults.WrapUpLead).Next(items, cfg, count)
	if err != nil {
		return TurnResult{}, err
	}

	res, err := t.gen.Generate(ctx, generator.Request{
		Profile:    req.Profile,
		Transcript: items,
		Config:     cfg,
		Directive:  directive,
	})
	if err != nil {
		t.logger.Warn("turn generation failed", "mode", cfg.Mode, "exchange", count, "error", err)
		return TurnResult{}, err
	}
	return TurnResult{Result: res, Directive: directive, ExchangeCount: count + 1}, nil
}

// OpenAvatar opens the realtime avatar stream that will speak text. It
// returns nil when the config selects no avatar.
func (t *TurnService) OpenAvatar(ctx context.Context, cfg domain.SessionConfig, text string) (*ports.Handshake, error) {
	if cfg.Avatar == "" || t.avatars == nil {
		return nil, nil
	}
	h, err := t.avatars.OpenRealtimeHandshake(ctx, text, cfg.Avatar)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResourceAcquisition, err)
	}
	return &h, nil
}
