package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"careerlens/internal/archive"
	"careerlens/internal/config"
	"careerlens/internal/generator"
	"careerlens/internal/ports"
	"careerlens/internal/profile"
	"careerlens/internal/providers/deepgram"
	"careerlens/internal/providers/did"
	"careerlens/internal/providers/llm"
	"careerlens/internal/rules"
	"careerlens/internal/speech"
	"careerlens/internal/usecase"
)

const sweepInterval = time.Minute

// Services is the assembled runtime graph.
type Services struct {
	Config   config.Config
	Logger   *slog.Logger
	Defaults *config.SessionDefaults

	Registry *usecase.Registry
	Turns    *usecase.TurnService
	Profiles *profile.Service
	Rules    *rules.Normalizer

	Listener *deepgram.Listener
	Speaker  *deepgram.Speaker
	Avatars  *did.Client

	closers []func(context.Context) error
}

// Build loads configuration and wires all backend dependencies. Background
// work (rules and config watching, session sweeping) stops when ctx ends.
func Build(ctx context.Context) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel}))
	return BuildWith(ctx, cfg, logger)
}

// BuildWith wires dependencies for an already loaded configuration.
func BuildWith(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{Config: cfg, Logger: logger}

	normalizer, err := rules.New(cfg.Rules.Path, rules.WithLoopLimit(cfg.Rules.IterationLimit), rules.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := normalizer.Watch(ctx); err != nil {
		logger.Warn("rules file will not be reloaded", "path", cfg.Rules.Path, "error", err)
	}
	s.Rules = normalizer

	store, err := s.profileStore(ctx)
	if err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	s.Profiles = profile.NewService(store, profile.WithLogger(logger))

	sessionArchive, err := s.sessionArchive(ctx)
	if err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}

	deepgramCfg := deepgram.Config{
		APIKey:          cfg.Deepgram.APIKey,
		APIBaseURL:      cfg.Deepgram.APIBaseURL,
		Model:           cfg.Deepgram.Model,
		Language:        cfg.Deepgram.Language,
		SmartFormat:     cfg.Deepgram.SmartFormat,
		SpeakModel:      cfg.Deepgram.SpeakModel,
		SpeakSampleRate: cfg.Deepgram.SpeakSampleRate,
	}
	s.Listener = deepgram.NewListener(deepgramCfg)
	s.Speaker = deepgram.NewSpeaker(deepgramCfg, logger)
	s.Avatars = did.NewClient(did.Config{
		BaseURL:      cfg.DID.BaseURL,
		APIKey:       cfg.DID.APIKey,
		ReadyTimeout: cfg.DID.ReadyTimeout,
	})

	genOpts := []generator.Option{generator.WithLogger(logger)}
	if cfg.LLM.TemplatesFile != "" {
		templates, err := generator.LoadTemplatesFile(cfg.LLM.TemplatesFile)
		if err != nil {
			_ = s.Close(context.Background())
			return nil, err
		}
		genOpts = append(genOpts, generator.WithTemplates(templates))
	}
	gen := generator.New(llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}), genOpts...)

	s.Defaults = cfg.WatchSession(logger)
	defaults := func() usecase.Config { return sessionDefaults(s.Defaults.Get()) }

	s.Registry = usecase.NewRegistry(usecase.Deps{
		Generator:  gen,
		Normalizer: normalizer,
		Archive:    sessionArchive,
		Logger:     logger,
	}, defaults, usecase.RegistryConfig{TTL: cfg.Session.TTL, MaxSessions: cfg.Session.MaxSessions})
	s.Turns = usecase.NewTurnService(gen, s.Avatars, defaults, logger)

	go s.sweep(ctx)
	return s, nil
}

// StreamingChannel builds a server-side speech channel around capture and
// sink, transcribing with Deepgram listen and speaking with Deepgram Aura.
func (s *Services) StreamingChannel(capture ports.AudioCapture, sink ports.AudioSink) *speech.Streaming {
	audioCfg := s.Config.Audio
	return speech.NewStreaming(capture, s.Listener, s.Speaker, sink, speech.StreamingConfig{
		Audio: ports.AudioConfig{
			SampleRate:  audioCfg.SampleRate,
			Channels:    audioCfg.Channels,
			InputFormat: audioCfg.InputFormat,
			InputDevice: audioCfg.InputDevice,
		},
		Stream: ports.StreamingConfig{
			SampleRate:     audioCfg.SampleRate,
			Channels:       audioCfg.Channels,
			Encoding:       "linear16",
			InterimResults: true,
			Endpointing:    s.Config.Deepgram.Endpointing,
		},
		ChunkSize:     audioCfg.ChunkSize,
		RenderTimeout: s.Defaults.Get().RenderTimeout,
	}, s.Logger)
}

// RemoteChannel builds a speech channel whose audio lives in the client,
// with an optional D-ID avatar speaking AI turns.
func (s *Services) RemoteChannel(peer speech.RemotePeer) *speech.Remote {
	return speech.NewRemote(peer, s.Avatars, speech.RemoteConfig{
		RenderTimeout: s.Defaults.Get().RenderTimeout,
	}, s.Logger)
}

// Close ends every live session and releases storage connections.
func (s *Services) Close(ctx context.Context) error {
	if s.Registry != nil {
		s.Registry.Close(ctx)
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Services) profileStore(ctx context.Context) (ports.ProfileStore, error) {
	mongoCfg := s.Config.Mongo
	if mongoCfg.URI == "" {
		s.Logger.Info("profiles are kept in memory; set MONGODB_URI to persist them")
		return profile.NewMemoryStore(), nil
	}
	store, disconnect, err := profile.ConnectMongo(ctx, mongoCfg.URI, mongoCfg.Database, mongoCfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("connect profile store: %w", err)
	}
	s.closers = append(s.closers, disconnect)
	return store, nil
}

func (s *Services) sessionArchive(ctx context.Context) (ports.SessionArchive, error) {
	var archives []ports.SessionArchive

	if dsn := s.Config.Postgres.URL; dsn != "" {
		pg, closePool, err := archive.ConnectPostgres(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect session archive: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error {
			closePool()
			return nil
		})
		archives = append(archives, pg)
	}

	sb := s.Config.Supabase
	if sb.URL != "" && sb.ServiceRoleKey != "" {
		export, err := archive.NewSupabaseExport(archive.SupabaseConfig{
			URL:            sb.URL,
			ServiceRoleKey: sb.ServiceRoleKey,
			Bucket:         sb.Bucket,
			Prefix:         "sessions",
		})
		if err != nil {
			return nil, err
		}
		archives = append(archives, export)
	}

	if len(archives) == 0 {
		return nil, nil
	}
	return archive.NewMulti(s.Logger, archives...), nil
}

func (s *Services) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Registry.Sweep()
		}
	}
}

func sessionDefaults(c config.SessionConfig) usecase.Config {
	return usecase.Config{
		MaxExchanges:        c.MaxExchanges,
		WrapUpLead:          c.WrapUpLead,
		SilenceTimeout:      c.SilenceTimeout,
		CaptureRestartDelay: c.CaptureRestartDelay,
		MaxCaptureRestarts:  c.MaxCaptureRestarts,
		ReleaseTimeout:      c.ReleaseTimeout,
	}
}
