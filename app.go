package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"careerlens/internal/bootstrap"
	"careerlens/internal/httpapi"
)

// App is the server root: the HTTP surface plus the services behind it.
type App struct {
	services *bootstrap.Services
	server   *httpapi.Server
	logger   *slog.Logger
}

func NewApp(services *bootstrap.Services) *App {
	a := &App{services: services, logger: services.Logger}
	a.server = httpapi.New(httpapi.Deps{
		Registry:    services.Registry,
		Turns:       services.Turns,
		Profiles:    services.Profiles,
		Channels:    services,
		Logger:      services.Logger,
		RuntimeInfo: a.RuntimeInfo,
	})
	return a
}

// Run serves until ctx is done, then shuts down gracefully and ends every
// live session.
func (a *App) Run(ctx context.Context) error {
	cfg := a.services.Config.Server
	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.Start(cfg.Addr) }()
	a.logger.Info("careerlens listening", "addr", cfg.Addr)

	var runErr error
	select {
	case runErr = <-serveErr:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := a.services.Close(shutdownCtx); err != nil {
		a.logger.Warn("services did not close cleanly", "error", err)
	}
	a.logger.Info("careerlens stopped")
	return runErr
}

// RuntimeInfo returns non-sensitive config for the UI.
func (a *App) RuntimeInfo() map[string]string {
	cfg := a.services.Config
	return map[string]string{
		"listenProvider":  "Deepgram",
		"listenModel":     cfg.Deepgram.Model,
		"language":        cfg.Deepgram.Language,
		"speakModel":      cfg.Deepgram.SpeakModel,
		"speakSampleRate": strconv.Itoa(cfg.Deepgram.SpeakSampleRate),
		"llmModel":        cfg.LLM.Model,
		"avatars":         strconv.FormatBool(cfg.DID.APIKey != ""),
		"rulesFile":       cfg.Rules.Path,
		"maxExchanges":    strconv.Itoa(a.services.Defaults.Get().MaxExchanges),
	}
}
